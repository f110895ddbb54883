package adapter

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver, pure Go (no cgo)

	"github.com/insightloop/core/pkg/models"
)

func init() {
	registerBuiltin(models.DatasourceSQLite, newSQLiteAdapter)
}

func newSQLiteAdapter(conn map[string]string) (Adapter, error) {
	path := conn["path"]
	if path == "" {
		path = conn["file"]
	}
	if path == "" {
		return nil, fmt.Errorf("adapter: sqlite requires connection[\"path\"]")
	}
	return newSQLAdapter("sqlite", path, dialectSpec{
		name:       "sqlite",
		introspect: sqliteIntrospect,
	}), nil
}

type sqliteMasterRow struct {
	Name string `db:"name"`
}

type sqlitePragmaRow struct {
	Name     string `db:"name"`
	Type     string `db:"type"`
	NotNull  int    `db:"notnull"`
	PK       int    `db:"pk"`
}

// sqliteIntrospect has no information_schema, so it walks sqlite_master for
// table names and PRAGMA table_info(<table>) for columns.
func sqliteIntrospect(ctx context.Context, db *sqlx.DB) (*models.SchemaDescriptor, error) {
	var tables []sqliteMasterRow
	if err := db.SelectContext(ctx, &tables,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`); err != nil {
		return nil, err
	}

	desc := &models.SchemaDescriptor{}
	for _, t := range tables {
		var cols []sqlitePragmaRow
		if err := db.SelectContext(ctx, &cols, fmt.Sprintf("PRAGMA table_info(%q)", t.Name)); err != nil {
			return nil, err
		}
		td := models.TableDescriptor{Name: t.Name}
		for _, c := range cols {
			td.Columns = append(td.Columns, models.ColumnDescriptor{
				Name:       c.Name,
				Type:       c.Type,
				Nullable:   c.NotNull == 0,
				PrimaryKey: c.PK != 0,
			})
		}
		desc.Tables = append(desc.Tables, td)
	}
	return desc, nil
}
