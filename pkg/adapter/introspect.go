package adapter

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/insightloop/core/pkg/models"
)

// ansiColumnRow is one row of the information_schema.columns-style query
// shared by postgres, mysql, mssql, clickhouse, snowflake, trino and duckdb.
type ansiColumnRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
	DataType   string `db:"data_type"`
	IsNullable string `db:"is_nullable"`
}

const ansiColumnsQuery = `
SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
ORDER BY table_name, ordinal_position`

// ansiIntrospect builds a SchemaDescriptor from information_schema.columns,
// the lowest common denominator across every ANSI-ish engine this module
// targets. Primary and foreign keys are not read from any engine: every
// column is reported with PrimaryKey false and ForeignKey nil, and the
// descriptor is still valid without that key metadata.
func ansiIntrospect(ctx context.Context, db *sqlx.DB) (*models.SchemaDescriptor, error) {
	var rows []ansiColumnRow
	if err := sqlxSelect(ctx, db, &rows, ansiColumnsQuery); err != nil {
		return nil, err
	}

	tables := map[string]*models.TableDescriptor{}
	var order []string
	for _, r := range rows {
		t, ok := tables[r.TableName]
		if !ok {
			t = &models.TableDescriptor{Name: r.TableName}
			tables[r.TableName] = t
			order = append(order, r.TableName)
		}
		t.Columns = append(t.Columns, models.ColumnDescriptor{
			Name:     r.ColumnName,
			Type:     r.DataType,
			Nullable: r.IsNullable == "YES" || r.IsNullable == "yes" || r.IsNullable == "1",
		})
	}

	desc := &models.SchemaDescriptor{}
	for _, name := range order {
		desc.Tables = append(desc.Tables, *tables[name])
	}
	return desc, nil
}

// sqlxSelect is a thin indirection point so tests can stub introspection
// without a live database.
var sqlxSelect = func(ctx context.Context, db *sqlx.DB, dest any, query string, args ...any) error {
	return db.SelectContext(ctx, dest, query, args...)
}
