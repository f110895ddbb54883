package adapter

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/insightloop/core/pkg/models"
)

func init() {
	registerBuiltin(models.DatasourcePostgres, newPostgresAdapter)
}

func newPostgresAdapter(conn map[string]string) (Adapter, error) {
	dsn, err := buildKVDSN(conn, kvDSNSpec{
		template: "host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		fields:   []string{"host", "port", "user", "password", "dbname", "sslmode"},
		defaults: map[string]string{"port": "5432", "sslmode": "disable"},
		required: []string{"host", "user", "dbname"},
	})
	if err != nil {
		return nil, fmt.Errorf("adapter: postgres: %w", err)
	}
	return newSQLAdapter("pgx", dsn, dialectSpec{name: "postgres", introspect: ansiIntrospect}), nil
}
