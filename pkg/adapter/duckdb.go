package adapter

import (
	_ "github.com/marcboeker/go-duckdb" // registers the "duckdb" driver

	"github.com/insightloop/core/pkg/models"
)

func init() {
	registerBuiltin(models.DatasourceDuckDB, newDuckDBAdapter)
}

func newDuckDBAdapter(conn map[string]string) (Adapter, error) {
	path := conn["path"]
	if path == "" {
		path = ":memory:"
	}
	// DuckDB exposes an ANSI-compatible information_schema, so it shares the
	// introspection path used by postgres/mysql/mssql/clickhouse/snowflake/trino.
	return newSQLAdapter("duckdb", path, dialectSpec{name: "duckdb", introspect: ansiIntrospect}), nil
}
