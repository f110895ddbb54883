package adapter

import (
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver

	"github.com/insightloop/core/pkg/models"
)

func init() {
	registerBuiltin(models.DatasourceMSSQL, newMSSQLAdapter)
}

func newMSSQLAdapter(conn map[string]string) (Adapter, error) {
	host, err := requireField(conn, "host")
	if err != nil {
		return nil, fmt.Errorf("adapter: mssql: %w", err)
	}
	port := conn["port"]
	if port == "" {
		port = "1433"
	}
	dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%s?database=%s",
		conn["user"], conn["password"], host, port, conn["database"])
	return newSQLAdapter("sqlserver", dsn, dialectSpec{name: "mssql", introspect: ansiIntrospect}), nil
}
