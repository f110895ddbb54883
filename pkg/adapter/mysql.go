package adapter

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" driver

	"github.com/insightloop/core/pkg/models"
)

func init() {
	registerBuiltin(models.DatasourceMySQL, newMySQLAdapter)
}

func newMySQLAdapter(conn map[string]string) (Adapter, error) {
	host, err := requireField(conn, "host")
	if err != nil {
		return nil, fmt.Errorf("adapter: mysql: %w", err)
	}
	db, err := requireField(conn, "database")
	if err != nil {
		return nil, fmt.Errorf("adapter: mysql: %w", err)
	}
	port := conn["port"]
	if port == "" {
		port = "3306"
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		conn["user"], conn["password"], host, port, db)
	return newSQLAdapter("mysql", dsn, dialectSpec{name: "mysql", introspect: ansiIntrospect}), nil
}
