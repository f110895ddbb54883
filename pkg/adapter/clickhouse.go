package adapter

import (
	"fmt"

	_ "github.com/ClickHouse/clickhouse-go/v2" // registers the "clickhouse" driver

	"github.com/insightloop/core/pkg/models"
)

func init() {
	registerBuiltin(models.DatasourceClickHouse, newClickHouseAdapter)
}

func newClickHouseAdapter(conn map[string]string) (Adapter, error) {
	host, err := requireField(conn, "host")
	if err != nil {
		return nil, fmt.Errorf("adapter: clickhouse: %w", err)
	}
	port := conn["port"]
	if port == "" {
		port = "9000"
	}
	dsn := fmt.Sprintf("clickhouse://%s:%s@%s:%s/%s",
		conn["user"], conn["password"], host, port, conn["database"])
	return newSQLAdapter("clickhouse", dsn, dialectSpec{name: "clickhouse", introspect: ansiIntrospect}), nil
}
