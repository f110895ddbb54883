package adapter

import (
	"fmt"

	_ "github.com/trinodb/trino-go-client/trino" // registers the "trino" driver

	"github.com/insightloop/core/pkg/models"
)

func init() {
	registerBuiltin(models.DatasourceTrino, newTrinoAdapter)
}

func newTrinoAdapter(conn map[string]string) (Adapter, error) {
	host, err := requireField(conn, "host")
	if err != nil {
		return nil, fmt.Errorf("adapter: trino: %w", err)
	}
	port := conn["port"]
	if port == "" {
		port = "8080"
	}
	dsn := fmt.Sprintf("http://%s@%s:%s?catalog=%s&schema=%s",
		conn["user"], host, port, conn["catalog"], conn["schema"])
	return newSQLAdapter("trino", dsn, dialectSpec{name: "trino", introspect: ansiIntrospect}), nil
}
