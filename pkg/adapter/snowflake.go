package adapter

import (
	"fmt"

	_ "github.com/snowflakedb/gosnowflake" // registers the "snowflake" driver

	"github.com/insightloop/core/pkg/models"
)

func init() {
	registerBuiltin(models.DatasourceSnowflake, newSnowflakeAdapter)
}

func newSnowflakeAdapter(conn map[string]string) (Adapter, error) {
	account, err := requireField(conn, "account")
	if err != nil {
		return nil, fmt.Errorf("adapter: snowflake: %w", err)
	}
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s",
		conn["user"], conn["password"], account, conn["database"], conn["schema"], conn["warehouse"])
	return newSQLAdapter("snowflake", dsn, dialectSpec{name: "snowflake", introspect: ansiIntrospect}), nil
}
