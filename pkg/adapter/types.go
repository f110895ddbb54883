// Package adapter provides the uniform database adapter and connection pool
// layer: a table-driven registry of engine-specific Adapter factories,
// and a process-wide Pool that bounds live connections per datasource and
// in total.
package adapter

import (
	"context"
	"time"

	"github.com/insightloop/core/pkg/models"
)

// ExecuteOptions bounds one Execute call.
type ExecuteOptions struct {
	Timeout time.Duration
	MaxRows int
}

// ExecuteResult is the uniform shape every Adapter.Execute call returns.
type ExecuteResult struct {
	Columns    []models.ColumnDescriptor
	Rows       [][]any
	DurationMS int64
	RowCount   int
	Truncated  bool
}

// Adapter is the capability every database-engine-specific implementation
// provides: connect, disconnect, execute, introspect, and report its SQL
// dialect for the SqlAgent/validator.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Execute(ctx context.Context, sql string, opts ExecuteOptions) (*ExecuteResult, error)
	Introspect(ctx context.Context) (*models.SchemaDescriptor, error)
	Dialect() string
	// Healthy runs a cheap probe ("SELECT 1" equivalent) against the
	// underlying connection.
	Healthy(ctx context.Context) error
}

// Factory constructs an Adapter from a Datasource's opaque connection map.
// Factories are registered per models.DatasourceType in the package-level
// registry (registry.go).
type Factory func(connection map[string]string) (Adapter, error)
