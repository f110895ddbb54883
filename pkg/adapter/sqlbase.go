package adapter

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

// sqlAdapter implements Adapter on top of any database/sql-compatible
// driver: a single pooled *sqlx.DB per datasource, with dialect-specific
// SQL generation delegated to a small dialect struct rather than
// per-engine duplication of Execute/Introspect.
type sqlAdapter struct {
	driverName string
	dsn        string
	dialect    dialectSpec
	db         *sqlx.DB
}

// dialectSpec captures the handful of things that differ between ANSI-ish
// SQL engines: the dialect name surfaced to the SqlAgent, and how to
// introspect tables/columns.
type dialectSpec struct {
	name       string
	introspect func(ctx context.Context, db *sqlx.DB) (*models.SchemaDescriptor, error)
}

func newSQLAdapter(driverName, dsn string, dialect dialectSpec) *sqlAdapter {
	return &sqlAdapter{driverName: driverName, dsn: dsn, dialect: dialect}
}

func (a *sqlAdapter) Connect(ctx context.Context) error {
	db, err := sqlx.Open(a.driverName, a.dsn)
	if err != nil {
		return fmt.Errorf("adapter: open %s: %w", a.dialect.name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("adapter: ping %s: %w", a.dialect.name, err)
	}
	a.db = db
	return nil
}

func (a *sqlAdapter) Disconnect(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *sqlAdapter) Healthy(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("adapter: not connected")
	}
	return a.db.PingContext(ctx)
}

func (a *sqlAdapter) Dialect() string { return a.dialect.name }

// Execute runs sql with the given timeout and caps the returned rows at
// MaxRows, setting Truncated when more rows were available. Truncation is
// client-side (we read one extra row past the cap) rather than rewriting
// the statement, since arbitrary SqlAgent-authored SQL may already carry
// its own ORDER BY/LIMIT that a naive rewrite would break.
func (a *sqlAdapter) Execute(ctx context.Context, query string, opts ExecuteOptions) (*ExecuteResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := a.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, classifyQueryError(err)
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, classifyQueryError(err)
	}
	colTypes, _ := rows.ColumnTypes()

	columns := make([]models.ColumnDescriptor, len(colNames))
	for i, name := range colNames {
		typeName := "unknown"
		if colTypes != nil && i < len(colTypes) {
			typeName = colTypes[i].DatabaseTypeName()
		}
		columns[i] = models.ColumnDescriptor{Name: name, Type: typeName, Nullable: true}
	}

	maxRows := opts.MaxRows
	var result [][]any
	truncated := false
	for rows.Next() {
		if maxRows > 0 && len(result) >= maxRows {
			truncated = true
			break
		}
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, classifyQueryError(err)
		}
		result = append(result, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryError(err)
	}

	return &ExecuteResult{
		Columns:    columns,
		Rows:       result,
		DurationMS: time.Since(start).Milliseconds(),
		RowCount:   len(result),
		Truncated:  truncated,
	}, nil
}

func (a *sqlAdapter) Introspect(ctx context.Context) (*models.SchemaDescriptor, error) {
	desc, err := a.dialect.introspect(ctx, a.db)
	if err != nil {
		return nil, classifyQueryError(err)
	}
	desc.Dialect = a.dialect.name
	return desc, nil
}

// classifyQueryError distinguishes a SQL-level error (bad column, bad
// syntax — recoverable by the correction loop, surfaced as sqlExecError so
// the pipeline leaves the connection in the pool) from a driver/connection
// level error (the connection itself is unusable and must be discarded,
// surfaced as a DB_TRANSIENT taxonomy error).
func classifyQueryError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return err
	}
	if isConnectionLevelDriverErr(err) {
		return errs.New(errs.KindDBTransient, "database connection lost mid-query", err)
	}
	return &sqlExecError{cause: err}
}

// isConnectionLevelDriverErr reports whether err indicates the underlying
// connection broke rather than the query itself being invalid: a dead
// connection the driver already gave up on, a context deadline/cancellation,
// or a transport-level network error.
func isConnectionLevelDriverErr(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// sqlExecError marks an error as engine-reported (vs. transport-level),
// letting the pipeline's correction loop distinguish SQL_ERROR from
// DB_TRANSIENT/DB_PERMANENT without parsing driver-specific error codes.
type sqlExecError struct{ cause error }

func (e *sqlExecError) Error() string { return e.cause.Error() }
func (e *sqlExecError) Unwrap() error { return e.cause }
