package adapter

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

func init() {
	registerBuiltin(models.DatasourceBigQuery, newBigQueryAdapter)
}

// bigQueryAdapter does not embed sqlAdapter: BigQuery's Go SDK is a job/RPC
// client, not a database/sql driver, so Execute/Introspect are implemented
// directly against *bigquery.Client.
type bigQueryAdapter struct {
	projectID string
	dataset   string
	client    *bigquery.Client
}

func newBigQueryAdapter(conn map[string]string) (Adapter, error) {
	project, err := requireField(conn, "project_id")
	if err != nil {
		return nil, fmt.Errorf("adapter: bigquery: %w", err)
	}
	return &bigQueryAdapter{projectID: project, dataset: conn["dataset"]}, nil
}

func (a *bigQueryAdapter) Connect(ctx context.Context) error {
	client, err := bigquery.NewClient(ctx, a.projectID)
	if err != nil {
		return fmt.Errorf("adapter: bigquery: connect: %w", err)
	}
	a.client = client
	return nil
}

func (a *bigQueryAdapter) Disconnect(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a *bigQueryAdapter) Healthy(ctx context.Context) error {
	if a.client == nil {
		return fmt.Errorf("adapter: bigquery: not connected")
	}
	q := a.client.Query("SELECT 1")
	it, err := q.Read(ctx)
	if err != nil {
		return err
	}
	var row []bigquery.Value
	return ignoreIteratorDone(it.Next(&row))
}

func (a *bigQueryAdapter) Dialect() string { return "bigquery" }

func (a *bigQueryAdapter) Execute(ctx context.Context, sql string, opts ExecuteOptions) (*ExecuteResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	q := a.client.Query(sql)
	it, err := q.Read(ctx)
	if err != nil {
		return nil, classifyBigQueryError(err)
	}

	columns := make([]models.ColumnDescriptor, 0, len(it.Schema))
	for _, f := range it.Schema {
		columns = append(columns, models.ColumnDescriptor{
			Name:     f.Name,
			Type:     string(f.Type),
			Nullable: !f.Required,
		})
	}

	maxRows := opts.MaxRows
	var result [][]any
	truncated := false
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyBigQueryError(err)
		}
		if maxRows > 0 && len(result) >= maxRows {
			truncated = true
			break
		}
		vals := make([]any, len(row))
		for i, v := range row {
			vals[i] = v
		}
		result = append(result, vals)
	}

	return &ExecuteResult{
		Columns:    columns,
		Rows:       result,
		DurationMS: time.Since(start).Milliseconds(),
		RowCount:   len(result),
		Truncated:  truncated,
	}, nil
}

func (a *bigQueryAdapter) Introspect(ctx context.Context) (*models.SchemaDescriptor, error) {
	desc := &models.SchemaDescriptor{Dialect: "bigquery"}
	dataset := a.client.Dataset(a.dataset)
	it := dataset.Tables(ctx)
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("adapter: bigquery: list tables: %w", err)
		}
		md, err := t.Metadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("adapter: bigquery: metadata %s: %w", t.TableID, err)
		}
		td := models.TableDescriptor{Name: t.TableID}
		for _, f := range md.Schema {
			td.Columns = append(td.Columns, models.ColumnDescriptor{
				Name:     f.Name,
				Type:     string(f.Type),
				Nullable: !f.Required,
			})
		}
		desc.Tables = append(desc.Tables, td)
	}
	return desc, nil
}

func ignoreIteratorDone(err error) error {
	if err == iterator.Done {
		return nil
	}
	return err
}

// classifyBigQueryError mirrors sqlbase.go's classifyQueryError: a
// context-level failure means the job/stream itself is dead and the client
// should be recycled, anything else is treated as a query-level failure the
// correction loop can retry against.
func classifyBigQueryError(err error) error {
	if isConnectionLevelDriverErr(err) {
		return errs.New(errs.KindDBTransient, "bigquery connection lost mid-query", err)
	}
	return &sqlExecError{cause: err}
}
