package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightloop/core/pkg/adapter"
	"github.com/insightloop/core/pkg/agent"
	"github.com/insightloop/core/pkg/agent/prompt"
	"github.com/insightloop/core/pkg/llmprovider"
	"github.com/insightloop/core/pkg/memo"
	"github.com/insightloop/core/pkg/models"
)

// sequencedProvider replies with replies[0], replies[1], ... in order,
// repeating the last reply once exhausted — enough to drive a fixed-length
// correction loop without modeling a real chat history.
type sequencedProvider struct {
	replies []string
	i       int
}

func (p *sequencedProvider) Generate(ctx context.Context, req *llmprovider.GenerateRequest) (*llmprovider.GenerateResponse, error) {
	idx := p.i
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	p.i++
	return &llmprovider.GenerateResponse{Content: p.replies[idx]}, nil
}

func (p *sequencedProvider) Close() error { return nil }

type fakeQueryAdapter struct {
	execFn func(sql string) (*adapter.ExecuteResult, error)
}

func (f *fakeQueryAdapter) Connect(ctx context.Context) error    { return nil }
func (f *fakeQueryAdapter) Disconnect(ctx context.Context) error { return nil }
func (f *fakeQueryAdapter) Healthy(ctx context.Context) error    { return nil }
func (f *fakeQueryAdapter) Dialect() string                      { return "fake" }

func (f *fakeQueryAdapter) Execute(ctx context.Context, sql string, opts adapter.ExecuteOptions) (*adapter.ExecuteResult, error) {
	return f.execFn(sql)
}

func (f *fakeQueryAdapter) Introspect(ctx context.Context) (*models.SchemaDescriptor, error) {
	return &models.SchemaDescriptor{
		Dialect: "fake",
		Tables: []models.TableDescriptor{
			{Name: "orders", Columns: []models.ColumnDescriptor{
				{Name: "id", Type: "integer"},
				{Name: "revenue", Type: "numeric"},
				{Name: "customer_name", Type: "varchar"},
			}},
		},
	}, nil
}

type fakeResolver struct{ ds *models.Datasource }

func (r *fakeResolver) Resolve(ctx context.Context, id string) (*models.Datasource, error) { return r.ds, nil }

type fakeRecorder struct{ records []models.QueryRecord }

func (r *fakeRecorder) RecordQuery(ctx context.Context, rec models.QueryRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func newTestPipeline(replies []string, execFn func(sql string) (*adapter.ExecuteResult, error)) (*Pipeline, *fakeRecorder) {
	registry := adapter.NewRegistry()
	registry.Register("fake", func(conn map[string]string) (adapter.Adapter, error) {
		return &fakeQueryAdapter{execFn: execFn}, nil
	})
	pool := adapter.NewPool(adapter.PoolConfig{MaxTotal: 5, MaxPerDatasource: 5, AcquireTimeout: time.Second, HealthInterval: time.Minute}, registry)

	builder := prompt.NewBuilder()
	runtime := agent.NewRuntime(&sequencedProvider{replies: replies}, agent.Profile{ID: "p1", Features: agent.FeatureMask{SQLTool: true}}, nil, nil)

	schemaAgent := agent.NewSchemaAgent(runtime, pool, builder)
	sqlAgent := agent.NewSqlAgent(runtime, builder)
	vizAgent := agent.NewVisualizeAgent(runtime, builder)

	recorder := &fakeRecorder{}
	resolver := &fakeResolver{ds: &models.Datasource{ID: "ds1", Type: "fake"}}

	p := New(resolver, pool, schemaAgent, sqlAgent, vizAgent, memo.NewCache(), memo.NewMemoryStore(10), recorder, nil)
	return p, recorder
}

func TestPipeline_Analyze_HappyPath(t *testing.T) {
	p, recorder := newTestPipeline(
		[]string{`{"intent":"answer","sql":"SELECT customer_name, revenue FROM orders"}`},
		func(sql string) (*adapter.ExecuteResult, error) {
			return &adapter.ExecuteResult{
				Columns:  []models.ColumnDescriptor{{Name: "customer_name", Type: "varchar"}, {Name: "revenue", Type: "numeric"}},
				Rows:     [][]any{{"acme", 100}},
				RowCount: 1,
			}, nil
		},
	)

	res, err := p.Analyze(context.Background(), models.AnalysisRequest{Question: "revenue by customer", DatasourceID: "ds1", Scene: models.SceneDashboard})
	require.NoError(t, err)
	assert.Equal(t, models.IntentAnswer, res.Intent)
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, recorder.records, 1)
	assert.Equal(t, "success", recorder.records[0].Status)
}

func TestPipeline_Analyze_Clarification(t *testing.T) {
	p, recorder := newTestPipeline(
		[]string{`{"intent":"clarification","question":"Which time window?","options":["today","this week"]}`},
		nil,
	)

	res, err := p.Analyze(context.Background(), models.AnalysisRequest{Question: "how much revenue", DatasourceID: "ds1", Scene: models.SceneDashboard})
	require.NoError(t, err)
	assert.Equal(t, models.IntentClarification, res.Intent)
	require.NotNil(t, res.Clarification)
	assert.Empty(t, recorder.records)
}

func TestPipeline_Analyze_CorrectionLoopRecoversThenSucceeds(t *testing.T) {
	var calls int
	p, recorder := newTestPipeline(
		[]string{
			`{"intent":"answer","sql":"SELECT bogus_column FROM orders"}`,
			`{"intent":"answer","sql":"SELECT revenue FROM orders"}`,
		},
		func(sql string) (*adapter.ExecuteResult, error) {
			calls++
			if sql == "SELECT bogus_column FROM orders" {
				return nil, errors.New("no such column: bogus_column")
			}
			return &adapter.ExecuteResult{
				Columns:  []models.ColumnDescriptor{{Name: "revenue", Type: "numeric"}},
				Rows:     [][]any{{100}},
				RowCount: 1,
			}, nil
		},
	)

	res, err := p.Analyze(context.Background(), models.AnalysisRequest{Question: "total revenue", DatasourceID: "ds1", Scene: models.SceneDashboard})
	require.NoError(t, err)
	assert.Equal(t, models.IntentAnswer, res.Intent)
	assert.Equal(t, 2, res.Attempts)
	require.Len(t, res.Corrections, 1)
	assert.Equal(t, "SELECT bogus_column FROM orders", res.Corrections[0].SQL)
	assert.Equal(t, 2, calls)
	require.Len(t, recorder.records, 1)
	assert.Equal(t, "success", recorder.records[0].Status)
}

func TestPipeline_Analyze_ExhaustsCorrectionAttemptsReturnsError(t *testing.T) {
	// Each reply proposes a distinct (still-bogus) column so the loop never
	// hits the fixed-point short-circuit and runs the full attempt budget.
	replies := make([]string, 0, MaxCorrectionAttempts+1)
	for i := 0; i <= MaxCorrectionAttempts; i++ {
		replies = append(replies, fmt.Sprintf(`{"intent":"answer","sql":"SELECT bogus_column_%d FROM orders"}`, i))
	}

	p, recorder := newTestPipeline(replies, func(sql string) (*adapter.ExecuteResult, error) {
		return nil, errors.New("no such column: bogus_column")
	})

	res, err := p.Analyze(context.Background(), models.AnalysisRequest{Question: "total revenue", DatasourceID: "ds1", Scene: models.SceneDashboard})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Len(t, res.Corrections, MaxCorrectionAttempts)
	require.Len(t, recorder.records, 1)
	assert.Equal(t, "error", recorder.records[0].Status)
}
