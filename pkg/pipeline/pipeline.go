// Package pipeline implements the end-to-end analysis pipeline:
// schema resolution, SQL drafting, validation, execution, the bounded
// correction loop, and optional visualization.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/insightloop/core/pkg/adapter"
	"github.com/insightloop/core/pkg/agent"
	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/memo"
	"github.com/insightloop/core/pkg/models"
)

// MaxCorrectionAttempts bounds the correction loop.
const MaxCorrectionAttempts = 3

// SceneDefaults bounds execution for a Scene: the max_rows ceiling, the
// per-call timeout, and whether writes are forbidden.
type SceneDefaults struct {
	MaxRows  int
	Timeout  time.Duration
	ReadOnly bool
}

// DefaultSceneDefaults is used for any scene without an explicit override.
func DefaultSceneDefaults() SceneDefaults {
	return SceneDefaults{MaxRows: 1000, Timeout: 30 * time.Second, ReadOnly: true}
}

// DatasourceResolver looks up a Datasource by id.
type DatasourceResolver interface {
	Resolve(ctx context.Context, datasourceID string) (*models.Datasource, error)
}

// QueryRecorder persists the append-only QueryRecord audit trail.
type QueryRecorder interface {
	RecordQuery(ctx context.Context, rec models.QueryRecord) error
}

// Pipeline wires the adapter pool and the specialist agents together
// into the analyze() operation.
type Pipeline struct {
	datasources DatasourceResolver
	pool        *adapter.Pool
	schemaAgent *agent.SchemaAgent
	sqlAgent    *agent.SqlAgent
	vizAgent    *agent.VisualizeAgent
	cache       *memo.Cache
	memory      *memo.MemoryStore
	queries     QueryRecorder
	sceneDefaults map[models.Scene]SceneDefaults
}

// New builds a Pipeline. sceneDefaults may be nil (falls back to
// DefaultSceneDefaults for every scene).
func New(
	datasources DatasourceResolver,
	pool *adapter.Pool,
	schemaAgent *agent.SchemaAgent,
	sqlAgent *agent.SqlAgent,
	vizAgent *agent.VisualizeAgent,
	cache *memo.Cache,
	memoryStore *memo.MemoryStore,
	queries QueryRecorder,
	sceneDefaults map[models.Scene]SceneDefaults,
) *Pipeline {
	return &Pipeline{
		datasources:   datasources,
		pool:          pool,
		schemaAgent:   schemaAgent,
		sqlAgent:      sqlAgent,
		vizAgent:      vizAgent,
		cache:         cache,
		memory:        memoryStore,
		queries:       queries,
		sceneDefaults: sceneDefaults,
	}
}

func (p *Pipeline) defaultsFor(scene models.Scene) SceneDefaults {
	if d, ok := p.sceneDefaults[scene]; ok {
		return d
	}
	return DefaultSceneDefaults()
}

// Analyze runs the full NL→answer pipeline for one request.
func (p *Pipeline) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	start := time.Now()
	defaults := p.defaultsFor(req.Scene)

	ds, err := p.datasources.Resolve(ctx, req.DatasourceID)
	if err != nil {
		return nil, err
	}

	schema, err := p.schemaAgent.Rank(ctx, ds, req.Question)
	if err != nil {
		return nil, err
	}

	memoryContext := p.renderMemoryContext(req.Scene, req.Question)

	draft, err := p.sqlAgent.Draft(ctx, req.Question, schema, schema.Dialect, "", memoryContext, "", "")
	if err != nil {
		return nil, err
	}
	if draft.Intent == models.IntentClarification {
		return &models.AnalysisResult{
			Intent:        models.IntentClarification,
			Clarification: draft.Clarification,
			DurationMS:    time.Since(start).Milliseconds(),
			Attempts:      1,
		}, nil
	}

	result := &models.AnalysisResult{Intent: models.IntentAnswer}
	sql := draft.SQL
	shouldVisualize := draft.ShouldVisualize
	var execResult *adapter.ExecuteResult
	var corrections []models.CorrectionAttempt
	var lastErr error

	for attempt := 1; attempt <= MaxCorrectionAttempts+1; attempt++ {
		if verr := ValidateSQL(sql, defaults.ReadOnly); verr != nil {
			lastErr = verr
			break
		}

		execResult, lastErr = p.execute(ctx, ds, sql, defaults)
		if lastErr == nil {
			break
		}
		result.Errors = append(result.Errors, lastErr.Error())

		if attempt > MaxCorrectionAttempts {
			break
		}

		corrections = append(corrections, models.CorrectionAttempt{Attempt: attempt, SQL: sql, EngineError: lastErr.Error()})

		redraft, derr := p.sqlAgent.Draft(ctx, req.Question, schema, schema.Dialect, "", memoryContext, sql, lastErr.Error())
		if derr != nil {
			lastErr = derr
			break
		}
		if redraft.Intent == models.IntentClarification {
			return &models.AnalysisResult{
				Intent:        models.IntentClarification,
				Clarification: redraft.Clarification,
				DurationMS:    time.Since(start).Milliseconds(),
				Attempts:      attempt,
				Corrections:   corrections,
			}, nil
		}
		if redraft.SQL == sql {
			// Fixed point: the agent proposed the same SQL again. Further
			// attempts would not change the outcome.
			break
		}
		sql = redraft.SQL
		shouldVisualize = shouldVisualize || redraft.ShouldVisualize
	}

	result.SQL = sql
	result.Corrections = corrections
	result.Attempts = len(corrections) + 1
	result.DurationMS = time.Since(start).Milliseconds()

	queryRecord := models.QueryRecord{
		ID:           uuid.NewString(),
		DatasourceID: req.DatasourceID,
		SQL:          sql,
		ExecutedAt:   start.UTC().Format(time.RFC3339),
	}

	if lastErr != nil {
		queryRecord.Status = "error"
		queryRecord.ErrorMessage = lastErr.Error()
		p.persistQuery(ctx, queryRecord)
		return result, errs.New(errs.KindSQLError, "analysis pipeline exhausted correction attempts", lastErr)
	}

	result.Columns = execResult.Columns
	result.Rows = execResult.Rows
	result.RowCount = execResult.RowCount
	result.Truncated = execResult.Truncated

	queryRecord.Status = "success"
	queryRecord.DurationMS = execResult.DurationMS
	queryRecord.RowCount = execResult.RowCount
	p.persistQuery(ctx, queryRecord)

	if (req.Visualize || shouldVisualize) && agent.HasVisualizableShape(execResult.Columns) {
		chart, verr := p.vizAgent.Recommend(ctx, req.Question, execResult.Columns, execResult.RowCount)
		if verr == nil {
			result.Chart = chart
		} else {
			result.Errors = append(result.Errors, verr.Error())
		}
	}

	p.memory.Append(models.MemoryEvent{
		ID:            uuid.NewString(),
		Timestamp:     time.Now(),
		EventType:     models.EventAnalysisResult,
		Scene:         req.Scene,
		UserText:      req.Question,
		ResultSummary: fmt.Sprintf("%d rows", result.RowCount),
		SQL:           sql,
	})

	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, ds *models.Datasource, sql string, defaults SceneDefaults) (*adapter.ExecuteResult, error) {
	execCtx := ctx
	if defaults.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, defaults.Timeout)
		defer cancel()
	}

	conn, err := p.pool.Acquire(execCtx, ds)
	if err != nil {
		return nil, err
	}
	res, err := conn.Execute(execCtx, sql, adapter.ExecuteOptions{Timeout: defaults.Timeout, MaxRows: defaults.MaxRows})
	p.pool.Release(ds, conn, !isConnectionLevelErr(err))
	return res, err
}

// isConnectionLevelErr reports whether err indicates the connection itself
// is no longer usable (as opposed to a SQL-level failure like a bad query,
// which leaves the connection healthy for reuse).
func isConnectionLevelErr(err error) bool {
	return errs.As(err, errs.KindDBTransient) || errs.As(err, errs.KindDBPermanent)
}

func (p *Pipeline) renderMemoryContext(scene models.Scene, question string) string {
	events := p.memory.Search(question, scene, 3)
	if len(events) == 0 {
		return ""
	}
	out := ""
	for _, e := range events {
		out += fmt.Sprintf("- %q -> %s\n", e.UserText, e.ResultSummary)
	}
	return out
}

func (p *Pipeline) persistQuery(ctx context.Context, rec models.QueryRecord) {
	if p.queries == nil {
		return
	}
	_ = p.queries.RecordQuery(ctx, rec)
}
