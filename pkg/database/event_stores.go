package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

// QueryHistoryStore persists the append-only query audit trail.
type QueryHistoryStore struct {
	db *sqlx.DB
}

// NewQueryHistoryStore builds a store over the shared client.
func NewQueryHistoryStore(client *Client) *QueryHistoryStore {
	return &QueryHistoryStore{db: client.DB()}
}

// RecordQuery appends one executed-query record.
func (s *QueryHistoryStore) RecordQuery(ctx context.Context, rec models.QueryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history (id, datasource_id, sql_text, executed_at, duration_ms, row_count, status, error)
		VALUES ($1, $2, $3, now(), $4, $5, $6, NULLIF($7, ''))`,
		rec.ID, rec.DatasourceID, rec.SQL, rec.DurationMS, rec.RowCount, rec.Status, rec.ErrorMessage)
	if err != nil {
		return errs.New(errs.KindInternal, "record query failed", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (s *QueryHistoryStore) ListRecent(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, datasource_id, sql_text, executed_at::text, duration_ms, row_count, status, COALESCE(error, '')
		FROM query_history ORDER BY executed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errs.New(errs.KindInternal, "list query history failed", err)
	}
	defer rows.Close()

	var out []models.QueryRecord
	for rows.Next() {
		var rec models.QueryRecord
		if err := rows.Scan(&rec.ID, &rec.DatasourceID, &rec.SQL, &rec.ExecutedAt,
			&rec.DurationMS, &rec.RowCount, &rec.Status, &rec.ErrorMessage); err != nil {
			return nil, errs.New(errs.KindInternal, "scan query record failed", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneBefore deletes records older than cutoff, returning the count.
func (s *QueryHistoryStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_history WHERE executed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CorrectionLogStore persists the per-analysis SQL correction trail.
type CorrectionLogStore struct {
	db *sqlx.DB
}

// NewCorrectionLogStore builds a store over the shared client.
func NewCorrectionLogStore(client *Client) *CorrectionLogStore {
	return &CorrectionLogStore{db: client.DB()}
}

// Append records one correction attempt.
func (s *CorrectionLogStore) Append(ctx context.Context, analysisID string, attempt models.CorrectionAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO correction_logs (analysis_id, attempt, sql_text, engine_error)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (analysis_id, attempt) DO NOTHING`,
		analysisID, attempt.Attempt, attempt.SQL, attempt.EngineError)
	if err != nil {
		return errs.New(errs.KindInternal, "append correction log failed", err)
	}
	return nil
}

// ListByAnalysis returns the correction trail for one analysis, in
// attempt order.
func (s *CorrectionLogStore) ListByAnalysis(ctx context.Context, analysisID string) ([]models.CorrectionAttempt, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT attempt, sql_text, engine_error FROM correction_logs
		WHERE analysis_id = $1 ORDER BY attempt`, analysisID)
	if err != nil {
		return nil, errs.New(errs.KindInternal, "list correction logs failed", err)
	}
	defer rows.Close()

	var out []models.CorrectionAttempt
	for rows.Next() {
		var a models.CorrectionAttempt
		if err := rows.Scan(&a.Attempt, &a.SQL, &a.EngineError); err != nil {
			return nil, errs.New(errs.KindInternal, "scan correction log failed", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ExecutionLogStore persists agent-runtime execution log records; it
// satisfies the runtime's log sink so every LLM call leaves a row.
type ExecutionLogStore struct {
	db *sqlx.DB
}

// NewExecutionLogStore builds a store over the shared client.
func NewExecutionLogStore(client *Client) *ExecutionLogStore {
	return &ExecutionLogStore{db: client.DB()}
}

// Record appends one execution log row. Failures are swallowed: logging
// must never fail the call it describes.
func (s *ExecutionLogStore) Record(ctx context.Context, rec models.ExecutionLogRecord) {
	metadata, _ := json.Marshal(rec.Metadata)
	_, _ = s.db.ExecContext(ctx, `
		INSERT INTO execution_logs (profile_id, step, status, detail, metadata, ts)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ProfileID, rec.Step, rec.Status, rec.Detail, metadata, rec.Timestamp)
}

// PruneBefore deletes log rows older than cutoff, returning the count.
func (s *ExecutionLogStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM execution_logs WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MemoryEventStore persists memory events durably alongside the in-process
// ring, so context survives restarts.
type MemoryEventStore struct {
	db *sqlx.DB
}

// NewMemoryEventStore builds a store over the shared client.
func NewMemoryEventStore(client *Client) *MemoryEventStore {
	return &MemoryEventStore{db: client.DB()}
}

// Append stores one memory event.
func (s *MemoryEventStore) Append(ctx context.Context, ev models.MemoryEvent) error {
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return errs.New(errs.KindInternal, "marshal memory event metadata failed", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_events (id, ts, event_type, scene, user_text, result_summary, sql_text, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.Timestamp, string(ev.EventType), string(ev.Scene),
		ev.UserText, ev.ResultSummary, ev.SQL, metadata)
	if err != nil {
		return errs.New(errs.KindInternal, "append memory event failed", err)
	}
	return nil
}

// PruneToCap keeps only the newest maxEvents rows, returning the number
// deleted.
func (s *MemoryEventStore) PruneToCap(ctx context.Context, maxEvents int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_events WHERE id IN (
			SELECT id FROM memory_events ORDER BY ts DESC OFFSET $1
		)`, maxEvents)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
