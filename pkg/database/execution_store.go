package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

// ExecutionStore persists Execution snapshots so in-flight work survives a
// restart. The snapshot column holds the full serialized Execution; the
// scalar columns exist for filtering without unpacking JSON.
type ExecutionStore struct {
	db *sqlx.DB
}

// NewExecutionStore builds a store over the shared client.
func NewExecutionStore(client *Client) *ExecutionStore {
	return &ExecutionStore{db: client.DB()}
}

// Save upserts the execution snapshot.
func (s *ExecutionStore) Save(ctx context.Context, exe *models.Execution) error {
	snapshot, err := json.Marshal(exe)
	if err != nil {
		return errs.New(errs.KindInternal, "marshal execution failed", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (execution_id, plan_id, state, question, loan_type, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (execution_id) DO UPDATE SET
			state = EXCLUDED.state,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at`,
		exe.ExecutionID, exe.PlanID, string(exe.State), exe.Question, exe.LoanType, snapshot, exe.UpdatedAt)
	if err != nil {
		return errs.New(errs.KindInternal, "save execution failed", err)
	}
	return nil
}

// Get loads one execution snapshot.
func (s *ExecutionStore) Get(ctx context.Context, executionID string) (*models.Execution, error) {
	var snapshot []byte
	err := s.db.QueryRowxContext(ctx,
		`SELECT snapshot FROM executions WHERE execution_id = $1`, executionID).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.KindNotFound, "execution not found: "+executionID, err)
		}
		return nil, errs.New(errs.KindInternal, "load execution failed", err)
	}
	var exe models.Execution
	if err := json.Unmarshal(snapshot, &exe); err != nil {
		return nil, errs.New(errs.KindInternal, "unmarshal execution failed", err)
	}
	return &exe, nil
}

// ListByState returns every execution in the given state.
func (s *ExecutionStore) ListByState(ctx context.Context, state models.ExecutionState) ([]*models.Execution, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT snapshot FROM executions WHERE state = $1 ORDER BY updated_at`, string(state))
	if err != nil {
		return nil, errs.New(errs.KindInternal, "list executions failed", err)
	}
	defer rows.Close()

	var out []*models.Execution
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, errs.New(errs.KindInternal, "scan execution failed", err)
		}
		var exe models.Execution
		if err := json.Unmarshal(snapshot, &exe); err != nil {
			return nil, errs.New(errs.KindInternal, "unmarshal execution failed", err)
		}
		out = append(out, &exe)
	}
	return out, rows.Err()
}
