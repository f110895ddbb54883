package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/insightloop/core/pkg/errs"
)

// Config-family document names.
const (
	DocRules           = "rules"
	DocChains          = "chains"
	DocDiagnosisConfig = "diagnosis_config"
	DocEmailConfig     = "email_config"
	DocAgentProfiles   = "agent_profiles"
	DocLLMBindings     = "llm_bindings"
)

// ConfigStore persists named configuration documents whole, last-writer-
// wins with a monotonic updated_at. Callers marshal/unmarshal their own
// typed payloads via PutDoc/GetDoc.
type ConfigStore struct {
	db *sqlx.DB
}

// NewConfigStore builds a store over the shared client.
func NewConfigStore(client *Client) *ConfigStore {
	return &ConfigStore{db: client.DB()}
}

// PutDoc stores value as the named document.
func (s *ConfigStore) PutDoc(ctx context.Context, name string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return errs.New(errs.KindInternal, "marshal config document failed", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config_documents (name, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`,
		name, body)
	if err != nil {
		return errs.New(errs.KindInternal, "put config document failed", err)
	}
	return nil
}

// GetDoc loads the named document into out. Missing documents return
// NOT_FOUND; callers with built-in fallbacks treat that as "use defaults".
func (s *ConfigStore) GetDoc(ctx context.Context, name string, out any) error {
	var body []byte
	err := s.db.QueryRowxContext(ctx,
		`SELECT body FROM config_documents WHERE name = $1`, name).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.KindNotFound, "config document not found: "+name, err)
		}
		return errs.New(errs.KindInternal, "load config document failed", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.New(errs.KindInternal, "unmarshal config document failed", err)
	}
	return nil
}

// UpdatedAt returns the document's last write time.
func (s *ConfigStore) UpdatedAt(ctx context.Context, name string) (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowxContext(ctx,
		`SELECT updated_at FROM config_documents WHERE name = $1`, name).Scan(&ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, errs.New(errs.KindNotFound, "config document not found: "+name, err)
		}
		return time.Time{}, errs.New(errs.KindInternal, "load config document failed", err)
	}
	return ts, nil
}
