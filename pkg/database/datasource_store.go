package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

// DatasourceStore persists Datasource records. It enforces the
// at-most-one-default invariant transactionally: marking a datasource
// default clears the flag on every other row in the same transaction.
type DatasourceStore struct {
	db *sqlx.DB
}

// NewDatasourceStore builds a store over the shared client.
func NewDatasourceStore(client *Client) *DatasourceStore {
	return &DatasourceStore{db: client.DB()}
}

// Create registers a new datasource. Name collisions return CONFLICT.
func (s *DatasourceStore) Create(ctx context.Context, req models.CreateDatasourceRequest) (*models.Datasource, error) {
	if req.Name == "" {
		return nil, errs.NewValidationError("name", "datasource name is required")
	}
	ds := &models.Datasource{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Type:       req.Type,
		Connection: req.Connection,
		Status:     models.DatasourceStatusActive,
		IsDefault:  req.IsDefault,
		UpdatedAt:  time.Now().UTC(),
	}
	connJSON, err := json.Marshal(ds.Connection)
	if err != nil {
		return nil, fmt.Errorf("marshal connection: %w", err)
	}

	err = WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if ds.IsDefault {
			if _, err := tx.ExecContext(ctx, `UPDATE datasources SET is_default = FALSE WHERE is_default`); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO datasources (id, name, type, connection, status, is_default, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ds.ID, ds.Name, string(ds.Type), connJSON, string(ds.Status), ds.IsDefault, ds.UpdatedAt)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.New(errs.KindConflict, fmt.Sprintf("datasource name %q already exists", req.Name), err)
		}
		return nil, errs.New(errs.KindInternal, "create datasource failed", err)
	}
	return ds, nil
}

// Get returns the datasource with the given id.
func (s *DatasourceStore) Get(ctx context.Context, id string) (*models.Datasource, error) {
	return s.getBy(ctx, `id = $1`, id)
}

// GetDefault returns the datasource marked default, if any.
func (s *DatasourceStore) GetDefault(ctx context.Context) (*models.Datasource, error) {
	return s.getBy(ctx, `is_default`)
}

// Resolve satisfies the pipeline's datasource lookup.
func (s *DatasourceStore) Resolve(ctx context.Context, datasourceID string) (*models.Datasource, error) {
	return s.Get(ctx, datasourceID)
}

func (s *DatasourceStore) getBy(ctx context.Context, where string, args ...any) (*models.Datasource, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, name, type, connection, status, is_default, last_used_at, updated_at
		FROM datasources WHERE `+where, args...)
	ds, err := scanDatasource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.KindNotFound, "datasource not found", err)
		}
		return nil, errs.New(errs.KindInternal, "load datasource failed", err)
	}
	return ds, nil
}

// List returns every datasource ordered by name.
func (s *DatasourceStore) List(ctx context.Context) ([]models.Datasource, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, name, type, connection, status, is_default, last_used_at, updated_at
		FROM datasources ORDER BY name`)
	if err != nil {
		return nil, errs.New(errs.KindInternal, "list datasources failed", err)
	}
	defer rows.Close()

	var out []models.Datasource
	for rows.Next() {
		ds, err := scanDatasource(rows)
		if err != nil {
			return nil, errs.New(errs.KindInternal, "scan datasource failed", err)
		}
		out = append(out, *ds)
	}
	return out, rows.Err()
}

// Update applies the non-nil fields of req to the datasource.
func (s *DatasourceStore) Update(ctx context.Context, id string, req models.UpdateDatasourceRequest) (*models.Datasource, error) {
	err := WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if req.IsDefault != nil && *req.IsDefault {
			if _, err := tx.ExecContext(ctx, `UPDATE datasources SET is_default = FALSE WHERE is_default AND id <> $1`, id); err != nil {
				return err
			}
		}
		set := `updated_at = now()`
		args := []any{id}
		n := 2
		if req.Name != nil {
			set += fmt.Sprintf(`, name = $%d`, n)
			args = append(args, *req.Name)
			n++
		}
		if req.Connection != nil {
			connJSON, err := json.Marshal(*req.Connection)
			if err != nil {
				return err
			}
			set += fmt.Sprintf(`, connection = $%d`, n)
			args = append(args, connJSON)
			n++
		}
		if req.Status != nil {
			set += fmt.Sprintf(`, status = $%d`, n)
			args = append(args, string(*req.Status))
			n++
		}
		if req.IsDefault != nil {
			set += fmt.Sprintf(`, is_default = $%d`, n)
			args = append(args, *req.IsDefault)
		}
		res, err := tx.ExecContext(ctx, `UPDATE datasources SET `+set+` WHERE id = $1`, args...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errs.New(errs.KindNotFound, "datasource not found: "+id, nil)
		}
		return nil
	})
	if err != nil {
		var te *errs.Error
		if errors.As(err, &te) {
			return nil, te
		}
		if isUniqueViolation(err) {
			return nil, errs.New(errs.KindConflict, "datasource name already exists", err)
		}
		return nil, errs.New(errs.KindInternal, "update datasource failed", err)
	}
	return s.Get(ctx, id)
}

// Delete removes a datasource permanently. Callers preferring soft
// retirement set status=inactive via Update instead.
func (s *DatasourceStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasources WHERE id = $1`, id)
	if err != nil {
		return errs.New(errs.KindInternal, "delete datasource failed", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.New(errs.KindInternal, "delete datasource failed", err)
	}
	if affected == 0 {
		return errs.New(errs.KindNotFound, "datasource not found: "+id, nil)
	}
	return nil
}

// TouchLastUsed bumps last_used_at after a successful query.
func (s *DatasourceStore) TouchLastUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE datasources SET last_used_at = now() WHERE id = $1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDatasource(row rowScanner) (*models.Datasource, error) {
	var (
		ds         models.Datasource
		dsType     string
		status     string
		connJSON   []byte
		lastUsedAt sql.NullTime
	)
	if err := row.Scan(&ds.ID, &ds.Name, &dsType, &connJSON, &status, &ds.IsDefault, &lastUsedAt, &ds.UpdatedAt); err != nil {
		return nil, err
	}
	ds.Type = models.DatasourceType(dsType)
	ds.Status = models.DatasourceStatus(status)
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		ds.LastUsedAt = &t
	}
	if len(connJSON) > 0 {
		if err := json.Unmarshal(connJSON, &ds.Connection); err != nil {
			return nil, err
		}
	}
	return &ds, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// failure (SQLSTATE 23505), without importing pgconn just for the check.
func isUniqueViolation(err error) bool {
	type sqlStater interface{ SQLState() string }
	var st sqlStater
	return errors.As(err, &st) && st.SQLState() == "23505"
}
