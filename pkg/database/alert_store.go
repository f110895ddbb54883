package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

// AlertStore persists alerts durably; it satisfies the monitoring loop's
// store contract so alert state survives restarts.
type AlertStore struct {
	db *sqlx.DB
}

// NewAlertStore builds a store over the shared client.
func NewAlertStore(client *Client) *AlertStore {
	return &AlertStore{db: client.DB()}
}

// Append stores a newly triggered alert.
func (s *AlertStore) Append(ctx context.Context, alert models.Alert) error {
	diagnosis, notification, err := marshalAlertJSON(alert)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, rule_id, metric_key, current_value, operator, threshold, triggered_at, status, diagnosis, notification)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		alert.ID, alert.RuleID, alert.MetricKey, alert.CurrentValue,
		string(alert.Operator), alert.Threshold, alert.TriggeredAt,
		string(alert.Status), diagnosis, notification)
	if err != nil {
		return errs.New(errs.KindInternal, "append alert failed", err)
	}
	return nil
}

// Get returns the alert with the given id.
func (s *AlertStore) Get(ctx context.Context, id string) (models.Alert, error) {
	row := s.db.QueryRowxContext(ctx, selectAlert+` WHERE id = $1`, id)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Alert{}, errs.New(errs.KindNotFound, "alert not found: "+id, err)
		}
		return models.Alert{}, errs.New(errs.KindInternal, "load alert failed", err)
	}
	return alert, nil
}

// Update replaces the stored alert's mutable fields (status, diagnosis,
// notification).
func (s *AlertStore) Update(ctx context.Context, alert models.Alert) error {
	diagnosis, notification, err := marshalAlertJSON(alert)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = $2, diagnosis = $3, notification = $4 WHERE id = $1`,
		alert.ID, string(alert.Status), diagnosis, notification)
	if err != nil {
		return errs.New(errs.KindInternal, "update alert failed", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.New(errs.KindInternal, "update alert failed", err)
	}
	if affected == 0 {
		return errs.New(errs.KindNotFound, "alert not found: "+alert.ID, nil)
	}
	return nil
}

// LatestUnacknowledged returns the newest unacknowledged alert for the
// (rule, metric) suppression key.
func (s *AlertStore) LatestUnacknowledged(ctx context.Context, ruleID, metricKey string) (models.Alert, bool, error) {
	row := s.db.QueryRowxContext(ctx, selectAlert+`
		WHERE rule_id = $1 AND metric_key = $2 AND status <> 'acknowledged'
		ORDER BY triggered_at DESC LIMIT 1`, ruleID, metricKey)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Alert{}, false, nil
		}
		return models.Alert{}, false, errs.New(errs.KindInternal, "load alert failed", err)
	}
	return alert, true, nil
}

// List returns up to limit alerts, newest first.
func (s *AlertStore) List(ctx context.Context, limit int) ([]models.Alert, error) {
	rows, err := s.db.QueryxContext(ctx, selectAlert+` ORDER BY triggered_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errs.New(errs.KindInternal, "list alerts failed", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, errs.New(errs.KindInternal, "scan alert failed", err)
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

// PruneBefore deletes acknowledged alerts older than cutoff.
func (s *AlertStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM alerts WHERE status = 'acknowledged' AND triggered_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectAlert = `
	SELECT id, rule_id, metric_key, current_value, operator, threshold, triggered_at, status, diagnosis, notification
	FROM alerts`

func marshalAlertJSON(alert models.Alert) (diagnosis, notification []byte, err error) {
	if alert.Diagnosis != nil {
		if diagnosis, err = json.Marshal(alert.Diagnosis); err != nil {
			return nil, nil, errs.New(errs.KindInternal, "marshal alert diagnosis failed", err)
		}
	}
	if alert.Notification != nil {
		if notification, err = json.Marshal(alert.Notification); err != nil {
			return nil, nil, errs.New(errs.KindInternal, "marshal alert notification failed", err)
		}
	}
	return diagnosis, notification, nil
}

func scanAlert(row rowScanner) (models.Alert, error) {
	var (
		alert        models.Alert
		operator     string
		status       string
		diagnosis    []byte
		notification []byte
	)
	if err := row.Scan(&alert.ID, &alert.RuleID, &alert.MetricKey, &alert.CurrentValue,
		&operator, &alert.Threshold, &alert.TriggeredAt, &status, &diagnosis, &notification); err != nil {
		return models.Alert{}, err
	}
	alert.Operator = models.Operator(operator)
	alert.Status = models.AlertStatus(status)
	if len(diagnosis) > 0 {
		alert.Diagnosis = &models.Diagnosis{}
		if err := json.Unmarshal(diagnosis, alert.Diagnosis); err != nil {
			return models.Alert{}, err
		}
	}
	if len(notification) > 0 {
		alert.Notification = &models.Notification{}
		if err := json.Unmarshal(notification, alert.Notification); err != nil {
			return models.Alert{}, err
		}
	}
	return alert, nil
}
