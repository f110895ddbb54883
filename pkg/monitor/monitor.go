// Package monitor implements the monitoring/diagnosis control loop:
// a periodic pass that snapshots metrics, evaluates rules, deduplicates
// firings against a suppression window, attributes each new alert, and
// dispatches notifications with bounded retry.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
	"github.com/insightloop/core/pkg/notify"
)

// DefaultTickInterval is the monitoring.tick_interval_ms default.
const DefaultTickInterval = 60 * time.Second

// DefaultSuppressionWindow is the monitoring.suppression_ms default.
const DefaultSuppressionWindow = 15 * time.Minute

// notifyMaxRetries bounds redelivery attempts after the first failure.
const notifyMaxRetries = 3

// MetricSource produces the current value of every known metric key.
// Implementations typically aggregate dashboard KPIs and rule metrics from
// the warehouse; tests substitute a fixed map.
type MetricSource interface {
	Snapshot(ctx context.Context) (models.MetricSnapshot, error)
}

// AlertStore persists alerts. The loop treats it as append-mostly: Append
// on a new firing, Update on status transitions.
type AlertStore interface {
	Append(ctx context.Context, alert models.Alert) error
	Get(ctx context.Context, id string) (models.Alert, error)
	Update(ctx context.Context, alert models.Alert) error
	// LatestUnacknowledged returns the most recent alert for the
	// (ruleID, metricKey) suppression key that has not been acknowledged,
	// or ok=false when none exists.
	LatestUnacknowledged(ctx context.Context, ruleID, metricKey string) (models.Alert, bool, error)
	List(ctx context.Context, limit int) ([]models.Alert, error)
}

// Loop drives the periodic monitoring pass and exposes the operator
// operations (snapshot, check, ack, resend).
type Loop struct {
	source    MetricSource
	rules     *RuleRegistry
	diagnosis *DiagnosisRegistry
	email     *EmailConfigHolder
	notifiers *notify.Registry
	alerts    AlertStore

	tickInterval time.Duration
	suppression  time.Duration
	logger       *slog.Logger

	alertsFired         *prometheus.CounterVec
	notificationsFailed prometheus.Counter

	// newBackoff builds the per-dispatch retry schedule; swapped in tests.
	newBackoff func() backoff.BackOff

	// passMu serialises evaluation passes: one logical pass at a time,
	// whether ticker-driven or operator-invoked.
	passMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// Config holds the parameters needed to construct a Loop. Zero durations
// fall back to the documented defaults.
type Config struct {
	TickInterval      time.Duration
	SuppressionWindow time.Duration
}

// NewLoop wires a Loop from its collaborators.
func NewLoop(
	source MetricSource,
	rules *RuleRegistry,
	diagnosis *DiagnosisRegistry,
	email *EmailConfigHolder,
	notifiers *notify.Registry,
	alerts AlertStore,
	cfg Config,
) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.SuppressionWindow <= 0 {
		cfg.SuppressionWindow = DefaultSuppressionWindow
	}
	return &Loop{
		source:       source,
		rules:        rules,
		diagnosis:    diagnosis,
		email:        email,
		notifiers:    notifiers,
		alerts:       alerts,
		tickInterval: cfg.TickInterval,
		suppression:  cfg.SuppressionWindow,
		logger:       slog.Default().With("component", "monitor"),
		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_fired_total",
			Help: "Alerts created by the monitoring loop, by severity.",
		}, []string{"severity"}),
		notificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Alert notifications that exhausted their retry budget.",
		}),
		newBackoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Collectors exposes the loop's Prometheus collectors for registration.
func (l *Loop) Collectors() []prometheus.Collector {
	return []prometheus.Collector{l.alertsFired, l.notificationsFailed}
}

// Start launches the background ticker loop.
func (l *Loop) Start(ctx context.Context) {
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})

	go l.run(ctx)

	l.logger.Info("Monitoring loop started",
		"tick_interval", l.tickInterval,
		"suppression_window", l.suppression)
}

// Stop signals the loop to exit and waits for it to finish.
func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.logger.Info("Monitoring loop stopped")
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.Check(ctx); err != nil {
				l.logger.Error("Monitoring pass failed", "error", err)
			}
		}
	}
}

// Snapshot returns the current value of every known metric.
func (l *Loop) Snapshot(ctx context.Context) (models.MetricSnapshot, error) {
	return l.source.Snapshot(ctx)
}

// Check runs one full evaluation pass and returns the alerts it created.
// Passes are serialised; a ticker firing while an operator-invoked check is
// in flight waits its turn.
func (l *Loop) Check(ctx context.Context) ([]models.Alert, error) {
	l.passMu.Lock()
	defer l.passMu.Unlock()

	snapshot, err := l.source.Snapshot(ctx)
	if err != nil {
		return nil, errs.New(errs.KindInternal, "metric snapshot failed", err)
	}

	diagCfg := l.diagnosis.Get()
	var created []models.Alert

	for _, rule := range l.rules.All() {
		if !rule.Enabled {
			continue
		}
		value, ok := snapshot.Values[rule.MetricKey]
		if !ok {
			continue
		}
		if !rule.Operator.Compare(value, rule.Threshold) {
			continue
		}

		// Suppression is keyed by (rule id, metric key): a rule edited to
		// watch a different metric starts a fresh suppression window.
		if recent, ok, err := l.alerts.LatestUnacknowledged(ctx, rule.ID, rule.MetricKey); err != nil {
			return created, err
		} else if ok && snapshot.Timestamp.Sub(recent.TriggeredAt) < l.suppression {
			continue
		}

		alert := models.Alert{
			ID:           uuid.New().String(),
			RuleID:       rule.ID,
			MetricKey:    rule.MetricKey,
			CurrentValue: value,
			Operator:     rule.Operator,
			Threshold:    rule.Threshold,
			TriggeredAt:  snapshot.Timestamp,
			Status:       models.AlertTriggered,
		}
		diag := diagnose(alert, rule, diagCfg)
		alert.Diagnosis = &diag

		if err := l.alerts.Append(ctx, alert); err != nil {
			return created, err
		}
		l.alertsFired.WithLabelValues(string(rule.Severity)).Inc()
		l.logger.Info("Alert triggered",
			"alert_id", alert.ID,
			"rule_id", rule.ID,
			"metric_key", rule.MetricKey,
			"value", value,
			"threshold", rule.Threshold,
			"severity", rule.Severity)

		// Notification failure never rolls the alert back; the alert
		// stays at triggered and carries the failure in its record.
		l.dispatch(ctx, &alert)
		if err := l.alerts.Update(ctx, alert); err != nil {
			return created, err
		}
		created = append(created, alert)
	}

	return created, nil
}

// dispatch sends the alert through the configured channel with bounded
// retry, mutating alert's status and notification record in place.
func (l *Loop) dispatch(ctx context.Context, alert *models.Alert) {
	cfg := l.email.Get()
	if !cfg.Enabled {
		return
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "email"
	}
	notifier, ok := l.notifiers.Get(channel)
	if !ok {
		l.logger.Warn("No notifier bound for channel", "channel", channel)
		return
	}

	subject := cfg.Subject
	if subject == "" {
		subject = fmt.Sprintf("[alert] %s breached", alert.MetricKey)
	}
	req := notify.Request{
		Channel: channel,
		To:      cfg.To,
		Subject: subject,
		Body:    renderAlertBody(alert),
	}

	var resp notify.Response
	op := func() error {
		var err error
		resp, err = notifier.Send(ctx, req)
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(l.newBackoff(), notifyMaxRetries), ctx)
	err := backoff.Retry(op, bo)

	now := time.Now().UTC()
	if err != nil {
		l.notificationsFailed.Inc()
		l.logger.Error("Alert notification failed", "alert_id", alert.ID, "channel", channel, "error", err)
		alert.Notification = &models.Notification{Channel: channel, Result: "failed: " + err.Error(), Ts: now}
		return
	}
	alert.Notification = &models.Notification{Channel: channel, Result: resp.ProviderResponse, Ts: now}
	alert.Status = models.AlertNotified
}

func renderAlertBody(alert *models.Alert) string {
	body := fmt.Sprintf("Rule %s fired: %s = %.4g (threshold %s %.4g) at %s.",
		alert.RuleID, alert.MetricKey, alert.CurrentValue,
		alert.Operator, alert.Threshold, alert.TriggeredAt.Format(time.RFC3339))
	if alert.Diagnosis != nil {
		body += "\n\n" + alert.Diagnosis.Summary
		for _, p := range alert.Diagnosis.KeyPoints {
			body += "\n- " + p
		}
	}
	return body
}

// Ack marks an alert acknowledged. Transitions only move forward; acking
// an already-acknowledged alert is a no-op returning the same record.
func (l *Loop) Ack(ctx context.Context, alertID string) (models.Alert, error) {
	alert, err := l.alerts.Get(ctx, alertID)
	if err != nil {
		return models.Alert{}, err
	}
	if alert.Status == models.AlertAcknowledged {
		return alert, nil
	}
	alert.Status = models.AlertAcknowledged
	if err := l.alerts.Update(ctx, alert); err != nil {
		return models.Alert{}, err
	}
	return alert, nil
}

// Resend re-dispatches an alert's notification regardless of prior
// delivery outcome. An acknowledged alert stays acknowledged.
func (l *Loop) Resend(ctx context.Context, alertID string) (models.Alert, error) {
	alert, err := l.alerts.Get(ctx, alertID)
	if err != nil {
		return models.Alert{}, err
	}
	prior := alert.Status
	l.dispatch(ctx, &alert)
	if prior == models.AlertAcknowledged {
		alert.Status = models.AlertAcknowledged
	}
	if err := l.alerts.Update(ctx, alert); err != nil {
		return models.Alert{}, err
	}
	return alert, nil
}

// Alerts lists the most recent alerts, newest first.
func (l *Loop) Alerts(ctx context.Context, limit int) ([]models.Alert, error) {
	return l.alerts.List(ctx, limit)
}
