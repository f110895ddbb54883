package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightloop/core/pkg/models"
	"github.com/insightloop/core/pkg/notify"
)

// recordingNotifier captures every Send and can be scripted to fail the
// first N attempts.
type recordingNotifier struct {
	mu       sync.Mutex
	requests []notify.Request
	failures int
}

func (r *recordingNotifier) Send(_ context.Context, req notify.Request) (notify.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.failures > 0 {
		r.failures--
		return notify.Response{}, errors.New("smtp: connection refused")
	}
	return notify.Response{OK: true, ProviderResponse: "sent"}, nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func overdueRule() models.MonitorRule {
	return models.MonitorRule{
		ID:        "r1",
		Name:      "overdue rate high",
		MetricKey: "bl_overdue_rate",
		Operator:  models.OpGT,
		Threshold: 0.03,
		Severity:  models.SeverityHigh,
		Scope:     models.ScopeData,
		Enabled:   true,
	}
}

func newTestLoop(values map[string]float64, notifier notify.Notifier) (*Loop, *MemoryAlertStore) {
	store := NewMemoryAlertStore(0)
	loop := NewLoop(
		SourceFunc(func(context.Context) (map[string]float64, error) { return values, nil }),
		NewRuleRegistry([]models.MonitorRule{overdueRule()}),
		NewDiagnosisRegistry(models.DiagnosisConfig{
			AttributionRules: []models.AttributionRule{{
				MetricKey:        "bl_overdue_rate",
				PossibleCauses:   []string{"collections backlog"},
				SuggestedActions: []string{"review overdue accounts"},
			}},
			DefaultActions: []string{"escalate to on-call"},
		}),
		NewEmailConfigHolder(EmailConfig{Channel: "email", To: "ops@example.com", Enabled: true}),
		notify.NewRegistry(map[string]notify.Notifier{"email": notifier}),
		store,
		Config{SuppressionWindow: 15 * time.Minute},
	)
	return loop, store
}

func TestCheck_AlertLifecycle(t *testing.T) {
	notifier := &recordingNotifier{}
	loop, store := newTestLoop(map[string]float64{"bl_overdue_rate": 0.035}, notifier)
	ctx := context.Background()

	created, err := loop.Check(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)

	alert := created[0]
	assert.Equal(t, "r1", alert.RuleID)
	assert.Equal(t, 0.035, alert.CurrentValue)
	assert.Equal(t, models.AlertNotified, alert.Status)
	require.NotNil(t, alert.Notification)
	assert.Equal(t, "email", alert.Notification.Channel)
	require.NotNil(t, alert.Diagnosis)
	assert.Contains(t, alert.Diagnosis.KeyPoints, "possible cause: collections backlog")
	assert.Equal(t, 1, notifier.count())

	acked, err := loop.Ack(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertAcknowledged, acked.Status)

	// Ack is idempotent.
	again, err := loop.Ack(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, acked.Status, again.Status)

	stored, err := store.Get(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertAcknowledged, stored.Status)
}

func TestCheck_SuppressionWindow(t *testing.T) {
	notifier := &recordingNotifier{}
	loop, _ := newTestLoop(map[string]float64{"bl_overdue_rate": 0.035}, notifier)
	ctx := context.Background()

	created, err := loop.Check(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)

	// Sustained breach inside the window: no second alert.
	for i := 0; i < 5; i++ {
		more, err := loop.Check(ctx)
		require.NoError(t, err)
		assert.Empty(t, more)
	}
	assert.Equal(t, 1, notifier.count())
}

func TestCheck_AcknowledgedAlertDoesNotSuppress(t *testing.T) {
	notifier := &recordingNotifier{}
	loop, _ := newTestLoop(map[string]float64{"bl_overdue_rate": 0.035}, notifier)
	ctx := context.Background()

	created, err := loop.Check(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)

	_, err = loop.Ack(ctx, created[0].ID)
	require.NoError(t, err)

	more, err := loop.Check(ctx)
	require.NoError(t, err)
	assert.Len(t, more, 1)
}

func TestCheck_NoFiringBelowThreshold(t *testing.T) {
	notifier := &recordingNotifier{}
	loop, _ := newTestLoop(map[string]float64{"bl_overdue_rate": 0.02}, notifier)

	created, err := loop.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Zero(t, notifier.count())
}

func TestCheck_DisabledRuleSkipped(t *testing.T) {
	notifier := &recordingNotifier{}
	loop, _ := newTestLoop(map[string]float64{"bl_overdue_rate": 0.5}, notifier)

	rule := overdueRule()
	rule.Enabled = false
	loop.rules.Replace([]models.MonitorRule{rule})

	created, err := loop.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestDispatch_RetriesThenRecordsFailure(t *testing.T) {
	notifier := &recordingNotifier{failures: 10}
	loop, _ := newTestLoop(map[string]float64{"bl_overdue_rate": 0.035}, notifier)
	loop.newBackoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

	created, err := loop.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, created, 1)

	alert := created[0]
	// Notification failure does not roll back the alert.
	assert.Equal(t, models.AlertTriggered, alert.Status)
	require.NotNil(t, alert.Notification)
	assert.Contains(t, alert.Notification.Result, "failed")
	// Initial attempt plus the bounded retries.
	assert.Equal(t, 1+notifyMaxRetries, notifier.count())
}

func TestResend_KeepsAcknowledgedStatus(t *testing.T) {
	notifier := &recordingNotifier{}
	loop, _ := newTestLoop(map[string]float64{"bl_overdue_rate": 0.035}, notifier)
	ctx := context.Background()

	created, err := loop.Check(ctx)
	require.NoError(t, err)
	_, err = loop.Ack(ctx, created[0].ID)
	require.NoError(t, err)

	resent, err := loop.Resend(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertAcknowledged, resent.Status)
	assert.Equal(t, 2, notifier.count())
}

func TestCheck_MissingMetricKeyIgnored(t *testing.T) {
	notifier := &recordingNotifier{}
	loop, _ := newTestLoop(map[string]float64{"other_metric": 1.0}, notifier)

	created, err := loop.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
}
