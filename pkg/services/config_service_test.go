package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightloop/core/pkg/models"
	"github.com/insightloop/core/pkg/monitor"
	"github.com/insightloop/core/pkg/planning"
)

type fakeDocStore struct {
	mu   sync.Mutex
	docs map[string]any
}

func (f *fakeDocStore) PutDoc(_ context.Context, name string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs == nil {
		f.docs = make(map[string]any)
	}
	f.docs[name] = value
	return nil
}

func (f *fakeDocStore) GetDoc(context.Context, string, any) error { return nil }

func newConfigService(docs DocStore) *ConfigService {
	return NewConfigService(
		monitor.NewRuleRegistry(nil),
		planning.NewChainRegistry(nil),
		monitor.NewDiagnosisRegistry(models.DiagnosisConfig{}),
		monitor.NewEmailConfigHolder(monitor.EmailConfig{Channel: "email"}),
		docs,
	)
}

func TestRulesPut_RoundTrip(t *testing.T) {
	docs := &fakeDocStore{}
	svc := newConfigService(docs)
	ctx := context.Background()

	rules := []models.MonitorRule{{
		ID: "r1", Name: "overdue", MetricKey: "bl_overdue_rate",
		Operator: models.OpGT, Threshold: 0.03, Severity: models.SeverityHigh, Enabled: true,
	}}
	put := svc.RulesPut(ctx, rules)
	require.True(t, put.OK)

	got := svc.RulesGet(ctx)
	require.True(t, got.OK)
	assert.Equal(t, rules, got.Data)

	docs.mu.Lock()
	_, persisted := docs.docs[docRules]
	docs.mu.Unlock()
	assert.True(t, persisted)
}

func TestRulesPut_RejectsMissingID(t *testing.T) {
	svc := newConfigService(nil)
	out := svc.RulesPut(context.Background(), []models.MonitorRule{{MetricKey: "m"}})
	assert.False(t, out.OK)
}

func TestChainsPut_RoundTrip(t *testing.T) {
	svc := newConfigService(nil)
	ctx := context.Background()

	chain := &planning.Chain{
		ID: "c1",
		Nodes: []planning.ChainNode{
			{NodeID: "a", Title: "A", AssignedAgents: []string{"sql-analyst"}},
		},
	}
	put := svc.ChainsPut(ctx, chain)
	require.True(t, put.OK)

	got := svc.ChainsGet(ctx)
	require.True(t, got.OK)
	assert.Contains(t, got.Data, "c1")
}

func TestEmailPut_RoundTripAndValidation(t *testing.T) {
	svc := newConfigService(nil)
	ctx := context.Background()

	out := svc.EmailPut(ctx, monitor.EmailConfig{Enabled: true})
	assert.False(t, out.OK)

	put := svc.EmailPut(ctx, monitor.EmailConfig{Enabled: true, To: "ops@example.com"})
	require.True(t, put.OK)
	// Channel is normalized to the default.
	assert.Equal(t, "email", put.Data.Channel)

	got := svc.EmailGet(ctx)
	assert.Equal(t, "ops@example.com", got.Data.To)
}

func TestDiagnosisPut_RoundTrip(t *testing.T) {
	svc := newConfigService(nil)
	ctx := context.Background()

	cfg := models.DiagnosisConfig{
		AttributionRules: []models.AttributionRule{{MetricKey: "m", PossibleCauses: []string{"x"}}},
		DefaultActions:   []string{"escalate"},
	}
	put := svc.DiagnosisPut(ctx, cfg)
	require.True(t, put.OK)

	got := svc.DiagnosisGet(ctx)
	assert.Equal(t, cfg, got.Data)
}
