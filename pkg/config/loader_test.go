package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightloop/core/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))
	return dir
}

func TestInitialize_BuiltinsOnlyWhenFileMissing(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Defaults.Pool.MaxTotal)
	assert.Equal(t, 10, cfg.Defaults.Pool.MaxPerDatasource)
	assert.Equal(t, 3, cfg.Defaults.Analyze.MaxCorrectionAttempts)
	assert.Equal(t, 50000, cfg.Defaults.Memory.MaxEvents)

	_, err = cfg.ChainRegistry.Get("direct-analysis")
	assert.NoError(t, err)
	assert.NotEmpty(t, cfg.PlanningRuleRegistry.All())
}

func TestInitialize_UserOverridesDefaults(t *testing.T) {
	dir := writeConfig(t, `
defaults:
  pool:
    max_per_datasource: 4
  monitoring:
    tick_interval_ms: 5000
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Defaults.Pool.MaxPerDatasource)
	// Untouched knobs keep their documented defaults.
	assert.Equal(t, 50, cfg.Defaults.Pool.MaxTotal)
	assert.Equal(t, 5000, cfg.Defaults.Monitoring.TickIntervalMS)
	assert.Equal(t, 900000, cfg.Defaults.Monitoring.SuppressionMS)
}

func TestInitialize_FullConfig(t *testing.T) {
	dir := writeConfig(t, `
datasources:
  - id: ds_pg_sales
    name: sales
    type: postgres
    is_default: true
    connection:
      host: localhost
      database: sales
llm_bindings:
  - id: bind-default
    backend: anthropic
    model: claude-sonnet-4-5
    is_default: true
  - id: bind-loan
    scene: loan_ops
    backend: anthropic
    model: claude-opus-4-1
agent_profiles:
  - id: analyst
    name: SQL analyst
    llm_binding_id: bind-default
    features:
      sql_tool: true
scenes:
  dashboard:
    max_rows: 500
    timeout_ms: 15000
    read_only: true
chains:
  custom-chain:
    nodes:
      - node_id: a
        title: step A
        assigned_agents: [sql-analyst]
planning_rules:
  - id: rule-custom
    chain_id: custom-chain
    predicate:
      keywords: [custom]
    priority: 30
monitor_rules:
  - id: r1
    name: overdue high
    metric_key: bl_overdue_rate
    operator: ">"
    threshold: 0.03
    severity: high
    scope: data
    enabled: true
email:
  to: ops@example.com
  enabled: true
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	stats := cfg.Stats()
	assert.Equal(t, 1, stats.Datasources)
	assert.Equal(t, 2, stats.LLMBindings)
	assert.Equal(t, 1, stats.AgentProfiles)
	assert.Equal(t, 1, stats.MonitorRules)

	chain, err := cfg.ChainRegistry.Get("custom-chain")
	require.NoError(t, err)
	assert.Equal(t, "custom-chain", chain.ID)

	// Scene-specific binding wins over the default.
	b, ok := cfg.DefaultBinding(models.Scene("loan_ops"))
	require.True(t, ok)
	assert.Equal(t, "bind-loan", b.ID)

	// Unknown scene falls back to the default binding.
	b, ok = cfg.DefaultBinding(models.Scene("dashboard"))
	require.True(t, ok)
	assert.Equal(t, "bind-default", b.ID)

	email := cfg.Email.Get()
	assert.Equal(t, "email", email.Channel)
	assert.Equal(t, "ops@example.com", email.To)
}

func TestInitialize_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "db.internal")
	dir := writeConfig(t, `
datasources:
  - id: ds1
    name: main
    type: postgres
    connection:
      host: ${TEST_DB_HOST}
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, cfg.Datasources, 1)
	assert.Equal(t, "db.internal", cfg.Datasources[0].Connection["host"])
}

func TestInitialize_RejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown datasource type": `
datasources:
  - id: ds1
    name: main
    type: oracle
`,
		"two default datasources": `
datasources:
  - {id: ds1, name: a, type: postgres, is_default: true}
  - {id: ds2, name: b, type: postgres, is_default: true}
`,
		"rule references unknown chain": `
planning_rules:
  - id: r
    chain_id: nope
`,
		"chain dependency cycle": `
chains:
  looped:
    nodes:
      - {node_id: a, title: A, assigned_agents: [x], depends_on: [b]}
      - {node_id: b, title: B, assigned_agents: [x], depends_on: [a]}
`,
		"bad monitor operator": `
monitor_rules:
  - id: r1
    metric_key: m
    operator: "!="
    threshold: 1
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := writeConfig(t, content)
			_, err := Initialize(context.Background(), dir)
			assert.Error(t, err)
		})
	}
}
