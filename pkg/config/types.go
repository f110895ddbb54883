// Package config loads, merges, and validates the engine's configuration:
// the insightloop.yaml file, built-in chains and rules, tuning knobs, and
// the registries the rest of the engine reads at runtime.
package config

import (
	"time"

	"github.com/insightloop/core/pkg/agent"
	"github.com/insightloop/core/pkg/models"
	"github.com/insightloop/core/pkg/monitor"
	"github.com/insightloop/core/pkg/planning"
)

// InsightloopYAMLConfig is the complete insightloop.yaml file structure.
type InsightloopYAMLConfig struct {
	Defaults      *Defaults                    `yaml:"defaults"`
	Datasources   []models.Datasource          `yaml:"datasources"`
	LLMBindings   []models.LLMBinding          `yaml:"llm_bindings"`
	AgentProfiles []AgentProfileConfig         `yaml:"agent_profiles"`
	Scenes        map[string]SceneConfig       `yaml:"scenes"`
	Chains        map[string]planning.Chain    `yaml:"chains"`
	PlanningRules []planning.Rule              `yaml:"planning_rules"`
	MonitorRules  []models.MonitorRule         `yaml:"monitor_rules"`
	Metrics       map[string]MetricQueryConfig `yaml:"metrics"`
	Diagnosis     *models.DiagnosisConfig      `yaml:"diagnosis"`
	Email         *monitor.EmailConfig         `yaml:"email"`
}

// MetricQueryConfig defines how one monitoring metric is computed: a
// scalar query against a datasource.
type MetricQueryConfig struct {
	DatasourceID string `yaml:"datasource_id"`
	SQL          string `yaml:"sql"`
}

// AgentProfileConfig is the YAML shape of an agent profile.
type AgentProfileConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	LLMBindingID string `yaml:"llm_binding_id"`
	Features     struct {
		SQLTool        bool `yaml:"sql_tool"`
		RAGTool        bool `yaml:"rag_tool"`
		RuleValidation bool `yaml:"rule_validation"`
	} `yaml:"features"`
}

// ToProfile converts the YAML shape into the runtime profile type.
func (c AgentProfileConfig) ToProfile() agent.Profile {
	return agent.Profile{
		ID:           c.ID,
		Name:         c.Name,
		LLMBindingID: c.LLMBindingID,
		Features: agent.FeatureMask{
			SQLTool:        c.Features.SQLTool,
			RAGTool:        c.Features.RAGTool,
			RuleValidation: c.Features.RuleValidation,
		},
	}
}

// SceneConfig bounds query execution for one scene.
type SceneConfig struct {
	MaxRows   int  `yaml:"max_rows"`
	TimeoutMS int  `yaml:"timeout_ms"`
	ReadOnly  bool `yaml:"read_only"`
}

// Defaults holds every tuning knob, with the documented defaults applied
// for any field the user leaves unset.
type Defaults struct {
	Pool struct {
		MaxTotal         int `yaml:"max_total"`
		MaxPerDatasource int `yaml:"max_per_datasource"`
		AcquireTimeoutMS int `yaml:"acquire_timeout_ms"`
		HealthIntervalMS int `yaml:"health_interval_ms"`
	} `yaml:"pool"`
	Analyze struct {
		MaxCorrectionAttempts int `yaml:"max_correction_attempts"`
		EndToEndTimeoutMS     int `yaml:"end_to_end_timeout_ms"`
	} `yaml:"analyze"`
	Monitoring struct {
		TickIntervalMS int `yaml:"tick_interval_ms"`
		SuppressionMS  int `yaml:"suppression_ms"`
	} `yaml:"monitoring"`
	Execution struct {
		MaxAttemptsPerTask int `yaml:"max_attempts_per_task"`
		StepCap            int `yaml:"step_cap"`
	} `yaml:"execution"`
	Memory struct {
		MaxEvents int `yaml:"max_events"`
	} `yaml:"memory"`
}

// AcquireTimeout returns the pool acquisition deadline.
func (d *Defaults) AcquireTimeout() time.Duration {
	return time.Duration(d.Pool.AcquireTimeoutMS) * time.Millisecond
}

// HealthInterval returns the pool health probe interval.
func (d *Defaults) HealthInterval() time.Duration {
	return time.Duration(d.Pool.HealthIntervalMS) * time.Millisecond
}

// EndToEndTimeout returns the per-request analysis cap.
func (d *Defaults) EndToEndTimeout() time.Duration {
	return time.Duration(d.Analyze.EndToEndTimeoutMS) * time.Millisecond
}

// TickInterval returns the monitoring loop period.
func (d *Defaults) TickInterval() time.Duration {
	return time.Duration(d.Monitoring.TickIntervalMS) * time.Millisecond
}

// SuppressionWindow returns the alert deduplication window.
func (d *Defaults) SuppressionWindow() time.Duration {
	return time.Duration(d.Monitoring.SuppressionMS) * time.Millisecond
}

// Config is the fully loaded, merged, validated configuration, with the
// live registries the engine reads at runtime already built.
type Config struct {
	Defaults      *Defaults
	Datasources   []models.Datasource
	LLMBindings   map[string]models.LLMBinding
	AgentProfiles map[string]agent.Profile
	Scenes        map[models.Scene]SceneConfig
	Metrics       map[string]MetricQueryConfig

	ChainRegistry        *planning.ChainRegistry
	PlanningRuleRegistry *planning.RuleRegistry

	MonitorRuleRegistry *monitor.RuleRegistry
	DiagnosisRegistry   *monitor.DiagnosisRegistry
	Email               *monitor.EmailConfigHolder
}

// Stats summarises the loaded configuration for logging and health checks.
type Stats struct {
	Datasources   int
	LLMBindings   int
	AgentProfiles int
	Chains        int
	PlanningRules int
	MonitorRules  int
}

// Stats returns counts of the loaded configuration.
func (c *Config) Stats() Stats {
	return Stats{
		Datasources:   len(c.Datasources),
		LLMBindings:   len(c.LLMBindings),
		AgentProfiles: len(c.AgentProfiles),
		Chains:        len(c.ChainRegistry.GetAll()),
		PlanningRules: len(c.PlanningRuleRegistry.All()),
		MonitorRules:  len(c.MonitorRuleRegistry.All()),
	}
}

// DefaultBinding returns the binding for a scene, falling back to the
// binding marked default. When the scene has no binding and no default
// exists the lookup fails; callers surface that as a validation error
// rather than silently picking an arbitrary binding.
func (c *Config) DefaultBinding(scene models.Scene) (models.LLMBinding, bool) {
	for _, b := range c.LLMBindings {
		if b.Scene == scene && scene != "" {
			return b, true
		}
	}
	for _, b := range c.LLMBindings {
		if b.IsDefault {
			return b, true
		}
	}
	return models.LLMBinding{}, false
}
