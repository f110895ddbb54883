package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/insightloop/core/pkg/agent"
	"github.com/insightloop/core/pkg/models"
	"github.com/insightloop/core/pkg/monitor"
	"github.com/insightloop/core/pkg/planning"
)

// ConfigFileName is the root configuration file looked up in configDir.
const ConfigFileName = "insightloop.yaml"

// Initialize loads, merges, validates, and returns ready-to-use
// configuration. This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load insightloop.yaml from configDir (absent file means built-ins only)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined chains, rules, and defaults
//  5. Build the in-memory registries
//  6. Validate everything
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	raw, err := loadYAML(configDir)
	if err != nil {
		return nil, err
	}

	cfg, err := build(raw)
	if err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"datasources", stats.Datasources,
		"llm_bindings", stats.LLMBindings,
		"agent_profiles", stats.AgentProfiles,
		"chains", stats.Chains,
		"planning_rules", stats.PlanningRules,
		"monitor_rules", stats.MonitorRules)

	return cfg, nil
}

func loadYAML(configDir string) (*InsightloopYAMLConfig, error) {
	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("No configuration file found, using built-ins only", "path", path)
			return &InsightloopYAMLConfig{}, nil
		}
		return nil, NewLoadError(ConfigFileName, err)
	}

	data = ExpandEnv(data)

	var raw InsightloopYAMLConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, NewLoadError(ConfigFileName, err)
	}
	return &raw, nil
}

func build(raw *InsightloopYAMLConfig) (*Config, error) {
	// Merge user defaults over built-in knob values: user-set fields win,
	// zero-valued fields fall back to the documented default.
	defaults := raw.Defaults
	if defaults == nil {
		defaults = &Defaults{}
	}
	if err := mergo.Merge(defaults, *builtinDefaults()); err != nil {
		return nil, fmt.Errorf("failed to merge defaults: %w", err)
	}

	builtin := GetBuiltinConfig()
	chains := mergeChains(builtin.Chains, raw.Chains)
	rules := mergePlanningRules(builtin.PlanningRules, raw.PlanningRules)

	diagnosis := builtin.Diagnosis
	if raw.Diagnosis != nil {
		diagnosis = *raw.Diagnosis
		if len(diagnosis.DefaultActions) == 0 {
			diagnosis.DefaultActions = builtin.Diagnosis.DefaultActions
		}
	}

	email := monitor.EmailConfig{Channel: "email"}
	if raw.Email != nil {
		email = *raw.Email
		if email.Channel == "" {
			email.Channel = "email"
		}
	}

	bindings := make(map[string]models.LLMBinding, len(raw.LLMBindings))
	for _, b := range raw.LLMBindings {
		bindings[b.ID] = b
	}

	profiles := make(map[string]agent.Profile, len(raw.AgentProfiles))
	for _, p := range raw.AgentProfiles {
		profiles[p.ID] = p.ToProfile()
	}

	scenes := make(map[models.Scene]SceneConfig, len(raw.Scenes))
	for name, sc := range raw.Scenes {
		scenes[models.Scene(name)] = sc
	}

	return &Config{
		Defaults:             defaults,
		Datasources:          raw.Datasources,
		LLMBindings:          bindings,
		AgentProfiles:        profiles,
		Scenes:               scenes,
		Metrics:              raw.Metrics,
		ChainRegistry:        planning.NewChainRegistry(chains),
		PlanningRuleRegistry: planning.NewRuleRegistry(rules),
		MonitorRuleRegistry:  monitor.NewRuleRegistry(raw.MonitorRules),
		DiagnosisRegistry:    monitor.NewDiagnosisRegistry(diagnosis),
		Email:                monitor.NewEmailConfigHolder(email),
	}, nil
}
