package services

import (
	"context"
	"log/slog"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
	"github.com/insightloop/core/pkg/monitor"
	"github.com/insightloop/core/pkg/planning"
)

// DocStore persists configuration documents; nil disables durability and
// puts only swap the in-memory registries.
type DocStore interface {
	PutDoc(ctx context.Context, name string, value any) error
	GetDoc(ctx context.Context, name string, out any) error
}

// Document names mirrored from the database layer, duplicated here so the
// service compiles without the database package wired.
const (
	docRules           = "rules"
	docChains          = "chains"
	docDiagnosisConfig = "diagnosis_config"
	docEmailConfig     = "email_config"
)

// ConfigService exposes the live-editable configuration: monitor rules,
// planning chains, diagnosis attribution, and notification routing.
// Every put swaps the copy-on-write registry first (readers immediately
// see the new snapshot), then persists best-effort.
type ConfigService struct {
	monitorRules *monitor.RuleRegistry
	chains       *planning.ChainRegistry
	diagnosis    *monitor.DiagnosisRegistry
	email        *monitor.EmailConfigHolder
	docs         DocStore
	logger       *slog.Logger
}

// NewConfigService creates a ConfigService. docs may be nil.
func NewConfigService(
	monitorRules *monitor.RuleRegistry,
	chains *planning.ChainRegistry,
	diagnosis *monitor.DiagnosisRegistry,
	email *monitor.EmailConfigHolder,
	docs DocStore,
) *ConfigService {
	return &ConfigService{
		monitorRules: monitorRules,
		chains:       chains,
		diagnosis:    diagnosis,
		email:        email,
		docs:         docs,
		logger:       slog.Default().With("component", "config-service"),
	}
}

// RulesGet returns every monitor rule.
func (s *ConfigService) RulesGet(context.Context) errs.Envelope[[]models.MonitorRule] {
	return errs.Ok(s.monitorRules.All())
}

// RulesPut replaces the monitor rule set.
func (s *ConfigService) RulesPut(ctx context.Context, rules []models.MonitorRule) errs.Envelope[[]models.MonitorRule] {
	for _, r := range rules {
		if r.ID == "" || r.MetricKey == "" {
			return errs.Fail[[]models.MonitorRule](errs.New(errs.KindValidation, "monitor rule id and metric_key are required", nil))
		}
	}
	s.monitorRules.Replace(rules)
	s.persist(ctx, docRules, rules)
	return errs.Ok(s.monitorRules.All())
}

// ChainsGet returns every planning chain.
func (s *ConfigService) ChainsGet(context.Context) errs.Envelope[map[string]*planning.Chain] {
	return errs.Ok(s.chains.GetAll())
}

// ChainsPut inserts or replaces one chain.
func (s *ConfigService) ChainsPut(ctx context.Context, chain *planning.Chain) errs.Envelope[*planning.Chain] {
	if chain == nil || chain.ID == "" {
		return errs.Fail[*planning.Chain](errs.New(errs.KindValidation, "chain id is required", nil))
	}
	if len(chain.Nodes) == 0 {
		return errs.Fail[*planning.Chain](errs.New(errs.KindValidation, "chain must have at least one node", nil))
	}
	s.chains.Put(chain)
	s.persist(ctx, docChains, s.chains.GetAll())
	return errs.Ok(chain)
}

// DiagnosisGet returns the attribution configuration.
func (s *ConfigService) DiagnosisGet(context.Context) errs.Envelope[models.DiagnosisConfig] {
	return errs.Ok(s.diagnosis.Get())
}

// DiagnosisPut replaces the attribution configuration.
func (s *ConfigService) DiagnosisPut(ctx context.Context, cfg models.DiagnosisConfig) errs.Envelope[models.DiagnosisConfig] {
	s.diagnosis.Replace(cfg)
	s.persist(ctx, docDiagnosisConfig, cfg)
	return errs.Ok(s.diagnosis.Get())
}

// EmailGet returns the notification routing configuration.
func (s *ConfigService) EmailGet(context.Context) errs.Envelope[monitor.EmailConfig] {
	return errs.Ok(s.email.Get())
}

// EmailPut replaces the notification routing configuration.
func (s *ConfigService) EmailPut(ctx context.Context, cfg monitor.EmailConfig) errs.Envelope[monitor.EmailConfig] {
	if cfg.Enabled && cfg.To == "" && cfg.Channel != "slack" {
		return errs.Fail[monitor.EmailConfig](errs.New(errs.KindValidation, "email recipient is required when notifications are enabled", nil))
	}
	if cfg.Channel == "" {
		cfg.Channel = "email"
	}
	s.email.Replace(cfg)
	s.persist(ctx, docEmailConfig, cfg)
	return errs.Ok(s.email.Get())
}

func (s *ConfigService) persist(ctx context.Context, name string, value any) {
	if s.docs == nil {
		return
	}
	if err := s.docs.PutDoc(ctx, name, value); err != nil {
		s.logger.Error("Failed to persist config document", "name", name, "error", err)
	}
}
