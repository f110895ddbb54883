package monitor

import (
	"sync"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

// RuleRegistry holds the live set of monitoring rules. Reads return a
// defensive copy so an in-flight evaluation pass keeps a consistent
// snapshot while an operator replaces rules underneath it.
type RuleRegistry struct {
	mu    sync.RWMutex
	rules []models.MonitorRule
}

// NewRuleRegistry builds a registry seeded with rules.
func NewRuleRegistry(rules []models.MonitorRule) *RuleRegistry {
	r := &RuleRegistry{}
	r.Replace(rules)
	return r
}

// All returns a copy of every rule, enabled or not.
func (r *RuleRegistry) All() []models.MonitorRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make([]models.MonitorRule, len(r.rules))
	copy(cp, r.rules)
	return cp
}

// Get returns the rule with the given id.
func (r *RuleRegistry) Get(id string) (models.MonitorRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		if rule.ID == id {
			return rule, nil
		}
	}
	return models.MonitorRule{}, errs.New(errs.KindNotFound, "monitor rule not found: "+id, nil)
}

// Put inserts or replaces one rule by id.
func (r *RuleRegistry) Put(rule models.MonitorRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == rule.ID {
			r.rules[i] = rule
			return
		}
	}
	r.rules = append(r.rules, rule)
}

// Replace swaps the full rule set.
func (r *RuleRegistry) Replace(rules []models.MonitorRule) {
	cp := make([]models.MonitorRule, len(rules))
	copy(cp, rules)
	r.mu.Lock()
	r.rules = cp
	r.mu.Unlock()
}

// DiagnosisRegistry holds the attribution configuration driving the
// Diagnose step. Copy-on-write like RuleRegistry.
type DiagnosisRegistry struct {
	mu  sync.RWMutex
	cfg models.DiagnosisConfig
}

// NewDiagnosisRegistry builds a registry seeded with cfg.
func NewDiagnosisRegistry(cfg models.DiagnosisConfig) *DiagnosisRegistry {
	r := &DiagnosisRegistry{}
	r.Replace(cfg)
	return r
}

// Get returns a copy of the current configuration.
func (r *DiagnosisRegistry) Get() models.DiagnosisConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyDiagnosisConfig(r.cfg)
}

// Replace swaps the configuration.
func (r *DiagnosisRegistry) Replace(cfg models.DiagnosisConfig) {
	cp := copyDiagnosisConfig(cfg)
	r.mu.Lock()
	r.cfg = cp
	r.mu.Unlock()
}

func copyDiagnosisConfig(cfg models.DiagnosisConfig) models.DiagnosisConfig {
	cp := models.DiagnosisConfig{
		AttributionRules: make([]models.AttributionRule, len(cfg.AttributionRules)),
		DefaultActions:   append([]string(nil), cfg.DefaultActions...),
	}
	for i, ar := range cfg.AttributionRules {
		cp.AttributionRules[i] = models.AttributionRule{
			MetricKey:        ar.MetricKey,
			PossibleCauses:   append([]string(nil), ar.PossibleCauses...),
			SuggestedActions: append([]string(nil), ar.SuggestedActions...),
		}
	}
	return cp
}

// EmailConfig is the notification routing configuration.
// Channel selects the notify.Registry binding; "email" is the default.
type EmailConfig struct {
	Channel string `json:"channel" yaml:"channel"`
	To      string `json:"to" yaml:"to"`
	Subject string `json:"subject" yaml:"subject"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// EmailConfigHolder is the copy-on-write holder for EmailConfig.
type EmailConfigHolder struct {
	mu  sync.RWMutex
	cfg EmailConfig
}

// NewEmailConfigHolder builds a holder seeded with cfg.
func NewEmailConfigHolder(cfg EmailConfig) *EmailConfigHolder {
	return &EmailConfigHolder{cfg: cfg}
}

// Get returns the current configuration.
func (h *EmailConfigHolder) Get() EmailConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Replace swaps the configuration.
func (h *EmailConfigHolder) Replace(cfg EmailConfig) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}
