package models

import "time"

// Operator is a comparison operator used by monitoring Rules.
type Operator string

const (
	OpGT  Operator = ">"
	OpGTE Operator = ">="
	OpLT  Operator = "<"
	OpLTE Operator = "<="
	OpEQ  Operator = "=="
)

// Compare applies the operator to (value, threshold).
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGT:
		return value > threshold
	case OpGTE:
		return value >= threshold
	case OpLT:
		return value < threshold
	case OpLTE:
		return value <= threshold
	case OpEQ:
		return value == threshold
	default:
		return false
	}
}

// Severity ranks how urgent a firing Rule is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Scope narrows what an alerting Rule evaluates against.
type Scope string

const (
	ScopeData   Scope = "data"
	ScopeMarket Scope = "market"
)

// MonitorRule is a single monitoring/alerting rule (distinct from the
// planning engine's question-routing Rule in pkg/planning).
type MonitorRule struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	MetricKey string   `json:"metric_key" yaml:"metric_key"`
	Operator  Operator `json:"operator" yaml:"operator"`
	Threshold float64  `json:"threshold" yaml:"threshold"`
	Severity  Severity `json:"severity" yaml:"severity"`
	Scope     Scope    `json:"scope" yaml:"scope"`
	Enabled   bool     `json:"enabled" yaml:"enabled"`
}

// AlertStatus tracks the lifecycle of an Alert. Transitions only move
// forward: triggered -> notified -> acknowledged.
type AlertStatus string

const (
	AlertTriggered     AlertStatus = "triggered"
	AlertNotified      AlertStatus = "notified"
	AlertAcknowledged  AlertStatus = "acknowledged"
)

// Diagnosis is the attribution summary attached to an Alert.
type Diagnosis struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// Notification records the outcome of dispatching an Alert.
type Notification struct {
	Channel string    `json:"channel"`
	Result  string    `json:"result"`
	Ts      time.Time `json:"ts"`
}

// Alert is one firing of a MonitorRule against an observed metric value.
type Alert struct {
	ID            string        `json:"id"`
	RuleID        string        `json:"rule_id"`
	MetricKey     string        `json:"metric_key"`
	CurrentValue  float64       `json:"current_value"`
	Operator      Operator      `json:"operator"`
	Threshold     float64       `json:"threshold"`
	TriggeredAt   time.Time     `json:"triggered_at"`
	Status        AlertStatus   `json:"status"`
	Diagnosis     *Diagnosis    `json:"diagnosis,omitempty"`
	Notification  *Notification `json:"notification,omitempty"`
}

// AttributionRule maps a metric to candidate causes/actions for diagnosis.
type AttributionRule struct {
	MetricKey        string   `json:"metric_key" yaml:"metric_key"`
	PossibleCauses   []string `json:"possible_causes" yaml:"possible_causes"`
	SuggestedActions []string `json:"suggested_actions" yaml:"suggested_actions"`
}

// DiagnosisConfig is the config-family record driving alert attribution.
type DiagnosisConfig struct {
	AttributionRules []AttributionRule `json:"attribution_rules" yaml:"attribution_rules"`
	DefaultActions   []string          `json:"default_actions" yaml:"default_actions"`
}

// MetricSnapshot is one point-in-time observation of every known metric.
type MetricSnapshot struct {
	Values    map[string]float64 `json:"values"`
	Timestamp time.Time          `json:"timestamp"`
}
