package monitor

import (
	"fmt"

	"github.com/insightloop/core/pkg/models"
)

// diagnose runs the attribution rule matching the alert's metric key,
// substituting the observed value and threshold into the summary. When no
// attribution rule matches, the config's default actions are used so an
// alert never goes out without at least a generic next step.
func diagnose(alert models.Alert, rule models.MonitorRule, cfg models.DiagnosisConfig) models.Diagnosis {
	summary := fmt.Sprintf("%s is %.4g, which breaches the configured threshold (%s %.4g)",
		alert.MetricKey, alert.CurrentValue, alert.Operator, alert.Threshold)

	for _, ar := range cfg.AttributionRules {
		if ar.MetricKey != alert.MetricKey {
			continue
		}
		points := make([]string, 0, len(ar.PossibleCauses)+len(ar.SuggestedActions))
		for _, c := range ar.PossibleCauses {
			points = append(points, "possible cause: "+c)
		}
		for _, a := range ar.SuggestedActions {
			points = append(points, "suggested action: "+a)
		}
		return models.Diagnosis{Summary: summary, KeyPoints: points}
	}

	points := make([]string, 0, len(cfg.DefaultActions)+1)
	points = append(points, fmt.Sprintf("no attribution rule configured for %s (severity %s)", alert.MetricKey, rule.Severity))
	for _, a := range cfg.DefaultActions {
		points = append(points, "suggested action: "+a)
	}
	return models.Diagnosis{Summary: summary, KeyPoints: points}
}
