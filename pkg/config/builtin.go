package config

import (
	"github.com/insightloop/core/pkg/models"
	"github.com/insightloop/core/pkg/planning"
)

// BuiltinConfig holds the chains, planning rules, and diagnosis defaults
// shipped with the engine. User-defined records with the same id override
// these during merge.
type BuiltinConfig struct {
	Chains         map[string]planning.Chain
	PlanningRules  []planning.Rule
	Diagnosis      models.DiagnosisConfig
}

// GetBuiltinConfig returns the built-in configuration. Callers receive
// fresh copies on every call so mutation cannot leak between loads.
func GetBuiltinConfig() BuiltinConfig {
	return BuiltinConfig{
		Chains: map[string]planning.Chain{
			"direct-analysis": {
				ID:          "direct-analysis",
				Description: "Single-step answer for a self-contained question",
				Nodes: []planning.ChainNode{
					{NodeID: "analyze", Title: "Answer the question", AssignedAgents: []string{"sql-analyst"}},
				},
			},
			"metric-deep-dive": {
				ID:          "metric-deep-dive",
				Description: "Decompose a broad metric question into trend, breakdown, and synthesis",
				Nodes: []planning.ChainNode{
					{NodeID: "trend", Title: "Metric trend over time", AssignedAgents: []string{"sql-analyst"}},
					{NodeID: "breakdown", Title: "Breakdown by dimension", AssignedAgents: []string{"sql-analyst"}, DependsOn: []string{"trend"}},
					{NodeID: "anomalies", Title: "Identify anomalies", AssignedAgents: []string{"sql-analyst"}, DependsOn: []string{"trend"}, Skippable: true},
					{NodeID: "synthesis", Title: "Synthesize findings", AssignedAgents: []string{"insight-writer"}, DependsOn: []string{"breakdown", "anomalies"}},
				},
			},
			"loan-portfolio-review": {
				ID:          "loan-portfolio-review",
				Description: "Portfolio health review for loan operations",
				Nodes: []planning.ChainNode{
					{NodeID: "overdue", Title: "Overdue rate by segment", AssignedAgents: []string{"sql-analyst"}},
					{NodeID: "vintage", Title: "Vintage performance", AssignedAgents: []string{"sql-analyst"}},
					{NodeID: "strategy", Title: "Draft strategy recommendation", AssignedAgents: []string{"insight-writer"}, DependsOn: []string{"overdue", "vintage"}},
				},
			},
		},
		PlanningRules: []planning.Rule{
			{
				ID:      "rule-loan-review",
				ChainID: "loan-portfolio-review",
				Predicate: planning.Predicate{
					Keywords: []string{"portfolio", "overdue", "vintage", "collection"},
					Scenes:   []string{"loan_ops"},
				},
				Priority: 20,
			},
			{
				ID:      "rule-deep-dive",
				ChainID: "metric-deep-dive",
				Predicate: planning.Predicate{
					Keywords: []string{"why", "drill down", "deep dive", "root cause", "trend"},
				},
				Priority: 10,
			},
			{
				ID:        "rule-direct",
				ChainID:   "direct-analysis",
				Predicate: planning.Predicate{},
				Priority:  0,
			},
		},
		Diagnosis: models.DiagnosisConfig{
			DefaultActions: []string{
				"verify the underlying data pipeline ran to completion",
				"compare against the same period last week",
				"escalate to the metric owner if the breach persists",
			},
		},
	}
}

// mergeChains merges built-in and user-defined chains. User-defined chains
// override built-in chains with the same id.
func mergeChains(builtin map[string]planning.Chain, user map[string]planning.Chain) map[string]*planning.Chain {
	result := make(map[string]*planning.Chain, len(builtin)+len(user))
	for id, chain := range builtin {
		chainCopy := chain
		result[id] = &chainCopy
	}
	for id, chain := range user {
		chainCopy := chain
		if chainCopy.ID == "" {
			chainCopy.ID = id
		}
		result[id] = &chainCopy
	}
	return result
}

// mergePlanningRules merges built-in and user-defined planning rules by id.
func mergePlanningRules(builtin []planning.Rule, user []planning.Rule) []planning.Rule {
	result := make([]planning.Rule, 0, len(builtin)+len(user))
	overridden := make(map[string]bool, len(user))
	for _, r := range user {
		overridden[r.ID] = true
	}
	for _, r := range builtin {
		if !overridden[r.ID] {
			result = append(result, r)
		}
	}
	return append(result, user...)
}
