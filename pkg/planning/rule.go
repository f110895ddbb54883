// Package planning implements the planning engine: a Rule/Chain
// registry loaded at startup and live-editable, and the Build operation
// that scores rules against a question and materializes the winning
// Chain into a Plan.
package planning

import "strings"

// Predicate is a planning rule's match condition against a question.
// Scoring is deliberately simple — keyword/scene/loan_type membership
// checks, each contributing a fixed weight — rather than a general
// expression language: the source's free-form rule config has no
// canonical predicate grammar (an open question), and a minimal,
// auditable scoring function is easier to live-edit correctly than a
// DSL interpreter would be.
type Predicate struct {
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Scenes   []string `json:"scenes,omitempty" yaml:"scenes,omitempty"`
	LoanType []string `json:"loan_types,omitempty" yaml:"loan_types,omitempty"`
}

// Score returns how well p matches the given question features. Zero
// means no match at all. Weights: a keyword hit is worth 1 per matched
// keyword (the dominant signal, since keywords are the most specific
// part of a question); a scene or loan_type match is worth 2 (a
// hard-scoped rule author deliberately narrowed applicability, and that
// intent should outweigh an incidental keyword hit from a broader rule).
func (p Predicate) Score(question, scene, loanType string) int {
	// An empty predicate is a catch-all: it matches everything with the
	// lowest possible positive score, so a rule set with a catch-all never
	// fails to plan. A rule with a real matching clause scores at least 1:
	// above 1 it outranks the catch-all; at exactly 1 (a single keyword hit)
	// it ties, and priority then insertion order decide.
	if len(p.Keywords) == 0 && len(p.Scenes) == 0 && len(p.LoanType) == 0 {
		return 1
	}
	score := 0
	lowerQ := strings.ToLower(question)
	for _, kw := range p.Keywords {
		if strings.Contains(lowerQ, strings.ToLower(kw)) {
			score++
		}
	}
	if len(p.Scenes) > 0 {
		if !containsFold(p.Scenes, scene) {
			return 0
		}
		score += 2
	}
	if len(p.LoanType) > 0 {
		if loanType == "" || !containsFold(p.LoanType, loanType) {
			return 0
		}
		score += 2
	}
	return score
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

// Rule maps a question-feature Predicate to the Chain that should handle
// it. Rules are data, loaded at startup and live-editable via Registry.
type Rule struct {
	ID        string    `json:"id" yaml:"id"`
	ChainID   string    `json:"chain_id" yaml:"chain_id"`
	Predicate Predicate `json:"predicate" yaml:"predicate"`
	Priority  int       `json:"priority" yaml:"priority"`
}
