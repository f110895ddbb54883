package planning

import (
	"time"

	"github.com/google/uuid"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

// Engine builds Plans by scoring the RuleRegistry against a question and
// compiling the winning Rule's Chain.
type Engine struct {
	rules  *RuleRegistry
	chains *ChainRegistry
}

func NewEngine(rules *RuleRegistry, chains *ChainRegistry) *Engine {
	return &Engine{rules: rules, chains: chains}
}

// Build picks the rule whose predicate scores highest against
// (question, scene, loanType); ties break by priority then insertion
// order, both already encoded in RuleRegistry.All()'s iteration order, so
// the first max-scoring rule encountered is the winner. A zero top score
// (no rule matches at all) is PLAN_INFEASIBLE.
func (e *Engine) Build(question string, scene models.Scene, loanType string) (*models.Plan, error) {
	rules := e.rules.All()

	var winner *Rule
	best := 0
	for i := range rules {
		score := rules[i].Predicate.Score(question, string(scene), loanType)
		if score > best {
			best = score
			winner = &rules[i]
		}
	}
	if winner == nil {
		return nil, errs.New(errs.KindPlanInfeasible, "no planning rule matches this question", nil)
	}

	chain, err := e.chains.Get(winner.ChainID)
	if err != nil {
		return nil, errs.New(errs.KindPlanInfeasible, "matched rule references an unknown chain", err)
	}

	plan, err := chain.Compile(question, scene, loanType)
	if err != nil {
		return nil, errs.New(errs.KindPlanInfeasible, "chain failed to compile into a plan", err)
	}
	plan.ID = uuid.NewString()
	plan.CreatedAt = time.Now()
	return plan, nil
}
