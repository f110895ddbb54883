package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

func newTestEngine() *Engine {
	chains := NewChainRegistry(map[string]*Chain{
		"revenue_chain": {
			ID: "revenue_chain",
			Nodes: []ChainNode{
				{NodeID: "schema", AssignedAgents: []string{"schema_agent"}},
				{NodeID: "sql", AssignedAgents: []string{"sql_agent"}, DependsOn: []string{"schema"}},
				{NodeID: "viz", AssignedAgents: []string{"visualize_agent"}, DependsOn: []string{"sql"}, Skippable: true},
			},
		},
		"loan_ops_chain": {
			ID: "loan_ops_chain",
			Nodes: []ChainNode{
				{NodeID: "schema", AssignedAgents: []string{"schema_agent"}},
				{NodeID: "sql", AssignedAgents: []string{"sql_agent"}, DependsOn: []string{"schema"}},
			},
		},
	})
	rules := NewRuleRegistry([]Rule{
		{ID: "r_general", ChainID: "revenue_chain", Priority: 0, Predicate: Predicate{Keywords: []string{"revenue"}}},
		{ID: "r_loan_ops", ChainID: "loan_ops_chain", Priority: 10, Predicate: Predicate{Scenes: []string{"loan_ops"}}},
	})
	return NewEngine(rules, chains)
}

func TestEngine_Build_PicksHighestScoringRule(t *testing.T) {
	e := newTestEngine()

	plan, err := e.Build("total revenue this month", models.SceneDashboard, "")
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 3)
	assert.Equal(t, "schema", plan.Tasks[0].TaskID)
}

func TestEngine_Build_ScenePredicateOutranksKeyword(t *testing.T) {
	e := newTestEngine()

	plan, err := e.Build("loan approval revenue outlook", models.SceneLoanOps, "")
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 2)
}

func TestEngine_Build_NoMatchIsPlanInfeasible(t *testing.T) {
	e := newTestEngine()

	_, err := e.Build("completely unrelated question", models.SceneDataDiscuss, "")
	require.Error(t, err)
	assert.True(t, errs.As(err, errs.KindPlanInfeasible))
}

func TestChain_Compile_FanOutSharesDependencies(t *testing.T) {
	c := &Chain{
		ID: "fanout",
		Nodes: []ChainNode{
			{NodeID: "gather", AssignedAgents: []string{"a1", "a2"}},
			{NodeID: "synthesize", AssignedAgents: []string{"a3"}, DependsOn: []string{"gather"}},
		},
	}
	plan, err := c.Compile("q", models.SceneDashboard, "")
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 3)

	var synth *models.Task
	for i := range plan.Tasks {
		if plan.Tasks[i].TaskID == "synthesize" {
			synth = &plan.Tasks[i]
		}
	}
	require.NotNil(t, synth)
	assert.ElementsMatch(t, []string{"gather#0", "gather#1"}, synth.DependsOn)
}
