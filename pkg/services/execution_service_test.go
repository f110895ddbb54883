package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightloop/core/pkg/execution"
	"github.com/insightloop/core/pkg/models"
	"github.com/insightloop/core/pkg/planning"
)

type echoInvoker struct{}

func (echoInvoker) Invoke(_ context.Context, agentName string, task models.Task, _ map[string]string) (string, error) {
	return agentName + ":" + task.TaskID, nil
}

type recordingPersister struct {
	mu    sync.Mutex
	saves []models.ExecutionState
}

func (r *recordingPersister) Save(_ context.Context, exe *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, exe.State)
	return nil
}

func newExecutionService(persister ExecutionPersister) *ExecutionService {
	chains := planning.NewChainRegistry(map[string]*planning.Chain{
		"single": {
			ID: "single",
			Nodes: []planning.ChainNode{
				{NodeID: "answer", Title: "Answer", AssignedAgents: []string{"sql-analyst"}},
			},
		},
	})
	rules := planning.NewRuleRegistry([]planning.Rule{
		{ID: "any", ChainID: "single", Priority: 0},
	})
	planner := planning.NewEngine(rules, chains)
	machine := execution.New(execution.NewStore(), echoInvoker{}, 3, slog.Default())
	return NewExecutionService(planner, machine, persister, 30)
}

func TestExecutionService_StartAndRunToCompletion(t *testing.T) {
	persister := &recordingPersister{}
	svc := newExecutionService(persister)
	ctx := context.Background()

	started := svc.Start(ctx, nil, "top products", models.Scene("dashboard"), "")
	require.True(t, started.OK)
	assert.Equal(t, models.ExecutionRunning, started.Data.State)

	done := svc.Run(ctx, started.Data.ExecutionID, 0)
	require.True(t, done.OK)
	assert.Equal(t, models.ExecutionCompleted, done.Data.State)

	task, ok := done.Data.TaskByID("answer")
	require.True(t, ok)
	assert.Equal(t, models.TaskCompleted, task.Status)
	assert.Equal(t, "sql-analyst:answer", task.Output)

	persister.mu.Lock()
	defer persister.mu.Unlock()
	assert.NotEmpty(t, persister.saves)
	assert.Equal(t, models.ExecutionCompleted, persister.saves[len(persister.saves)-1])
}

func TestExecutionService_ValidatesQuestion(t *testing.T) {
	svc := newExecutionService(nil)
	out := svc.Start(context.Background(), nil, "", "", "")
	assert.False(t, out.OK)
}

func TestExecutionService_CancelUnknownExecution(t *testing.T) {
	svc := newExecutionService(nil)
	out := svc.Cancel(context.Background(), "nope")
	assert.False(t, out.OK)
}
