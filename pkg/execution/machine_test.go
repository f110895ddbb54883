package execution

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

// scriptedInvoker returns a scripted (output, err) pair for each agent name,
// and counts calls per task id.
type scriptedInvoker struct {
	byAgent map[string]func(task models.Task, deps map[string]string) (string, error)
	calls   map[string]int
}

func newScriptedInvoker() *scriptedInvoker {
	return &scriptedInvoker{byAgent: make(map[string]func(models.Task, map[string]string) (string, error)), calls: make(map[string]int)}
}

func (s *scriptedInvoker) Invoke(ctx context.Context, agentName string, task models.Task, deps map[string]string) (string, error) {
	s.calls[task.TaskID]++
	fn, ok := s.byAgent[agentName]
	if !ok {
		return "", fmt.Errorf("no script for agent %s", agentName)
	}
	return fn(task, deps)
}

func linearPlan() *models.Plan {
	return &models.Plan{
		ID:       "plan1",
		Question: "q",
		Tasks: []models.Task{
			{TaskID: "a", AssignedAgent: "agent_a"},
			{TaskID: "b", AssignedAgent: "agent_b", DependsOn: []string{"a"}},
		},
		Edges: []models.Edge{{From: "a", To: "b"}},
	}
}

func TestMachine_Start_InitialReadySet(t *testing.T) {
	m := New(NewStore(), newScriptedInvoker(), 3, nil)
	exe := m.Start(linearPlan())

	require.Equal(t, models.ExecutionRunning, exe.State)
	a, _ := exe.TaskByID("a")
	b, _ := exe.TaskByID("b")
	assert.Equal(t, models.TaskReady, a.Status)
	assert.Equal(t, models.TaskPending, b.Status)
}

func TestMachine_Tick_PromotesDependentAndCompletes(t *testing.T) {
	invoker := newScriptedInvoker()
	invoker.byAgent["agent_a"] = func(task models.Task, deps map[string]string) (string, error) { return "out_a", nil }
	invoker.byAgent["agent_b"] = func(task models.Task, deps map[string]string) (string, error) { return "out_b:" + deps["a"], nil }

	m := New(NewStore(), invoker, 3, nil)
	exe := m.Start(linearPlan())

	exe, err := m.Tick(context.Background(), exe.ExecutionID)
	require.NoError(t, err)
	a, _ := exe.TaskByID("a")
	b, _ := exe.TaskByID("b")
	assert.Equal(t, models.TaskCompleted, a.Status)
	assert.Equal(t, models.TaskReady, b.Status)

	exe, err = m.Tick(context.Background(), exe.ExecutionID)
	require.NoError(t, err)
	b, _ = exe.TaskByID("b")
	assert.Equal(t, models.TaskCompleted, b.Status)
	assert.Equal(t, "out_b:out_a", b.Output)
	assert.Equal(t, models.ExecutionCompleted, exe.State)
}

func TestMachine_Run_ConcurrentlyDispatchesFullReadySet(t *testing.T) {
	invoker := newScriptedInvoker()
	invoker.byAgent["gather"] = func(task models.Task, deps map[string]string) (string, error) { return "g:" + task.TaskID, nil }
	invoker.byAgent["synth"] = func(task models.Task, deps map[string]string) (string, error) { return "s", nil }

	plan := &models.Plan{
		ID: "plan2",
		Tasks: []models.Task{
			{TaskID: "gather#0", AssignedAgent: "gather"},
			{TaskID: "gather#1", AssignedAgent: "gather"},
			{TaskID: "synth", AssignedAgent: "synth", DependsOn: []string{"gather#0", "gather#1"}},
		},
	}

	m := New(NewStore(), invoker, 3, nil)
	exe := m.Start(plan)

	exe, err := m.Run(context.Background(), exe.ExecutionID, DefaultStepCap)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, exe.State)
	synth, _ := exe.TaskByID("synth")
	assert.Equal(t, "s", synth.Output)
}

func TestMachine_Run_TaskFailureFailsExecutionWithoutReady(t *testing.T) {
	invoker := newScriptedInvoker()
	invoker.byAgent["agent_a"] = func(task models.Task, deps map[string]string) (string, error) {
		return "", fmt.Errorf("boom")
	}

	m := New(NewStore(), invoker, 3, nil)
	exe := m.Start(linearPlan())

	exe, err := m.Run(context.Background(), exe.ExecutionID, DefaultStepCap)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, exe.State)
	a, _ := exe.TaskByID("a")
	assert.Equal(t, models.TaskFailed, a.Status)
	b, _ := exe.TaskByID("b")
	assert.Equal(t, models.TaskPending, b.Status)
}

func TestMachine_TaskAction_RetryRespectsMaxAttempts(t *testing.T) {
	invoker := newScriptedInvoker()
	m := New(NewStore(), invoker, 2, nil)
	m.sleep = func(time.Duration) {}
	exe := m.Start(linearPlan())

	m.store.WithLock(exe.ExecutionID, func(e *models.Execution) {
		task, _ := e.TaskByID("a")
		task.Status = models.TaskFailed
		task.Attempts = 1
	})

	exe, err := m.TaskAction(context.Background(), exe.ExecutionID, "a", ActionRetry)
	require.NoError(t, err)
	a, _ := exe.TaskByID("a")
	assert.Equal(t, models.TaskReady, a.Status)

	m.store.WithLock(exe.ExecutionID, func(e *models.Execution) {
		task, _ := e.TaskByID("a")
		task.Status = models.TaskFailed
		task.Attempts = 2
	})
	_, err = m.TaskAction(context.Background(), exe.ExecutionID, "a", ActionRetry)
	require.Error(t, err)
	assert.True(t, errs.As(err, errs.KindExecutionBlocked))
}

func TestMachine_TaskAction_SkipCascadesUpstreamSkipped(t *testing.T) {
	plan := &models.Plan{
		ID: "plan3",
		Tasks: []models.Task{
			{TaskID: "a", AssignedAgent: "agent_a"},
			{TaskID: "b", AssignedAgent: "agent_b", DependsOn: []string{"a"}, Skippable: false},
			{TaskID: "c", AssignedAgent: "agent_c", DependsOn: []string{"a"}, Skippable: true},
		},
	}
	m := New(NewStore(), newScriptedInvoker(), 3, nil)
	exe := m.Start(plan)

	exe, err := m.TaskAction(context.Background(), exe.ExecutionID, "a", ActionSkip)
	require.NoError(t, err)

	b, _ := exe.TaskByID("b")
	c, _ := exe.TaskByID("c")
	assert.Equal(t, models.TaskFailed, b.Status)
	assert.Equal(t, "UPSTREAM_SKIPPED", b.LastError)
	assert.Equal(t, models.TaskReady, c.Status)
}

func TestMachine_Cancel_FailsInFlightTasks(t *testing.T) {
	m := New(NewStore(), newScriptedInvoker(), 3, nil)
	exe := m.Start(linearPlan())

	exe, err := m.Cancel(exe.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCancelled, exe.State)
	a, _ := exe.TaskByID("a")
	assert.Equal(t, models.TaskFailed, a.Status)
}
