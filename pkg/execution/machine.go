package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

const (
	// DefaultMaxAttemptsPerTask mirrors execution.max_attempts_per_task.
	DefaultMaxAttemptsPerTask = 3
	// DefaultStepCap mirrors execution.step_cap.
	DefaultStepCap = 30

	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 10 * time.Second
)

// TaskAction is an operator override applied via Machine.TaskAction.
type TaskAction string

const (
	ActionStart    TaskAction = "start"
	ActionComplete TaskAction = "complete"
	ActionFail     TaskAction = "fail"
	ActionRetry    TaskAction = "retry"
	ActionSkip     TaskAction = "skip"
)

// reasonUpstreamSkipped is recorded on a task forced to fail because a
// non-skippable dependency was skipped by operator action.
const reasonUpstreamSkipped = "UPSTREAM_SKIPPED"

// Machine drives Executions through start/tick/run/task_action/cancel per
// the task transition rules, serializing every mutation of one
// Execution behind Store's per-execution lock.
type Machine struct {
	store       *Store
	invoker     AgentInvoker
	maxAttempts int
	logger      *slog.Logger

	// sleep is overridable in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// New builds a Machine. maxAttempts<=0 defaults to DefaultMaxAttemptsPerTask.
func New(store *Store, invoker AgentInvoker, maxAttempts int, logger *slog.Logger) *Machine {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttemptsPerTask
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: store, invoker: invoker, maxAttempts: maxAttempts, logger: logger, sleep: time.Sleep}
}

// Start materializes a Plan into a new Execution: tasks pending, the
// dependency-free subset promoted to ready, and the execution itself
// transitioned directly to running.
func (m *Machine) Start(plan *models.Plan) *models.Execution {
	tasks := make([]models.Task, len(plan.Tasks))
	copy(tasks, plan.Tasks)
	for i := range tasks {
		tasks[i].Status = models.TaskPending
		if len(tasks[i].DependsOn) == 0 {
			tasks[i].Status = models.TaskReady
		}
	}
	exe := &models.Execution{
		ExecutionID: uuid.NewString(),
		PlanID:      plan.ID,
		State:       models.ExecutionRunning,
		Tasks:       tasks,
		LoanType:    plan.LoanType,
		Question:    plan.Question,
		UpdatedAt:   time.Now(),
	}
	m.store.Put(exe)
	return exe
}

// Tick advances the named Execution by exactly one step: the
// lexicographically smallest ready task is promoted to running and its
// assigned agent invoked synchronously. Returns the post-tick snapshot.
func (m *Machine) Tick(ctx context.Context, executionID string) (*models.Execution, error) {
	found := m.store.WithLock(executionID, func(exe *models.Execution) {
		taskID := nextReadyTaskID(exe)
		if taskID == "" {
			recomputeState(exe)
			exe.UpdatedAt = time.Now()
			return
		}
		m.runOneLocked(ctx, exe, taskID)
		recomputeState(exe)
		exe.UpdatedAt = time.Now()
	})
	if !found {
		return nil, fmt.Errorf("execution %s: %w", executionID, errs.ErrNotFound)
	}
	snapshot, _ := m.store.Get(executionID)
	return snapshot, nil
}

// Run repeatedly dispatches the full current ready set concurrently
// (modeled on TaskRunner/SubAgentRunner) until the Execution reaches a
// terminal state or maxSteps tasks have completed, whichever comes first.
// Unlike Tick, a Run round processes every ready task at once rather than
// one task at a time, while still serializing the resulting state mutation
// for each completed task behind the per-execution lock.
func (m *Machine) Run(ctx context.Context, executionID string, maxSteps int) (*models.Execution, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultStepCap
	}

	if _, ok := m.store.Get(executionID); !ok {
		return nil, fmt.Errorf("execution %s: %w", executionID, errs.ErrNotFound)
	}

	runner := NewTaskRunner(m.invoker, maxSteps)
	defer runner.Close()

	steps := 0
	for steps < maxSteps {
		var readyIDs []string
		terminal := false
		m.store.WithLock(executionID, func(exe *models.Execution) {
			if exe.State.IsTerminal() {
				terminal = true
				return
			}
			readyIDs = readyTaskIDs(exe)
			for _, id := range readyIDs {
				task, _ := exe.TaskByID(id)
				task.Status = models.TaskRunning
				task.Attempts++
			}
		})
		if terminal {
			break
		}
		if len(readyIDs) == 0 {
			m.store.WithLock(executionID, func(exe *models.Execution) {
				recomputeState(exe)
				exe.UpdatedAt = time.Now()
			})
			break
		}

		for _, id := range readyIDs {
			var task models.Task
			var depOutputs map[string]string
			m.store.WithLock(executionID, func(exe *models.Execution) {
				t, _ := exe.TaskByID(id)
				task = *t
				depOutputs = collectDepOutputs(exe, t.DependsOn)
			})
			runner.Dispatch(ctx, task.AssignedAgent, task, depOutputs)
		}

		remaining := len(readyIDs)
		for remaining > 0 {
			res, ok := runner.Next(ctx)
			if !ok {
				break
			}
			remaining--
			steps++
			m.store.WithLock(executionID, func(exe *models.Execution) {
				applyResult(exe, res.TaskID, res.Output, res.Err)
				cascadeReady(exe)
				recomputeState(exe)
				exe.UpdatedAt = time.Now()
			})
			if steps >= maxSteps {
				break
			}
		}

		done := false
		m.store.WithLock(executionID, func(exe *models.Execution) {
			done = exe.State.IsTerminal()
		})
		if done {
			break
		}
	}

	snapshot, _ := m.store.Get(executionID)
	return snapshot, nil
}

// TaskAction applies an operator override to one task, enforcing the
// transition rules (retry only while attempts < max_attempts,
// skip only ever by explicit action, with UPSTREAM_SKIPPED cascading to
// non-skippable dependents).
func (m *Machine) TaskAction(ctx context.Context, executionID, taskID string, action TaskAction) (*models.Execution, error) {
	var actionErr error
	found := m.store.WithLock(executionID, func(exe *models.Execution) {
		task, ok := exe.TaskByID(taskID)
		if !ok {
			actionErr = fmt.Errorf("task %s: %w", taskID, errs.ErrNotFound)
			return
		}
		switch action {
		case ActionStart:
			if task.Status != models.TaskReady {
				actionErr = errs.New(errs.KindExecutionBlocked, "task is not ready to start", nil)
				return
			}
			task.Status = models.TaskRunning
			task.Attempts++
		case ActionComplete:
			task.Status = models.TaskCompleted
			cascadeReady(exe)
		case ActionFail:
			task.Status = models.TaskFailed
		case ActionRetry:
			if task.Status != models.TaskFailed {
				actionErr = errs.New(errs.KindExecutionBlocked, "only a failed task can be retried", nil)
				return
			}
			if task.Attempts >= m.maxAttempts {
				actionErr = errs.New(errs.KindExecutionBlocked, "task exhausted its retry budget", nil)
				return
			}
			delay := backoffDelay(task.Attempts)
			m.sleep(delay)
			task.Status = models.TaskReady
			task.LastError = ""
		case ActionSkip:
			task.Status = models.TaskSkipped
			cascadeSkip(exe, taskID)
			cascadeReady(exe)
		default:
			actionErr = errs.New(errs.KindValidation, fmt.Sprintf("unknown task action %q", action), nil)
			return
		}
		recomputeState(exe)
		exe.UpdatedAt = time.Now()
	})
	if !found {
		return nil, fmt.Errorf("execution %s: %w", executionID, errs.ErrNotFound)
	}
	if actionErr != nil {
		return nil, actionErr
	}
	snapshot, _ := m.store.Get(executionID)
	return snapshot, nil
}

// Cancel marks the Execution cancelled and every pending, ready or running
// task failed with reason CANCELLED.
func (m *Machine) Cancel(executionID string) (*models.Execution, error) {
	found := m.store.WithLock(executionID, func(exe *models.Execution) {
		for i := range exe.Tasks {
			if exe.Tasks[i].Status == models.TaskRunning || exe.Tasks[i].Status == models.TaskReady || exe.Tasks[i].Status == models.TaskPending {
				exe.Tasks[i].Status = models.TaskFailed
				exe.Tasks[i].LastError = string(errs.KindCancelled)
			}
		}
		exe.State = models.ExecutionCancelled
		exe.UpdatedAt = time.Now()
	})
	if !found {
		return nil, fmt.Errorf("execution %s: %w", executionID, errs.ErrNotFound)
	}
	snapshot, _ := m.store.Get(executionID)
	return snapshot, nil
}

// runOneLocked executes the single-task body of Tick; caller already holds
// the execution's lock.
func (m *Machine) runOneLocked(ctx context.Context, exe *models.Execution, taskID string) {
	task, _ := exe.TaskByID(taskID)
	task.Status = models.TaskRunning
	task.Attempts++

	depOutputs := collectDepOutputs(exe, task.DependsOn)
	out, err := m.invoker.Invoke(ctx, task.AssignedAgent, *task, depOutputs)
	if err != nil {
		m.logger.Warn("task invocation failed", "execution_id", exe.ExecutionID, "task_id", taskID, "agent", task.AssignedAgent, "error", err)
	}
	applyResult(exe, taskID, out, err)
	cascadeReady(exe)
}

// applyResult records an agent invocation's outcome onto its task.
func applyResult(exe *models.Execution, taskID, output string, err error) {
	task, ok := exe.TaskByID(taskID)
	if !ok {
		return
	}
	if err != nil {
		if errs.As(err, errs.KindExecutionBlocked) {
			task.Status = models.TaskBlocked
			task.LastError = err.Error()
			return
		}
		task.Status = models.TaskFailed
		task.LastError = err.Error()
		return
	}
	task.Status = models.TaskCompleted
	task.Output = output
}

// nextReadyTaskID returns the lexicographically smallest ready task id, or
// "" if none is ready.
func nextReadyTaskID(exe *models.Execution) string {
	ids := readyTaskIDs(exe)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func readyTaskIDs(exe *models.Execution) []string {
	var ids []string
	for _, t := range exe.Tasks {
		if t.Status == models.TaskReady {
			ids = append(ids, t.TaskID)
		}
	}
	sort.Strings(ids)
	return ids
}

// cascadeReady promotes every pending task whose dependencies are all
// completed or (skippable) skipped, per "pending → ready when all
// depends_on are completed" generalized to treat an allowed skip as
// satisfying the dependency.
func cascadeReady(exe *models.Execution) {
	changed := true
	for changed {
		changed = false
		for i := range exe.Tasks {
			t := &exe.Tasks[i]
			if t.Status != models.TaskPending {
				continue
			}
			if allDepsSatisfied(exe, t.DependsOn) {
				t.Status = models.TaskReady
				changed = true
			}
		}
	}
}

func allDepsSatisfied(exe *models.Execution, depIDs []string) bool {
	for _, id := range depIDs {
		dep, ok := exe.TaskByID(id)
		if !ok {
			continue
		}
		if dep.Status != models.TaskCompleted && dep.Status != models.TaskSkipped {
			return false
		}
	}
	return true
}

// cascadeSkip fails every pending/ready dependent of a skipped task whose
// own descriptor does not allow treating the skip as satisfied, recording
// reasonUpstreamSkipped.
func cascadeSkip(exe *models.Execution, skippedID string) {
	for i := range exe.Tasks {
		t := &exe.Tasks[i]
		if t.Status.IsTerminal() {
			continue
		}
		dependsOnSkipped := false
		for _, dep := range t.DependsOn {
			if dep == skippedID {
				dependsOnSkipped = true
				break
			}
		}
		if !dependsOnSkipped {
			continue
		}
		if !t.Skippable {
			t.Status = models.TaskFailed
			t.LastError = reasonUpstreamSkipped
		}
	}
}

// collectDepOutputs gathers the recorded Output of every dependency task,
// passed to the next agent as accumulated context.
func collectDepOutputs(exe *models.Execution, depIDs []string) map[string]string {
	if len(depIDs) == 0 {
		return nil
	}
	out := make(map[string]string, len(depIDs))
	for _, id := range depIDs {
		if t, ok := exe.TaskByID(id); ok {
			out[id] = t.Output
		}
	}
	return out
}

// recomputeState derives Execution.state from the aggregate task states
// from the task states.
func recomputeState(exe *models.Execution) {
	if exe.State.IsTerminal() {
		return
	}

	allDone := true
	anyFailed := false
	anyBlocked := false
	anyReady := false

	for _, t := range exe.Tasks {
		switch t.Status {
		case models.TaskCompleted, models.TaskSkipped:
		default:
			allDone = false
		}
		if t.Status == models.TaskFailed {
			anyFailed = true
		}
		if t.Status == models.TaskBlocked {
			anyBlocked = true
		}
		if t.Status == models.TaskReady {
			anyReady = true
		}
	}

	switch {
	case allDone:
		exe.State = models.ExecutionCompleted
	case anyFailed && !anyReady:
		exe.State = models.ExecutionFailed
	case anyBlocked && !anyReady:
		exe.State = models.ExecutionBlocked
	default:
		exe.State = models.ExecutionRunning
	}
}

// backoffDelay computes exponential backoff with full jitter capped at
// retryMaxDelay.
func backoffDelay(attempt int) time.Duration {
	ceiling := retryBaseDelay * time.Duration(1<<uint(attempt))
	if ceiling > retryMaxDelay {
		ceiling = retryMaxDelay
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}
