package execution

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/insightloop/core/pkg/models"
)

// AgentInvoker decouples the runner from the concrete agent runtimes.
// Invoke runs the named agent against one task, given the accumulated
// output of its completed dependencies as context. An invoker that needs
// to park a task awaiting an external signal (e.g. a strategy email
// approval) returns an *errs.Error of Kind EXECUTION_BLOCKED rather than
// completing normally; applyResult maps that to TaskBlocked.
type AgentInvoker interface {
	Invoke(ctx context.Context, agentName string, task models.Task, depOutputs map[string]string) (output string, err error)
}

// TaskResult is delivered on TaskRunner's results channel once a dispatched
// task's agent invocation returns.
type TaskResult struct {
	TaskID string
	Output string
	Err    error
}

// TaskRunner dispatches ready tasks concurrently, one goroutine per task,
// a buffered results channel,
// an atomic pending counter, and a per-task cancellation registry guarded
// by a mutex so Cancel/CancelAll never race a task's own completion.
type TaskRunner struct {
	invoker AgentInvoker

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	pending   atomic.Int32
	resultsCh chan TaskResult
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewTaskRunner builds a TaskRunner. capacity bounds the results channel so
// a burst of simultaneously-dispatched tasks never blocks on delivery.
func NewTaskRunner(invoker AgentInvoker, capacity int) *TaskRunner {
	if capacity < 1 {
		capacity = 1
	}
	return &TaskRunner{
		invoker:   invoker,
		cancels:   make(map[string]context.CancelFunc),
		resultsCh: make(chan TaskResult, capacity),
		closeCh:   make(chan struct{}),
	}
}

// Dispatch launches one goroutine invoking agentName for task, reserving a
// cancellation slot before the goroutine starts so Cancel/CancelAll issued
// immediately after Dispatch returns can never race a not-yet-registered
// task (the same TOCTOU-safe ordering as SubAgentRunner.Dispatch).
func (r *TaskRunner) Dispatch(ctx context.Context, agentName string, task models.Task, depOutputs map[string]string) {
	taskCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.cancels[task.TaskID] = cancel
	r.mu.Unlock()

	r.pending.Add(1)
	go r.run(taskCtx, cancel, agentName, task, depOutputs)
}

func (r *TaskRunner) run(ctx context.Context, cancel context.CancelFunc, agentName string, task models.Task, depOutputs map[string]string) {
	defer r.pending.Add(-1)
	defer cancel()

	out, err := r.invoker.Invoke(ctx, agentName, task, depOutputs)

	r.mu.Lock()
	delete(r.cancels, task.TaskID)
	r.mu.Unlock()

	result := TaskResult{TaskID: task.TaskID, Output: out, Err: err}
	select {
	case r.resultsCh <- result:
	case <-r.closeCh:
	}
}

// Next blocks until a TaskResult is available, ctx is cancelled, or the
// runner is closed.
func (r *TaskRunner) Next(ctx context.Context) (TaskResult, bool) {
	select {
	case res := <-r.resultsCh:
		return res, true
	case <-ctx.Done():
		return TaskResult{}, false
	case <-r.closeCh:
		return TaskResult{}, false
	}
}

// TryNext returns the next available TaskResult without blocking.
func (r *TaskRunner) TryNext() (TaskResult, bool) {
	select {
	case res := <-r.resultsCh:
		return res, true
	default:
		return TaskResult{}, false
	}
}

// Pending reports how many dispatched tasks have not yet produced a result.
func (r *TaskRunner) Pending() int {
	return int(r.pending.Load())
}

// Cancel cancels one in-flight task by id, if it is still running.
func (r *TaskRunner) Cancel(taskID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[taskID]
	delete(r.cancels, taskID)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelAll cancels every in-flight task, used when an Execution transitions
// to cancelled.
func (r *TaskRunner) CancelAll() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.cancels))
	for id, cancel := range r.cancels {
		cancels = append(cancels, cancel)
		delete(r.cancels, id)
	}
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Close unblocks any goroutines waiting to deliver a result once the runner
// is no longer being drained, so Dispatch's result send never leaks.
func (r *TaskRunner) Close() {
	r.closeOnce.Do(func() { close(r.closeCh) })
}
