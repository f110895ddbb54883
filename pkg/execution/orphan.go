package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/insightloop/core/pkg/models"
)

// OrphanRecoverer periodically scans the Store for executions stuck in
// running past a heartbeat timeout — crashed before a tick's result was
// ever applied — and resets their in-flight task back to ready so a later
// Run/Tick picks it back up, bounded by the task's own attempt budget.
type OrphanRecoverer struct {
	store    *Store
	machine  *Machine
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewOrphanRecoverer builds a recoverer. timeout is how long an execution
// may sit without a heartbeat update before it's considered orphaned;
// interval is the scan period.
func NewOrphanRecoverer(store *Store, machine *Machine, timeout, interval time.Duration, logger *slog.Logger) *OrphanRecoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrphanRecoverer{store: store, machine: machine, timeout: timeout, interval: interval, logger: logger}
}

// Run blocks, scanning every interval until ctx is cancelled.
func (r *OrphanRecoverer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.scanOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanOnce()
		}
	}
}

func (r *OrphanRecoverer) scanOnce() {
	for _, id := range r.store.All() {
		r.recoverIfOrphaned(id)
	}
}

func (r *OrphanRecoverer) recoverIfOrphaned(executionID string) {
	recovered := false
	found := r.store.WithLock(executionID, func(exe *models.Execution) {
		if exe.State != models.ExecutionRunning {
			return
		}
		if time.Since(exe.UpdatedAt) < r.timeout {
			return
		}
		for i := range exe.Tasks {
			t := &exe.Tasks[i]
			if t.Status != models.TaskRunning {
				continue
			}
			if t.Attempts >= r.machine.maxAttempts {
				t.Status = models.TaskFailed
				t.LastError = "orphaned: heartbeat timeout exceeded retry budget"
				continue
			}
			t.Status = models.TaskReady
			recovered = true
		}
		exe.UpdatedAt = time.Now()
		recomputeState(exe)
	})
	if found && recovered {
		r.logger.Warn("recovered orphaned execution", "execution_id", executionID)
	}
}
