// Package cleanup provides data retention for the event-family tables:
// pruning query history, execution logs, and acknowledged alerts by age,
// and memory events by cardinality cap.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig bounds how long event-family rows are kept.
type RetentionConfig struct {
	QueryHistoryMaxAge time.Duration
	ExecutionLogMaxAge time.Duration
	AlertMaxAge        time.Duration
	MemoryMaxEvents    int
	CleanupInterval    time.Duration
}

// DefaultRetentionConfig keeps a month of history and a week of logs.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		QueryHistoryMaxAge: 30 * 24 * time.Hour,
		ExecutionLogMaxAge: 7 * 24 * time.Hour,
		AlertMaxAge:        30 * 24 * time.Hour,
		MemoryMaxEvents:    50000,
		CleanupInterval:    time.Hour,
	}
}

// agePruner prunes rows older than a cutoff.
type agePruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// capPruner prunes rows beyond a cardinality cap.
type capPruner interface {
	PruneToCap(ctx context.Context, maxEvents int) (int64, error)
}

// Service periodically enforces retention policies. All operations are
// idempotent and safe to run from multiple processes.
type Service struct {
	config RetentionConfig

	queryHistory  agePruner
	executionLogs agePruner
	alerts        agePruner
	memoryEvents  capPruner

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service. Any nil store skips its
// corresponding pruning pass.
func NewService(cfg RetentionConfig, queryHistory, executionLogs, alerts agePruner, memoryEvents capPruner) *Service {
	return &Service{
		config:        cfg,
		queryHistory:  queryHistory,
		executionLogs: executionLogs,
		alerts:        alerts,
		memoryEvents:  memoryEvents,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"query_history_max_age", s.config.QueryHistoryMaxAge,
		"execution_log_max_age", s.config.ExecutionLogMaxAge,
		"alert_max_age", s.config.AlertMaxAge,
		"memory_max_events", s.config.MemoryMaxEvents,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	now := time.Now().UTC()
	s.pruneByAge(ctx, "query_history", s.queryHistory, now.Add(-s.config.QueryHistoryMaxAge))
	s.pruneByAge(ctx, "execution_logs", s.executionLogs, now.Add(-s.config.ExecutionLogMaxAge))
	s.pruneByAge(ctx, "alerts", s.alerts, now.Add(-s.config.AlertMaxAge))
	s.pruneByCap(ctx)
}

func (s *Service) pruneByAge(ctx context.Context, table string, store agePruner, cutoff time.Time) {
	if store == nil {
		return
	}
	count, err := store.PruneBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: prune failed", "table", table, "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: pruned old rows", "table", table, "count", count)
	}
}

func (s *Service) pruneByCap(ctx context.Context) {
	if s.memoryEvents == nil {
		return
	}
	count, err := s.memoryEvents.PruneToCap(ctx, s.config.MemoryMaxEvents)
	if err != nil {
		slog.Error("Retention: memory event cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: pruned memory events", "count", count)
	}
}
