package cleanup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeAgePruner struct {
	calls  int32
	cutoff atomic.Value
}

func (f *fakeAgePruner) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	f.cutoff.Store(cutoff)
	return 3, nil
}

type fakeCapPruner struct {
	calls int32
	cap   int32
}

func (f *fakeCapPruner) PruneToCap(_ context.Context, maxEvents int) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	atomic.StoreInt32(&f.cap, int32(maxEvents))
	return 1, nil
}

func TestService_RunsAllPrunersOnStart(t *testing.T) {
	queries := &fakeAgePruner{}
	logs := &fakeAgePruner{}
	alerts := &fakeAgePruner{}
	memory := &fakeCapPruner{}

	cfg := DefaultRetentionConfig()
	cfg.CleanupInterval = time.Hour
	svc := NewService(cfg, queries, logs, alerts, memory)

	svc.Start(context.Background())
	svc.Stop()

	assert.EqualValues(t, 1, atomic.LoadInt32(&queries.calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&logs.calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&alerts.calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&memory.calls))
	assert.EqualValues(t, cfg.MemoryMaxEvents, atomic.LoadInt32(&memory.cap))

	// The query-history cutoff sits roughly max-age in the past.
	cutoff := queries.cutoff.Load().(time.Time)
	assert.WithinDuration(t, time.Now().UTC().Add(-cfg.QueryHistoryMaxAge), cutoff, time.Minute)
}

func TestService_NilStoresAreSkipped(t *testing.T) {
	svc := NewService(DefaultRetentionConfig(), nil, nil, nil, nil)
	svc.Start(context.Background())
	svc.Stop()
	// Double Stop is safe.
	svc.Stop()
}
