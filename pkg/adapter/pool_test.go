package adapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

type fakeAdapter struct {
	connected int32
	unhealthy int32
}

func (f *fakeAdapter) Connect(ctx context.Context) error    { atomic.AddInt32(&f.connected, 1); return nil }
func (f *fakeAdapter) Disconnect(ctx context.Context) error { return nil }
func (f *fakeAdapter) Healthy(ctx context.Context) error {
	if atomic.LoadInt32(&f.unhealthy) != 0 {
		return errors.New("probe failed")
	}
	return nil
}
func (f *fakeAdapter) Dialect() string                      { return "fake" }
func (f *fakeAdapter) Execute(ctx context.Context, sql string, opts ExecuteOptions) (*ExecuteResult, error) {
	return &ExecuteResult{}, nil
}
func (f *fakeAdapter) Introspect(ctx context.Context) (*models.SchemaDescriptor, error) {
	return &models.SchemaDescriptor{}, nil
}

func newTestRegistry() *Registry {
	r := &Registry{factories: map[models.DatasourceType]Factory{}}
	r.Register("fake", func(conn map[string]string) (Adapter, error) {
		return &fakeAdapter{}, nil
	})
	return r
}

func TestPool_AcquireRelease(t *testing.T) {
	pool := NewPool(PoolConfig{MaxTotal: 5, MaxPerDatasource: 2, AcquireTimeout: 100 * time.Millisecond, HealthInterval: time.Minute}, newTestRegistry())
	ds := &models.Datasource{ID: "ds1", Type: "fake"}

	a, err := pool.Acquire(context.Background(), ds)
	require.NoError(t, err)
	require.NotNil(t, a)
	pool.Release(ds, a, true)
}

// TestPool_Exhaustion reproduces seed scenario 4: 11 concurrent acquires on
// a datasource with MaxPerDatasource=10 yield 10 successes and 1
// POOL_EXHAUSTED.
func TestPool_Exhaustion(t *testing.T) {
	pool := NewPool(PoolConfig{MaxTotal: 50, MaxPerDatasource: 10, AcquireTimeout: 100 * time.Millisecond, HealthInterval: time.Minute}, newTestRegistry())
	ds := &models.Datasource{ID: "ds1", Type: "fake"}

	var wg sync.WaitGroup
	var successes, failures int32
	held := make([]Adapter, 0, 10)
	var mu sync.Mutex

	for i := 0; i < 11; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := pool.Acquire(context.Background(), ds)
			if err != nil {
				atomic.AddInt32(&failures, 1)
				assert.True(t, errs.As(err, errs.KindPoolExhausted))
				return
			}
			atomic.AddInt32(&successes, 1)
			mu.Lock()
			held = append(held, a)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, successes)
	assert.EqualValues(t, 1, failures)

	for _, a := range held {
		pool.Release(ds, a, true)
	}
}

// TestPool_TotalCap verifies the process-wide ceiling holds across
// datasources: with MaxTotal=3 and two datasources each allowed 2, the
// fourth concurrent connection is refused even though its datasource
// still has a free slot.
func TestPool_TotalCap(t *testing.T) {
	pool := NewPool(PoolConfig{MaxTotal: 3, MaxPerDatasource: 2, AcquireTimeout: 100 * time.Millisecond, HealthInterval: time.Minute}, newTestRegistry())
	ds1 := &models.Datasource{ID: "ds1", Type: "fake"}
	ds2 := &models.Datasource{ID: "ds2", Type: "fake"}

	a1, err := pool.Acquire(context.Background(), ds1)
	require.NoError(t, err)
	a2, err := pool.Acquire(context.Background(), ds1)
	require.NoError(t, err)
	a3, err := pool.Acquire(context.Background(), ds2)
	require.NoError(t, err)

	_, err = pool.Acquire(context.Background(), ds2)
	require.Error(t, err)
	assert.True(t, errs.As(err, errs.KindPoolExhausted))

	pool.mu.Lock()
	assert.Equal(t, 3, pool.total)
	pool.mu.Unlock()

	// Discarding a connection returns its process-wide token, so the
	// blocked datasource can now open one.
	pool.Release(ds1, a2, false)
	a4, err := pool.Acquire(context.Background(), ds2)
	require.NoError(t, err)

	pool.mu.Lock()
	assert.Equal(t, 3, pool.total)
	pool.mu.Unlock()

	pool.Release(ds1, a1, true)
	pool.Release(ds2, a3, true)
	pool.Release(ds2, a4, true)
}

// TestPool_StaleReplacementKeepsCaps exercises the health-probe
// replacement path: discarding a stale idle connection must not leak its
// per-datasource slot or over-count live connections.
func TestPool_StaleReplacementKeepsCaps(t *testing.T) {
	fake := &fakeAdapter{}
	r := &Registry{factories: map[models.DatasourceType]Factory{}}
	r.Register("fake", func(conn map[string]string) (Adapter, error) {
		return fake, nil
	})
	pool := NewPool(PoolConfig{MaxTotal: 5, MaxPerDatasource: 1, AcquireTimeout: 100 * time.Millisecond, HealthInterval: time.Millisecond, HealthCheckRetry: 1}, r)
	ds := &models.Datasource{ID: "ds1", Type: "fake"}

	a1, err := pool.Acquire(context.Background(), ds)
	require.NoError(t, err)
	pool.Release(ds, a1, true)

	// Let the idle connection go stale, then make its probe fail so the
	// next Acquire replaces it.
	time.Sleep(5 * time.Millisecond)
	atomic.StoreInt32(&fake.unhealthy, 1)

	a2, err := pool.Acquire(context.Background(), ds)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.connected))

	pool.mu.Lock()
	assert.Equal(t, 1, pool.total)
	assert.Equal(t, 1, pool.byDS[ds.ID].live)
	pool.mu.Unlock()

	// The replacement still holds the single per-datasource slot: a
	// concurrent acquire must be refused, not handed an 11th-style extra.
	_, err = pool.Acquire(context.Background(), ds)
	require.Error(t, err)
	assert.True(t, errs.As(err, errs.KindPoolExhausted))

	pool.Release(ds, a2, false)
	pool.mu.Lock()
	assert.Equal(t, 0, pool.total)
	assert.Equal(t, 0, pool.byDS[ds.ID].live)
	pool.mu.Unlock()
}
