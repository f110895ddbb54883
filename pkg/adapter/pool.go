package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

// PoolConfig holds the tunables named in the configuration knobs table.
type PoolConfig struct {
	MaxTotal          int
	MaxPerDatasource  int
	AcquireTimeout    time.Duration
	HealthInterval    time.Duration
	HealthCheckRetry  int
}

// DefaultPoolConfig returns the documented defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxTotal:         50,
		MaxPerDatasource: 10,
		AcquireTimeout:   5 * time.Second,
		HealthInterval:   30 * time.Second,
		HealthCheckRetry: 3,
	}
}

// pooledConn wraps one live Adapter connection with pool bookkeeping.
type pooledConn struct {
	adapter       Adapter
	lastCheckedAt time.Time
}

// Pool is the process-wide connection manager keyed by datasource id. It is
// internally synchronized: Acquire/Release are O(1) amortised, and FIFO
// waiters block on a per-datasource semaphore channel up to AcquireTimeout.
type Pool struct {
	cfg      PoolConfig
	registry *Registry

	// totalSem enforces the process-wide connection cap: one token per
	// live connection (idle or handed out), acquired before dialing in
	// openNew and returned when a connection is discarded.
	totalSem chan struct{}

	mu    sync.Mutex
	total int
	byDS  map[string]*dsPool

	metrics poolMetrics
}

type dsPool struct {
	sem   chan struct{} // capacity MaxPerDatasource, buffered
	idle  []*pooledConn
	live  int
	ds    *models.Datasource
}

type poolMetrics struct {
	liveConnections *prometheus.GaugeVec
	waitSeconds     prometheus.Histogram
}

// NewPool constructs a Pool backed by the given adapter Registry.
func NewPool(cfg PoolConfig, registry *Registry) *Pool {
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = DefaultPoolConfig().MaxTotal
	}
	if cfg.MaxPerDatasource <= 0 {
		cfg.MaxPerDatasource = DefaultPoolConfig().MaxPerDatasource
	}
	return &Pool{
		cfg:      cfg,
		registry: registry,
		totalSem: make(chan struct{}, cfg.MaxTotal),
		byDS:     make(map[string]*dsPool),
		metrics: poolMetrics{
			liveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "pool_live_connections",
				Help: "Live pooled connections per datasource.",
			}, []string{"datasource_id"}),
			waitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name: "pool_wait_seconds",
				Help: "Time spent waiting to acquire a pooled connection.",
			}),
		},
	}
}

// Collectors exposes the pool's Prometheus collectors for registration by
// the caller's metrics registry.
func (p *Pool) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.metrics.liveConnections, p.metrics.waitSeconds}
}

func (p *Pool) dsPoolFor(ds *models.Datasource) *dsPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	dp, ok := p.byDS[ds.ID]
	if !ok {
		dp = &dsPool{sem: make(chan struct{}, p.cfg.MaxPerDatasource), ds: ds}
		p.byDS[ds.ID] = dp
	}
	return dp
}

// Acquire hands out a healthy Adapter for ds, blocking FIFO up to
// AcquireTimeout before failing with POOL_EXHAUSTED.
func (p *Pool) Acquire(ctx context.Context, ds *models.Datasource) (Adapter, error) {
	dp := p.dsPoolFor(ds)
	start := time.Now()

	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	select {
	case dp.sem <- struct{}{}:
	case <-acquireCtx.Done():
		return nil, errs.New(errs.KindPoolExhausted,
			fmt.Sprintf("pool exhausted for datasource %s after %s", ds.ID, p.cfg.AcquireTimeout), acquireCtx.Err())
	}
	p.metrics.waitSeconds.Observe(time.Since(start).Seconds())

	p.mu.Lock()
	var pc *pooledConn
	if len(dp.idle) > 0 {
		pc = dp.idle[len(dp.idle)-1]
		dp.idle = dp.idle[:len(dp.idle)-1]
	}
	p.mu.Unlock()

	if pc != nil {
		if time.Since(pc.lastCheckedAt) > p.cfg.HealthInterval {
			if err := p.probeWithRetry(ctx, pc.adapter); err != nil {
				// Stale connection: return its capacity but keep the
				// per-datasource slot this Acquire holds for the
				// replacement open.
				p.discard(ctx, dp, pc.adapter)
				return p.openNew(ctx, acquireCtx, dp, ds)
			}
			pc.lastCheckedAt = time.Now()
		}
		return pc.adapter, nil
	}

	return p.openNew(ctx, acquireCtx, dp, ds)
}

// openNew dials a fresh connection for an already-held per-datasource
// slot. The process-wide cap is enforced here: the dial waits for a
// MaxTotal token up to the acquire deadline (admitCtx) before connecting.
func (p *Pool) openNew(ctx, admitCtx context.Context, dp *dsPool, ds *models.Datasource) (Adapter, error) {
	select {
	case p.totalSem <- struct{}{}:
	case <-admitCtx.Done():
		p.releaseSlot(dp, true)
		return nil, errs.New(errs.KindPoolExhausted,
			fmt.Sprintf("pool exhausted: process-wide cap of %d live connections reached", p.cfg.MaxTotal), admitCtx.Err())
	}

	a, err := p.registry.New(ds)
	if err != nil {
		p.releaseTotal()
		p.releaseSlot(dp, true)
		return nil, errs.New(errs.KindDBPermanent, "failed to construct adapter", err)
	}
	if err := a.Connect(ctx); err != nil {
		p.releaseTotal()
		p.releaseSlot(dp, true)
		return nil, classifyConnectError(err)
	}

	p.mu.Lock()
	dp.live++
	p.total++
	p.mu.Unlock()
	p.metrics.liveConnections.WithLabelValues(ds.ID).Inc()

	return a, nil
}

// discard closes a live connection and returns its capacity: the live
// counters, the per-datasource gauge, and the process-wide token. The
// caller's per-datasource semaphore slot is left untouched.
func (p *Pool) discard(ctx context.Context, dp *dsPool, a Adapter) {
	_ = a.Disconnect(ctx)
	p.mu.Lock()
	dp.live--
	p.total--
	p.mu.Unlock()
	p.metrics.liveConnections.WithLabelValues(dp.ds.ID).Dec()
	p.releaseTotal()
}

// releaseTotal returns one process-wide token. Non-blocking so a stray
// double release can never wedge the pool.
func (p *Pool) releaseTotal() {
	select {
	case <-p.totalSem:
	default:
	}
}

// Release returns an Adapter to the idle pool for reuse. Pass healthy=false
// to discard the connection instead (e.g. after a DB_TRANSIENT error).
func (p *Pool) Release(ds *models.Datasource, a Adapter, healthy bool) {
	dp := p.dsPoolFor(ds)
	if !healthy {
		p.discard(context.Background(), dp, a)
		p.releaseSlot(dp, false)
		return
	}

	p.mu.Lock()
	dp.idle = append(dp.idle, &pooledConn{adapter: a, lastCheckedAt: time.Now()})
	p.mu.Unlock()
	p.releaseSlot(dp, false)
}

// releaseSlot frees one semaphore slot. wasOpenAttempt exists purely for
// readability at call sites that failed before ever holding a live
// connection; the semantics are identical either way.
func (p *Pool) releaseSlot(dp *dsPool, wasOpenAttempt bool) {
	select {
	case <-dp.sem:
	default:
	}
}

// probeWithRetry runs Healthy with exponential backoff (100ms, 400ms, 1.6s)
// jittered ±20%.
func (p *Pool) probeWithRetry(ctx context.Context, a Adapter) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 4
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := a.Healthy(ctx)
		if err != nil && attempt >= p.cfg.HealthCheckRetry {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}

func classifyConnectError(err error) error {
	return errs.New(errs.KindDBTransient, "failed to open adapter connection", err)
}
