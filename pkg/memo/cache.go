// Package memo implements the memoization cache and short-term memory
// store: a singleflight-deduplicated keyed result cache, and a
// bounded ring buffer of MemoryEvent records for cross-call context.
package memo

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/insightloop/core/pkg/models"
)

// Cache memoizes values by fingerprint with a TTL, guaranteeing at most
// one concurrent producer per key: concurrent Get-or-compute calls for
// the same fingerprint share a single in-flight computation.
type Cache struct {
	mu    sync.RWMutex
	store map[string]models.CacheEntry
	sf    singleflight.Group
}

func NewCache() *Cache {
	return &Cache{store: make(map[string]models.CacheEntry)}
}

// Get returns the cached value for fingerprint if present and unexpired.
func (c *Cache) Get(fingerprint string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.store[fingerprint]
	if !ok || entry.Expired(time.Now()) {
		return nil, false
	}
	return entry.Value, true
}

// Put stores value under fingerprint with the given ttl (0 = no expiry).
func (c *Cache) Put(fingerprint string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[fingerprint] = models.CacheEntry{
		Fingerprint: fingerprint,
		Value:       value,
		CreatedAt:   time.Now(),
		TTL:         ttl,
	}
}

// Invalidate removes fingerprint from the cache unconditionally.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, fingerprint)
}

// GetOrCompute returns the cached value for fingerprint, or calls fn to
// produce one, caching the result for ttl. Concurrent callers for the same
// fingerprint block on the same in-flight fn call rather than each calling
// fn independently.
func (c *Cache) GetOrCompute(fingerprint string, ttl time.Duration, fn func() (any, error)) (any, error) {
	if v, ok := c.Get(fingerprint); ok {
		return v, nil
	}

	v, err, _ := c.sf.Do(fingerprint, func() (any, error) {
		if v, ok := c.Get(fingerprint); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.Put(fingerprint, v, ttl)
		return v, nil
	})
	return v, err
}
