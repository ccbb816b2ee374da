// Package cache implements the TTL-keyed store shared by the safety
// analyzer and smart-money tracker: an arbitrary string-keyed map
// with per-entry expiry and hit/miss counters, using the namespace
// convention "<kind>:<mint>" so multiple analysis kinds can share one
// Cache instance per value type.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"memecore/internal/core"
)

type entry[V any] struct {
	value     V
	expiresAt core.Timestamp
}

// Cache is a generic string-keyed store with per-entry absolute
// expiry. Concurrent access is serialized by a single mutex; the
// contract does not require lock-free access.
type Cache[V any] struct {
	clock core.Clock

	mu    sync.Mutex
	items map[string]entry[V]

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an empty Cache using clock as its time source.
func New[V any](clock core.Clock) *Cache[V] {
	return &Cache[V]{
		clock: clock,
		items: make(map[string]entry[V]),
	}
}

// Set stores value under key with an absolute expiry of now+ttl.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
	}
}

// Get returns the value for key, evicting and reporting a miss if the
// entry has expired. Get is the only source of hit/miss counting.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok || c.expired(e) {
		if ok {
			delete(c.items, key)
		}
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	c.hits.Add(1)
	return e.value, true
}

// Has reports whether key is present and unexpired, without touching
// hit/miss counters.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	return ok && !c.expired(e)
}

// Delete removes key unconditionally.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Cleanup sweeps all expired entries and returns how many were
// evicted.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for k, e := range c.items {
		if c.expired(e) {
			delete(c.items, k)
			evicted++
		}
	}
	return evicted
}

// Stats summarizes cache size and lifetime hit/miss counters.
type Stats struct {
	Size    int
	Hits    int64
	Misses  int64
	HitRate float64
}

// Stats returns a point-in-time snapshot of cache effectiveness.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	size := len(c.items)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return Stats{Size: size, Hits: hits, Misses: misses, HitRate: hitRate}
}

func (c *Cache[V]) expired(e entry[V]) bool {
	return c.clock.Now().After(e.expiresAt)
}
