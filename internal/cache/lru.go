// Package cache holds the in-process caches used when no Redis is
// configured.
package cache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUWithTTL is a size-bounded LRU whose entries also expire. It is safe for
// concurrent use.
type LRUWithTTL[K comparable, V any] struct {
	cache   *lru.Cache[K, ttlEntry[V]]
	ttl     time.Duration
	now     func() time.Time
	hits    atomic.Uint64
	misses  atomic.Uint64
	evicted atomic.Uint64
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time // zero means never
}

// NewLRUWithTTL creates a cache of at most size entries. A ttl of 0 disables
// expiry.
func NewLRUWithTTL[K comparable, V any](size int, ttl time.Duration) (*LRUWithTTL[K, V], error) {
	c := &LRUWithTTL[K, V]{ttl: ttl, now: time.Now}
	inner, err := lru.NewWithEvict[K, ttlEntry[V]](size, func(K, ttlEntry[V]) {
		c.evicted.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.cache = inner
	return c, nil
}

// Get returns the value for key unless it is absent or expired.
func (c *LRUWithTTL[K, V]) Get(key K) (V, bool) {
	entry, ok := c.cache.Get(key)
	if ok && !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.cache.Remove(key)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return entry.value, true
}

// Set stores value under the cache-wide ttl.
func (c *LRUWithTTL[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value with its own ttl; 0 never expires.
func (c *LRUWithTTL[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	entry := ttlEntry[V]{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.cache.Add(key, entry)
}

// Delete removes a key from the cache.
func (c *LRUWithTTL[K, V]) Delete(key K) {
	c.cache.Remove(key)
}

// Len returns the number of entries, expired ones included.
func (c *LRUWithTTL[K, V]) Len() int {
	return c.cache.Len()
}

// Clear removes all entries from the cache.
func (c *LRUWithTTL[K, V]) Clear() {
	c.cache.Purge()
}

// Stats are cache counters for observability.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Evicted uint64  `json:"evicted"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns current cache statistics.
func (c *LRUWithTTL[K, V]) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	stats := Stats{
		Hits:    hits,
		Misses:  misses,
		Evicted: c.evicted.Load(),
		Size:    c.cache.Len(),
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}
