// Package cache provides the integrated search engine's (C7) bounded
// result cache: an LRU map keyed by query shape (excluding pagination) so
// successive pages of the same query share one cached full result set.
// Backed by hashicorp/golang-lru (present in the example pack via the
// Jericoz-JC-flowState-CLI go.mod) for O(1) amortized eviction, rather than
// a hand-rolled map+list — the teacher has no result cache to generalize,
// so this concern is adopted from the wider pack per the ambient-stack
// requirement.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is one cached value plus the time it was stored, used to enforce
// a TTL on top of LRU's pure size-based eviction.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
}

// ResultCache is a generic, TTL-aware, size-bounded LRU cache.
type ResultCache[K comparable, V any] struct {
	mu  sync.Mutex
	lru *lru.Cache[K, Entry[V]]
	ttl time.Duration
}

// New creates a ResultCache capped at size entries, each valid for ttl.
// A non-positive size is raised to 1 (the cache then holds a single
// entry), and a non-positive ttl disables expiry (entries live until
// evicted by LRU pressure).
func New[K comparable, V any](size int, ttl time.Duration) *ResultCache[K, V] {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[K, Entry[V]](size)
	return &ResultCache[K, V]{lru: c, ttl: ttl}
}

// Get returns the cached value for key if present and not expired.
func (c *ResultCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && time.Since(entry.StoredAt) > c.ttl {
		c.lru.Remove(key)
		return zero, false
	}
	return entry.Value, true
}

// Set stores value under key, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *ResultCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, Entry[V]{Value: value, StoredAt: time.Now()})
}

// Invalidate removes a single key. The engine does not call it (nor
// Purge): Update and Delete leave cached result sets in place until they
// expire or are evicted.
func (c *ResultCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Purge clears the entire cache.
func (c *ResultCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len reports the current number of cached entries.
func (c *ResultCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
