// Package cache implements a bounded, TTL-expiring cache keyed by
// string, used by the broker as its idempotency cache for ActionCall
// results. Eviction is iterate-and-evict-oldest rather than a proper
// LRU: correct at the broker's scale, not meant to scale past it.
package cache

import (
	"sync"
	"time"
)

// item pairs a cached value with the time it was inserted, so prune
// can find the oldest entry when the cache must shrink.
type item struct {
	value    any
	insertMs int64
}

// Cache is a bounded map of string keys to arbitrary values, with
// optional TTL expiry and a hard cap on entry count.
type Cache struct {
	mu      sync.Mutex
	items   map[string]*item
	ttl     time.Duration
	maxSize int
}

// Options configures a Cache. A zero TTL means entries never expire
// on their own; they're still subject to MaxSize eviction.
type Options struct {
	TTL     time.Duration
	MaxSize int
}

// New constructs a Cache. Negative TTL and MaxSize are normalized to
// zero.
func New(opts Options) *Cache {
	if opts.TTL < 0 {
		opts.TTL = 0
	}
	if opts.MaxSize < 0 {
		opts.MaxSize = 0
	}
	return &Cache{
		items:   make(map[string]*item),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
	}
}

// Put stores value under key, evicting the oldest entry if the cache
// is now over its MaxSize bound. A zero-length key is a no-op.
func (c *Cache) Put(key string, value any) {
	if key == "" {
		return
	}
	c.PutAt(key, value, time.Now())
}

// PutAt is Put with an explicit insertion time, for deterministic
// tests.
func (c *Cache) PutAt(key string, value any, now time.Time) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &item{value: value, insertMs: now.UnixMilli()}
	c.prune(now.UnixMilli())
}

// Get returns the value stored under key, if present and not
// expired.
func (c *Cache) Get(key string) (any, bool) {
	return c.GetAt(key, time.Now())
}

// GetAt is Get with an explicit comparison time.
func (c *Cache) GetAt(key string, now time.Time) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.expired(it, now.UnixMilli()) {
		delete(c.items, key)
		return nil, false
	}
	return it.value, true
}

func (c *Cache) expired(it *item, nowMs int64) bool {
	return c.ttl > 0 && nowMs-it.insertMs >= c.ttl.Milliseconds()
}

// Remove deletes key from the cache, if present.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*item)
}

// Size returns the current entry count, including any not-yet-pruned
// expired entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// prune removes expired entries, then evicts the oldest entries
// while the cache exceeds maxSize, scanning the whole map each time
// it must evict.
func (c *Cache) prune(nowMs int64) {
	if c.ttl > 0 {
		for k, it := range c.items {
			if c.expired(it, nowMs) {
				delete(c.items, k)
			}
		}
	}
	for c.maxSize > 0 && len(c.items) > c.maxSize {
		var oldestKey string
		var oldestMs int64 = int64(^uint64(0) >> 1)
		for k, it := range c.items {
			if it.insertMs < oldestMs {
				oldestMs = it.insertMs
				oldestKey = k
			}
		}
		if oldestKey == "" {
			return
		}
		delete(c.items, oldestKey)
	}
	if c.maxSize == 0 {
		for k := range c.items {
			delete(c.items, k)
		}
	}
}
