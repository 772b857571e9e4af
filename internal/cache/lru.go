// Package cache provides caching implementations for TruthLens.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/truthlens/truthlens/internal/metrics"
)

var errEmptyKey = errors.New("cache key is required")

// LRUCache is an in-process, size-bounded cache with per-entry expiry. It is
// the cache of a single instance and the L1 of TwoPhaseCache.
//
// Values are copied in and out, so callers may reuse their buffers.
type LRUCache struct {
	mu         sync.Mutex
	capacity   int
	defaultTTL time.Duration
	entries    map[string]*list.Element
	recency    *list.List // front is most recently used
	now        func() time.Time
}

type lruEntry struct {
	key     string
	value   []byte
	expires time.Time
}

// NewLRUCache creates a cache holding at most capacity entries. A ttl of
// zero or less passed to Set falls back to defaultTTL.
func NewLRUCache(capacity int, defaultTTL time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &LRUCache{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		entries:    make(map[string]*list.Element, capacity),
		recency:    list.New(),
		now:        time.Now,
	}
}

// Get returns a copy of the cached value, or nil when the key is absent or
// expired.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if ok && c.expired(el) {
		c.unlink(el)
		ok = false
	}
	if !ok {
		metrics.ObserveCache("memory", "miss")
		return nil, nil
	}

	c.recency.MoveToFront(el)
	metrics.ObserveCache("memory", "hit")
	return clone(el.Value.(*lruEntry).value), nil
}

// Set stores a copy of value. When the cache is full, expired entries go
// first, then the least recently used.
func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	metrics.ObserveCache("memory", "set")
	expires := c.now().Add(ttl)

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*lruEntry)
		e.value, e.expires = clone(value), expires
		c.recency.MoveToFront(el)
		return nil
	}

	if len(c.entries) >= c.capacity {
		c.sweep()
	}
	for len(c.entries) >= c.capacity {
		c.unlink(c.recency.Back())
	}

	c.entries[key] = c.recency.PushFront(&lruEntry{key: key, value: clone(value), expires: expires})
	return nil
}

// Delete removes key if present.
func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.unlink(el)
		metrics.ObserveCache("memory", "del")
	}
	return nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.recency.Init()
	return nil
}

// Stats returns the number of live entries and the capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.capacity
}

// sweep drops every expired entry. Called with mu held.
func (c *LRUCache) sweep() {
	for el := c.recency.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el) {
			c.unlink(el)
		}
		el = prev
	}
}

func (c *LRUCache) expired(el *list.Element) bool {
	return !c.now().Before(el.Value.(*lruEntry).expires)
}

func (c *LRUCache) unlink(el *list.Element) {
	c.recency.Remove(el)
	delete(c.entries, el.Value.(*lruEntry).key)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
