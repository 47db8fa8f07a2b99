package rpcClient

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a read result stays fresh.
const DefaultCacheTTL = 30 * time.Second

type CacheEntry[T any] struct {
	Data       T
	Timestamp  time.Time
	Generation uint64
}

// Cache is a TTL cache keyed by request signature. Entries are fresh while
// now - Timestamp < ttl.
type Cache[T any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]CacheEntry[T]
}

func NewCache[T any](ttl time.Duration, now func() time.Time) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{ttl: ttl, now: now, entries: make(map[string]CacheEntry[T])}
}

// Get returns the cached value for key if it has not expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(entry.Timestamp) >= c.ttl {
		return zero, false
	}
	return entry.Data, true
}

func (c *Cache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = CacheEntry[T]{Data: data, Timestamp: c.now()}
}

// SetGeneration stores data unless the entry already holds a result from a
// newer request. It reports whether the value was stored.
func (c *Cache[T]) SetGeneration(key string, data T, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok && existing.Generation > generation {
		return false
	}
	c.entries[key] = CacheEntry[T]{Data: data, Timestamp: c.now(), Generation: generation}
	return true
}

func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry[T])
}

func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
