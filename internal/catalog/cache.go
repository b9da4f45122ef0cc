package catalog

import (
	"sync"
	"time"
)

// Cache is the injected memoization abstraction. Implementations may be
// lossy; a miss only costs a duplicate network call.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	Evict(key string)
	Len() int
}

type cacheEntry struct {
	value    interface{}
	storedAt time.Time
}

// memoryCache is a bounded in-process cache with optional TTL. When full it
// evicts the oldest entry. Reads and writes race benignly across requests:
// the catalog is immutable on a session's timescale, so a stale or lost
// entry never yields incorrect data.
type memoryCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	maxEntries int           // 0 = unbounded
	ttl        time.Duration // 0 = no expiry
	now        func() time.Time
}

// NewMemoryCache returns a bounded TTL cache. maxEntries 0 means unbounded,
// ttl 0 means entries never expire.
func NewMemoryCache(maxEntries int, ttl time.Duration) Cache {
	return &memoryCache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (c *memoryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(entry.storedAt) > c.ttl {
		c.Evict(key)
		return nil, false
	}
	return entry.value, true
}

func (c *memoryCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictOldestLocked()
		}
	}

	c.entries[key] = cacheEntry{value: value, storedAt: c.now()}
}

func (c *memoryCache) Evict(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *memoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memoryCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.storedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// NopCache never stores anything. Tests use it to force every lookup to
// hit the (mocked) network.
type NopCache struct{}

func (NopCache) Get(string) (interface{}, bool) { return nil, false }
func (NopCache) Set(string, interface{})        {}
func (NopCache) Evict(string)                   {}
func (NopCache) Len() int                       { return 0 }
