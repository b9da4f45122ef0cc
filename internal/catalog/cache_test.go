package catalog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCache_GetSet(t *testing.T) {
	cache := NewMemoryCache(10, 0)

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	cache.Set("k", "v")
	got, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	cache.Evict("k")
	_, ok = cache.Get("k")
	assert.False(t, ok)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	cache := NewMemoryCache(10, 50*time.Millisecond).(*memoryCache)

	now := time.Now()
	cache.now = func() time.Time { return now }
	cache.Set("k", "v")

	_, ok := cache.Get("k")
	assert.True(t, ok)

	cache.now = func() time.Time { return now.Add(time.Minute) }
	_, ok = cache.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_EvictsOldestAtCapacity(t *testing.T) {
	cache := NewMemoryCache(3, 0).(*memoryCache)

	base := time.Now()
	for i := 0; i < 3; i++ {
		tick := base.Add(time.Duration(i) * time.Second)
		cache.now = func() time.Time { return tick }
		cache.Set(fmt.Sprintf("k%d", i), i)
	}

	cache.now = func() time.Time { return base.Add(time.Minute) }
	cache.Set("k3", 3)

	assert.Equal(t, 3, cache.Len())
	_, ok := cache.Get("k0")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = cache.Get("k3")
	assert.True(t, ok)
}

func TestMemoryCache_OverwriteDoesNotEvict(t *testing.T) {
	cache := NewMemoryCache(2, 0)
	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("a", 3)

	assert.Equal(t, 2, cache.Len())
	got, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, got)
	_, ok = cache.Get("b")
	assert.True(t, ok)
}
