package store

import (
	"fmt"
	"sync"
	"time"
)

type cacheItem[T any] struct {
	value   T
	expires time.Time
}

// listCache keeps first pages of listings for a short TTL. Every purge bumps
// gen so a page computed before a write is never stored after it.
type listCache[T any] struct {
	ttl   time.Duration
	mu    sync.RWMutex
	gen   uint64
	items map[string]cacheItem[T]
}

func newListCache[T any](ttl time.Duration) *listCache[T] {
	return &listCache[T]{ttl: ttl, items: make(map[string]cacheItem[T])}
}

// get returns a live entry, or the current generation to pass to set.
func (c *listCache[T]) get(key string) (T, uint64, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	gen := c.gen
	c.mu.RUnlock()
	if !ok || time.Now().After(item.expires) {
		var zero T
		return zero, gen, false
	}
	return item.value, gen, true
}

// set stores value unless the cache was purged since generation gen.
func (c *listCache[T]) set(key string, value T, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.items[key] = cacheItem[T]{value: value, expires: time.Now().Add(c.ttl)}
}

func (c *listCache[T]) purge() {
	c.mu.Lock()
	c.gen++
	clear(c.items)
	c.mu.Unlock()
}

func productCacheKey(f ProductFilter, limit int) string {
	return fmt.Sprintf("%s|%s|%s|%s|%t|%d", f.OwnerID, f.CategoryID, f.BrandID, f.Query, f.PublicOnly, limit)
}
