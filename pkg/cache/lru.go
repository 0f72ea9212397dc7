// Package cache provides an in-memory TTL LRU cache for HTTP responses of
// the read endpoints, cleared whenever a sync changes the canonical table.
package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Response is a cached HTTP response body with its content type.
type Response struct {
	Body        []byte
	ContentType string
}

// LRUCache is a thread-safe response cache with a fixed TTL and a maximum
// size. Entries are evicted least-recently-used first once the cache is full.
// Reads do not extend an entry's lifetime.
type LRUCache struct {
	items *ttlcache.Cache[string, Response]
	ttl   time.Duration
}

// NewLRUCache creates a cache holding at most maxSize entries for ttl each.
// maxSize below 1 is raised to 1; a non-positive ttl becomes 60s.
func NewLRUCache(maxSize int, ttl time.Duration) *LRUCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &LRUCache{
		items: ttlcache.New[string, Response](
			ttlcache.WithTTL[string, Response](ttl),
			ttlcache.WithCapacity[string, Response](uint64(maxSize)),
			ttlcache.WithDisableTouchOnHit[string, Response](),
		),
		ttl: ttl,
	}
}

// Get returns the cached response for key. Missing and expired entries
// report false.
func (c *LRUCache) Get(key string) (Response, bool) {
	item := c.items.Get(key)
	if item == nil || item.IsExpired() {
		return Response{}, false
	}
	return item.Value(), true
}

// Set stores resp under key, replacing any previous entry.
func (c *LRUCache) Set(key string, resp Response) {
	c.items.Set(key, resp, ttlcache.DefaultTTL)
}

// Invalidate removes a specific key from the cache.
func (c *LRUCache) Invalidate(key string) {
	c.items.Delete(key)
}

// InvalidateAll removes all entries from the cache.
func (c *LRUCache) InvalidateAll() {
	c.items.DeleteAll()
}

// Size returns the number of entries currently held, expired ones included
// until they are touched.
func (c *LRUCache) Size() int {
	return c.items.Len()
}
