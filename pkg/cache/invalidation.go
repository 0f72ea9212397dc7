package cache

import "net/http"

// CacheManager holds the response caches of the read surfaces. Server
// listings and the sync status page age differently, so each has its own
// instance and TTL.
type CacheManager struct {
	servers *LRUCache
	status  *LRUCache
}

// NewCacheManager creates a CacheManager from the given configuration.
// If cfg is nil or disabled, it returns nil.
func NewCacheManager(cfg *CacheConfig) *CacheManager {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &CacheManager{
		servers: NewLRUCache(cfg.MaxSize, cfg.ServersTTL),
		status:  NewLRUCache(cfg.MaxSize, cfg.StatusTTL),
	}
}

// InvalidateAll clears every cache. It is called after every sync run, so a
// failed run shows up on the status page right away.
func (cm *CacheManager) InvalidateAll() {
	if cm == nil {
		return
	}
	cm.servers.InvalidateAll()
	cm.status.InvalidateAll()
}

// ServersMiddleware caches the server read API and the markdown mirror.
// A nil manager yields a pass-through middleware.
func (cm *CacheManager) ServersMiddleware() func(http.Handler) http.Handler {
	if cm == nil {
		return passThrough
	}
	return CacheMiddleware(cm.servers)
}

// StatusMiddleware caches /api/sync-status.
// A nil manager yields a pass-through middleware.
func (cm *CacheManager) StatusMiddleware() func(http.Handler) http.Handler {
	if cm == nil {
		return passThrough
	}
	return CacheMiddleware(cm.status)
}

func passThrough(next http.Handler) http.Handler { return next }
