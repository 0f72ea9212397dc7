package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CacheConfig holds configuration for the response cache.
type CacheConfig struct {
	// Enabled controls whether caching is active. When false, no middleware
	// is applied and all requests pass through uncached.
	Enabled bool

	// ServersTTL is the TTL for the read API and markdown mirror responses.
	ServersTTL time.Duration

	// StatusTTL is the TTL for /api/sync-status.
	StatusTTL time.Duration

	// MaxSize is the maximum number of entries per cache instance.
	MaxSize int
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:    true,
		ServersTTL: 60 * time.Second,
		StatusTTL:  10 * time.Second,
		MaxSize:    1000,
	}
}

// CacheConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - REGISTRY_CACHE_ENABLED: "true" or "false" (default: "true")
//   - REGISTRY_CACHE_SERVERS_TTL: seconds (default: 60)
//   - REGISTRY_CACHE_STATUS_TTL: seconds (default: 10)
//   - REGISTRY_CACHE_MAX_SIZE: max entries per cache (default: 1000)
func CacheConfigFromEnv() *CacheConfig {
	cfg := DefaultCacheConfig()

	if v := os.Getenv("REGISTRY_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if d, ok := secondsEnv("REGISTRY_CACHE_SERVERS_TTL"); ok {
		cfg.ServersTTL = d
	}
	if d, ok := secondsEnv("REGISTRY_CACHE_STATUS_TTL"); ok {
		cfg.StatusTTL = d
	}
	if v := os.Getenv("REGISTRY_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	return cfg
}

func secondsEnv(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
