package server

import (
	"os"
	"strings"
	"time"
)

// Config controls the HTTP surface.
type Config struct {
	ListenAddr      string
	TriggerInterval time.Duration // Minimum time between direct triggers of one source. 0 disables.
	SiteURL         string        // Public site used for links in the markdown mirror.
	AllowedOrigins  []string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":8080",
		TriggerInterval: 30 * time.Second,
		SiteURL:         "https://remote-mcp-servers.com",
		AllowedOrigins:  []string{"https://*", "http://*"},
	}
}

// ConfigFromEnv loads config from environment variables.
// REGISTRY_LISTEN_ADDR, REGISTRY_TRIGGER_MIN_INTERVAL, REGISTRY_SITE_URL,
// REGISTRY_CORS_ORIGINS (comma separated)
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("REGISTRY_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	if v := os.Getenv("REGISTRY_TRIGGER_MIN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.TriggerInterval = d
		}
	}

	if v := os.Getenv("REGISTRY_SITE_URL"); v != "" {
		cfg.SiteURL = strings.TrimSuffix(v, "/")
	}

	if v := os.Getenv("REGISTRY_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}

	return cfg
}
