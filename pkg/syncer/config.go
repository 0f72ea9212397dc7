package syncer

import (
	"os"
	"strconv"
	"time"

	"github.com/remote-mcp-servers/registry-sync/pkg/identity"
)

// Config controls sync runs and the upstream clients.
type Config struct {
	Namespace         string        // UUID namespace for id derivation.
	IDScheme          string        // identity.Scheme name. Default "uuidv5".
	RunTimeout        time.Duration // Wall-clock bound of one run. Default 5m.
	DetailConcurrency int           // Parallel detail fetches. Default 1 (sequential).
	RetireAfter       int           // Missed syncs before a server is deprecated. 0 disables. Default 3.

	BlockchainBaseURL      string
	BlockchainRPS          float64 // Gateway requests per second. 0 disables the limit. Default 5.
	RegistryCanister       string
	OrchestratorCanister   string
	UsageTrackerCanister   string
	OfficialBaseURL        string
	OfficialPageSize       int // Default 100.
	UpstreamRequestTimeout time.Duration
}

// DefaultConfig returns the default sync configuration.
func DefaultConfig() *Config {
	return &Config{
		Namespace:              identity.DefaultNamespace,
		IDScheme:               string(identity.SchemeUUIDv5),
		RunTimeout:             5 * time.Minute,
		DetailConcurrency:      1,
		RetireAfter:            3,
		BlockchainRPS:          5,
		OfficialPageSize:       100,
		UpstreamRequestTimeout: 30 * time.Second,
	}
}

// ConfigFromEnv loads config from environment variables.
// SYNC_NAMESPACE, SYNC_ID_SCHEME, SYNC_RUN_TIMEOUT, SYNC_DETAIL_CONCURRENCY, SYNC_RETIRE_AFTER,
// BLOCKCHAIN_BASE_URL, BLOCKCHAIN_RPS, BLOCKCHAIN_REGISTRY_CANISTER,
// BLOCKCHAIN_ORCHESTRATOR_CANISTER, BLOCKCHAIN_USAGE_TRACKER_CANISTER,
// OFFICIAL_REGISTRY_URL, OFFICIAL_REGISTRY_PAGE_SIZE, SYNC_UPSTREAM_TIMEOUT
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("SYNC_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	if v := os.Getenv("SYNC_ID_SCHEME"); v != "" {
		cfg.IDScheme = v
	}

	if v := os.Getenv("SYNC_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RunTimeout = d
		}
	}

	if v := os.Getenv("SYNC_DETAIL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DetailConcurrency = n
		}
	}

	if v := os.Getenv("SYNC_RETIRE_AFTER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RetireAfter = n
		}
	}

	cfg.BlockchainBaseURL = os.Getenv("BLOCKCHAIN_BASE_URL")
	if v := os.Getenv("BLOCKCHAIN_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.BlockchainRPS = f
		}
	}
	cfg.RegistryCanister = os.Getenv("BLOCKCHAIN_REGISTRY_CANISTER")
	cfg.OrchestratorCanister = os.Getenv("BLOCKCHAIN_ORCHESTRATOR_CANISTER")
	cfg.UsageTrackerCanister = os.Getenv("BLOCKCHAIN_USAGE_TRACKER_CANISTER")

	cfg.OfficialBaseURL = os.Getenv("OFFICIAL_REGISTRY_URL")
	if v := os.Getenv("OFFICIAL_REGISTRY_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			cfg.OfficialPageSize = n
		}
	}

	if v := os.Getenv("SYNC_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.UpstreamRequestTimeout = d
		}
	}

	return cfg
}
