// Package ha lets several replicas of the registry server share one
// database: schema migration is serialized behind a lock, and the scheduler
// and job workers run only on the replica holding a Kubernetes Lease.
package ha

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// HAConfig holds configuration for high-availability features.
type HAConfig struct {
	// LeaderElectionEnabled turns on Lease-based leader election. When
	// false, every replica acts as leader, which suits a single replica.
	LeaderElectionEnabled bool

	// LeaseName and LeaseNamespace locate the Lease resource.
	LeaseName      string
	LeaseNamespace string

	// LeaseDuration is how long non-leaders wait before trying to take
	// over the lease.
	LeaseDuration time.Duration

	// RenewDeadline is how long the leader keeps retrying a renewal before
	// giving up leadership.
	RenewDeadline time.Duration

	// RetryPeriod is the pause between election attempts.
	RetryPeriod time.Duration

	// MigrationLockEnabled serializes AutoMigrate across replicas.
	MigrationLockEnabled bool

	// Identity names this replica in the Lease and the migration lock row.
	Identity string
}

// DefaultHAConfig returns an HAConfig with sensible defaults.
func DefaultHAConfig() *HAConfig {
	ns := os.Getenv("POD_NAMESPACE")
	if ns == "" {
		ns = "registry-sync"
	}
	return &HAConfig{
		LeaderElectionEnabled: false,
		LeaseName:             "registry-sync-leader",
		LeaseNamespace:        ns,
		LeaseDuration:         15 * time.Second,
		RenewDeadline:         10 * time.Second,
		RetryPeriod:           2 * time.Second,
		MigrationLockEnabled:  true,
		Identity:              defaultIdentity(),
	}
}

// HAConfigFromEnv reads HA configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - REGISTRY_LEADER_ELECTION_ENABLED: "true" or "false" (default: "false")
//   - REGISTRY_LEADER_LEASE_NAME: Lease resource name (default: "registry-sync-leader")
//   - REGISTRY_LEADER_LEASE_NAMESPACE: Lease namespace (default from POD_NAMESPACE or "registry-sync")
//   - REGISTRY_LEADER_LEASE_DURATION: seconds (default: 15)
//   - REGISTRY_LEADER_RENEW_DEADLINE: seconds (default: 10)
//   - REGISTRY_LEADER_RETRY_PERIOD: seconds (default: 2)
//   - REGISTRY_MIGRATION_LOCK_ENABLED: "true" or "false" (default: "true")
//   - POD_NAME: replica identity
func HAConfigFromEnv() *HAConfig {
	cfg := DefaultHAConfig()

	if v := os.Getenv("REGISTRY_LEADER_ELECTION_ENABLED"); v != "" {
		cfg.LeaderElectionEnabled = parseBool(v)
	}
	if v := os.Getenv("REGISTRY_LEADER_LEASE_NAME"); v != "" {
		cfg.LeaseName = v
	}
	if v := os.Getenv("REGISTRY_LEADER_LEASE_NAMESPACE"); v != "" {
		cfg.LeaseNamespace = v
	}
	setSeconds("REGISTRY_LEADER_LEASE_DURATION", &cfg.LeaseDuration)
	setSeconds("REGISTRY_LEADER_RENEW_DEADLINE", &cfg.RenewDeadline)
	setSeconds("REGISTRY_LEADER_RETRY_PERIOD", &cfg.RetryPeriod)
	if v := os.Getenv("REGISTRY_MIGRATION_LOCK_ENABLED"); v != "" {
		cfg.MigrationLockEnabled = parseBool(v)
	}
	if v := os.Getenv("POD_NAME"); v != "" {
		cfg.Identity = v
	}

	return cfg
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func setSeconds(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		*dst = time.Duration(secs) * time.Second
	}
}

func defaultIdentity() string {
	if v := os.Getenv("POD_NAME"); v != "" {
		return v
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
