package jobs

import (
	"os"
	"strconv"
	"time"
)

// JobConfig controls the sync job queue and its workers.
type JobConfig struct {
	// Enabled turns on the manual sync endpoint, the job API and the
	// worker pool.
	Enabled bool
	// Concurrency is the number of polling workers. Each worker runs one
	// source at a time; the registry still refuses overlapping runs of the
	// same source.
	Concurrency int
	// MaxRetries is the number of extra attempts after a failed run. Zero
	// makes every trigger a single fresh attempt.
	MaxRetries   int
	PollInterval time.Duration
	// ClaimTimeout is how long a job may stay running before the cleanup
	// loop requeues or fails it.
	ClaimTimeout time.Duration
	// Retention is how long finished jobs are kept.
	Retention time.Duration
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		Enabled:      true,
		Concurrency:  2,
		MaxRetries:   0,
		PollInterval: 5 * time.Second,
		ClaimTimeout: 15 * time.Minute,
		Retention:    7 * 24 * time.Hour,
	}
}

// JobConfigFromEnv overlays the REGISTRY_JOB_* environment on the defaults.
// Durations use Go syntax ("5s", "15m", "168h"). Malformed or out of range
// values are ignored.
//
//	REGISTRY_JOB_ENABLED        bool
//	REGISTRY_JOB_CONCURRENCY    int > 0
//	REGISTRY_JOB_MAX_RETRIES    int >= 0
//	REGISTRY_JOB_POLL_INTERVAL  duration > 0
//	REGISTRY_JOB_CLAIM_TIMEOUT  duration >= 0 (0 disables stuck-job recovery)
//	REGISTRY_JOB_RETENTION      duration >= 0 (0 keeps jobs forever)
func JobConfigFromEnv() *JobConfig {
	cfg := DefaultJobConfig()

	if b, err := strconv.ParseBool(os.Getenv("REGISTRY_JOB_ENABLED")); err == nil {
		cfg.Enabled = b
	}
	envInt("REGISTRY_JOB_CONCURRENCY", 1, &cfg.Concurrency)
	envInt("REGISTRY_JOB_MAX_RETRIES", 0, &cfg.MaxRetries)
	envDuration("REGISTRY_JOB_POLL_INTERVAL", time.Millisecond, &cfg.PollInterval)
	envDuration("REGISTRY_JOB_CLAIM_TIMEOUT", 0, &cfg.ClaimTimeout)
	envDuration("REGISTRY_JOB_RETENTION", 0, &cfg.Retention)

	return cfg
}

func envInt(key string, floor int, dst *int) {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n >= floor {
		*dst = n
	}
}

func envDuration(key string, floor time.Duration, dst *time.Duration) {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d >= floor {
		*dst = d
	}
}
