package audit

import (
	"os"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
)

// AuditableActions are the protected operations the middleware can record.
var AuditableActions = []string{ActionTrigger, ActionManualSync, ActionCancelJob}

// AuditConfig selects which sync operations leave an audit event and how
// long events are kept.
type AuditConfig struct {
	Enabled bool
	// Actions are the recorded actions, a subset of AuditableActions.
	Actions mapset.Set[string]
	// LogDenied records requests rejected by the bearer gate (401/403),
	// typically a cron job with a stale CRON_SECRET.
	LogDenied bool
	// Retention is how long events are kept. Zero keeps them forever.
	Retention     time.Duration
	SweepInterval time.Duration
}

// DefaultAuditConfig records every protected operation for 90 days.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:       true,
		Actions:       mapset.NewSet(AuditableActions...),
		LogDenied:     true,
		Retention:     90 * 24 * time.Hour,
		SweepInterval: 24 * time.Hour,
	}
}

// Records reports whether events for action are written.
func (c *AuditConfig) Records(action string) bool {
	return c != nil && c.Enabled && c.Actions != nil && c.Actions.Contains(action)
}

// AuditConfigFromEnv overlays the REGISTRY_AUDIT_* environment on the
// defaults. Malformed values are ignored.
//
//	REGISTRY_AUDIT_ENABLED         bool
//	REGISTRY_AUDIT_ACTIONS         comma list of trigger-sync, manual-sync, cancel-job
//	REGISTRY_AUDIT_LOG_DENIED      bool
//	REGISTRY_AUDIT_RETENTION       duration >= 0 (0 keeps events forever)
//	REGISTRY_AUDIT_SWEEP_INTERVAL  duration > 0
func AuditConfigFromEnv() *AuditConfig {
	cfg := DefaultAuditConfig()

	if b, err := strconv.ParseBool(os.Getenv("REGISTRY_AUDIT_ENABLED")); err == nil {
		cfg.Enabled = b
	}
	if b, err := strconv.ParseBool(os.Getenv("REGISTRY_AUDIT_LOG_DENIED")); err == nil {
		cfg.LogDenied = b
	}
	if v := os.Getenv("REGISTRY_AUDIT_ACTIONS"); v != "" {
		cfg.Actions = parseActions(v)
	}
	if d, err := time.ParseDuration(os.Getenv("REGISTRY_AUDIT_RETENTION")); err == nil && d >= 0 {
		cfg.Retention = d
	}
	if d, err := time.ParseDuration(os.Getenv("REGISTRY_AUDIT_SWEEP_INTERVAL")); err == nil && d > 0 {
		cfg.SweepInterval = d
	}
	return cfg
}

// parseActions keeps the known action names of a comma list.
func parseActions(v string) mapset.Set[string] {
	names := lo.Map(strings.Split(v, ","), func(s string, _ int) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
	return mapset.NewSet(lo.Intersect(AuditableActions, names)...)
}
