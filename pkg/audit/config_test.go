package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuditConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ENABLED", "ACTIONS", "LOG_DENIED", "RETENTION", "SWEEP_INTERVAL"} {
		t.Setenv("REGISTRY_AUDIT_"+k, "")
	}

	cfg := AuditConfigFromEnv()
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.LogDenied)
	assert.Equal(t, 90*24*time.Hour, cfg.Retention)
	assert.Equal(t, 24*time.Hour, cfg.SweepInterval)
	assert.True(t, cfg.Actions.Equal(DefaultAuditConfig().Actions))
}

func TestAuditConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("REGISTRY_AUDIT_ENABLED", "true")
	t.Setenv("REGISTRY_AUDIT_ACTIONS", " Manual-Sync, cancel-job ,bogus")
	t.Setenv("REGISTRY_AUDIT_LOG_DENIED", "false")
	t.Setenv("REGISTRY_AUDIT_RETENTION", "336h")
	t.Setenv("REGISTRY_AUDIT_SWEEP_INTERVAL", "not-a-duration")

	cfg := AuditConfigFromEnv()
	assert.False(t, cfg.LogDenied)
	assert.Equal(t, 14*24*time.Hour, cfg.Retention)
	assert.Equal(t, 24*time.Hour, cfg.SweepInterval)
	assert.True(t, cfg.Records(ActionManualSync))
	assert.True(t, cfg.Records(ActionCancelJob))
	assert.False(t, cfg.Records(ActionTrigger))
	assert.False(t, cfg.Records("bogus"))
}

func TestAuditConfig_Records(t *testing.T) {
	cfg := DefaultAuditConfig()
	for _, action := range AuditableActions {
		assert.True(t, cfg.Records(action), action)
	}

	cfg.Enabled = false
	assert.False(t, cfg.Records(ActionTrigger))

	var none *AuditConfig
	assert.False(t, none.Records(ActionTrigger))
}
