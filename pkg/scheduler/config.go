package scheduler

import (
	"os"
	"strconv"
	"strings"
)

// Config controls the in-process sync schedule.
type Config struct {
	Enabled   bool              // Whether scheduled jobs are enqueued at all.
	Schedules map[string]string // Source name or alias -> cron expression.
}

// DefaultConfig returns the default schedule: official registry every six
// hours, blockchain every twelve hours at half past.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Schedules: map[string]string{
			"mcp-remotes": "0 */6 * * *",
			"blockchain":  "30 */12 * * *",
		},
	}
}

// ConfigFromEnv loads config from environment variables.
// SYNC_SCHEDULE_ENABLED toggles the scheduler. SYNC_SCHEDULE_<SOURCE>
// overrides the expression of a default source (e.g.
// SYNC_SCHEDULE_MCP_REMOTES); "off" removes that source from the schedule.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("SYNC_SCHEDULE_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	for source := range cfg.Schedules {
		v := strings.TrimSpace(os.Getenv(envName(source)))
		switch {
		case v == "":
		case strings.EqualFold(v, "off"):
			delete(cfg.Schedules, source)
		default:
			cfg.Schedules[source] = v
		}
	}

	return cfg
}

func envName(source string) string {
	return "SYNC_SCHEDULE_" + strings.ToUpper(strings.ReplaceAll(source, "-", "_"))
}
