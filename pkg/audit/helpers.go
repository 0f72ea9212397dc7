package audit

import (
	"net/http"
	"strings"
)

// Actions recorded on events.
const (
	ActionTrigger    = "trigger-sync"
	ActionManualSync = "manual-sync"
	ActionCancelJob  = "cancel-job"
)

// classify maps a request to the audited action and its target. Requests
// that are not audited return an empty action.
func classify(method, path string) (action, target string) {
	path = strings.TrimSuffix(path, "/")

	switch {
	case path == "/api/manual-sync":
		if method == http.MethodPost {
			return ActionManualSync, ""
		}
		return "", ""
	case strings.HasPrefix(path, "/api/jobs/") && strings.HasSuffix(path, ":cancel"):
		if method != http.MethodPost {
			return "", ""
		}
		last := path[strings.LastIndex(path, "/")+1:]
		return ActionCancelJob, strings.TrimSuffix(last, ":cancel")
	}

	if method != http.MethodGet && method != http.MethodPost {
		return "", ""
	}
	if src, ok := strings.CutPrefix(path, "/api/sync/"); ok && src != "" && !strings.Contains(src, "/") {
		return ActionTrigger, src
	}
	if src, ok := strings.CutPrefix(path, "/api/sync-"); ok && src != "status" && src != "" {
		return ActionTrigger, src
	}
	return "", ""
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return OutcomeDenied
	default:
		return OutcomeFailure
	}
}
