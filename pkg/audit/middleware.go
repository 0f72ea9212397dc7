package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/remote-mcp-servers/registry-sync/pkg/authz"
)

// responseCapture wraps http.ResponseWriter to capture the status code.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

type annotationsKey struct{}

const actorKey = "actor"

type annotations struct {
	mu     sync.Mutex
	values map[string]any
}

// Annotate attaches key=value to the audit event of the current request.
// Handlers use it to record details only they know, such as the id of an
// enqueued job. It is a no-op outside an audited request.
func Annotate(ctx context.Context, key string, value any) {
	a, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok {
		return
	}
	a.mu.Lock()
	a.values[key] = value
	a.mu.Unlock()
}

// AuditMiddleware records an AuditEvent for each sync trigger, manual sync
// and job cancel request once the handler has answered. Audit writes are
// best effort and never change the response.
func AuditMiddleware(store *Store, cfg *AuditConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			action, target := classify(r.Method, r.URL.Path)
			if store == nil || !cfg.Records(action) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now().UTC()
			notes := &annotations{values: map[string]any{}}
			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r.WithContext(context.WithValue(r.Context(), annotationsKey{}, notes)))

			outcome := outcomeFromStatus(capture.statusCode)
			if outcome == OutcomeDenied && !cfg.LogDenied {
				return
			}

			notes.mu.Lock()
			actor := "anonymous"
			if a, ok := notes.values[actorKey].(string); ok && a != "" {
				actor = a
			}
			delete(notes.values, actorKey)
			notes.values["duration"] = time.Since(start).String()
			if target == "" {
				if src, ok := notes.values["source"].(string); ok {
					target = src
				}
			}
			meta, _ := json.Marshal(notes.values)
			notes.mu.Unlock()

			requestID := middleware.GetReqID(r.Context())
			event := &AuditEvent{
				ID:         uuid.New().String(),
				Actor:      actor,
				RemoteAddr: authz.RemoteAddr(r),
				Method:     r.Method,
				Endpoint:   r.URL.Path,
				Action:     action,
				Target:     target,
				Outcome:    outcome,
				StatusCode: capture.statusCode,
				RequestID:  requestID,
				Metadata:   meta,
				CreatedAt:  start,
			}

			if err := store.Append(context.WithoutCancel(r.Context()), event); err != nil {
				logger.Error("failed to write audit event", "error", err, "requestID", requestID)
			}
		})
	}
}

// RecordCaller copies the authenticated caller onto the audit event. Mount
// it behind authz.RequireBearer so only admitted requests name an actor.
func RecordCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := authz.IdentityFromContext(r.Context()); ok {
			Annotate(r.Context(), actorKey, id.User)
		}
		next.ServeHTTP(w, r)
	})
}
