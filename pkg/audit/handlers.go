package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// ListEventsHandler handles GET /api/audit/v1alpha1/events
// Query params: actor, action, target, outcome, pageSize, pageToken
func ListEventsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			Actor:   q.Get("actor"),
			Action:  q.Get("action"),
			Target:  q.Get("target"),
			Outcome: q.Get("outcome"),
		}

		pageSize := 20
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		records, nextToken, total, err := store.List(r.Context(), filter, pageSize, q.Get("pageToken"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list audit events: %v", err))
			return
		}

		events := make([]EventResponse, len(records))
		for i := range records {
			events[i] = eventToResponse(&records[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"events":        events,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// GetEventHandler handles GET /api/audit/v1alpha1/events/{eventId}
func GetEventHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventId")
		if eventID == "" {
			writeError(w, http.StatusBadRequest, "missing event ID")
			return
		}

		event, err := store.Get(r.Context(), eventID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get audit event: %v", err))
			return
		}
		if event == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("audit event %q not found", eventID))
			return
		}

		writeJSON(w, http.StatusOK, eventToResponse(event))
	}
}

// EventResponse is the API representation of an audit event.
type EventResponse struct {
	ID         string         `json:"id"`
	Actor      string         `json:"actor"`
	RemoteAddr string         `json:"remoteAddr,omitempty"`
	Method     string         `json:"method"`
	Endpoint   string         `json:"endpoint"`
	Action     string         `json:"action"`
	Target     string         `json:"target,omitempty"`
	Outcome    string         `json:"outcome"`
	StatusCode int            `json:"statusCode"`
	RequestID  string         `json:"requestId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"createdAt"`
}

func eventToResponse(e *AuditEvent) EventResponse {
	resp := EventResponse{
		ID:         e.ID,
		Actor:      e.Actor,
		RemoteAddr: e.RemoteAddr,
		Method:     e.Method,
		Endpoint:   e.Endpoint,
		Action:     e.Action,
		Target:     e.Target,
		Outcome:    e.Outcome,
		StatusCode: e.StatusCode,
		RequestID:  e.RequestID,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339),
	}
	if len(e.Metadata) > 0 {
		_ = json.Unmarshal(e.Metadata, &resp.Metadata)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
