package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/remote-mcp-servers/registry-sync/pkg/audit"
	"github.com/remote-mcp-servers/registry-sync/pkg/authz"
	"github.com/remote-mcp-servers/registry-sync/pkg/jobs"
	"github.com/remote-mcp-servers/registry-sync/pkg/sources/blockchain"
	"github.com/remote-mcp-servers/registry-sync/pkg/sources/official"
	"github.com/remote-mcp-servers/registry-sync/pkg/syncer"
)

// SyncResponse is the body of a successful direct trigger.
type SyncResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	ServersProcessed int    `json:"serversProcessed"`
}

// ManualSyncResponse is the body of an accepted manual sync request.
type ManualSyncResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   string `json:"jobId"`
	Created bool   `json:"created"`
}

// triggerHandler runs one sync pass of the fixed source, or of the
// {source} URL parameter when fixed is empty, and reports the outcome.
func (s *Server) triggerHandler(fixed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := fixed
		if name == "" {
			name = chi.URLParam(r, "source")
		}
		runner, ok := s.registry.Resolve(name)
		if !ok {
			writeError(w, http.StatusNotFound, "Unknown sync source", name)
			return
		}
		source := runner.Name()
		audit.Annotate(r.Context(), "source", source)

		if s.rateLimiter != nil {
			if allowed, retryAfter := s.rateLimiter.Allow(source); !allowed {
				writeRateLimited(w, retryAfter)
				return
			}
		}

		// The run outlives a dropped client; the registry's run timeout
		// still bounds it.
		res, err := s.registry.Run(context.WithoutCancel(r.Context()), source)
		switch {
		case errors.Is(err, syncer.ErrRunInProgress):
			writeError(w, http.StatusConflict, runner.Title()+" sync already in progress", "")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, runner.Title()+" sync failed", err.Error())
			return
		}

		audit.Annotate(r.Context(), "serversProcessed", res.Processed)
		writeJSON(w, http.StatusOK, SyncResponse{
			Success:          true,
			Message:          res.Message,
			ServersProcessed: res.Processed,
		})
	}
}

// manualSyncHandler enqueues a sync job for the source named in the body.
func (s *Server) manualSyncHandler(w http.ResponseWriter, r *http.Request) {
	if s.jobStore == nil {
		writeError(w, http.StatusServiceUnavailable, "Sync jobs are not enabled", "")
		return
	}

	var body struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if body.Type == "" {
		body.Type = syncer.AliasOfficial
	}

	runner, ok := s.registry.Resolve(body.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown sync type", body.Type)
		return
	}
	source := runner.Name()

	requestedBy := authz.CallerSecret
	if id, ok := authz.IdentityFromContext(r.Context()); ok && id.User != "" {
		requestedBy = id.User
	}

	job, created, err := s.jobStore.Enqueue(r.Context(), jobs.NewSyncJob(source, jobs.TriggerManual, requestedBy))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to queue "+runner.Title()+" sync", err.Error())
		return
	}
	audit.Annotate(r.Context(), "source", source)
	audit.Annotate(r.Context(), "jobId", job.ID)

	msg := fmt.Sprintf("Manual %s sync queued", runner.Title())
	if !created {
		msg = fmt.Sprintf("%s sync already %s", runner.Title(), job.State)
	}
	writeJSON(w, http.StatusAccepted, ManualSyncResponse{
		Success: true,
		Message: msg,
		JobID:   job.ID,
		Created: created,
	})
}

// SourceStatus is the last persisted run of one source.
type SourceStatus struct {
	Source           string     `json:"source"`
	State            string     `json:"state"`
	LastRunAt        *time.Time `json:"lastRunAt"`
	LastState        string     `json:"lastState,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	LastError        string     `json:"lastError,omitempty"`
	ServersProcessed int        `json:"serversProcessed"`
	ServersRetired   int        `json:"serversRetired"`
	DurationMs       int64      `json:"durationMs"`
}

// LastSynced names the most recently written server.
type LastSynced struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SyncStatusResponse is the body of GET /api/sync-status.
type SyncStatusResponse struct {
	Status            string            `json:"status"`
	TotalServers      int64             `json:"totalServers"`
	OfficialServers   int64             `json:"officialServers"`
	BlockchainServers int64             `json:"blockchainServers"`
	LastSyncedServer  *LastSynced       `json:"lastSyncedServer"`
	SystemTime        time.Time         `json:"systemTime"`
	CronSchedules     map[string]string `json:"cronSchedules"`
	Sources           []SourceStatus    `json:"sources"`
}

func (s *Server) syncStatusHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	fail := func(err error) {
		s.logger.Error("sync status failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":     "error",
			"error":      err.Error(),
			"systemTime": now,
		})
	}

	stats, err := s.servers.Stats(r.Context(), official.MetaNamespace, blockchain.MetaNamespace)
	if err != nil {
		fail(err)
		return
	}
	records, err := s.status.List(r.Context())
	if err != nil {
		fail(err)
		return
	}

	resp := SyncStatusResponse{
		Status:            "healthy",
		TotalServers:      stats.TotalActive,
		OfficialServers:   stats.ByNamespace[official.MetaNamespace],
		BlockchainServers: stats.ByNamespace[blockchain.MetaNamespace],
		SystemTime:        now,
		CronSchedules:     s.schedules,
		Sources:           []SourceStatus{},
	}
	if resp.CronSchedules == nil {
		resp.CronSchedules = map[string]string{}
	}
	if stats.LastSynced != nil {
		resp.LastSyncedServer = &LastSynced{Name: stats.LastSynced.Name, UpdatedAt: stats.LastSynced.UpdatedAt.UTC()}
	}

	byName := make(map[string]syncer.RunStatusRecord, len(records))
	for _, rec := range records {
		byName[rec.Source] = rec
	}
	for _, name := range s.registry.Names() {
		runner, _ := s.registry.Resolve(name)
		st := SourceStatus{Source: name, State: string(runner.State())}
		if rec, ok := byName[name]; ok {
			st.LastRunAt = rec.LastRunAt
			st.LastState = rec.LastState
			st.Summary = rec.Summary
			st.LastError = rec.LastError
			st.ServersProcessed = rec.ServersProcessed
			st.ServersRetired = rec.ServersRetired
			st.DurationMs = rec.DurationMs
		}
		resp.Sources = append(resp.Sources, st)
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, http.StatusTooManyRequests, fmt.Sprintf("rate limited, retry after %d seconds", seconds), "")
}
