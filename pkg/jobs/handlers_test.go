package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJobHandler(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	job := NewSyncJob("blockchain", TriggerManual, "cron-secret")
	_, _, err := store.Enqueue(context.Background(), job)
	require.NoError(t, err)

	r := Router(store, nil)

	t.Run("found", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync/"+job.ID, nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp JobResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, job.ID, resp.ID)
		assert.Equal(t, "blockchain", resp.Source)
		assert.Equal(t, "manual", resp.Trigger)
		assert.Equal(t, "queued", resp.State)
		assert.Empty(t, resp.StartedAt)
	})

	t.Run("not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync/nope", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Contains(t, body["error"], "not found")
	})
}

func TestListJobsHandler(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()
	_, _, err := store.Enqueue(ctx, NewSyncJob("blockchain", TriggerManual, "cron-secret"))
	require.NoError(t, err)
	_, _, err = store.Enqueue(ctx, NewSyncJob("official", TriggerScheduled, "scheduler"))
	require.NoError(t, err)

	r := Router(store, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync?source=official", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Jobs          []JobResponse `json:"jobs"`
		NextPageToken string        `json:"nextPageToken"`
		TotalSize     int           `json:"totalSize"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.TotalSize)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "official", resp.Jobs[0].Source)
	assert.Equal(t, "scheduled", resp.Jobs[0].Trigger)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync?pageToken=garbage", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCancelJobHandler(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	queued := NewSyncJob("blockchain", TriggerManual, "cron-secret")
	_, _, err := store.Enqueue(ctx, queued)
	require.NoError(t, err)
	running := NewSyncJob("official", TriggerManual, "cron-secret")
	_, _, err = store.Enqueue(ctx, running)
	require.NoError(t, err)

	r := Router(store, nil)

	tests := []struct {
		name       string
		jobID      string
		prepare    func()
		wantStatus int
	}{
		{name: "queued job", jobID: queued.ID, wantStatus: http.StatusOK},
		{name: "already canceled", jobID: queued.ID, wantStatus: http.StatusConflict},
		{name: "unknown job", jobID: "missing", wantStatus: http.StatusNotFound},
		{
			name:  "running job",
			jobID: running.ID,
			prepare: func() {
				_, err := store.Claim(ctx, 0)
				require.NoError(t, err)
			},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.prepare != nil {
				tt.prepare()
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/"+tt.jobID+":cancel", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRouterProtectsCancel(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	job := NewSyncJob("blockchain", TriggerManual, "cron-secret")
	_, _, err := store.Enqueue(context.Background(), job)
	require.NoError(t, err)

	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
		})
	}
	r := Router(store, deny)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/"+job.ID+":cancel", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateQueued, got.State)

	// Reads stay open.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync/"+job.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
