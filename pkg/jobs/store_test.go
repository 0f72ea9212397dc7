package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, NewJobStore(db).AutoMigrate())
	return db
}

func TestEnqueueCreatesJob(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	job := NewSyncJob("blockchain", TriggerManual, "cron-secret")
	got, created, err := store.Enqueue(ctx, job)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, JobStateQueued, got.State)
}

func TestEnqueueIdempotencyReturnsPending(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	first, created, err := store.Enqueue(ctx, NewSyncJob("official", TriggerScheduled, "scheduler"))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := store.Enqueue(ctx, NewSyncJob("official", TriggerManual, "cron-secret"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// A different source is not collapsed.
	_, created, err = store.Enqueue(ctx, NewSyncJob("blockchain", TriggerManual, "cron-secret"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestEnqueueIdempotencyAllowsAfterTerminal(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	first, _, err := store.Enqueue(ctx, NewSyncJob("official", TriggerManual, "cron-secret"))
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, first.ID, Outcome{Processed: 5}))

	second, created, err := store.Enqueue(ctx, NewSyncJob("official", TriggerManual, "cron-secret"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)

	// The finished job gave up its key.
	done, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, done.IdempotencyKey)
}

func TestEnqueueWithoutKey(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		job := NewSyncJob("official", TriggerManual, "cron-secret")
		job.IdempotencyKey = nil
		_, created, err := store.Enqueue(ctx, job)
		require.NoError(t, err)
		assert.True(t, created)
	}
}

func TestClaimReturnsOldestQueuedJob(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	older := NewSyncJob("official", TriggerManual, "cron-secret")
	older.RequestedAt = time.Now().UTC().Add(-time.Minute)
	newer := NewSyncJob("blockchain", TriggerManual, "cron-secret")
	_, _, err := store.Enqueue(ctx, newer)
	require.NoError(t, err)
	_, _, err = store.Enqueue(ctx, older)
	require.NoError(t, err)

	claimed, err := store.Claim(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, older.ID, claimed.ID)
	assert.Equal(t, JobStateRunning, claimed.State)
	assert.NotNil(t, claimed.StartedAt)
	assert.Equal(t, 1, claimed.AttemptCount)
}

func TestClaimReturnsNilWhenEmpty(t *testing.T) {
	store := NewJobStore(setupTestDB(t))

	claimed, err := store.Claim(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimRespectsMaxRetries(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	job := NewSyncJob("official", TriggerManual, "cron-secret")
	job.AttemptCount = 2
	_, _, err := store.Enqueue(ctx, job)
	require.NoError(t, err)

	claimed, err := store.Claim(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestCompleteRecordsOutcome(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	job := NewSyncJob("blockchain", TriggerManual, "cron-secret")
	_, _, err := store.Enqueue(ctx, job)
	require.NoError(t, err)

	err = store.Complete(ctx, job.ID, Outcome{
		Processed:      10,
		Retired:        2,
		DetailFailures: 1,
		Duration:       5 * time.Second,
		Message:        "Successfully synced 10 servers from Blockchain",
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateSucceeded, got.State)
	assert.Equal(t, 10, got.ServersProcessed)
	assert.Equal(t, 2, got.ServersRetired)
	assert.Equal(t, 1, got.DetailFailures)
	assert.Equal(t, int64(5000), got.DurationMs)
	assert.Equal(t, "Successfully synced 10 servers from Blockchain", got.Message)
	assert.NotNil(t, got.FinishedAt)
}

func TestFailRequeuesWhenRetriesLeft(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	job := NewSyncJob("official", TriggerManual, "cron-secret")
	_, _, err := store.Enqueue(ctx, job)
	require.NoError(t, err)
	_, err = store.Claim(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, job.ID, "transient error", 1))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateQueued, got.State, "should re-queue for retry")
	assert.Equal(t, "transient error", got.LastError)
	assert.Nil(t, got.StartedAt)
}

func TestFailMarksFailedWithoutRetries(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	job := NewSyncJob("official", TriggerManual, "cron-secret")
	_, _, err := store.Enqueue(ctx, job)
	require.NoError(t, err)
	_, err = store.Claim(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, job.ID, "index unavailable", 0))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateFailed, got.State)
	assert.Equal(t, "Sync failed: index unavailable", got.Message)
	assert.True(t, got.IsTerminal())
}

func TestReleaseReturnsJobWithoutConsumingAttempt(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	job := NewSyncJob("official", TriggerScheduled, "scheduler")
	_, _, err := store.Enqueue(ctx, job)
	require.NoError(t, err)
	_, err = store.Claim(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, job.ID))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateQueued, got.State)
	assert.Equal(t, 0, got.AttemptCount)

	again, err := store.Claim(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)
}

func TestCancelQueuedJobSucceeds(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	job := NewSyncJob("official", TriggerManual, "cron-secret")
	_, _, err := store.Enqueue(ctx, job)
	require.NoError(t, err)

	require.NoError(t, store.Cancel(ctx, job.ID))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateCanceled, got.State)
	assert.NotNil(t, got.FinishedAt)
}

func TestCancelRunningJobFails(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	job := NewSyncJob("official", TriggerManual, "cron-secret")
	_, _, err := store.Enqueue(ctx, job)
	require.NoError(t, err)
	_, err = store.Claim(ctx, 0)
	require.NoError(t, err)

	err = store.Cancel(ctx, job.ID)
	require.ErrorIs(t, err, ErrNotCancelable)
	assert.Contains(t, err.Error(), "running")
}

func TestCancelNonExistentJobFails(t *testing.T) {
	store := NewJobStore(setupTestDB(t))

	err := store.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestGetReturnsNilForUnknownJob(t *testing.T) {
	store := NewJobStore(setupTestDB(t))

	got, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListFiltersAndPaginates(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		job := NewSyncJob("official", TriggerScheduled, "scheduler")
		job.IdempotencyKey = nil
		job.RequestedAt = base.Add(time.Duration(i) * time.Minute)
		_, _, err := store.Enqueue(ctx, job)
		require.NoError(t, err)
	}
	manual := NewSyncJob("blockchain", TriggerManual, "cron-secret")
	_, _, err := store.Enqueue(ctx, manual)
	require.NoError(t, err)

	page1, next, total, err := store.List(ctx, JobListFilter{Source: "official"}, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.NotEmpty(t, next)
	assert.True(t, page1[0].RequestedAt.After(page1[1].RequestedAt), "newest first")

	page2, next, _, err := store.List(ctx, JobListFilter{Source: "official"}, 2, next)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.NotEqual(t, page1[1].ID, page2[0].ID)

	page3, next, _, err := store.List(ctx, JobListFilter{Source: "official"}, 2, next)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
	assert.Empty(t, next)

	byTrigger, _, total, err := store.List(ctx, JobListFilter{Trigger: string(TriggerManual)}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, byTrigger, 1)
	assert.Equal(t, manual.ID, byTrigger[0].ID)

	_, _, _, err = store.List(ctx, JobListFilter{}, 10, "not-a-time")
	assert.Error(t, err)
}

func TestCleanupStuckJobs(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	job := NewSyncJob("official", TriggerManual, "cron-secret")
	_, _, err := store.Enqueue(ctx, job)
	require.NoError(t, err)
	_, err = store.Claim(ctx, 1)
	require.NoError(t, err)

	stale := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Model(&SyncJob{}).Where("id = ?", job.ID).Update("started_at", stale).Error)

	recovered, err := store.CleanupStuckJobs(ctx, 10*time.Minute, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateQueued, got.State)
	assert.Contains(t, got.LastError, "stuck")

	reclaimed, err := store.Claim(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, job.ID, reclaimed.ID)
	assert.Equal(t, 2, reclaimed.AttemptCount)
}

func TestCleanupStuckJobsFreesSourceWithoutRetries(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	job := NewSyncJob("blockchain", TriggerScheduled, "scheduler")
	_, _, err := store.Enqueue(ctx, job)
	require.NoError(t, err)
	claimed, err := store.Claim(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	stale := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Model(&SyncJob{}).Where("id = ?", job.ID).Update("started_at", stale).Error)

	recovered, err := store.CleanupStuckJobs(ctx, 10*time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateFailed, got.State)
	assert.NotNil(t, got.FinishedAt)

	next, created, err := store.Enqueue(ctx, NewSyncJob("blockchain", TriggerManual, "cron-secret"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, job.ID, next.ID)

	reclaimed, err := store.Claim(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, next.ID, reclaimed.ID)
}

func TestDeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	old := NewSyncJob("official", TriggerManual, "cron-secret")
	_, _, err := store.Enqueue(ctx, old)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, old.ID, Outcome{}))
	require.NoError(t, db.Model(&SyncJob{}).Where("id = ?", old.ID).
		Update("finished_at", time.Now().UTC().AddDate(0, 0, -30)).Error)

	pending := NewSyncJob("blockchain", TriggerManual, "cron-secret")
	_, _, err = store.Enqueue(ctx, pending)
	require.NoError(t, err)

	deleted, err := store.DeleteOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	got, err := store.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.NotNil(t, got, "queued jobs are never deleted")
}
