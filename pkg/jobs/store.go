package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobStore provides database operations for sync jobs.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// AutoMigrate creates or updates the sync_jobs table.
func (s *JobStore) AutoMigrate() error {
	return s.db.AutoMigrate(&SyncJob{})
}

// JobListFilter defines filters for listing jobs.
type JobListFilter struct {
	Source      string
	State       string
	Trigger     string
	RequestedBy string
}

var pendingStates = []JobState{JobStateQueued, JobStateRunning}
var terminalStates = []JobState{JobStateSucceeded, JobStateFailed, JobStateCanceled}

// Enqueue creates a new queued job. If a pending job with the same
// idempotency key exists, that job is returned with created=false instead.
func (s *JobStore) Enqueue(ctx context.Context, job *SyncJob) (result *SyncJob, created bool, err error) {
	if job.State == "" {
		job.State = JobStateQueued
	}
	db := s.db.WithContext(ctx)

	if job.IdempotencyKey == nil {
		if err := db.Create(job).Error; err != nil {
			return nil, false, fmt.Errorf("enqueue job: %w", err)
		}
		return job, true, nil
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var existing SyncJob
		err := tx.Where("idempotency_key = ? AND state IN ?", *job.IdempotencyKey, pendingStates).
			First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check idempotency key: %w", err)
		}

		// Finished jobs release the key so the unique index admits the new one.
		err = tx.Model(&SyncJob{}).
			Where("idempotency_key = ? AND state IN ?", *job.IdempotencyKey, terminalStates).
			Update("idempotency_key", gorm.Expr("NULL")).Error
		if err != nil {
			return fmt.Errorf("release idempotency key: %w", err)
		}

		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("enqueue job: %w", err)
		}
		result, created = job, true
		return nil
	})
	if err != nil {
		// Another replica may have won the race for the key.
		var raced SyncJob
		lookupErr := db.Where("idempotency_key = ? AND state IN ?", *job.IdempotencyKey, pendingStates).
			First(&raced).Error
		if lookupErr == nil {
			return &raced, false, nil
		}
		return nil, false, err
	}
	return result, created, nil
}

// Claim atomically picks the oldest queued job and marks it running. Rows
// are locked with SKIP LOCKED where the dialect supports it. Returns nil
// when the queue is empty.
func (s *JobStore) Claim(ctx context.Context, maxRetries int) (*SyncJob, error) {
	var job SyncJob
	db := s.db.WithContext(ctx)

	err := db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("state = ? AND attempt_count <= ?", JobStateQueued, maxRetries).
			Order("requested_at ASC").
			Limit(1)
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
		}
		if err := q.Find(&job).Error; err != nil {
			return err
		}
		if job.ID == "" {
			return nil
		}

		result := tx.Model(&SyncJob{}).Where("id = ? AND state = ?", job.ID, JobStateQueued).
			Updates(map[string]any{
				"state":         JobStateRunning,
				"started_at":    time.Now().UTC(),
				"attempt_count": gorm.Expr("attempt_count + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			job = SyncJob{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job.ID == "" {
		return nil, nil
	}

	if err := db.First(&job, "id = ?", job.ID).Error; err != nil {
		return nil, fmt.Errorf("reload claimed job: %w", err)
	}
	return &job, nil
}

// Outcome is what a finished run reports back to its job.
type Outcome struct {
	Processed      int
	Retired        int
	DetailFailures int
	Duration       time.Duration
	Message        string
}

// Complete marks a job as succeeded.
func (s *JobStore) Complete(ctx context.Context, jobID string, out Outcome) error {
	result := s.db.WithContext(ctx).Model(&SyncJob{}).Where("id = ?", jobID).Updates(map[string]any{
		"state":             JobStateSucceeded,
		"finished_at":       time.Now().UTC(),
		"servers_processed": out.Processed,
		"servers_retired":   out.Retired,
		"detail_failures":   out.DetailFailures,
		"duration_ms":       out.Duration.Milliseconds(),
		"message":           out.Message,
	})
	if result.Error != nil {
		return fmt.Errorf("complete job: %w", result.Error)
	}
	return nil
}

// Fail marks a job as failed, or re-queues it while attempts remain.
func (s *JobStore) Fail(ctx context.Context, jobID string, errMsg string, maxRetries int) error {
	db := s.db.WithContext(ctx)

	var job SyncJob
	if err := db.First(&job, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("load job for fail: %w", err)
	}

	updates := map[string]any{
		"last_error":  errMsg,
		"finished_at": time.Now().UTC(),
	}
	if job.AttemptCount <= maxRetries {
		updates["state"] = JobStateQueued
		updates["started_at"] = nil
		updates["finished_at"] = nil
	} else {
		updates["state"] = JobStateFailed
		updates["message"] = "Sync failed: " + errMsg
	}

	if err := db.Model(&SyncJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Cancel marks a queued job as canceled. Running jobs cannot be canceled.
func (s *JobStore) Cancel(ctx context.Context, jobID string) error {
	db := s.db.WithContext(ctx)
	result := db.Model(&SyncJob{}).
		Where("id = ? AND state = ?", jobID, JobStateQueued).
		Updates(map[string]any{
			"state":       JobStateCanceled,
			"finished_at": time.Now().UTC(),
			"message":     "Canceled by user",
		})
	if result.Error != nil {
		return fmt.Errorf("cancel job: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var job SyncJob
	if err := db.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("check job: %w", err)
	}
	return fmt.Errorf("%w: job %s is %s", ErrNotCancelable, jobID, job.State)
}

// Get retrieves a job by ID. It returns nil when no job matches.
func (s *JobStore) Get(ctx context.Context, jobID string) (*SyncJob, error) {
	var job SyncJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns jobs matching filter, newest first, with a page token for
// the next page.
func (s *JobStore) List(ctx context.Context, filter JobListFilter, pageSize int, pageToken string) ([]SyncJob, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&SyncJob{})
		if filter.Source != "" {
			q = q.Where("source = ?", filter.Source)
		}
		if filter.State != "" {
			q = q.Where("state = ?", filter.State)
		}
		if filter.Trigger != "" {
			q = q.Where("trigger_kind = ?", filter.Trigger)
		}
		if filter.RequestedBy != "" {
			q = q.Where("requested_by = ?", filter.RequestedBy)
		}
		return q
	}

	db := s.db.WithContext(ctx)
	var totalSize int64
	if err := buildQuery(db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count jobs: %w", err)
	}

	query := buildQuery(db).Order("requested_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("requested_at < ?", t)
	}

	var records []SyncJob
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list jobs: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].RequestedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

// CleanupStuckJobs recovers running jobs whose start is older than
// claimTimeout. Jobs with attempts left go back to the queue; the rest are
// failed so their idempotency key is freed for the next trigger.
func (s *JobStore) CleanupStuckJobs(ctx context.Context, claimTimeout time.Duration, maxRetries int) (int64, error) {
	cutoff := time.Now().UTC().Add(-claimTimeout)
	const stuckError = "Timed out (stuck job recovery)"
	var recovered int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stuck := func() *gorm.DB {
			return tx.Model(&SyncJob{}).Where("state = ? AND started_at < ?", JobStateRunning, cutoff)
		}

		requeued := stuck().Where("attempt_count <= ?", maxRetries).Updates(map[string]any{
			"state":      JobStateQueued,
			"started_at": nil,
			"last_error": stuckError,
		})
		if requeued.Error != nil {
			return requeued.Error
		}

		failed := stuck().Updates(map[string]any{
			"state":       JobStateFailed,
			"finished_at": time.Now().UTC(),
			"last_error":  stuckError,
			"message":     "Sync failed: " + stuckError,
		})
		if failed.Error != nil {
			return failed.Error
		}
		recovered = requeued.RowsAffected + failed.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup stuck jobs: %w", err)
	}
	return recovered, nil
}

// DeleteOlderThan removes finished jobs older than cutoff.
func (s *JobStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("state IN ? AND finished_at < ?", terminalStates, cutoff).
		Delete(&SyncJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Release puts a running job back in the queue without consuming an
// attempt. Used when the source is busy with a run started elsewhere.
func (s *JobStore) Release(ctx context.Context, jobID string) error {
	result := s.db.WithContext(ctx).Model(&SyncJob{}).
		Where("id = ? AND state = ?", jobID, JobStateRunning).
		Updates(map[string]any{
			"state":         JobStateQueued,
			"started_at":    nil,
			"attempt_count": gorm.Expr("attempt_count - 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("release job: %w", result.Error)
	}
	return nil
}
