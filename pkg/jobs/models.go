package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// JobState represents the lifecycle state of a sync job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCanceled  JobState = "canceled"
)

// Trigger records what enqueued a job.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

var (
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrNotCancelable is returned when canceling a job that already left
	// the queue.
	ErrNotCancelable = errors.New("only queued jobs can be canceled")
)

// SyncJob is the GORM model for a queued sync run.
type SyncJob struct {
	ID               string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	Source           string     `gorm:"column:source;index:idx_sync_job_source_state,priority:1;not null"`
	Trigger          Trigger    `gorm:"column:trigger_kind;type:varchar(16);not null"`
	RequestedBy      string     `gorm:"column:requested_by;not null"`
	RequestedAt      time.Time  `gorm:"column:requested_at;not null"`
	State            JobState   `gorm:"column:state;index:idx_sync_job_source_state,priority:2;index:idx_sync_job_state;not null;default:queued"`
	Message          string     `gorm:"column:message"`
	StartedAt        *time.Time `gorm:"column:started_at"`
	FinishedAt       *time.Time `gorm:"column:finished_at"`
	AttemptCount     int        `gorm:"column:attempt_count;default:0"`
	LastError        string     `gorm:"column:last_error"`
	IdempotencyKey   *string    `gorm:"column:idempotency_key;uniqueIndex:idx_sync_job_idemp_key"`
	ServersProcessed int        `gorm:"column:servers_processed"`
	ServersRetired   int        `gorm:"column:servers_retired"`
	DetailFailures   int        `gorm:"column:detail_failures"`
	DurationMs       int64      `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (SyncJob) TableName() string { return "sync_jobs" }

// NewSyncJob builds a queued job for source. Jobs of the same source share
// an idempotency key so repeated triggers collapse onto one pending job.
func NewSyncJob(source string, trigger Trigger, requestedBy string) *SyncJob {
	return &SyncJob{
		ID:             uuid.New().String(),
		Source:         source,
		Trigger:        trigger,
		RequestedBy:    requestedBy,
		RequestedAt:    time.Now().UTC(),
		State:          JobStateQueued,
		IdempotencyKey: lo.ToPtr(IdempotencyKey(source)),
	}
}

// IdempotencyKey is the key shared by all pending jobs of a source.
func IdempotencyKey(source string) string {
	return "sync:" + source
}

// IsTerminal returns true if the job is in a terminal state.
func (j *SyncJob) IsTerminal() bool {
	switch j.State {
	case JobStateSucceeded, JobStateFailed, JobStateCanceled:
		return true
	}
	return false
}
