package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RunStatusRecord persists the outcome of the last run of each source so
// it survives restarts.
type RunStatusRecord struct {
	Source           string     `gorm:"primaryKey;column:source;type:varchar(64)"`
	LastRunAt        *time.Time `gorm:"column:last_run_at"`
	LastState        string     `gorm:"column:last_state"`
	Summary          string     `gorm:"column:summary"`
	LastError        string     `gorm:"column:last_error"`
	ServersProcessed int        `gorm:"column:servers_processed"`
	ServersRetired   int        `gorm:"column:servers_retired"`
	DetailFailures   int        `gorm:"column:detail_failures"`
	DurationMs       int64      `gorm:"column:duration_ms"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default table name.
func (RunStatusRecord) TableName() string {
	return "sync_run_status"
}

// StatusStore reads and writes run status records.
type StatusStore struct {
	db *gorm.DB
}

// NewStatusStore creates a StatusStore.
func NewStatusStore(db *gorm.DB) *StatusStore {
	return &StatusStore{db: db}
}

// AutoMigrate creates or updates the sync_run_status table.
func (s *StatusStore) AutoMigrate() error {
	return s.db.AutoMigrate(&RunStatusRecord{})
}

// Save records the outcome of a run. A nil runErr marks success.
func (s *StatusStore) Save(ctx context.Context, source string, at time.Time, res *Result, runErr error) error {
	record := RunStatusRecord{
		Source:    source,
		LastRunAt: &at,
		LastState: string(StateSucceeded),
	}
	if res != nil {
		record.Summary = res.Message
		record.ServersProcessed = res.Processed
		record.ServersRetired = res.Retired
		record.DetailFailures = res.DetailFailures
		record.DurationMs = res.Duration.Milliseconds()
	}
	if runErr != nil {
		record.LastState = string(StateFailed)
		record.Summary = "Sync failed"
		record.LastError = runErr.Error()
	}
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("save run status for %s: %w", source, err)
	}
	return nil
}

// Get loads the status of one source. It returns nil when the source has
// never run.
func (s *StatusStore) Get(ctx context.Context, source string) (*RunStatusRecord, error) {
	var record RunStatusRecord
	err := s.db.WithContext(ctx).Where("source = ?", source).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load run status for %s: %w", source, err)
	}
	return &record, nil
}

// List loads the status of every source that has run, ordered by source.
func (s *StatusStore) List(ctx context.Context) ([]RunStatusRecord, error) {
	var records []RunStatusRecord
	if err := s.db.WithContext(ctx).Order("source ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list run statuses: %w", err)
	}
	return records, nil
}
