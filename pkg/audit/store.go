// Package audit records every request that triggers, enqueues or cancels a
// sync, and serves the resulting trail.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outcomes recorded on events.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeFailure = "failure"
)

// AuditEvent is an immutable audit log entry.
type AuditEvent struct {
	ID         string         `gorm:"primaryKey;column:id;type:varchar(36)"`
	Actor      string         `gorm:"column:actor;index:idx_audit_actor_time,priority:1;not null"`
	RemoteAddr string         `gorm:"column:remote_addr"`
	Method     string         `gorm:"column:method;type:varchar(8);not null"`
	Endpoint   string         `gorm:"column:endpoint;not null"`
	Action     string         `gorm:"column:action;index:idx_audit_action_time,priority:1;not null"`
	Target     string         `gorm:"column:target"`
	Outcome    string         `gorm:"column:outcome;type:varchar(16);not null"`
	StatusCode int            `gorm:"column:status_code"`
	RequestID  string         `gorm:"column:request_id;index"`
	Metadata   datatypes.JSON `gorm:"column:metadata"`
	CreatedAt  time.Time      `gorm:"column:created_at;index:idx_audit_actor_time,priority:2;index:idx_audit_action_time,priority:2;index:idx_audit_time"`
}

// TableName returns the GORM table name.
func (AuditEvent) TableName() string { return "audit_events" }

// ListFilter narrows List results. Empty fields match everything.
type ListFilter struct {
	Actor   string
	Action  string
	Target  string
	Outcome string
}

// Store provides append-only operations for audit events.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit_events table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&AuditEvent{})
}

// Append writes a new event.
func (s *Store) Append(ctx context.Context, event *AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Get returns the event with id, or nil when none exists.
func (s *Store) Get(ctx context.Context, id string) (*AuditEvent, error) {
	var event AuditEvent
	if err := s.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get audit event: %w", err)
	}
	return &event, nil
}

// List returns events newest first. pageToken is the RFC3339Nano creation
// time of the last event of the previous page.
func (s *Store) List(ctx context.Context, filter ListFilter, pageSize int, pageToken string) ([]AuditEvent, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	scoped := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&AuditEvent{})
		if filter.Actor != "" {
			q = q.Where("actor = ?", filter.Actor)
		}
		if filter.Action != "" {
			q = q.Where("action = ?", filter.Action)
		}
		if filter.Target != "" {
			q = q.Where("target = ?", filter.Target)
		}
		if filter.Outcome != "" {
			q = q.Where("outcome = ?", filter.Outcome)
		}
		return q
	}

	var totalSize int64
	if err := scoped().Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit events: %w", err)
	}

	query := scoped().Order("created_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []AuditEvent
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit events: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

// DeleteOlderThan deletes events created before cutoff and returns how many
// were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&AuditEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
