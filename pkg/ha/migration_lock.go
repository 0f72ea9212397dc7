package ha

import (
	"context"
	"fmt"
	"hash/crc32"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const migrationLockName = "registry-sync-migration"

// MigrationLocker serializes schema migration across replicas.
type MigrationLocker interface {
	// WithLock runs fn while holding the migration lock. It blocks until
	// the lock is acquired or ctx ends.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker returns a locker suited to the dialect of db. Postgres
// uses a session advisory lock; other dialects use a lock table, created
// here so the first WithLock call never races its creation.
func NewMigrationLocker(db *gorm.DB, owner string) MigrationLocker {
	if db == nil {
		return noopMigrationLock{}
	}
	if db.Dialector.Name() == "postgres" {
		return &pgAdvisoryLock{
			db:     db,
			lockID: int64(crc32.ChecksumIEEE([]byte(migrationLockName))),
		}
	}
	if owner == "" {
		owner = defaultIdentity()
	}
	_ = db.AutoMigrate(&migrationLockRecord{})
	return &tableMigrationLock{
		db:            db,
		owner:         owner,
		retryInterval: time.Second,
		maxAttempts:   60,
		staleAfter:    5 * time.Minute,
	}
}

// Migrate runs every migration under one acquisition of the lock. A
// disabled config runs them unlocked.
func Migrate(ctx context.Context, cfg *HAConfig, db *gorm.DB, migrations ...func() error) error {
	var locker MigrationLocker = noopMigrationLock{}
	if cfg == nil || cfg.MigrationLockEnabled {
		owner := ""
		if cfg != nil {
			owner = cfg.Identity
		}
		locker = NewMigrationLocker(db, owner)
	}
	return locker.WithLock(ctx, func() error {
		for _, m := range migrations {
			if err := m(); err != nil {
				return err
			}
		}
		return nil
	})
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	// Advisory locks belong to a session, so lock and unlock share one
	// pooled connection.
	conn, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	sess, err := conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("reserve connection for migration lock: %w", err)
	}
	defer sess.Close()

	if _, err := sess.ExecContext(ctx, "SELECT pg_advisory_lock($1)", l.lockID); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		_, _ = sess.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", l.lockID)
	}()

	return fn()
}

// migrationLockRecord is the lock row used on dialects without advisory
// locks.
type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRecord) TableName() string { return "migration_lock" }

// tableMigrationLock holds the lock while its row exists. Rows older than
// staleAfter are treated as left behind by a crashed replica.
type tableMigrationLock struct {
	db            *gorm.DB
	owner         string
	retryInterval time.Duration
	maxAttempts   int
	staleAfter    time.Duration
}

func (l *tableMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	db := l.db.WithContext(ctx)

	acquired := false
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		db.Where("id = ? AND locked_at < ?", migrationLockName, time.Now().Add(-l.staleAfter)).
			Delete(&migrationLockRecord{})

		row := migrationLockRecord{ID: migrationLockName, LockedAt: time.Now(), LockedBy: l.owner}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error == nil && res.RowsAffected == 1 {
			acquired = true
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
	if !acquired {
		return fmt.Errorf("acquire migration lock: gave up after %d attempts", l.maxAttempts)
	}

	defer func() {
		l.db.WithContext(context.WithoutCancel(ctx)).
			Where("id = ? AND locked_by = ?", migrationLockName, l.owner).
			Delete(&migrationLockRecord{})
	}()

	return fn()
}
