// Package scheduler enqueues sync jobs on cron schedules. It replaces the
// hosting platform's cron and runs only on the leader replica.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/remote-mcp-servers/registry-sync/pkg/authz"
	"github.com/remote-mcp-servers/registry-sync/pkg/jobs"
	"github.com/remote-mcp-servers/registry-sync/pkg/syncer"
)

// Enqueuer accepts scheduled jobs. *jobs.JobStore satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *jobs.SyncJob) (*jobs.SyncJob, bool, error)
}

// Resolver maps a configured source name or alias to its runner.
// *syncer.Registry satisfies it.
type Resolver interface {
	Resolve(name string) (syncer.Runner, bool)
}

// Scheduler owns a cron instance with one entry per scheduled source.
type Scheduler struct {
	cfg     *Config
	cron    *cron.Cron
	queue   Enqueuer
	logger  *slog.Logger
	entries map[string]cron.EntryID
	ctx     context.Context
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New validates every schedule and registers it. Unknown sources and
// invalid expressions are errors.
func New(cfg *Config, resolver Resolver, queue Enqueuer, logger *slog.Logger) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cfg:     cfg,
		queue:   queue,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
	cronLog := cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	names := make([]string, 0, len(cfg.Schedules))
	for name := range cfg.Schedules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		runner, ok := resolver.Resolve(name)
		if !ok {
			return nil, fmt.Errorf("schedule %q: %w", name, syncer.ErrUnknownSource)
		}
		source := runner.Name()
		id, err := s.cron.AddFunc(cfg.Schedules[name], func() { s.enqueue(s.ctx, source) })
		if err != nil {
			return nil, fmt.Errorf("schedule %q: invalid cron expression %q: %w", name, cfg.Schedules[name], err)
		}
		s.entries[name] = id
	}

	return s, nil
}

// Schedules returns the configured expressions keyed by the configured
// name, for status reporting.
func (s *Scheduler) Schedules() map[string]string {
	return maps.Clone(s.cfg.Schedules)
}

// NextRuns returns the next activation time of each schedule. It is empty
// until Run has started the cron.
func (s *Scheduler) NextRuns() map[string]time.Time {
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		if next := s.cron.Entry(id).Next; !next.IsZero() {
			out[name] = next
		}
	}
	return out
}

// Run starts the cron and blocks until ctx is canceled, then waits for
// in-flight enqueues to finish.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Enabled || len(s.entries) == 0 {
		s.logger.Info("sync scheduler disabled", "enabled", s.cfg.Enabled, "schedules", len(s.entries))
		return
	}

	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("sync scheduler started", "schedules", s.cfg.Schedules)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("sync scheduler stopped")
}

func (s *Scheduler) enqueue(ctx context.Context, source string) {
	job, created, err := s.queue.Enqueue(ctx, jobs.NewSyncJob(source, jobs.TriggerScheduled, authz.CallerScheduler))
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("failed to enqueue scheduled sync", "source", source, "error", err)
		}
		return
	}
	if !created {
		s.logger.Info("scheduled sync already pending", "source", source, "jobID", job.ID, "state", job.State)
		return
	}
	s.logger.Info("scheduled sync enqueued", "source", source, "jobID", job.ID)
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
