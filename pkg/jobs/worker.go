package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/remote-mcp-servers/registry-sync/pkg/syncer"
)

// SourceRunner executes one sync run of a named source. It is satisfied by
// *syncer.Registry.
type SourceRunner interface {
	Run(ctx context.Context, source string) (*syncer.Result, error)
}

// WorkerPool processes queued sync jobs using a pool of goroutines.
type WorkerPool struct {
	store  *JobStore
	runner SourceRunner
	cfg    *JobConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(store *JobStore, runner SourceRunner, cfg *JobConfig, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultJobConfig()
	}
	return &WorkerPool{
		store:  store,
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts cfg.Concurrency polling workers plus the cleanup loop and
// blocks until ctx is canceled and every worker has returned.
func (wp *WorkerPool) Run(ctx context.Context) {
	if wp.store == nil || !wp.cfg.Enabled {
		wp.logger.Info("job worker pool disabled")
		return
	}

	wp.logger.Info("job worker pool starting",
		"concurrency", wp.cfg.Concurrency,
		"maxRetries", wp.cfg.MaxRetries,
		"pollInterval", wp.cfg.PollInterval.String())

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		wp.cleanupLoop(ctx)
	}()

	for i := 0; i < wp.cfg.Concurrency; i++ {
		wp.wg.Add(1)
		go func(workerID int) {
			defer wp.wg.Done()
			wp.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	wp.logger.Info("job worker pool shutting down, waiting for workers to finish")
	wp.wg.Wait()
	wp.logger.Info("job worker pool stopped")
}

func (wp *WorkerPool) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.processOne(ctx, workerID)
		}
	}
}

// processOne claims and runs at most one job.
func (wp *WorkerPool) processOne(ctx context.Context, workerID int) {
	job, err := wp.store.Claim(ctx, wp.cfg.MaxRetries)
	if err != nil {
		if ctx.Err() == nil {
			wp.logger.Error("failed to claim job", "workerID", workerID, "error", err)
		}
		return
	}
	if job == nil {
		return
	}

	log := wp.logger.With("workerID", workerID, "jobID", job.ID, "source", job.Source)
	log.Info("processing job", "trigger", job.Trigger, "attempt", job.AttemptCount)

	// Bookkeeping must land even when shutdown cancels the run.
	bg := context.WithoutCancel(ctx)

	res, err := wp.runner.Run(ctx, job.Source)
	switch {
	case errors.Is(err, syncer.ErrRunInProgress):
		log.Info("source busy, returning job to queue")
		if err := wp.store.Release(bg, job.ID); err != nil {
			log.Error("failed to release job", "error", err)
		}
		return
	case err != nil:
		log.Error("job failed", "error", err)
		if failErr := wp.store.Fail(bg, job.ID, err.Error(), wp.cfg.MaxRetries); failErr != nil {
			log.Error("failed to mark job as failed", "error", failErr)
		}
		return
	}

	log.Info("job completed",
		"serversProcessed", res.Processed,
		"retired", res.Retired,
		"duration", res.Duration.String())

	out := Outcome{
		Processed:      res.Processed,
		Retired:        res.Retired,
		DetailFailures: res.DetailFailures,
		Duration:       res.Duration,
		Message:        res.Message,
	}
	if err := wp.store.Complete(bg, job.ID, out); err != nil {
		log.Error("failed to mark job as complete", "error", err)
	}
}

// cleanupLoop periodically recovers stuck jobs and deletes old finished ones.
func (wp *WorkerPool) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.cleanup(ctx)
		}
	}
}

func (wp *WorkerPool) cleanup(ctx context.Context) {
	if wp.cfg.ClaimTimeout > 0 {
		recovered, err := wp.store.CleanupStuckJobs(ctx, wp.cfg.ClaimTimeout, wp.cfg.MaxRetries)
		if err != nil {
			wp.logger.Error("failed to cleanup stuck jobs", "error", err)
		} else if recovered > 0 {
			wp.logger.Info("recovered stuck jobs", "count", recovered)
		}
	}

	if wp.cfg.Retention > 0 {
		cutoff := time.Now().UTC().Add(-wp.cfg.Retention)
		deleted, err := wp.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			wp.logger.Error("failed to delete old jobs", "error", err)
		} else if deleted > 0 {
			wp.logger.Info("deleted old jobs", "count", deleted)
		}
	}
}
