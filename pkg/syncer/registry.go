package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownSource is returned for source names nothing is registered
	// under.
	ErrUnknownSource = errors.New("unknown sync source")
	// ErrRunInProgress is returned when the source is already syncing in
	// this process.
	ErrRunInProgress = errors.New("sync already in progress")
)

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	RunTimeout time.Duration
	Status     *StatusStore
	Metrics    *Metrics
	Logger     *slog.Logger
}

// Registry owns the runners and serializes runs per source.
type Registry struct {
	mu        sync.RWMutex
	runners   map[string]Runner
	aliases   map[string]string
	locks     map[string]*sync.Mutex
	onFinish  []func(source string, res *Result, err error)

	timeout time.Duration
	status  *StatusStore
	metrics *Metrics
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		runners: make(map[string]Runner),
		aliases: make(map[string]string),
		locks:   make(map[string]*sync.Mutex),
		timeout: opts.RunTimeout,
		status:  opts.Status,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Register adds a runner under its name and any aliases.
func (r *Registry) Register(runner Runner, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := runner.Name()
	r.runners[name] = runner
	r.locks[name] = &sync.Mutex{}
	for _, a := range aliases {
		r.aliases[a] = name
	}
}

// OnFinish adds a hook called after every run, failed or not, once its
// status has been saved. err is nil for a successful run.
func (r *Registry) OnFinish(fn func(source string, res *Result, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFinish = append(r.onFinish, fn)
}

// Resolve finds a runner by name or alias.
func (r *Registry) Resolve(name string) (Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	runner, ok := r.runners[name]
	return runner, ok
}

// Names returns the canonical source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one sync pass of the named source, bounded by the run
// timeout. Runs of the same source never overlap.
func (r *Registry) Run(ctx context.Context, name string) (*Result, error) {
	runner, ok := r.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	source := runner.Name()

	r.mu.RLock()
	lock := r.locks[source]
	hooks := append([]func(string, *Result, error){}, r.onFinish...)
	r.mu.RUnlock()

	if !lock.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, source)
	}
	defer lock.Unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	startedAt := time.Now().UTC()
	r.logger.Info("sync run starting", "source", source)
	res, err := runner.Run(ctx)

	r.metrics.observe(source, res, err)
	if r.status != nil {
		if saveErr := r.status.Save(context.WithoutCancel(ctx), source, startedAt, res, err); saveErr != nil {
			r.logger.Error("failed to save run status", "source", source, "error", saveErr)
		}
	}

	defer func() {
		for _, fn := range hooks {
			fn(source, res, err)
		}
	}()

	if err != nil {
		r.logger.Error("sync run failed", "source", source, "error", err)
		return res, err
	}
	r.logger.Info("sync run finished", "source", source, "processed", res.Processed, "duration", res.Duration.String())
	return res, nil
}
