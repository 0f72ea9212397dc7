// Package syncer runs sync passes: fetch a source's index, fetch each
// listing's detail, normalize, and upsert the batch into the canonical
// table.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/remote-mcp-servers/registry-sync/pkg/identity"
	"github.com/remote-mcp-servers/registry-sync/pkg/servers"
)

// NoRecordsMessage is reported when nothing survives normalization.
const NoRecordsMessage = "No valid servers to sync after transformation"

// State is the lifecycle position of a run.
type State string

const (
	StateIdle          State = "idle"
	StateFetchingIndex State = "fetching-index"
	StateNormalizing   State = "normalizing"
	StateUpserting     State = "upserting"
	StateSucceeded     State = "succeeded"
	StateFailed        State = "failed"
)

// Source is one upstream registry. L is an index entry and E the detailed
// record built from it.
type Source[L, E any] interface {
	// Name is the short source name used in routes and presence rows.
	Name() string
	// Index returns every listing. An error fails the run.
	Index(ctx context.Context) ([]L, error)
	// Key returns the natural key of a listing, or "" when it has none.
	Key(listing L) string
	// Detail fetches the full record of one listing. An error skips only
	// that listing.
	Detail(ctx context.Context, listing L) (E, error)
	// Normalize maps a record onto the canonical schema. A nil server
	// means the record is skipped.
	Normalize(entry E) (*servers.Server, error)
}

// Result reports one run.
type Result struct {
	Source         string        `json:"source"`
	Listings       int           `json:"listings"`
	Processed      int           `json:"serversProcessed"`
	Skipped        int           `json:"skipped"`
	DetailFailures int           `json:"detailFailures"`
	Retired        int           `json:"retired"`
	Duration       time.Duration `json:"duration"`
	Message        string        `json:"message"`
}

// Runner is a type-erased pipeline.
type Runner interface {
	Name() string
	Title() string
	State() State
	Run(ctx context.Context) (*Result, error)
}

// PipelineOptions configure a Pipeline.
type PipelineOptions struct {
	// Title is the human-readable source name used in messages.
	Title             string
	DetailConcurrency int
	RetireAfter       int
	Logger            *slog.Logger
	// Now overrides the sync clock.
	Now func() time.Time
}

// Pipeline runs one source into the store.
type Pipeline[L, E any] struct {
	source  Source[L, E]
	store   *servers.Store
	deriver *identity.Deriver
	opts    PipelineOptions
	logger  *slog.Logger
	state   atomic.Value
}

// NewPipeline creates a Pipeline. The deriver must be the one the source
// normalizes with.
func NewPipeline[L, E any](source Source[L, E], store *servers.Store, deriver *identity.Deriver, opts PipelineOptions) *Pipeline[L, E] {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DetailConcurrency < 1 {
		opts.DetailConcurrency = 1
	}
	if opts.Title == "" {
		opts.Title = source.Name()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &Pipeline[L, E]{
		source:  source,
		store:   store,
		deriver: deriver,
		opts:    opts,
		logger:  opts.Logger.With("source", source.Name()),
	}
	p.state.Store(StateIdle)
	return p
}

func (p *Pipeline[L, E]) Name() string  { return p.source.Name() }
func (p *Pipeline[L, E]) Title() string { return p.opts.Title }

// State returns the position of the current or last run.
func (p *Pipeline[L, E]) State() State { return p.state.Load().(State) }

func (p *Pipeline[L, E]) setState(s State) {
	p.state.Store(s)
	p.logger.Debug("sync state", "state", s)
}

// Run executes one sync pass.
func (p *Pipeline[L, E]) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{Source: p.source.Name()}
	defer func() { res.Duration = time.Since(start) }()

	p.setState(StateFetchingIndex)
	listings, err := p.source.Index(ctx)
	if err != nil {
		p.setState(StateFailed)
		return res, fmt.Errorf("fetch index: %w", err)
	}
	res.Listings = len(listings)
	p.logger.Info("fetched listing index", "listings", len(listings))

	p.setState(StateNormalizing)
	entries, failures := p.fetchDetails(ctx, listings)
	res.DetailFailures = failures
	if err := ctx.Err(); err != nil {
		p.setState(StateFailed)
		return res, fmt.Errorf("fetch details: %w", err)
	}

	records := make([]servers.Server, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		srv, err := p.source.Normalize(*entry)
		if err != nil {
			p.logger.Warn("normalization failed, skipping", "error", err)
			res.Skipped++
			continue
		}
		if srv == nil {
			res.Skipped++
			continue
		}
		records = append(records, *srv)
	}

	if len(records) == 0 {
		res.Message = NoRecordsMessage
		p.logger.Info(res.Message, "listings", len(listings), "detailFailures", failures)
		p.setState(StateSucceeded)
		return res, nil
	}

	p.setState(StateUpserting)
	var unfetched []string
	for i, entry := range entries {
		if entry != nil {
			continue
		}
		if key := p.source.Key(listings[i]); key != "" {
			unfetched = append(unfetched, p.deriver.Derive(key))
		}
	}
	upserted, err := p.store.Upsert(ctx, servers.Batch{
		Source:       p.source.Name(),
		Servers:      records,
		UnfetchedIDs: unfetched,
		SyncedAt:     p.opts.Now(),
		RetireAfter:  p.opts.RetireAfter,
	})
	if err != nil {
		p.setState(StateFailed)
		return res, fmt.Errorf("upsert: %w", err)
	}

	res.Processed = upserted.Upserted
	res.Retired = upserted.Retired
	res.Message = fmt.Sprintf("Successfully synced %d servers from %s", res.Processed, p.opts.Title)
	p.logger.Info("sync complete",
		"processed", res.Processed,
		"skipped", res.Skipped,
		"detailFailures", res.DetailFailures,
		"retired", res.Retired)
	p.setState(StateSucceeded)
	return res, nil
}

// fetchDetails returns one slot per listing, in listing order; failed
// fetches leave a nil slot.
func (p *Pipeline[L, E]) fetchDetails(ctx context.Context, listings []L) ([]*E, int) {
	out := make([]*E, len(listings))
	var failures atomic.Int32

	fetch := func(ctx context.Context, i int) {
		l := listings[i]
		key := p.source.Key(l)
		p.logger.Debug("fetching details", "key", key)
		entry, err := p.source.Detail(ctx, l)
		if err != nil {
			p.logger.Warn("failed to fetch details, skipping", "key", key, "error", err)
			failures.Add(1)
			return
		}
		out[i] = &entry
	}

	if p.opts.DetailConcurrency == 1 {
		for i := range listings {
			if ctx.Err() != nil {
				break
			}
			fetch(ctx, i)
		}
		return out, int(failures.Load())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.DetailConcurrency)
	for i := range listings {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fetch(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return out, int(failures.Load())
}
