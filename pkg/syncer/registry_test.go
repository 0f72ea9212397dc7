package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRunner runs fn, or succeeds with a fixed result.
type stubRunner struct {
	name string
	fn   func(ctx context.Context) (*Result, error)
}

func (s *stubRunner) Name() string  { return s.name }
func (s *stubRunner) Title() string { return s.name }
func (s *stubRunner) State() State  { return StateIdle }

func (s *stubRunner) Run(ctx context.Context) (*Result, error) {
	if s.fn != nil {
		return s.fn(ctx)
	}
	return &Result{Source: s.name, Processed: 3, Message: "ok"}, nil
}

func TestRegistry_ResolveAliases(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	reg.Register(&stubRunner{name: "official"}, AliasOfficial)
	reg.Register(&stubRunner{name: "blockchain"})

	r, ok := reg.Resolve("mcp-remotes")
	require.True(t, ok)
	assert.Equal(t, "official", r.Name())

	_, ok = reg.Resolve("nope")
	assert.False(t, ok)
	assert.Equal(t, []string{"blockchain", "official"}, reg.Names())
}

func TestRegistry_UnknownSource(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	_, err := reg.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestRegistry_RejectsOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	reg := NewRegistry(RegistryOptions{})
	reg.Register(&stubRunner{name: "slow", fn: func(ctx context.Context) (*Result, error) {
		once.Do(func() { close(started) })
		<-release
		return &Result{Source: "slow"}, nil
	}})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := reg.Run(context.Background(), "slow")
		assert.NoError(t, err)
	}()

	<-started
	_, err := reg.Run(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	wg.Wait()

	// The lock is released after the first run finishes.
	_, err = reg.Run(context.Background(), "slow")
	assert.NoError(t, err)
}

func TestRegistry_RunTimeout(t *testing.T) {
	db := setupTestDB(t)
	status := NewStatusStore(db)
	reg := NewRegistry(RegistryOptions{RunTimeout: 20 * time.Millisecond, Status: status})
	reg.Register(&stubRunner{name: "stuck", fn: func(ctx context.Context) (*Result, error) {
		<-ctx.Done()
		return &Result{Source: "stuck"}, ctx.Err()
	}})

	_, err := reg.Run(context.Background(), "stuck")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	record, err := status.Get(context.Background(), "stuck")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, string(StateFailed), record.LastState)
	assert.Contains(t, record.LastError, "deadline exceeded")
}

func TestRegistry_FinishHooksStatusAndMetrics(t *testing.T) {
	db := setupTestDB(t)
	status := NewStatusStore(db)
	metrics := NewMetrics(prometheus.NewRegistry())
	reg := NewRegistry(RegistryOptions{Status: status, Metrics: metrics})
	reg.Register(&stubRunner{name: "ok"})
	reg.Register(&stubRunner{name: "bad", fn: func(ctx context.Context) (*Result, error) {
		return &Result{Source: "bad", DetailFailures: 2}, errors.New("index down")
	}})

	hooked := map[string]error{}
	reg.OnFinish(func(source string, res *Result, err error) { hooked[source] = err })

	res, err := reg.Run(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)

	_, err = reg.Run(context.Background(), "bad")
	require.Error(t, err)

	require.Len(t, hooked, 2)
	assert.NoError(t, hooked["ok"])
	assert.EqualError(t, hooked["bad"], "index down")

	records, err := status.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "bad", records[0].Source)
	assert.Equal(t, "Sync failed", records[0].Summary)
	assert.Equal(t, "index down", records[0].LastError)
	assert.Equal(t, "ok", records[1].Source)
	assert.Equal(t, string(StateSucceeded), records[1].LastState)
	assert.Equal(t, 3, records[1].ServersProcessed)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("ok", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("bad", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ServersProcessed.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DetailFailures.WithLabelValues("bad")))
}

func TestStatusStore_GetMissing(t *testing.T) {
	record, err := NewStatusStore(setupTestDB(t)).Get(context.Background(), "never")
	require.NoError(t, err)
	assert.Nil(t, record)
}
