package ha

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestLeaderElector_NotLeaderInitially(t *testing.T) {
	le := NewLeaderElector(&HAConfig{LeaderElectionEnabled: true}, nil, nil)
	if le.IsLeader() {
		t.Error("IsLeader should return false initially")
	}
	if le.logger == nil {
		t.Error("logger should default to slog.Default() when nil")
	}
}

func TestLeaderElector_DisabledRunsLoopsLocally(t *testing.T) {
	le := NewLeaderElector(&HAConfig{LeaderElectionEnabled: false}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int32
	done := make(chan struct{})
	go func() {
		le.Run(ctx,
			func(ctx context.Context) { started.Add(1); <-ctx.Done() },
			func(ctx context.Context) { started.Add(1); <-ctx.Done() },
		)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for started.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("loops did not start")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if !le.IsLeader() {
		t.Error("IsLeader should be true while loops run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if le.IsLeader() {
		t.Error("IsLeader should be false after Run returns")
	}
}

func TestLeaderElector_AcquiresLease(t *testing.T) {
	client := fake.NewSimpleClientset()
	cfg := &HAConfig{
		LeaderElectionEnabled: true,
		LeaseName:             "registry-sync-leader",
		LeaseNamespace:        "default",
		LeaseDuration:         2 * time.Second,
		RenewDeadline:         time.Second,
		RetryPeriod:           200 * time.Millisecond,
		Identity:              "replica-a",
	}
	le := NewLeaderElector(cfg, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	leading := make(chan struct{})
	go le.Run(ctx, func(ctx context.Context) {
		close(leading)
		<-ctx.Done()
	})

	select {
	case <-leading:
	case <-time.After(5 * time.Second):
		t.Fatal("replica never became leader")
	}
	if !le.IsLeader() {
		t.Error("IsLeader should be true once elected")
	}

	lease, err := client.CoordinationV1().Leases("default").Get(context.Background(), "registry-sync-leader", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("get lease: %v", err)
	}
	if lease.Spec.HolderIdentity == nil || *lease.Spec.HolderIdentity != "replica-a" {
		t.Errorf("lease holder = %v, want replica-a", lease.Spec.HolderIdentity)
	}
}
