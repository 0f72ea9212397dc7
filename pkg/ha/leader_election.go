package ha

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
)

// Loop is a background loop that must run on one replica only. It returns
// when ctx is canceled.
type Loop func(ctx context.Context)

// LeaderElector runs leader-only loops. With election disabled the loops
// start immediately; otherwise they start when this replica acquires the
// Lease and are canceled when it loses it.
type LeaderElector struct {
	config   *HAConfig
	client   kubernetes.Interface
	isLeader atomic.Bool
	logger   *slog.Logger
}

// NewLeaderElector creates a new LeaderElector. client may be nil when
// election is disabled.
func NewLeaderElector(cfg *HAConfig, client kubernetes.Interface, logger *slog.Logger) *LeaderElector {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultHAConfig()
	}
	return &LeaderElector{
		config: cfg,
		client: client,
		logger: logger,
	}
}

// NewInClusterClient builds a Kubernetes client from the pod's service
// account.
func NewInClusterClient() (kubernetes.Interface, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("load in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return client, nil
}

// IsLeader returns true while this replica runs the leader-only loops.
func (le *LeaderElector) IsLeader() bool {
	return le.isLeader.Load()
}

// Run blocks until ctx is canceled, running loops whenever this replica is
// the leader. After losing leadership it rejoins the election.
func (le *LeaderElector) Run(ctx context.Context, loops ...Loop) {
	if !le.config.LeaderElectionEnabled || le.client == nil {
		le.logger.Info("leader election disabled, running leader loops locally")
		le.lead(ctx, loops)
		return
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      le.config.LeaseName,
			Namespace: le.config.LeaseNamespace,
		},
		Client: le.client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: le.config.Identity,
		},
	}

	le.logger.Info("starting leader election",
		"identity", le.config.Identity,
		"lease", le.config.LeaseName,
		"namespace", le.config.LeaseNamespace)

	for ctx.Err() == nil {
		leaderelection.RunOrDie(ctx, leaderelection.LeaderElectionConfig{
			Lock:            lock,
			LeaseDuration:   le.config.LeaseDuration,
			RenewDeadline:   le.config.RenewDeadline,
			RetryPeriod:     le.config.RetryPeriod,
			ReleaseOnCancel: true,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(leadCtx context.Context) {
					le.logger.Info("elected as leader", "identity", le.config.Identity)
					le.lead(leadCtx, loops)
				},
				OnStoppedLeading: func() {
					le.logger.Info("lost leadership", "identity", le.config.Identity)
				},
				OnNewLeader: func(identity string) {
					if identity != le.config.Identity {
						le.logger.Info("new leader elected", "leader", identity)
					}
				},
			},
		})
	}
}

// lead runs every loop until ctx ends and waits for all of them.
func (le *LeaderElector) lead(ctx context.Context, loops []Loop) {
	le.isLeader.Store(true)
	defer le.isLeader.Store(false)

	var wg sync.WaitGroup
	for _, loop := range loops {
		wg.Add(1)
		go func(loop Loop) {
			defer wg.Done()
			loop(ctx)
		}(loop)
	}
	wg.Wait()
}
