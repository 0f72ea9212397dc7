// Package main provides the registry server entry point. It serves the read
// surfaces and sync triggers, and on the leader replica runs the sync
// scheduler, the job workers and audit retention.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"k8s.io/client-go/kubernetes"

	"github.com/remote-mcp-servers/registry-sync/internal/db"
	"github.com/remote-mcp-servers/registry-sync/pkg/audit"
	"github.com/remote-mcp-servers/registry-sync/pkg/cache"
	"github.com/remote-mcp-servers/registry-sync/pkg/ha"
	"github.com/remote-mcp-servers/registry-sync/pkg/jobs"
	"github.com/remote-mcp-servers/registry-sync/pkg/mcptools"
	"github.com/remote-mcp-servers/registry-sync/pkg/scheduler"
	"github.com/remote-mcp-servers/registry-sync/pkg/server"
	"github.com/remote-mcp-servers/registry-sync/pkg/servers"
	"github.com/remote-mcp-servers/registry-sync/pkg/sources/blockchain"
	"github.com/remote-mcp-servers/registry-sync/pkg/sources/official"
	"github.com/remote-mcp-servers/registry-sync/pkg/syncer"
)

// version is overridden at build time.
var version = "dev"

func main() {
	// A local .env is optional; real deployments set the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		glog.Warningf("Failed to load .env: %v", err)
	}

	serverCfg := server.ConfigFromEnv()
	dbCfg := db.ConfigFromEnv()

	pflag.StringVar(&serverCfg.ListenAddr, "listen", serverCfg.ListenAddr, "Address to listen on")
	pflag.StringVar(&dbCfg.Type, "db-type", dbCfg.Type, "Database type (postgres, mysql or sqlite)")
	pflag.StringVar(&dbCfg.DSN, "db-dsn", dbCfg.DSN, "Database connection string")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting registry server", "version", version, "listen", serverCfg.ListenAddr, "dbType", dbCfg.Type)

	gormDB, err := db.Open(dbCfg)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	serverStore := servers.NewStore(gormDB)
	statusStore := syncer.NewStatusStore(gormDB)
	jobStore := jobs.NewJobStore(gormDB)
	auditStore := audit.NewStore(gormDB)

	haCfg := ha.HAConfigFromEnv()
	if err := ha.Migrate(ctx, haCfg, gormDB,
		serverStore.AutoMigrate,
		statusStore.AutoMigrate,
		jobStore.AutoMigrate,
		auditStore.AutoMigrate,
	); err != nil {
		glog.Fatalf("Failed to migrate database: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	syncCfg := syncer.ConfigFromEnv()
	registry, err := syncer.NewDefaultRegistry(syncCfg, serverStore, syncer.RegistryOptions{
		RunTimeout: syncCfg.RunTimeout,
		Status:     statusStore,
		Metrics:    syncer.NewMetrics(promRegistry),
		Logger:     logger,
	})
	if err != nil {
		glog.Fatalf("Failed to set up sync sources: %v", err)
	}
	logger.Info("sync sources registered", "sources", registry.Names())

	sched, err := scheduler.New(scheduler.ConfigFromEnv(), registry, jobStore, logger)
	if err != nil {
		glog.Fatalf("Failed to set up sync scheduler: %v", err)
	}

	jobCfg := jobs.JobConfigFromEnv()
	pool := jobs.NewWorkerPool(jobStore, registry, jobCfg, logger)

	auditCfg := audit.AuditConfigFromEnv()
	retention := audit.NewRetentionWorker(auditStore, auditCfg, logger)

	var k8sClient kubernetes.Interface
	if haCfg.LeaderElectionEnabled {
		k8sClient, err = ha.NewInClusterClient()
		if err != nil {
			glog.Fatalf("Failed to create in-cluster K8s client for leader election: %v", err)
		}
	}
	elector := ha.NewLeaderElector(haCfg, k8sClient, logger)

	tools := mcptools.NewServer(serverStore, mcptools.Options{
		Name:       "remote-mcp-servers",
		Version:    version,
		Namespaces: []string{official.MetaNamespace, blockchain.MetaNamespace},
		Logger:     logger,
	})

	opts := []server.ServerOption{
		server.WithAudit(auditStore, auditCfg),
		server.WithCacheManager(cache.NewCacheManager(cache.CacheConfigFromEnv())),
		server.WithSchedules(sched.Schedules()),
		server.WithLeaderElector(elector),
		server.WithMCPHandler(tools.Handler()),
		server.WithMetricsHandler(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{Registry: promRegistry})),
	}
	if jobCfg.Enabled {
		opts = append(opts, server.WithJobStore(jobStore))
	}
	srv := server.NewServer(serverCfg, gormDB, registry, logger, opts...)

	// Leader-only loops.
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		elector.Run(ctx, sched.Run, pool.Run, retention.Run)
	}()

	httpServer := &http.Server{
		Addr:              serverCfg.ListenAddr,
		Handler:           srv.MountRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("registry server ready", "listen", serverCfg.ListenAddr, "schedules", sched.Schedules())

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	select {
	case <-leaderDone:
	case <-shutdownCtx.Done():
		logger.Warn("background loops did not stop before the shutdown deadline")
	}

	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("registry server stopped")
}
