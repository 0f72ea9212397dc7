// Package server assembles the registry HTTP surface: sync triggers, the
// sync status page, manual sync jobs, the v0 read API, the markdown mirror
// and the MCP tool endpoint.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/remote-mcp-servers/registry-sync/internal/server/openapi"
	"github.com/remote-mcp-servers/registry-sync/pkg/audit"
	"github.com/remote-mcp-servers/registry-sync/pkg/authz"
	"github.com/remote-mcp-servers/registry-sync/pkg/cache"
	"github.com/remote-mcp-servers/registry-sync/pkg/ha"
	"github.com/remote-mcp-servers/registry-sync/pkg/jobs"
	"github.com/remote-mcp-servers/registry-sync/pkg/servers"
	"github.com/remote-mcp-servers/registry-sync/pkg/syncer"
)

// Server holds the stores and collaborators behind the HTTP routes.
type Server struct {
	cfg            *Config
	db             *gorm.DB
	registry       *syncer.Registry
	servers        *servers.Store
	status         *syncer.StatusStore
	jobStore       *jobs.JobStore
	auditStore     *audit.Store
	auditConfig    *audit.AuditConfig
	cacheManager   *cache.CacheManager
	secret         authz.SecretFunc
	rateLimiter    *TriggerRateLimiter
	schedules      map[string]string
	leaderElector  *ha.LeaderElector
	mcpHandler     http.Handler
	metricsHandler http.Handler
	logger         *slog.Logger
	startedAt      time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSecret sets where the trigger secret comes from. Defaults to
// CRON_SECRET.
func WithSecret(secret authz.SecretFunc) ServerOption {
	return func(s *Server) { s.secret = secret }
}

// WithJobStore enables manual sync jobs and the job API.
func WithJobStore(store *jobs.JobStore) ServerOption {
	return func(s *Server) { s.jobStore = store }
}

// WithAudit enables the audit trail and its API.
func WithAudit(store *audit.Store, cfg *audit.AuditConfig) ServerOption {
	return func(s *Server) {
		s.auditStore = store
		s.auditConfig = cfg
	}
}

// WithCacheManager enables response caching of the read surfaces.
func WithCacheManager(cm *cache.CacheManager) ServerOption {
	return func(s *Server) { s.cacheManager = cm }
}

// WithRateLimiter limits direct sync triggers. By default a limiter is
// built from Config.TriggerInterval.
func WithRateLimiter(rl *TriggerRateLimiter) ServerOption {
	return func(s *Server) { s.rateLimiter = rl }
}

// WithSchedules sets the cron expressions reported by the status page.
func WithSchedules(schedules map[string]string) ServerOption {
	return func(s *Server) { s.schedules = schedules }
}

// WithLeaderElector reports leadership on /readyz.
func WithLeaderElector(le *ha.LeaderElector) ServerOption {
	return func(s *Server) { s.leaderElector = le }
}

// WithMCPHandler mounts the MCP tool endpoint at /api/mcp.
func WithMCPHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.mcpHandler = h }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metricsHandler = h }
}

// NewServer creates a Server over db that triggers syncs through registry.
func NewServer(cfg *Config, db *gorm.DB, registry *syncer.Registry, logger *slog.Logger, opts ...ServerOption) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		db:        db,
		registry:  registry,
		servers:   servers.NewStore(db),
		status:    syncer.NewStatusStore(db),
		secret:    authz.SecretFromEnv(),
		logger:    logger,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheManager != nil {
		registry.OnFinish(func(source string, _ *syncer.Result, _ error) {
			s.cacheManager.InvalidateAll()
			s.logger.Debug("response cache invalidated", "source", source)
		})
	}
	if s.rateLimiter == nil && cfg.TriggerInterval > 0 {
		s.rateLimiter = NewTriggerRateLimiter(cfg.TriggerInterval)
	}
	return s
}

// protect admits only bearer-authenticated callers and names them on the
// audit event.
func (s *Server) protect(next http.Handler) http.Handler {
	return authz.RequireBearer(s.secret)(audit.RecordCaller(next))
}

// MountRoutes creates the HTTP router with every route mounted.
func (s *Server) MountRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"Link", "X-Cache", "Mcp-Session-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(authz.IdentityMiddleware())

	if s.auditStore != nil && s.auditConfig != nil && s.auditConfig.Enabled {
		r.Use(audit.AuditMiddleware(s.auditStore, s.auditConfig, s.logger))
		s.logger.Info("audit middleware enabled",
			"logDenied", s.auditConfig.LogDenied,
			"retention", s.auditConfig.Retention.String())
	}

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	// Sync triggers. The hosting cron may call with either method.
	triggers := r.With(s.protect)
	for pattern, source := range map[string]string{
		"/api/sync-blockchain":  "blockchain",
		"/api/sync-mcp-remotes": syncer.AliasOfficial,
		"/api/sync/{source}":    "",
	} {
		triggers.Get(pattern, s.triggerHandler(source))
		triggers.Post(pattern, s.triggerHandler(source))
	}
	triggers.Post("/api/manual-sync", s.manualSyncHandler)

	r.With(s.cacheManager.StatusMiddleware()).Get("/api/sync-status", s.syncStatusHandler)

	cached := []func(http.Handler) http.Handler{s.cacheManager.ServersMiddleware()}
	openapi.Mount(r, cached, openapi.NewServersAPIController(openapi.NewServersAPIService(s.servers)))

	r.With(cached...).Get("/servers.md", s.serversMarkdownHandler)
	r.With(cached...).Get("/servers/{id}.md", s.serverMarkdownHandler)
	r.Get("/about.md", s.aboutMarkdownHandler)

	if s.mcpHandler != nil {
		r.Handle("/api/mcp", s.mcpHandler)
		s.logger.Info("mounted MCP tool endpoint", "path", "/api/mcp")
	}

	if s.jobStore != nil {
		r.Mount("/api/jobs/v1alpha1", jobs.Router(s.jobStore, s.protect))
		s.logger.Info("mounted job API routes")
	}

	if s.auditStore != nil {
		r.Group(func(r chi.Router) {
			r.Use(authz.RequireBearer(s.secret))
			r.Mount("/api/audit/v1alpha1", audit.Router(s.auditStore))
		})
		s.logger.Info("mounted audit API routes")
	}

	return r
}

// healthHandler returns the liveness status of the server.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// readyHandler checks database connectivity and reports leadership.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ready := true

	dbStatus := map[string]string{"status": "up"}
	if sqlDB, err := s.db.DB(); err != nil {
		dbStatus["status"], dbStatus["error"] = "down", err.Error()
		ready = false
	} else if err := sqlDB.PingContext(r.Context()); err != nil {
		dbStatus["status"], dbStatus["error"] = "down", err.Error()
		ready = false
	}

	leaderStatus := map[string]string{"status": "not_configured"}
	if s.leaderElector != nil {
		leaderStatus["status"] = "follower"
		if s.leaderElector.IsLeader() {
			leaderStatus["status"] = "leader"
		}
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"components": map[string]any{
			"database":        dbStatus,
			"sources":         s.registry.Names(),
			"leader_election": leaderStatus,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorBody is the error envelope of the sync endpoints.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorBody{Error: message, Details: details})
}
