package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callforge/callforge/internal/api/middleware"
	"github.com/callforge/callforge/internal/config"
	"github.com/callforge/callforge/internal/database"
	"github.com/callforge/callforge/internal/engine"
	"github.com/callforge/callforge/internal/session"
)

// ArtifactCounter exposes the reconciler's pending-entry count for the
// health endpoint.
type ArtifactCounter interface {
	Pending() int
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router     *chi.Mux
	cfg        *config.Config
	dispatcher *engine.Dispatcher
	registry   *session.Registry
	artifacts  ArtifactCounter
	callLogs   database.CallLogRepository
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates the HTTP handler with all routes mounted. collector
// may be nil when metrics are disabled.
func NewServer(
	cfg *config.Config,
	dispatcher *engine.Dispatcher,
	registry *session.Registry,
	artifacts ArtifactCounter,
	callLogs database.CallLogRepository,
	collector prometheus.Collector,
	logger *slog.Logger,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		cfg:        cfg,
		dispatcher: dispatcher,
		registry:   registry,
		artifacts:  artifacts,
		callLogs:   callLogs,
		logger:     logger,
		startTime:  time.Now(),
	}

	s.routes(collector)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes(collector prometheus.Collector) {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recoverer(s.logger, nil))

	// Provider webhook ingress. The failover route is invoked by the
	// provider only when the primary fails to acknowledge in time; both
	// share the normalizer and dispatcher, so duplicate delivery is safe.
	// A panic while processing a delivery must still produce the 200 ack,
	// so the routes carry their own recoverer.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.Recoverer(s.logger, s.ackPanic))
		r.Post("/telnyx", s.handleWebhook(false))
		r.Post("/telnyx/failover", s.handleWebhook(true))
	})

	// Read-only introspection and reporting under /api/v1.
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/call-logs", s.handleListCallLogs)
	})

	if collector != nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	s.logger.Info("api routes mounted")
}

// handleHealth reports process uptime, live session and pending artifact
// counts, and whether the provider client is configured. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	liveSessions, err := s.registry.Len(r.Context())
	if err != nil {
		s.logger.Error("counting live sessions", "error", err)
		liveSessions = -1
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"uptime_seconds":      int(time.Since(s.startTime).Seconds()),
		"live_sessions":       liveSessions,
		"pending_artifacts":   s.artifacts.Pending(),
		"provider_configured": s.cfg.ProviderConfigured(),
	})
}
