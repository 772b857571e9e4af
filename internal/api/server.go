package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/metrics"
	"github.com/truthlens/truthlens/internal/orchestrator"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. cache, bus and reg may be nil; a nil
// registry leaves /metrics unmounted.
func NewServer(cfg domain.ServerConfig, orch *orchestrator.Orchestrator, cache domain.Cache, bus domain.EventBus, reg *prometheus.Registry, version string) *Server {
	handler := NewHandler(orch, cache, bus, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(allowCORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(withScope)
	router.Use(recoverJSON)
	router.Use(withTrace)
	router.Use(logRequests)
	router.Use(middleware.Compress(5))

	router.Get("/", handler.Root)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if reg != nil {
		router.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	}

	router.Group(func(r chi.Router) {
		r.Use(withTenant)

		// Listing assessment
		r.Post("/analyze", handler.Analyze)
		r.Post("/analyze/async", handler.AnalyzeAsync)
		r.Post("/phishing", handler.CheckPhishing)

		// Stored analyses
		r.Get("/analyses", handler.ListAnalyses)
		r.Get("/analyses/{id}", handler.GetAnalysis)

		// Calibration rule management
		r.Get("/calibration/rules", handler.ListCalibrationRules)
		r.Post("/calibration/rules", handler.CreateCalibrationRule)
		r.Post("/calibration/rules/reload", handler.ReloadCalibrationRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
