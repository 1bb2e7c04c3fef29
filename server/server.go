// Package server provides HTTP server management and lifecycle handling for the drug
// predictor API: router setup, middleware, routes and graceful shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giygas/drug-predictor-api/config"
	"github.com/giygas/drug-predictor-api/handlers"
	"github.com/giygas/drug-predictor-api/health"
	"github.com/giygas/drug-predictor-api/interfaces"
	"github.com/giygas/drug-predictor-api/logging"
	"github.com/giygas/drug-predictor-api/metrics"
	"github.com/giygas/drug-predictor-api/validation"
)

// Server represents the HTTP server
type Server struct {
	server      *http.Server
	router      chi.Router
	store       interfaces.ArtifactStore
	handler     interfaces.HTTPHandler
	rateLimiter *RateLimiter
	config      *config.Config
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, store interfaces.ArtifactStore) *Server {
	router := chi.NewRouter()

	validator := validation.NewRecordValidator(cfg.MaxTextFieldLength, cfg.MaxBatchSize)
	checker := health.NewHealthChecker(store, cfg.ArtifactRefreshInterval)

	server := &Server{
		server: &http.Server{
			Handler:           router,
			Addr:              cfg.Address + ":" + cfg.Port,
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    int(cfg.MaxHeaderSize),
		},
		router: router,
		store:  store,
		handler: handlers.NewHTTPHandler(store, validator, checker, handlers.Limits{
			MaxBatchSize:       cfg.MaxBatchSize,
			MaxTextFieldLength: cfg.MaxTextFieldLength,
		}),
		rateLimiter: NewRateLimiter(),
		config:      cfg,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(BlockDirectAccessMiddleware) // before RealIPMiddleware so it sees the original RemoteAddr
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.RequestLogger(logging.Logger()))
	s.router.Use(metrics.Metrics)
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Compress(5, "application/json", "text/csv"))
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestSizeMiddleware(s.config))
	s.router.Use(s.rateLimiter.Handler)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/predict", s.handler.Predict)
		r.Post("/predict/batch", s.handler.PredictBatch)
		r.Get("/schema", s.handler.Schema)
	})

	s.router.Get("/health", s.handler.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Start starts the server and blocks until it stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	if s.config.IsDev() {
		s.startProfilingServer()
	}

	logging.Info("Starting server", "address", s.server.Addr, "env", s.config.Env)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	s.rateLimiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		// If graceful shutdown fails, force close
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}

// startProfilingServer starts the pprof profiling server in development mode
func (s *Server) startProfilingServer() {
	go func() {
		logging.Info("Profiling server started", "url", "http://localhost:6060/debug/pprof/")
		if err := http.ListenAndServe("localhost:6060", middleware.Profiler()); err != nil {
			logging.Warn("Profiling server failed", "error", err)
		}
	}()
}
