package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FairForge/globalfailover/internal/config"
	"github.com/FairForge/globalfailover/internal/database"
	"github.com/FairForge/globalfailover/internal/failover"
	"github.com/FairForge/globalfailover/internal/metrics"
)

// BuildInfo is reported by /version
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Go      string `json:"go"`
}

// Server exposes the orchestrator over HTTP
type Server struct {
	config     config.ServerConfig
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server

	orch    *failover.Orchestrator
	history database.Store
	metrics *metrics.Metrics
	ready   func(ctx context.Context) error
	build   BuildInfo

	startTime time.Time
}

// Option configures a Server
type Option func(*Server)

// WithHistory enables the event listing endpoint
func WithHistory(store database.Store) Option {
	return func(s *Server) {
		s.history = store
	}
}

// WithMetrics serves m on /metrics and records request metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithReadiness sets the check behind /ready
func WithReadiness(check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.ready = check
	}
}

// WithBuildInfo sets the version reported by /version
func WithBuildInfo(b BuildInfo) Option {
	return func(s *Server) {
		s.build = b
	}
}

// NewServer creates the HTTP server
func NewServer(cfg config.ServerConfig, orch *failover.Orchestrator, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:    cfg,
		logger:    logger,
		router:    chi.NewRouter(),
		orch:      orch,
		build:     BuildInfo{Version: "dev"},
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.build.Go == "" {
		s.build.Go = runtime.Version()
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.Int("port", s.config.Port))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
