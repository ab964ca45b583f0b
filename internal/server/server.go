package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/config"
	apperrors "github.com/storelens/storelens/internal/errors"
	"github.com/storelens/storelens/internal/metrics"
	"github.com/storelens/storelens/internal/observability"
	"github.com/storelens/storelens/internal/server/handlers"
	servermw "github.com/storelens/storelens/internal/server/middleware"
)

// Options wires the HTTP server to its dependencies.
type Options struct {
	Config config.ServerConfig

	// MetricsPort is the exporter port proxied by /metrics when the exporter
	// cannot report its own.
	MetricsPort int

	// AdminToken enables POST /admin/signal when non-empty.
	AdminToken string

	// Pprof mounts the runtime profiler under /debug.
	Pprof bool

	Health *handlers.HealthManager
	Audits *handlers.Audits
}

// Server represents the HTTP server
type Server struct {
	router      *chi.Mux
	server      *http.Server
	cfg         config.ServerConfig
	metricsPort int
	adminToken  string
	pprof       bool
	health      *handlers.HealthManager
	audits      *handlers.Audits
	connections atomic.Int64
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// RequestID → Metrics → Recovery
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	health := opts.Health
	if health == nil {
		health = handlers.NewHealthManager(handlers.BuildVersion())
	}

	s := &Server{
		router:      r,
		cfg:         withServerDefaults(opts.Config),
		metricsPort: opts.MetricsPort,
		adminToken:  opts.AdminToken,
		pprof:       opts.Pprof,
		health:      health,
		audits:      opts.Audits,
	}

	s.registerRoutes()

	return s
}

func withServerDefaults(cfg config.ServerConfig) config.ServerConfig {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	return cfg
}

// Start listens and serves until Shutdown. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		ConnState:    s.trackConnection,
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.cfg.Host),
			zap.Int("port", s.cfg.Port),
			zap.String("addr", addr))
	}

	s.health.MarkStarted()
	metrics.SetServerStartTime(time.Now().Unix())
	return s.server.ListenAndServe()
}

func (s *Server) trackConnection(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		metrics.SetActiveConnections(s.connections.Inc())
	case http.StateHijacked, http.StateClosed:
		metrics.SetActiveConnections(s.connections.Dec())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Health returns the manager backing the probe endpoints.
func (s *Server) Health() *handlers.HealthManager {
	return s.health
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.cfg.Port
}
