package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/backlog/pkg/config"
	"mercator-hq/backlog/pkg/database"
	"mercator-hq/backlog/pkg/delivery"
	"mercator-hq/backlog/pkg/report"
	"mercator-hq/backlog/pkg/security/auth"
	"mercator-hq/backlog/pkg/telemetry/health"
	"mercator-hq/backlog/pkg/telemetry/metrics"
	"mercator-hq/backlog/pkg/telemetry/tracing"
)

// Backlog is the capture and delivery surface the server exposes.
// *client.Client implements it.
type Backlog interface {
	Capture(ctx context.Context, r *report.Report) (*database.Record, error)
	Flush(ctx context.Context) (delivery.FlushSummary, error)
	Database() *database.Database
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts the collector's handler at path.
func WithMetrics(collector *metrics.Collector, path string) Option {
	return func(s *Server) {
		s.metrics = collector
		s.metricsPath = path
	}
}

// WithHealth mounts the liveness, readiness and version endpoints.
func WithHealth(checker *health.Checker, info health.VersionInfo) Option {
	return func(s *Server) {
		s.health = checker
		s.version = info
	}
}

// WithTracer starts a span per request, continuing any trace the caller
// sent.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithAuth requires a valid API key on the /v1 endpoints. The validator
// is consulted per request, so replacing its keys takes effect at once.
func WithAuth(validator *auth.Validator) Option {
	return func(s *Server) {
		s.auth = validator
	}
}

// Server serves the backlog over HTTP.
type Server struct {
	cfg     config.ServerConfig
	backlog Backlog
	logger  *slog.Logger

	metrics     *metrics.Collector
	metricsPath string
	health      *health.Checker
	version     health.VersionInfo
	tracer      *tracing.Tracer
	auth        *auth.Validator

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	running    bool
}

// New creates a server. Nothing is bound until Start.
func New(cfg config.ServerConfig, backlog Backlog, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		backlog: backlog,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	return s
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	protect := func(h http.HandlerFunc) http.Handler { return h }
	if s.auth != nil {
		guard := auth.Middleware(s.auth, auth.DefaultSources, s.logger)
		protect = func(h http.HandlerFunc) http.Handler { return guard(h) }
	}

	mux.Handle("POST /v1/reports", protect(s.handleCapture))
	mux.Handle("GET /v1/records", protect(s.handleRecords))
	mux.Handle("POST /v1/flush", protect(s.handleFlush))

	if s.metrics != nil && s.metricsPath != "" {
		mux.Handle(s.metricsPath, s.metrics.Handler())
	}
	if s.health != nil {
		health.Mount(mux, s.health, s.version)
	}

	var handler http.Handler = mux
	handler = loggingMiddleware(s.logger)(handler)
	handler = tracingMiddleware(s.tracer)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	return handler
}

// Start binds the listen address and serves until ctx is done, then shuts
// down gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.running = true
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Server listening", "address", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.WithoutCancel(ctx))
	case err, ok := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.httpServer
	s.mu.Unlock()

	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}
