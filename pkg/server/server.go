package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/quotagate/pkg/config"
	"mercator-hq/quotagate/pkg/limits/ratelimit"
	gatetls "mercator-hq/quotagate/pkg/security/tls"
	"mercator-hq/quotagate/pkg/server/middleware"
	"mercator-hq/quotagate/pkg/telemetry/health"
	"mercator-hq/quotagate/pkg/telemetry/logging"
	"mercator-hq/quotagate/pkg/telemetry/metrics"
	"mercator-hq/quotagate/pkg/telemetry/tracing"
)

// LimitsPath serves the JSON status of every rate limit window.
const LimitsPath = "/limits"

// Limiter is the part of *ratelimit.Limiter the server needs.
type Limiter interface {
	Status() []ratelimit.BucketStatus
	Disposed() bool
	Close() error
}

// Forwarder sends a gated request to the upstream. *upstream.Client
// implements it.
type Forwarder interface {
	Name() string
	Do(ctx context.Context, method, path string, body []byte, headers http.Header) (*http.Response, error)
	Close() error
}

// Server is the quotagate HTTP sidecar. It forwards requests under the
// configured prefix through the rate-limited upstream client and serves the
// operational endpoints.
type Server struct {
	config     *config.Config
	limiter    Limiter
	client     Forwarder
	logger     *logging.Logger
	metrics    *metrics.Collector
	tracer     *tracing.Tracer
	checker    *health.Checker
	version    health.VersionInfo
	httpServer *http.Server

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once
	mu           sync.RWMutex
	isRunning    bool
	listener     net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default logs JSON at info level to stdout.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts the collector's handler at the configured metrics path.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// WithTracer starts a server span for every request.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Server) {
		s.tracer = t
	}
}

// WithChecker replaces the health checker. The limiter and upstream checks
// are registered on it either way.
func WithChecker(c *health.Checker) Option {
	return func(s *Server) {
		s.checker = c
	}
}

// WithVersion sets the build information served at /version.
func WithVersion(version, commit, buildTime string) Option {
	return func(s *Server) {
		s.version = health.VersionInfo{Version: version, Commit: commit, BuildTime: buildTime}
	}
}

// NewServer creates a new sidecar server. The server takes ownership of
// limiter and client and closes both on Shutdown.
func NewServer(cfg *config.Config, limiter Limiter, client Forwarder, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	if limiter == nil {
		return nil, errors.New("server: limiter is required")
	}
	if client == nil {
		return nil, errors.New("server: upstream client is required")
	}

	s := &Server{
		config:       cfg,
		limiter:      limiter,
		client:       client,
		shutdownChan: make(chan struct{}),
		version:      health.VersionInfo{Version: "dev"},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
		if err != nil {
			return nil, err
		}
		s.logger = logger
	}
	s.logger = s.logger.With("component", "server")

	if s.checker == nil {
		s.checker = health.New(cfg.Telemetry.Health.CheckTimeout)
	}
	s.checker.RegisterCheck("rate_limiter", health.LimiterCheck(limiter))
	s.checker.RegisterCheck("upstream", health.UpstreamConfiguredCheck(cfg.Upstream.BaseURL))

	return s, nil
}

// Start listens on the configured address and serves until ctx is
// cancelled, Stop is called or the listener fails. Cancellation triggers a
// graceful shutdown before Start returns.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	tlsConfig, err := gatetls.ServerConfig(ctx, &s.config.Proxy.TLS, s.logger.Slog())
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to configure TLS: %w", err)
	}

	ln, err := net.Listen("tcp", s.config.Proxy.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.Proxy.ListenAddress, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.config.Proxy.ReadTimeout,
		WriteTimeout:   s.config.Proxy.WriteTimeout,
		IdleTimeout:    s.config.Proxy.IdleTimeout,
		MaxHeaderBytes: s.config.Proxy.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Slog().Handler(), slog.LevelWarn),
	}
	s.listener = ln
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting quotagate sidecar",
			"address", ln.Addr().String(),
			"upstream", s.client.Name(),
			"forward_prefix", s.config.Proxy.ForwardPrefix,
			"tls", tlsConfig != nil,
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	}
}

// Stop asks a running Start to shut down and return.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.shutdownChan) })
}

// Addr returns the address the server listens on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones up to the
// shutdown timeout, then closes the limiter and the upstream client.
// Requests still waiting for rate limit capacity at the deadline are failed
// with 503 when the limiter closes.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.Proxy.ShutdownTimeout.String())

		if running && s.httpServer != nil {
			shutdownCtx := ctx
			if s.config.Proxy.ShutdownTimeout > 0 {
				var cancel context.CancelFunc
				shutdownCtx, cancel = context.WithTimeout(ctx, s.config.Proxy.ShutdownTimeout)
				defer cancel()
			}

			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn("in-flight requests did not finish before the shutdown timeout", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		if err := s.limiter.Close(); err != nil {
			s.logger.Error("error closing rate limiter", "error", err)
			shutdownErr = errors.Join(shutdownErr, err)
		}
		if err := s.client.Close(); err != nil {
			s.logger.Error("error closing upstream client", "error", err)
			shutdownErr = errors.Join(shutdownErr, err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("quotagate sidecar stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures HTTP routes and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	quiet := []string{LimitsPath, "/version"}

	health.Register(mux, &s.config.Telemetry.Health, s.checker)
	if s.config.Telemetry.Health.Enabled {
		quiet = append(quiet, s.config.Telemetry.Health.LivenessPath, s.config.Telemetry.Health.ReadinessPath)
	}

	if s.metrics != nil && s.metrics.Enabled() {
		mux.Handle(s.config.Telemetry.Metrics.Path, s.metrics.Handler())
		quiet = append(quiet, s.config.Telemetry.Metrics.Path)
	}

	mux.HandleFunc(LimitsPath, s.handleLimits)
	mux.HandleFunc("/version", health.VersionHandler(s.version.Version, s.version.Commit, s.version.BuildTime))
	mux.Handle(s.config.Proxy.ForwardPrefix, s.forwardHandler())

	var handler http.Handler = mux

	handler = middleware.Logging(s.logger, quiet...)(handler)
	handler = middleware.TraceFields(handler)
	handler = tracing.HTTPMiddleware(s.tracer, tracing.MuxRoute(mux), handler)
	handler = middleware.Recovery(s.logger)(handler)

	// Request ID middleware (outermost)
	handler = middleware.RequestID(handler)

	return handler
}
