package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/unigen/pkg/transport"
)

// Server runs the gateway: the adapter behind optional HTTP middleware,
// plus health and metrics endpoints.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds server settings.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string
	// Health is called by /healthz. Nil always reports healthy.
	Health func(ctx context.Context) error
	// Wrap is applied to the API routes, outermost first. Health and
	// metrics endpoints are never wrapped.
	Wrap []func(http.Handler) http.Handler
}

// DefaultServerConfig returns the defaults used by NewServer.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     10 << 20,
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the request body limit.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithReadTimeout bounds reading a request, headers and body included.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ReadTimeout = d }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithMetricsPath sets or, when empty, disables the metrics endpoint.
func WithMetricsPath(p string) ServerOption {
	return func(s *Server) { s.config.MetricsPath = p }
}

// WithHealthCheck sets the /healthz probe.
func WithHealthCheck(fn func(ctx context.Context) error) ServerOption {
	return func(s *Server) { s.config.Health = fn }
}

// WithHTTPMiddleware appends HTTP middleware around the API routes.
func WithHTTPMiddleware(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.config.Wrap = append(s.config.Wrap, mw...) }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server for b. Recovery, request id and logging
// middleware are applied to the generator.
func NewServer(b Backend, opts ...ServerOption) *Server {
	s := &Server{config: DefaultServerConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	s.adapter = NewAdapter(b, Config{MaxBodySize: s.config.MaxBodySize},
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	)

	var api http.Handler = s.adapter.Handler()
	for i := len(s.config.Wrap) - 1; i >= 0; i-- {
		api = s.config.Wrap[i](api)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.config.MetricsPath != "" {
		mux.Handle("GET "+s.config.MetricsPath, promhttp.Handler())
	}
	mux.Handle("/", api)

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
	}
	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.config.Health != nil {
		if err := s.config.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}
	return s.shutdown()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", "timeout", s.config.ShutdownTimeout)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
