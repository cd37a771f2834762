package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/health"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/metrics"
)

// Server exposes the metrics registry and health probes on one listener.
// Serving never triggers adapter work; it only reads current metric state.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	errCh      chan error
	logger     *logging.Logger
}

// Config holds server configuration
type Config struct {
	Address       string
	Collector     *metrics.Collector
	HealthChecker *health.Checker
	Logger        *logging.Logger
}

// New creates a new server
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.HealthChecker == nil {
		cfg.HealthChecker = health.NewChecker(0)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           Handler(cfg.Collector, cfg.HealthChecker),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		errCh:  make(chan error, 1),
		logger: cfg.Logger.WithComponent("server"),
	}
}

// Handler routes /metrics, /health and /ready; every other path is 404
func Handler(collector *metrics.Collector, checker *health.Checker) http.Handler {
	mux := http.NewServeMux()
	if collector != nil {
		mux.Handle("GET /metrics", collector.Handler())
	}
	mux.HandleFunc("GET /health", health.LivenessHandler())
	mux.HandleFunc("GET /ready", checker.ReadinessHandler())
	mux.HandleFunc("/", http.NotFound)
	return mux
}

// Start binds the listener before returning, so a port conflict is reported
// to the caller, then serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	s.logger.Info().
		Str("address", ln.Addr().String()).
		Msg("Serving metrics")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server error")
			s.errCh <- fmt.Errorf("metrics server error: %w", err)
		}
		close(s.errCh)
	}()

	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Errors delivers a serve failure after Start; it is closed when serving ends
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down metrics server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down metrics server")
		return err
	}
	return nil
}
