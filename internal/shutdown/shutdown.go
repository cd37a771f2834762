package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
)

// Manager coordinates graceful shutdown of the adapter. Hooks run in reverse
// registration order, so the HTTP server registered after the tracer is
// stopped before the tracer is flushed.
type Manager struct {
	logger     *logging.Logger
	timeout    time.Duration
	hooks      []hook
	mu         sync.Mutex
	shutdownCh chan struct{}
	once       sync.Once
	done       chan struct{}
	err        error
}

// Func performs cleanup during shutdown
type Func func(context.Context) error

type hook struct {
	name string
	fn   Func
}

// Config holds shutdown manager configuration
type Config struct {
	Timeout time.Duration
	Logger  *logging.Logger
}

// New creates a new shutdown manager
func New(cfg Config) *Manager {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	return &Manager{
		logger:     cfg.Logger,
		timeout:    cfg.Timeout,
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Register adds a named hook to run during shutdown
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug().Str("component", name).Msg("Registered shutdown hook")
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Wait blocks until SIGINT/SIGTERM arrives, ctx is cancelled, or Shutdown
// is called elsewhere. It then runs the hooks and returns their joined error.
func (m *Manager) Wait(ctx context.Context, signals ...os.Signal) error {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.logger.Info().
			Str("signal", sig.String()).
			Msg("Shutdown signal received")
	case <-ctx.Done():
		m.logger.Info().Msg("Context cancelled, shutting down")
	case <-m.shutdownCh:
	}

	return m.Shutdown()
}

// Shutdown runs every hook once; later calls wait for and return the
// result of the first.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		close(m.shutdownCh)
		m.err = m.runHooks()
		close(m.done)
	})
	<-m.done
	return m.err
}

func (m *Manager) runHooks() error {
	m.mu.Lock()
	hooks := make([]hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	m.logger.Info().
		Dur("timeout", m.timeout).
		Int("hooks", len(hooks)).
		Msg("Starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: skipped: %w", h.name, ctx.Err()))
			continue
		}
		if err := h.fn(ctx); err != nil {
			m.logger.Error().Err(err).Str("component", h.name).Msg("Shutdown hook failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		m.logger.Debug().Str("component", h.name).Msg("Shutdown hook completed")
	}

	if len(errs) > 0 {
		m.logger.Warn().Int("errors", len(errs)).Msg("Graceful shutdown completed with errors")
		return errors.Join(errs...)
	}
	m.logger.Info().Msg("Graceful shutdown completed successfully")
	return nil
}

// Done returns a channel that is closed when shutdown is complete
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Initiated returns a channel that is closed when shutdown begins
func (m *Manager) Initiated() <-chan struct{} {
	return m.shutdownCh
}
