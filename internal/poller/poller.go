package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/metrics"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/tracing"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// State of a poll loop
type State int32

const (
	Waiting State = iota
	Processing
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Processing:
		return "processing"
	default:
		return "unknown"
	}
}

// PassFunc performs one unit of adapter work
type PassFunc func(ctx context.Context) error

// Loop runs Pass once at start and then Interval after each pass finishes.
// Passes never overlap and a pass in progress is never interrupted: the
// context handed to Pass is detached from the Run context's cancellation,
// and cancellation is only observed between passes.
type Loop struct {
	Name     string
	Interval time.Duration
	Pass     PassFunc

	// Wake, when set, triggers an early pass. Wakes arriving within MinGap
	// of the previous pass are held back and coalesced into one pass at the
	// end of the gap.
	Wake <-chan struct{}

	// MinGap defaults to Interval/10, at most one second
	MinGap time.Duration

	Metrics *metrics.Collector
	Tracer  trace.Tracer
	Logger  *logging.Logger

	state    atomic.Int32
	passes   atomic.Int64
	mu       sync.RWMutex
	lastPass time.Time
	lastErr  error
}

// Run blocks until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	if l.Pass == nil {
		return fmt.Errorf("poll loop %q has no pass function", l.Name)
	}
	if l.Interval <= 0 {
		return fmt.Errorf("poll loop %q: interval must be positive, got %v", l.Name, l.Interval)
	}
	if l.Logger == nil {
		l.Logger = logging.Nop()
	}
	if l.Tracer == nil {
		l.Tracer = noop.NewTracerProvider().Tracer("")
	}

	l.Logger.Info().
		Str("adapter", l.Name).
		Dur("interval", l.Interval).
		Msg("Poll loop started")

	gap := l.minGap()
	passCtx := context.WithoutCancel(ctx)
	l.runPass(passCtx)
	lastEnd := time.Now()

	timer := time.NewTimer(l.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Logger.Info().
				Str("adapter", l.Name).
				Int64("passes", l.passes.Load()).
				Msg("Poll loop stopped")
			return nil
		case <-timer.C:
		case <-l.Wake:
			timer.Stop()
			// gap < Interval, so this never pushes the regular pass back
			if wait := gap - time.Since(lastEnd); wait > 0 {
				timer.Reset(wait)
				continue
			}
		}

		l.runPass(passCtx)
		lastEnd = time.Now()
		timer.Reset(l.Interval)
	}
}

func (l *Loop) minGap() time.Duration {
	if l.MinGap > 0 {
		return min(l.MinGap, l.Interval)
	}
	return min(l.Interval/10, time.Second)
}

func (l *Loop) runPass(ctx context.Context) {
	l.state.Store(int32(Processing))
	defer l.state.Store(int32(Waiting))

	start := time.Now()
	ctx, span := tracing.TracePass(ctx, l.Tracer, l.Name)

	err := l.safePass(ctx)
	elapsed := time.Since(start)
	tracing.EndPass(span, err)

	if l.Metrics != nil {
		l.Metrics.ObservePass(l.Name, elapsed, err)
		if err != nil {
			l.Metrics.IncrementErrors()
		}
	}

	if err != nil {
		l.Logger.Error().
			Err(err).
			Str("adapter", l.Name).
			Dur("elapsed", elapsed).
			Msg("Poll pass failed")
	} else {
		l.Logger.Debug().
			Str("adapter", l.Name).
			Dur("elapsed", elapsed).
			Msg("Poll pass completed")
	}

	l.passes.Add(1)
	l.mu.Lock()
	l.lastPass = time.Now()
	l.lastErr = err
	l.mu.Unlock()
}

// safePass converts a panic inside Pass into an error
func (l *Loop) safePass(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPassPanicked, r)
		}
	}()
	return l.Pass(ctx)
}

// ErrPassPanicked wraps a recovered panic from a pass
var ErrPassPanicked = errors.New("poll pass panicked")

// State reports whether the loop is between passes or inside one
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Passes returns the number of completed passes
func (l *Loop) Passes() int64 {
	return l.passes.Load()
}

// LastPass returns when the most recent pass finished and its error.
// The time is zero until the first pass completes.
func (l *Loop) LastPass() (time.Time, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastPass, l.lastErr
}
