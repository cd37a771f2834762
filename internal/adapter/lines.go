package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/metrics"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/parser"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/tailer"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Sink folds decoded values of type T into metrics
type Sink[T any] interface {
	Fold(T)
	IncrementErrors()
}

// LineConfig wires a line adapter together
type LineConfig[T any] struct {
	Name      string
	Tailer    *tailer.Tailer
	Store     *checkpoint.Store
	Decoder   parser.Decoder[T]
	Sink      Sink[T]
	Collector *metrics.Collector
	Logger    *logging.Logger
}

// LineAdapter turns newly appended log lines into metric updates. Each
// complete line is folded at most once as long as the position file is
// written successfully; when Save fails the lines of that pass are folded
// again on the next one.
type LineAdapter[T any] struct {
	name      string
	tailer    *tailer.Tailer
	store     *checkpoint.Store
	decoder   parser.Decoder[T]
	sink      Sink[T]
	collector *metrics.Collector
	logger    *logging.Logger
	malformed *logging.Throttle
}

// PassStats summarizes one pass
type PassStats struct {
	Folded    int
	Malformed int
	Skipped   int
	Offset    int64
	Reset     bool
}

// NewLineAdapter creates a line adapter
func NewLineAdapter[T any](cfg LineConfig[T]) (*LineAdapter[T], error) {
	if cfg.Tailer == nil || cfg.Store == nil || cfg.Decoder == nil || cfg.Sink == nil {
		return nil, fmt.Errorf("adapter %q: tailer, store, decoder and sink are required", cfg.Name)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	logger := cfg.Logger.ForAdapter(cfg.Name)
	return &LineAdapter[T]{
		name:      cfg.Name,
		tailer:    cfg.Tailer,
		store:     cfg.Store,
		decoder:   cfg.Decoder,
		sink:      cfg.Sink,
		collector: cfg.Collector,
		logger:    logger,
		malformed: logger.Throttled(time.Second, 5),
	}, nil
}

// Name returns the adapter name
func (a *LineAdapter[T]) Name() string {
	return a.name
}

// Pass loads the position, folds every new complete line and saves the new
// position. Load, read and save failures abort the pass and leave the
// position file untouched.
func (a *LineAdapter[T]) Pass(ctx context.Context) error {
	_, err := a.Process(ctx)
	return err
}

// Process is Pass with per-pass statistics
func (a *LineAdapter[T]) Process(ctx context.Context) (PassStats, error) {
	var stats PassStats

	offset, err := a.store.Load()
	if err != nil {
		return stats, fmt.Errorf("failed to load position: %w", err)
	}

	result, err := a.tailer.Read(offset)
	if err != nil {
		return stats, fmt.Errorf("failed to read %s: %w", a.tailer.Path(), err)
	}

	for _, line := range result.Lines {
		value, err := a.decoder.Decode(line)
		if err != nil {
			if parser.Skippable(err) {
				stats.Skipped++
				continue
			}
			stats.Malformed++
			a.sink.IncrementErrors()
			a.warnMalformed(line, err)
			continue
		}
		a.sink.Fold(value)
		stats.Folded++
	}

	stats.Offset = result.Offset
	stats.Reset = result.Reset

	if result.Offset != offset || result.Reset {
		if err := a.store.Save(result.Offset); err != nil {
			return stats, fmt.Errorf("failed to save position: %w", err)
		}
	}
	// Only a persisted offset ties the tailer to a new file; after a failed
	// save the stored offset still belongs to the previous one
	a.tailer.Commit(result)

	if a.collector != nil {
		a.collector.SetTailPosition(a.name, result.Offset)
		if result.Reset {
			a.collector.IncrementTailResets(a.name)
		}
	}

	tracing.SetAttributes(ctx,
		attribute.Int("pass.lines", len(result.Lines)),
		attribute.Int("pass.malformed", stats.Malformed),
		attribute.Int64("pass.offset", result.Offset),
	)

	if len(result.Lines) > 0 {
		a.logger.Debug().
			Int("folded", stats.Folded).
			Int("malformed", stats.Malformed).
			Int("skipped", stats.Skipped).
			Int64("offset", result.Offset).
			Msg("Processed new lines")
	}

	return stats, nil
}

func (a *LineAdapter[T]) warnMalformed(line string, err error) {
	a.malformed.Warn().
		Err(err).
		Str("decoder", a.decoder.Name()).
		Str("line", truncate(line, 200)).
		Msg("Skipping malformed line")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
