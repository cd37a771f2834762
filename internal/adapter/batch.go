package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/metrics"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/parser"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/reliability"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// BatchWatcher mirrors a batch job's metrics document into gauges whenever
// the file's modification time changes
type BatchWatcher struct {
	path    string
	decoder *parser.BatchDecoder
	sink    *metrics.BatchSink
	logger  *logging.Logger

	lastMod time.Time
	seen    bool

	// mtime of the last document that failed to decode
	failedMod time.Time
	failed    bool
}

// NewBatchWatcher creates a watcher for the given metrics document
func NewBatchWatcher(path string, sink *metrics.BatchSink, logger *logging.Logger) *BatchWatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &BatchWatcher{
		path:    path,
		decoder: parser.NewBatchDecoder(),
		sink:    sink,
		logger:  logger.ForAdapter("batch"),
	}
}

// Name returns the adapter name
func (b *BatchWatcher) Name() string {
	return "batch"
}

// Pass re-reads the document if it changed since the last successful read.
// A missing file is not an error. A document that fails to decode is tried
// again on every pass but counted as an error once per mtime.
func (b *BatchWatcher) Pass(ctx context.Context) error {
	info, err := os.Stat(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat metrics file: %w", err)
	}

	mod := info.ModTime()
	if b.seen && mod.Equal(b.lastMod) {
		return nil
	}

	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read metrics file: %w", err)
	}

	snap, err := b.decoder.Decode(data)
	if err != nil {
		if b.failed && mod.Equal(b.failedMod) {
			return nil
		}
		b.failedMod = mod
		b.failed = true
		b.sink.IncrementErrors()
		b.logger.Warn().Err(err).Str("path", b.path).Msg("Failed to decode metrics file")
		return nil
	}

	b.sink.Set(snap)
	b.lastMod = mod
	b.seen = true
	b.failed = false

	tracing.SetAttributes(ctx, attribute.Float64("batch.processed", snap.Processed))
	b.logger.Info().
		Float64("processed", snap.Processed).
		Float64("successful", snap.Successful).
		Float64("failed", snap.Failed).
		Float64("success_rate", snap.SuccessRate).
		Msg("Updated batch metrics")

	return nil
}

// WaitForSource polls for path to exist, up to attempts tries spaced by
// delay. Running out of attempts is only logged: the adapter starts anyway
// and picks the file up once it appears. Cancellation is returned.
func WaitForSource(ctx context.Context, path string, attempts int, delay time.Duration, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Nop()
	}

	err := reliability.Retry(ctx, attempts, reliability.ConstantBackoff(delay), func(ctx context.Context) error {
		_, err := os.Stat(path)
		return err
	})
	if err == nil {
		logger.Info().Str("path", path).Msg("Source file found")
		return nil
	}
	if errors.Is(err, reliability.ErrRetryAborted) {
		return err
	}

	logger.Warn().
		Err(err).
		Str("path", path).
		Int("attempts", attempts).
		Msg("Source file not found, starting anyway")
	return nil
}
