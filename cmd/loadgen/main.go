package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/producer"
	"golang.org/x/time/rate"
)

var (
	targetRate     = flag.Int("rate", 10, "Target lines per second")
	duration       = flag.Int("duration", 0, "Run time in seconds (0 runs until interrupted)")
	format         = flag.String("format", "legacy", "Line format (legacy, json)")
	outputFile     = flag.String("output", "/var/log/legacy.log", "Log file to append to")
	errorRate      = flag.Float64("errors", 0.05, "Fraction of legacy requests that fail with a 5xx status")
	reportInterval = flag.Int("interval", 10, "Report interval in seconds")
)

// Stats tracks generated lines
type Stats struct {
	linesWritten uint64
	writeErrors  uint64
	serverErrors uint64
	startTime    time.Time
}

func (s *Stats) Report() {
	elapsed := time.Since(s.startTime).Seconds()
	written := atomic.LoadUint64(&s.linesWritten)

	fmt.Printf("\n=== Load Generator Statistics ===\n")
	fmt.Printf("Duration: %.2f seconds\n", elapsed)
	fmt.Printf("Lines Written: %d (%.1f/sec)\n", written, float64(written)/elapsed)
	fmt.Printf("Server Errors: %d\n", atomic.LoadUint64(&s.serverErrors))
	fmt.Printf("Write Errors: %d\n", atomic.LoadUint64(&s.writeErrors))
	fmt.Printf("=================================\n\n")
}

func main() {
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  "info",
		Format: "console",
	})

	if err := run(logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *logging.Logger) error {
	if *targetRate <= 0 {
		return fmt.Errorf("rate must be positive, got %d", *targetRate)
	}

	var line func(rng *rand.Rand, now time.Time) (string, bool)
	switch *format {
	case "legacy":
		line = legacyLine
	case "json":
		line = jsonLine
	default:
		return fmt.Errorf("unsupported format: %s", *format)
	}

	_, statErr := os.Stat(*outputFile)
	appender, err := producer.NewAppender(*outputFile)
	if err != nil {
		return err
	}
	if *format == "legacy" && os.IsNotExist(statErr) {
		if err := appender.Append(producer.LegacyHeader); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*duration)*time.Second)
		defer cancel()
	}

	logger.Info().
		Int("rate", *targetRate).
		Str("format", *format).
		Str("output", *outputFile).
		Msg("Starting load generator")

	stats := &Stats{startTime: time.Now()}

	go func() {
		ticker := time.NewTicker(time.Duration(*reportInterval) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats.Report()
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(*targetRate), 1)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		text, failed := line(rng, time.Now())
		if failed {
			atomic.AddUint64(&stats.serverErrors, 1)
		}
		if err := appender.Append(text); err != nil {
			atomic.AddUint64(&stats.writeErrors, 1)
			logger.Warn().Err(err).Msg("Failed to append line")
			continue
		}
		atomic.AddUint64(&stats.linesWritten, 1)
	}

	logger.Info().Msg("Load generator stopped")
	stats.Report()
	return nil
}

func legacyLine(rng *rand.Rand, now time.Time) (string, bool) {
	status := 200
	if rng.Float64() < *errorRate {
		status = 500 + rng.Intn(4)
	} else if rng.Intn(10) == 0 {
		status = 404
	}
	durationMs := 5 + rng.Float64()*295
	f := producer.LegacyFormats[rng.Intn(len(producer.LegacyFormats))]
	return producer.LegacyLine(f, now, status, durationMs, os.Getpid()), status >= 500
}

func jsonLine(rng *rand.Rand, now time.Time) (string, bool) {
	d := time.Duration(10+rng.Intn(90)) * time.Millisecond
	return producer.EncodeRecord(producer.NewRecord(now, d, rng.Intn(1000)+1)), false
}
