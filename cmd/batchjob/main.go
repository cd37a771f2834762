package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/producer"
)

const minSuccessRate = 80.0

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	logger := logging.New(logging.Config{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	})

	totalItems, err := strconv.Atoi(getEnv("TOTAL_ITEMS", "100"))
	if err != nil || totalItems <= 0 {
		return fmt.Errorf("invalid TOTAL_ITEMS %q", os.Getenv("TOTAL_ITEMS"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	job := &producer.BatchJob{
		MetricsFile: getEnv("METRICS_FILE", "/data/metrics.json"),
		TotalItems:  totalItems,
		Logger:      logger.WithComponent("batchjob"),
		Process: func(ctx context.Context, id int) producer.ItemResult {
			d := time.Duration(100+rng.Intn(400)) * time.Millisecond
			select {
			case <-time.After(d):
			case <-ctx.Done():
			}
			return producer.ItemResult{
				ID:       id,
				Success:  rng.Float64() < 0.9,
				Duration: d,
				At:       time.Now(),
			}
		},
	}

	logger.Info().
		Int("total_items", totalItems).
		Str("metrics_file", job.MetricsFile).
		Msg("Starting batch job")

	summary, err := job.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info().
		Int("processed", summary.Processed).
		Int("successful", summary.Successful).
		Int("failed", summary.Failed).
		Float64("success_rate", summary.SuccessRate).
		Dur("total_time", summary.TotalTime).
		Msg("Batch job complete")

	if !summary.Passed(minSuccessRate) {
		return fmt.Errorf("success rate %.2f%% below %.0f%%", summary.SuccessRate, minSuccessRate)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
