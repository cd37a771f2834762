package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/producer"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/shutdown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine
	_ = godotenv.Load()

	logger := logging.New(logging.Config{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	})

	logFile := getEnv("LOG_FILE", "/var/log/random.log")
	addr := net.JoinHostPort("", getEnv("PORT", "8080"))

	appender, err := producer.NewAppender(logFile)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           producer.NewRandomService(appender, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	shutdownMgr := shutdown.New(shutdown.Config{
		Timeout: 10 * time.Second,
		Logger:  logger,
	})
	shutdownMgr.Register("http-server", srv.Shutdown)

	go func() {
		logger.Info().
			Str("address", ln.Addr().String()).
			Str("log_file", logFile).
			Msg("Random number service listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server failed")
			shutdownMgr.Shutdown()
		}
	}()

	if err := shutdownMgr.Wait(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Shutdown completed with errors")
	}
	logger.Info().Msg("Random number service stopped")
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
