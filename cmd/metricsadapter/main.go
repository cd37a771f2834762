package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/adapter"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/config"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/health"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/metrics"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/parser"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/poller"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/profiling"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/server"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/shutdown"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/tailer"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/tracing"
	"github.com/therealutkarshpriyadarshi/metricsadapter/pkg/types"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	configFile = flag.String("config", "", "Path to optional YAML configuration file")
	version    = "1.0.0"
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// component is one adapter ready to run: its poll loop plus an optional
// file watcher feeding the loop's Wake channel and an optional startup wait
type component struct {
	loop    *poller.Loop
	watcher *tailer.Watcher
	before  func(ctx context.Context) error
}

func run() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.SetGlobal(logger)

	logger.Info().
		Str("version", version).
		Bool("tail", cfg.Tail.Enabled).
		Bool("legacy", cfg.Legacy.Enabled).
		Bool("batch", cfg.Batch.Enabled).
		Msg("Starting metrics adapter")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:    cfg.Tracing.Enabled,
		Endpoint:   cfg.Tracing.Endpoint,
		SampleRate: cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	collector := metrics.NewCollector()
	checker := health.NewChecker(0)

	components, err := buildComponents(cfg, collector, tp.Tracer(), logger)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Address:       net.JoinHostPort("", strconv.Itoa(cfg.Metrics.Port)),
		Collector:     collector,
		HealthChecker: checker,
		Logger:        logger,
	})
	if err := srv.Start(); err != nil {
		return err
	}

	profiler := profiling.New(profiling.Config{
		Enabled:            cfg.Profiling.Enabled,
		Address:            cfg.Profiling.Address,
		GoroutineThreshold: cfg.Profiling.GoroutineThreshold,
	}, logger)
	if err := profiler.Start(); err != nil {
		logger.Warn().Err(err).Msg("Profiling unavailable")
	}

	shutdownMgr := shutdown.New(shutdown.Config{
		Timeout: cfg.ShutdownTimeout,
		Logger:  logger,
	})
	shutdownMgr.Register("tracing", tp.Shutdown)
	shutdownMgr.Register("profiling", profiler.Stop)
	shutdownMgr.Register("metrics-server", srv.Stop)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range components {
		if c.watcher != nil {
			g.Go(func() error {
				if err := c.watcher.Run(gctx); err != nil {
					logger.Warn().Err(err).Str("adapter", c.loop.Name).Msg("File watcher stopped, polling only")
				}
				return nil
			})
		}
		g.Go(func() error {
			if c.before != nil {
				if err := c.before(gctx); err != nil {
					return nil
				}
			}
			checker.Register(c.loop.Name, health.PassCheck(c.loop, c.loop.Interval))
			return c.loop.Run(gctx)
		})
	}

	var loopsErr error
	loopsDone := make(chan struct{})
	go func() {
		loopsErr = g.Wait()
		close(loopsDone)
		if loopsErr != nil {
			logger.Error().Err(loopsErr).Msg("Adapter stopped unexpectedly")
			go shutdownMgr.Shutdown()
		}
	}()

	// Registered last so it runs first: the loops finish their current
	// pass before the server and tracer go away
	shutdownMgr.Register("poll-loops", func(ctx context.Context) error {
		cancel()
		select {
		case <-loopsDone:
			return loopsErr
		case <-ctx.Done():
			return fmt.Errorf("poll loops did not stop: %w", ctx.Err())
		}
	})

	go func() {
		if err, ok := <-srv.Errors(); ok && err != nil {
			shutdownMgr.Shutdown()
		}
	}()

	if err := shutdownMgr.Wait(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Shutdown completed with errors")
	}
	logger.Info().Msg("Metrics adapter stopped")
	return nil
}

func buildComponents(cfg *config.Config, collector *metrics.Collector, tracer trace.Tracer, logger *logging.Logger) ([]component, error) {
	var components []component

	newLoop := func(name string, pass poller.PassFunc, interval time.Duration) *poller.Loop {
		return &poller.Loop{
			Name:     name,
			Interval: interval,
			Pass:     pass,
			Metrics:  collector,
			Tracer:   tracer,
			Logger:   logger,
		}
	}

	if cfg.Tail.Enabled {
		sink, err := collector.NewTailSink(cfg.Tail.MetricPrefix, cfg.Metrics.Buckets)
		if err != nil {
			return nil, err
		}
		a, err := adapter.NewLineAdapter(adapter.LineConfig[types.LogRecord]{
			Name:      "tail",
			Tailer:    tailer.New(cfg.Tail.LogFile, logger),
			Store:     checkpoint.NewStore(cfg.Tail.PositionFile, logger),
			Decoder:   parser.NewRecordDecoder(),
			Sink:      sink,
			Collector: collector,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}

		c := component{loop: newLoop(a.Name(), a.Pass, cfg.PollInterval)}
		c.watcher = watch(cfg, cfg.Tail.LogFile, c.loop, logger)
		components = append(components, c)

		logger.Info().
			Str("log_file", cfg.Tail.LogFile).
			Str("position_file", cfg.Tail.PositionFile).
			Msg("Tail adapter configured")
	}

	if cfg.Legacy.Enabled {
		sink, err := collector.NewLegacySink(cfg.Metrics.Buckets)
		if err != nil {
			return nil, err
		}
		decoder, err := parser.NewLegacyDecoder()
		if err != nil {
			return nil, fmt.Errorf("failed to create legacy decoder: %w", err)
		}
		a, err := adapter.NewLineAdapter(adapter.LineConfig[types.LegacyRequest]{
			Name:      "legacy",
			Tailer:    tailer.New(cfg.Legacy.LogFile, logger),
			Store:     checkpoint.NewStore(cfg.Legacy.PositionFile, logger),
			Decoder:   decoder,
			Sink:      sink,
			Collector: collector,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}

		c := component{loop: newLoop(a.Name(), a.Pass, cfg.PollInterval)}
		c.watcher = watch(cfg, cfg.Legacy.LogFile, c.loop, logger)
		components = append(components, c)

		logger.Info().
			Str("log_file", cfg.Legacy.LogFile).
			Str("position_file", cfg.Legacy.PositionFile).
			Msg("Legacy adapter configured")
	}

	if cfg.Batch.Enabled {
		sink, err := collector.NewBatchSink()
		if err != nil {
			return nil, err
		}
		w := adapter.NewBatchWatcher(cfg.Batch.MetricsFile, sink, logger)

		c := component{
			loop: newLoop(w.Name(), w.Pass, cfg.Batch.PollInterval),
			before: func(ctx context.Context) error {
				return adapter.WaitForSource(ctx, cfg.Batch.MetricsFile, cfg.Batch.StartupAttempts, cfg.Batch.StartupDelay, logger)
			},
		}
		components = append(components, c)

		logger.Info().
			Str("metrics_file", cfg.Batch.MetricsFile).
			Dur("interval", cfg.Batch.PollInterval).
			Msg("Batch adapter configured")
	}

	return components, nil
}

// watch attaches an fsnotify watcher to the loop when enabled. A watcher
// that cannot be created is not fatal; polling alone still picks up changes.
func watch(cfg *config.Config, path string, loop *poller.Loop, logger *logging.Logger) *tailer.Watcher {
	if !cfg.Watch {
		return nil
	}
	w, err := tailer.NewWatcher(path, logger)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("File watching unavailable, polling only")
		return nil
	}
	loop.Wake = w.Wake()
	return w
}
