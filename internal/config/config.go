package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/metrics"
	"gopkg.in/yaml.v3"
)

// Config represents the adapter configuration
type Config struct {
	Tail   TailConfig   `yaml:"tail"`
	Legacy LegacyConfig `yaml:"legacy"`
	Batch  BatchConfig  `yaml:"batch"`

	StateDir        string        `yaml:"state_dir"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	Watch           bool          `yaml:"watch"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`

	Profiling ProfilingConfig `yaml:"profiling"`
}

// TailConfig configures the JSON log tail adapter
type TailConfig struct {
	Enabled      bool   `yaml:"enabled"`
	LogFile      string `yaml:"log_file"`
	PositionFile string `yaml:"position_file,omitempty"`
	MetricPrefix string `yaml:"metric_prefix"`
}

// LegacyConfig configures the multi-format legacy log adapter
type LegacyConfig struct {
	Enabled      bool   `yaml:"enabled"`
	LogFile      string `yaml:"log_file"`
	PositionFile string `yaml:"position_file,omitempty"`
}

// BatchConfig configures the batch job metrics file watcher
type BatchConfig struct {
	Enabled         bool          `yaml:"enabled"`
	MetricsFile     string        `yaml:"metrics_file"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	StartupAttempts int           `yaml:"startup_attempts"`
	StartupDelay    time.Duration `yaml:"startup_delay"`
}

// MetricsConfig defines the exposition endpoint
type MetricsConfig struct {
	Port    int       `yaml:"port"`
	Buckets []float64 `yaml:"buckets,omitempty"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// TracingConfig holds distributed tracing configuration
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint,omitempty"`
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// ProfilingConfig configures the pprof debug listener
type ProfilingConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Address            string `yaml:"address"`
	GoroutineThreshold int    `yaml:"goroutine_threshold"`
}

// Default values
const (
	DefaultTailLogFile     = "/var/log/random.log"
	DefaultLegacyLogFile   = "/var/log/app/application.log"
	DefaultMetricsFile     = "/data/metrics.json"
	DefaultStateDir        = "/tmp/metricsadapter"
	DefaultPollInterval    = 5 * time.Second
	DefaultBatchInterval   = 2 * time.Second
	DefaultStartupAttempts = 30
	DefaultStartupDelay    = time.Second
	DefaultMetricsPort     = 9889
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultProfilingAddr   = "localhost:6060"
)

// DefaultEnvFiles are the dotenv files consulted by Load, lowest precedence first
var DefaultEnvFiles = []string{".env", ".env.local"}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Tail: TailConfig{
			Enabled:      true,
			LogFile:      DefaultTailLogFile,
			MetricPrefix: "random",
		},
		Legacy: LegacyConfig{
			LogFile: DefaultLegacyLogFile,
		},
		Batch: BatchConfig{
			MetricsFile:     DefaultMetricsFile,
			PollInterval:    DefaultBatchInterval,
			StartupAttempts: DefaultStartupAttempts,
			StartupDelay:    DefaultStartupDelay,
		},
		StateDir:        DefaultStateDir,
		PollInterval:    DefaultPollInterval,
		Watch:           true,
		ShutdownTimeout: DefaultShutdownTimeout,
		Metrics: MetricsConfig{
			Port:    DefaultMetricsPort,
			Buckets: append([]float64(nil), metrics.DefaultBuckets...),
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Tracing: TracingConfig{
			SampleRate: 1.0,
		},
		Profiling: ProfilingConfig{
			Address:            DefaultProfilingAddr,
			GoroutineThreshold: 1000,
		},
	}
}

// Load builds the configuration from, in increasing precedence: built-in
// defaults, the YAML file at path (optional, ${VAR} references expanded),
// dotenv files and the process environment. Dotenv files never override
// variables that are already set. When envFiles is empty DefaultEnvFiles
// is used.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expandedData := []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadEnvFiles merges the dotenv files, later files winning, and exports
// every key that is not already set in the environment
func loadEnvFiles(files []string) error {
	merged := make(map[string]string)
	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to read env file %s: %w", file, err)
		}
		for k, v := range values {
			merged[k] = v
		}
	}

	for k, v := range merged {
		if os.Getenv(k) != "" {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}
	return nil
}

// applyEnv overrides fields from environment variables
func (c *Config) applyEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	collect(envBool("TAIL_ENABLED", &c.Tail.Enabled))
	envString("LOG_FILE", &c.Tail.LogFile)
	envString("POSITION_FILE", &c.Tail.PositionFile)
	envString("TAIL_METRIC_PREFIX", &c.Tail.MetricPrefix)

	collect(envBool("LEGACY_ENABLED", &c.Legacy.Enabled))
	envString("LEGACY_LOG_FILE", &c.Legacy.LogFile)
	envString("LEGACY_POSITION_FILE", &c.Legacy.PositionFile)

	collect(envBool("BATCH_ENABLED", &c.Batch.Enabled))
	envString("METRICS_FILE", &c.Batch.MetricsFile)
	collect(envDuration("BATCH_POLL_INTERVAL", &c.Batch.PollInterval))
	collect(envInt("STARTUP_ATTEMPTS", &c.Batch.StartupAttempts))

	envString("STATE_DIR", &c.StateDir)
	collect(envDuration("POLL_INTERVAL", &c.PollInterval))
	collect(envBool("WATCH_FILES", &c.Watch))
	collect(envDuration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout))
	collect(envInt("METRICS_PORT", &c.Metrics.Port))

	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FORMAT", &c.Logging.Format)

	collect(envBool("TRACING_ENABLED", &c.Tracing.Enabled))
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.Endpoint)

	collect(envBool("PROFILING_ENABLED", &c.Profiling.Enabled))
	envString("PROFILING_ADDRESS", &c.Profiling.Address)

	return errors.Join(errs...)
}

// applyDefaults fills values derived from other settings
func (c *Config) applyDefaults() {
	if c.Tail.MetricPrefix == "" {
		c.Tail.MetricPrefix = "random"
	}
	if c.Tail.PositionFile == "" && c.Tail.LogFile != "" {
		c.Tail.PositionFile = checkpoint.PathFor(c.StateDir, c.Tail.LogFile)
	}
	if c.Legacy.PositionFile == "" && c.Legacy.LogFile != "" {
		c.Legacy.PositionFile = checkpoint.PathFor(c.StateDir, c.Legacy.LogFile)
	}
	if c.Batch.StartupDelay == 0 {
		c.Batch.StartupDelay = DefaultStartupDelay
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Profiling.Address == "" {
		c.Profiling.Address = DefaultProfilingAddr
	}
	if c.Metrics.Buckets == nil {
		c.Metrics.Buckets = append([]float64(nil), metrics.DefaultBuckets...)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.Tail.Enabled && !c.Legacy.Enabled && !c.Batch.Enabled {
		return fmt.Errorf("at least one adapter must be enabled")
	}

	if c.Tail.Enabled && c.Tail.LogFile == "" {
		return fmt.Errorf("tail adapter has no log file configured")
	}
	if c.Legacy.Enabled && c.Legacy.LogFile == "" {
		return fmt.Errorf("legacy adapter has no log file configured")
	}
	if c.Batch.Enabled && c.Batch.MetricsFile == "" {
		return fmt.Errorf("batch adapter has no metrics file configured")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.Batch.PollInterval <= 0 {
		return fmt.Errorf("batch poll interval must be positive, got %v", c.Batch.PollInterval)
	}
	if c.Batch.StartupAttempts < 0 {
		return fmt.Errorf("startup attempts must not be negative, got %d", c.Batch.StartupAttempts)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}
	if len(c.Metrics.Buckets) == 0 {
		return fmt.Errorf("at least one histogram bucket is required")
	}
	for i := 1; i < len(c.Metrics.Buckets); i++ {
		if c.Metrics.Buckets[i] <= c.Metrics.Buckets[i-1] {
			return fmt.Errorf("histogram buckets must be strictly increasing: %v", c.Metrics.Buckets)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing sample rate must be between 0 and 1, got %v", c.Tracing.SampleRate)
	}

	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q is not a boolean", key, v)
	}
	*dst = b
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q is not an integer", key, v)
	}
	*dst = n
	return nil
}

// envDuration accepts Go durations ("1500ms") and bare seconds ("5", "0.5")
func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q is not a duration", key, v)
	}
	*dst = d
	return nil
}
