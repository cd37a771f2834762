package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Logger wraps zerolog.Logger
type Logger struct {
	zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level  string
	Format string // "json" or "console"
	Output io.Writer
}

// New creates a new logger instance. The level applies to this logger and
// its children only; the zerolog global level is left alone.
func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Logger()

	return &Logger{Logger: logger}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetGlobal sets the global logger
func SetGlobal(logger *Logger) {
	log.Logger = logger.Logger
}

// Global returns the global logger
func Global() *Logger {
	return &Logger{Logger: log.Logger}
}

// WithComponent creates a child logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("component", component).Logger(),
	}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With().Interface(key, value).Logger(),
	}
}

// ForAdapter tags every entry with the adapter it belongs to
func (l *Logger) ForAdapter(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("component", "adapter").Str("adapter", name).Logger(),
	}
}

// Throttle caps how often a repeated warning is written. Dropped entries
// are counted and reported on the next one that gets through.
type Throttle struct {
	logger  *Logger
	limiter *rate.Limiter

	mu         sync.Mutex
	suppressed int
}

// Throttled returns a Throttle allowing burst entries, refilled one per every
func (l *Logger) Throttled(every time.Duration, burst int) *Throttle {
	return &Throttle{
		logger:  l,
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

// Warn returns a warn event, or nil when the entry is dropped. zerolog
// events are nil-safe so callers chain fields and Msg unconditionally.
func (t *Throttle) Warn() *zerolog.Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.limiter.Allow() {
		t.suppressed++
		return nil
	}

	ev := t.logger.Warn()
	if t.suppressed > 0 {
		ev = ev.Int("suppressed", t.suppressed)
		t.suppressed = 0
	}
	return ev
}

// Suppressed returns the number of entries dropped since the last one written
func (t *Throttle) Suppressed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed
}
