package producer

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
	"github.com/therealutkarshpriyadarshi/metricsadapter/pkg/types"
	"github.com/valyala/fastjson"
)

// Appender appends newline-terminated lines to a log file. Each Append is
// a single write, so a concurrent reader sees either none or all of a line
// once the newline lands.
type Appender struct {
	mu   sync.Mutex
	path string
}

// NewAppender creates the parent directory and returns an appender
func NewAppender(path string) (*Appender, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &Appender{path: path}, nil
}

// Path returns the log file path
func (a *Appender) Path() string {
	return a.path
}

// Append writes line plus a trailing newline
func (a *Appender) Append(line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append to log file: %w", err)
	}
	return nil
}

// EncodeRecord renders a record as one JSON line
func EncodeRecord(rec types.LogRecord) string {
	var arena fastjson.Arena
	obj := arena.NewObject()
	obj.Set("timestamp", arena.NewString(rec.Timestamp))
	obj.Set("operation", arena.NewString(rec.Operation))
	obj.Set("duration_ms", arena.NewNumberFloat64(rec.DurationMs))
	obj.Set("value", arena.NewNumberFloat64(rec.Value))
	return obj.String()
}

// NewRecord builds a random_generation record stamped with now
func NewRecord(now time.Time, duration time.Duration, value int) types.LogRecord {
	ms := float64(duration) / float64(time.Millisecond)
	return types.LogRecord{
		Timestamp:  now.UTC().Format("2006-01-02T15:04:05.000000Z"),
		Operation:  "random_generation",
		DurationMs: math.Round(ms*100) / 100,
		Value:      float64(value),
	}
}

// RandomService answers /random by producing a number after a short
// simulated delay and appending a record of it to the log
type RandomService struct {
	appender *Appender
	logger   *logging.Logger

	mu  sync.Mutex
	rng *rand.Rand

	// MinDelay and MaxDelay bound the simulated work
	MinDelay time.Duration
	MaxDelay time.Duration
}

// NewRandomService creates the random number service
func NewRandomService(appender *Appender, logger *logging.Logger) *RandomService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RandomService{
		appender: appender,
		logger:   logger.WithComponent("randomgen"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		MinDelay: 10 * time.Millisecond,
		MaxDelay: 100 * time.Millisecond,
	}
}

// Handler routes /random and /health; everything else is 404
func (s *RandomService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /random", s.handleRandom)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("/", http.NotFound)
	return mux
}

func (s *RandomService) handleRandom(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	s.mu.Lock()
	value := s.rng.Intn(1000) + 1
	delay := s.MinDelay
	if span := s.MaxDelay - s.MinDelay; span > 0 {
		delay += time.Duration(s.rng.Int63n(int64(span)))
	}
	s.mu.Unlock()

	time.Sleep(delay)

	rec := NewRecord(time.Now(), time.Since(start), value)
	if err := s.appender.Append(EncodeRecord(rec)); err != nil {
		// The response still succeeds; only the metric sample is lost
		s.logger.Error().Err(err).Msg("Failed to write log record")
	}

	var arena fastjson.Arena
	resp := arena.NewObject()
	resp.Set("random_number", arena.NewNumberInt(value))
	resp.Set("generation_time_ms", arena.NewNumberFloat64(rec.DurationMs))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(resp.MarshalTo(nil))
}
