package profiling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
)

// Config holds profiling configuration
type Config struct {
	Enabled            bool
	Address            string // pprof listener, keep it on loopback
	BlockProfile       bool
	MutexProfile       bool
	GoroutineThreshold int // warn above this many goroutines
}

// Profiler serves pprof and runtime statistics on a debug listener
type Profiler struct {
	config Config
	logger *logging.Logger
	server *http.Server
	addr   net.Addr

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new profiler
func New(config Config, logger *logging.Logger) *Profiler {
	if logger == nil {
		logger = logging.Global()
	}
	if config.Address == "" {
		config.Address = "localhost:6060"
	}
	if config.GoroutineThreshold == 0 {
		config.GoroutineThreshold = 1000
	}

	return &Profiler{
		config: config,
		logger: logger.WithComponent("profiling"),
	}
}

// Start binds the debug listener. A disabled profiler does nothing.
func (p *Profiler) Start() error {
	if !p.config.Enabled {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.server != nil {
		return errors.New("profiler already started")
	}

	if p.config.BlockProfile {
		runtime.SetBlockProfileRate(1)
	}
	if p.config.MutexProfile {
		runtime.SetMutexProfileFraction(1)
	}

	ln, err := net.Listen("tcp", p.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.config.Address, err)
	}
	p.addr = ln.Addr()

	p.server = &http.Server{
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error().Err(err).Msg("Profiling server error")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.monitorGoroutines(ctx, 30*time.Second)

	p.logger.Info().Str("address", p.addr.String()).Msg("Profiling server listening")
	return nil
}

// Addr returns the bound address, nil before Start
func (p *Profiler) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}

// Stop shuts the debug listener down
func (p *Profiler) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.server == nil {
		return nil
	}

	p.cancel()
	<-p.done

	err := p.server.Shutdown(ctx)
	p.server = nil
	if err != nil {
		return fmt.Errorf("failed to shutdown profiling server: %w", err)
	}
	return nil
}

// Handler returns the pprof routes plus /debug/stats
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("GET /debug/stats", statsHandler)
	return mux
}

func (p *Profiler) monitorGoroutines(ctx context.Context, every time.Duration) {
	defer close(p.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := runtime.NumGoroutine()
			if count > p.config.GoroutineThreshold {
				p.logger.Warn().
					Int("goroutines", count).
					Int("threshold", p.config.GoroutineThreshold).
					Msg("High goroutine count detected")
			}
		}
	}
}

func statsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Goroutines: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(w, "GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
	fmt.Fprintf(w, "HeapAlloc: %d KB\n", m.HeapAlloc/1024)
	fmt.Fprintf(w, "HeapObjects: %d\n", m.HeapObjects)
	fmt.Fprintf(w, "Sys: %d KB\n", m.Sys/1024)
	fmt.Fprintf(w, "NumGC: %d\n", m.NumGC)
	fmt.Fprintf(w, "PauseTotal: %s\n", time.Duration(m.PauseTotalNs))
}
