package metrics

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Namespace for the adapter's own metrics
const namespace = "adapter"

// DefaultBuckets are the duration histogram upper bounds, in seconds
var DefaultBuckets = []float64{0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 1.0}

// Collector owns the metrics registry shared by every adapter and the HTTP
// exposition handler. Adapters write through the sinks they obtain from it;
// the handler only reads.
type Collector struct {
	registry *prometheus.Registry

	// Errors counts decode failures and failed passes across all adapters
	Errors prometheus.Counter

	// Poll loop metrics
	PollPasses   *prometheus.CounterVec
	PollDuration *prometheus.HistogramVec

	// Tail position metrics
	TailPosition *prometheus.GaugeVec
	TailResets   *prometheus.CounterVec
}

// NewCollector creates a new metrics collector with its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.Errors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Total number of adapter parsing errors",
	})

	c.PollPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "passes_total",
			Help:      "Total number of poll passes by outcome",
		},
		[]string{"adapter", "result"},
	)

	c.PollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "duration_seconds",
			Help:      "Time taken by a single poll pass",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		},
		[]string{"adapter"},
	)

	c.TailPosition = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "position_bytes",
			Help:      "Byte offset up to which the source log has been processed",
		},
		[]string{"adapter"},
	)

	c.TailResets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "resets_total",
			Help:      "Number of times the source log was truncated or replaced",
		},
		[]string{"adapter"},
	)

	c.registry.MustRegister(c.Errors, c.PollPasses, c.PollDuration, c.TailPosition, c.TailResets)

	return c
}

// IncrementErrors counts one adapter error
func (c *Collector) IncrementErrors() {
	c.Errors.Inc()
}

// ObservePass records the outcome and duration of one poll pass
func (c *Collector) ObservePass(adapter string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.PollPasses.WithLabelValues(adapter, result).Inc()
	c.PollDuration.WithLabelValues(adapter).Observe(d.Seconds())
}

// SetTailPosition publishes the committed tail offset for an adapter
func (c *Collector) SetTailPosition(adapter string, offset int64) {
	c.TailPosition.WithLabelValues(adapter).Set(float64(offset))
}

// IncrementTailResets counts a truncation or replacement of an adapter's source
func (c *Collector) IncrementTailResets(adapter string) {
	c.TailResets.WithLabelValues(adapter).Inc()
}

// Registry returns the Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Render writes the current state of every metric in the text exposition format
func (c *Collector) Render(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Handler returns an HTTP handler serving the registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func validateBuckets(buckets []float64) error {
	if len(buckets) == 0 {
		return fmt.Errorf("at least one histogram bucket is required")
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i] <= buckets[i-1] {
			return fmt.Errorf("histogram buckets must be strictly increasing: %v", buckets)
		}
	}
	return nil
}
