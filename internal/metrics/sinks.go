package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/therealutkarshpriyadarshi/metricsadapter/pkg/types"
)

// TailSink receives the records decoded from the producer's JSON log.
// Every method is a single atomic update; there is no cross-metric
// consistency within a batch.
type TailSink struct {
	duration  prometheus.Histogram
	total     prometheus.Counter
	lastValue prometheus.Gauge
	errors    prometheus.Counter
}

// NewTailSink registers the tail series. prefix names the metric family,
// e.g. "random" yields random_generation_total.
func (c *Collector) NewTailSink(prefix string, buckets []float64) (*TailSink, error) {
	if prefix == "" {
		prefix = "random"
	}
	if buckets == nil {
		buckets = DefaultBuckets
	}
	if err := validateBuckets(buckets); err != nil {
		return nil, err
	}

	s := &TailSink{
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "_generation_duration_seconds",
			Help:    "Time spent generating random numbers",
			Buckets: buckets,
		}),
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_generation_total",
			Help: "Total number of random number generations",
		}),
		lastValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_last_generated_value",
			Help: "The last generated random value",
		}),
		errors: c.Errors,
	}

	for _, m := range []prometheus.Collector{s.duration, s.total, s.lastValue} {
		if err := c.registry.Register(m); err != nil {
			return nil, fmt.Errorf("failed to register tail metrics: %w", err)
		}
	}

	return s, nil
}

// ObserveDuration records one generation duration in seconds
func (s *TailSink) ObserveDuration(seconds float64) {
	s.duration.Observe(seconds)
}

// IncrementTotal counts one generation
func (s *TailSink) IncrementTotal() {
	s.total.Inc()
}

// SetLastValue overwrites the last generated value
func (s *TailSink) SetLastValue(v float64) {
	s.lastValue.Set(v)
}

// IncrementErrors counts one rejected line
func (s *TailSink) IncrementErrors() {
	s.errors.Inc()
}

// Fold applies one decoded record
func (s *TailSink) Fold(rec types.LogRecord) {
	s.ObserveDuration(rec.DurationSeconds())
	s.IncrementTotal()
	s.SetLastValue(rec.Value)
}

// LegacySink receives requests decoded from a legacy multi-format log
type LegacySink struct {
	requests     *prometheus.CounterVec
	duration     prometheus.Histogram
	serverErrors prometheus.Counter
	errors       prometheus.Counter
}

// NewLegacySink registers the legacy application series
func (c *Collector) NewLegacySink(buckets []float64) (*LegacySink, error) {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	if err := validateBuckets(buckets); err != nil {
		return nil, err
	}

	s := &LegacySink{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "legacy_app",
				Name:      "requests_total",
				Help:      "Total requests seen in the legacy application log",
			},
			[]string{"format", "status"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "legacy_app",
			Name:      "request_duration_seconds",
			Help:      "Request duration reported by the legacy application",
			Buckets:   buckets,
		}),
		serverErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "legacy_app",
			Name:      "errors_total",
			Help:      "Requests that ended with a 5xx status",
		}),
		errors: c.Errors,
	}

	for _, m := range []prometheus.Collector{s.requests, s.duration, s.serverErrors} {
		if err := c.registry.Register(m); err != nil {
			return nil, fmt.Errorf("failed to register legacy metrics: %w", err)
		}
	}

	return s, nil
}

// Fold applies one decoded legacy request
func (s *LegacySink) Fold(req types.LegacyRequest) {
	s.requests.WithLabelValues(req.Format, strconv.Itoa(req.Status)).Inc()
	if req.HasTiming {
		s.duration.Observe(req.DurationMs / 1000.0)
	}
	if req.Status >= 500 {
		s.serverErrors.Inc()
	}
}

// IncrementErrors counts one rejected line
func (s *LegacySink) IncrementErrors() {
	s.errors.Inc()
}

// BatchSink mirrors the latest batch job snapshot
type BatchSink struct {
	processed      prometheus.Gauge
	successful     prometheus.Gauge
	failed         prometheus.Gauge
	successRate    prometheus.Gauge
	processingTime prometheus.Gauge
	errors         prometheus.Counter
}

// NewBatchSink registers the batch job gauges
func (c *Collector) NewBatchSink() (*BatchSink, error) {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "batch_job",
			Name:      name,
			Help:      help,
		})
	}

	s := &BatchSink{
		processed:      gauge("items_processed", "Total items processed"),
		successful:     gauge("items_successful", "Successfully processed items"),
		failed:         gauge("items_failed", "Failed items"),
		successRate:    gauge("success_rate", "Success rate percentage"),
		processingTime: gauge("processing_time_seconds", "Total processing time"),
		errors:         c.Errors,
	}

	for _, m := range []prometheus.Collector{s.processed, s.successful, s.failed, s.successRate, s.processingTime} {
		if err := c.registry.Register(m); err != nil {
			return nil, fmt.Errorf("failed to register batch metrics: %w", err)
		}
	}

	return s, nil
}

// Set replaces every gauge with the snapshot's values
func (s *BatchSink) Set(snap types.BatchSnapshot) {
	s.processed.Set(snap.Processed)
	s.successful.Set(snap.Successful)
	s.failed.Set(snap.Failed)
	s.successRate.Set(snap.SuccessRate)
	s.processingTime.Set(snap.TotalProcessingTimeMs / 1000.0)
}

// IncrementErrors counts one rejected document
func (s *BatchSink) IncrementErrors() {
	s.errors.Inc()
}
