package metrics

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink is the metrics contract consumed by the supervision and routing
// layers. Implementations are fire-and-forget: they must never panic or
// return errors into the call path that records them.
type Sink interface {
	IncrementCounter(name string, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "postpilot",
		Enabled:   true,
	}
}

// PrometheusSink implements Sink on top of prometheus/client_golang.
// Metric vectors are registered lazily on first use; the label key set
// seen at first registration is fixed for the lifetime of the metric.
type PrometheusSink struct {
	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// DurationBuckets are histogram buckets in milliseconds, tuned for
// AI-provider call latencies (tens of ms to minutes).
var DurationBuckets = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000}

// NewPrometheusSink creates a sink backed by its own registry
func NewPrometheusSink(config *Config) *PrometheusSink {
	if config == nil {
		config = DefaultConfig()
	}

	return &PrometheusSink{
		namespace:  config.Namespace,
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// IncrementCounter increments the named counter
func (s *PrometheusSink) IncrementCounter(name string, labels map[string]string) {
	defer swallowPanic()

	s.mu.Lock()
	vec, ok := s.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      name,
			Help:      name,
		}, labelKeys(labels))
		s.registry.MustRegister(vec)
		s.counters[name] = vec
	}
	s.mu.Unlock()

	vec.With(prometheus.Labels(labels)).Inc()
}

// RecordHistogram records an observation on the named histogram
func (s *PrometheusSink) RecordHistogram(name string, value float64, labels map[string]string) {
	defer swallowPanic()

	s.mu.Lock()
	vec, ok := s.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      name,
			Help:      name,
			Buckets:   DurationBuckets,
		}, labelKeys(labels))
		s.registry.MustRegister(vec)
		s.histograms[name] = vec
	}
	s.mu.Unlock()

	vec.With(prometheus.Labels(labels)).Observe(value)
}

// SetGauge sets the named gauge
func (s *PrometheusSink) SetGauge(name string, value float64, labels map[string]string) {
	defer swallowPanic()

	s.mu.Lock()
	vec, ok := s.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      name,
			Help:      name,
		}, labelKeys(labels))
		s.registry.MustRegister(vec)
		s.gauges[name] = vec
	}
	s.mu.Unlock()

	vec.With(prometheus.Labels(labels)).Set(value)
}

// Handler returns the HTTP handler serving this sink's registry
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// swallowPanic keeps metric recording out of the supervision call path.
// A label-cardinality mismatch must not take down an agent execution.
func swallowPanic() {
	_ = recover()
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NoopSink discards all metrics. Used in tests and when metrics are disabled.
type NoopSink struct{}

// NewNoopSink creates a sink that discards everything
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (NoopSink) IncrementCounter(string, map[string]string)       {}
func (NoopSink) RecordHistogram(string, float64, map[string]string) {}
func (NoopSink) SetGauge(string, float64, map[string]string)      {}
