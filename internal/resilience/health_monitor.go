package resilience

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/postpilot/postpilot/pkg/logging"
)

// HealthStatus represents the derived health of a monitored agent
type HealthStatus int

const (
	// HealthUnknown - no requests recorded yet
	HealthUnknown HealthStatus = iota
	// HealthHealthy - error rate and latency within thresholds
	HealthHealthy
	// HealthDegraded - elevated error rate or latency
	HealthDegraded
	// HealthUnhealthy - failing consecutively or error rate past the limit
	HealthUnhealthy
)

func (s HealthStatus) String() string {
	switch s {
	case HealthHealthy:
		return "HEALTHY"
	case HealthDegraded:
		return "DEGRADED"
	case HealthUnhealthy:
		return "UNHEALTHY"
	default:
		return "UNKNOWN"
	}
}

// HealthMonitorConfig holds thresholds for status derivation
type HealthMonitorConfig struct {
	// Name of the monitored agent, for logging
	Name string
	// DegradedThreshold is the rolling-window error rate at or above
	// which the agent is DEGRADED
	DegradedThreshold float64
	// UnhealthyThreshold is the rolling-window error rate at or above
	// which the agent is UNHEALTHY
	UnhealthyThreshold float64
	// MaxResponseTime marks the agent DEGRADED when the rolling average
	// latency exceeds it
	MaxResponseTime time.Duration
	// RollingWindowSize bounds the request metric window (FIFO eviction)
	RollingWindowSize int
	// MaxConsecutiveFailures forces UNHEALTHY regardless of error rate
	MaxConsecutiveFailures int
}

// DefaultHealthMonitorConfig returns sensible monitoring defaults
func DefaultHealthMonitorConfig(name string) HealthMonitorConfig {
	return HealthMonitorConfig{
		Name:                   name,
		DegradedThreshold:      0.2,
		UnhealthyThreshold:     0.5,
		MaxResponseTime:        30 * time.Second,
		RollingWindowSize:      100,
		MaxConsecutiveFailures: 5,
	}
}

// RequestMetric is a single recorded outcome
type RequestMetric struct {
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// HealthMetrics is a point-in-time snapshot of monitor state.
// Rates and latency percentiles are computed over the rolling window;
// totals count the monitor's lifetime since creation or Reset.
type HealthMetrics struct {
	Status              HealthStatus  `json:"-"`
	StatusName          string        `json:"status"`
	TotalRequests       int64         `json:"total_requests"`
	TotalSuccesses      int64         `json:"total_successes"`
	TotalFailures       int64         `json:"total_failures"`
	SuccessRate         float64       `json:"success_rate"`
	ErrorRate           float64       `json:"error_rate"`
	AverageLatency      time.Duration `json:"average_latency"`
	P95Latency          time.Duration `json:"p95_latency"`
	P99Latency          time.Duration `json:"p99_latency"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	WindowSize          int           `json:"window_size"`
	LastRequestAt       time.Time     `json:"last_request_at"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	LastFailureAt       time.Time     `json:"last_failure_at"`
	Uptime              time.Duration `json:"uptime"`
}

// HealthMonitor keeps a bounded rolling window of request outcomes for a
// named agent and derives a health status from it. Owned by the
// supervisor registry; all mutation goes through Record* and Reset.
type HealthMonitor struct {
	name   string
	config HealthMonitorConfig

	mu                  sync.Mutex
	window              []RequestMetric
	status              HealthStatus
	consecutiveFailures int
	totalRequests       int64
	totalSuccesses      int64
	totalFailures       int64
	lastRequestAt       time.Time
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	startedAt           time.Time

	logger *logging.Logger
}

// NewHealthMonitor creates a monitor with the given configuration
func NewHealthMonitor(config HealthMonitorConfig) *HealthMonitor {
	if config.RollingWindowSize <= 0 {
		config.RollingWindowSize = 100
	}
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = 5
	}

	return &HealthMonitor{
		name:      config.Name,
		config:    config,
		window:    make([]RequestMetric, 0, config.RollingWindowSize),
		status:    HealthUnknown,
		startedAt: time.Now(),
		logger:    logging.GetLogger(),
	}
}

// RecordSuccess appends a successful outcome to the rolling window
func (hm *HealthMonitor) RecordSuccess(duration time.Duration) {
	hm.record(RequestMetric{
		Success:   true,
		Duration:  duration,
		Timestamp: time.Now(),
	})
}

// RecordFailure appends a failed outcome to the rolling window
func (hm *HealthMonitor) RecordFailure(duration time.Duration, err error) {
	metric := RequestMetric{
		Success:   false,
		Duration:  duration,
		Timestamp: time.Now(),
	}
	if err != nil {
		metric.Error = err.Error()
	}
	hm.record(metric)
}

func (hm *HealthMonitor) record(metric RequestMetric) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.window = append(hm.window, metric)
	if len(hm.window) > hm.config.RollingWindowSize {
		hm.window = hm.window[len(hm.window)-hm.config.RollingWindowSize:]
	}

	hm.totalRequests++
	hm.lastRequestAt = metric.Timestamp
	if metric.Success {
		hm.totalSuccesses++
		hm.lastSuccessAt = metric.Timestamp
		hm.consecutiveFailures = 0
	} else {
		hm.totalFailures++
		hm.lastFailureAt = metric.Timestamp
		hm.consecutiveFailures++
	}

	previous := hm.status
	hm.status = hm.deriveStatus()
	if hm.status != previous {
		hm.logger.Info("Agent health status changed",
			"agent", hm.name,
			"from", previous.String(),
			"to", hm.status.String(),
			"consecutive_failures", hm.consecutiveFailures,
			"error_rate", hm.errorRate(),
		)
	}
}

// deriveStatus recomputes status from the rolling window.
// Caller must hold the mutex.
func (hm *HealthMonitor) deriveStatus() HealthStatus {
	if len(hm.window) == 0 {
		return HealthUnknown
	}

	errorRate := hm.errorRate()
	if hm.consecutiveFailures >= hm.config.MaxConsecutiveFailures ||
		errorRate >= hm.config.UnhealthyThreshold {
		return HealthUnhealthy
	}
	if errorRate >= hm.config.DegradedThreshold ||
		hm.averageLatency() > hm.config.MaxResponseTime {
		return HealthDegraded
	}
	return HealthHealthy
}

func (hm *HealthMonitor) errorRate() float64 {
	if len(hm.window) == 0 {
		return 0
	}
	failures := 0
	for _, m := range hm.window {
		if !m.Success {
			failures++
		}
	}
	return float64(failures) / float64(len(hm.window))
}

func (hm *HealthMonitor) averageLatency() time.Duration {
	if len(hm.window) == 0 {
		return 0
	}
	var total time.Duration
	for _, m := range hm.window {
		total += m.Duration
	}
	return total / time.Duration(len(hm.window))
}

// Status returns the current derived health status
func (hm *HealthMonitor) Status() HealthStatus {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.status
}

// IsAvailable reports whether the agent may receive traffic. UNKNOWN and
// DEGRADED agents are still available; only UNHEALTHY ones are not.
func (hm *HealthMonitor) IsAvailable() bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.status != HealthUnhealthy
}

// GetMetrics returns a snapshot of the monitor
func (hm *HealthMonitor) GetMetrics() HealthMetrics {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	durations := make([]time.Duration, len(hm.window))
	for i, m := range hm.window {
		durations[i] = m.Duration
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	successRate := 0.0
	errorRate := hm.errorRate()
	if len(hm.window) > 0 {
		successRate = 1 - errorRate
	}

	return HealthMetrics{
		Status:              hm.status,
		StatusName:          hm.status.String(),
		TotalRequests:       hm.totalRequests,
		TotalSuccesses:      hm.totalSuccesses,
		TotalFailures:       hm.totalFailures,
		SuccessRate:         successRate,
		ErrorRate:           errorRate,
		AverageLatency:      hm.averageLatency(),
		P95Latency:          percentile(durations, 95),
		P99Latency:          percentile(durations, 99),
		ConsecutiveFailures: hm.consecutiveFailures,
		WindowSize:          len(hm.window),
		LastRequestAt:       hm.lastRequestAt,
		LastSuccessAt:       hm.lastSuccessAt,
		LastFailureAt:       hm.lastFailureAt,
		Uptime:              time.Since(hm.startedAt),
	}
}

// Reset clears the window and counters, returning the monitor to UNKNOWN
func (hm *HealthMonitor) Reset() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.window = hm.window[:0]
	hm.status = HealthUnknown
	hm.consecutiveFailures = 0
	hm.totalRequests = 0
	hm.totalSuccesses = 0
	hm.totalFailures = 0
	hm.lastRequestAt = time.Time{}
	hm.lastSuccessAt = time.Time{}
	hm.lastFailureAt = time.Time{}
	hm.startedAt = time.Now()
}

// percentile returns the p-th percentile of ascending-sorted durations,
// using index ceil(p/100 * n) - 1 clamped to the valid range.
func percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
