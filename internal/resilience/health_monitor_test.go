package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		Name:                   "test",
		DegradedThreshold:      0.2,
		UnhealthyThreshold:     0.5,
		MaxResponseTime:        30 * time.Second,
		RollingWindowSize:      100,
		MaxConsecutiveFailures: 5,
	}
}

func TestHealthMonitor_StartsUnknown(t *testing.T) {
	hm := NewHealthMonitor(testMonitorConfig())

	assert.Equal(t, HealthUnknown, hm.Status())
	assert.True(t, hm.IsAvailable())
}

func TestHealthMonitor_HealthyAfterSuccesses(t *testing.T) {
	hm := NewHealthMonitor(testMonitorConfig())

	for i := 0; i < 10; i++ {
		hm.RecordSuccess(100 * time.Millisecond)
	}

	assert.Equal(t, HealthHealthy, hm.Status())
	assert.True(t, hm.IsAvailable())
}

func TestHealthMonitor_DegradedAtErrorRate(t *testing.T) {
	hm := NewHealthMonitor(testMonitorConfig())

	// 2 failures in 10 requests is exactly the 20% degraded threshold
	for i := 0; i < 8; i++ {
		hm.RecordSuccess(time.Millisecond)
	}
	hm.RecordFailure(time.Millisecond, errors.New("boom"))
	hm.RecordSuccess(time.Millisecond)
	hm.RecordFailure(time.Millisecond, errors.New("boom"))

	assert.Equal(t, HealthDegraded, hm.Status())
	assert.True(t, hm.IsAvailable())
}

func TestHealthMonitor_DegradedOnSlowAverage(t *testing.T) {
	config := testMonitorConfig()
	config.MaxResponseTime = 50 * time.Millisecond
	hm := NewHealthMonitor(config)

	for i := 0; i < 5; i++ {
		hm.RecordSuccess(200 * time.Millisecond)
	}

	assert.Equal(t, HealthDegraded, hm.Status())
}

func TestHealthMonitor_UnhealthyAtErrorRate(t *testing.T) {
	hm := NewHealthMonitor(testMonitorConfig())

	// Alternate to keep consecutive failures low; rate hits 50%
	for i := 0; i < 5; i++ {
		hm.RecordSuccess(time.Millisecond)
		hm.RecordFailure(time.Millisecond, errors.New("boom"))
	}

	assert.Equal(t, HealthUnhealthy, hm.Status())
	assert.False(t, hm.IsAvailable())
}

func TestHealthMonitor_UnhealthyOnConsecutiveFailures(t *testing.T) {
	config := testMonitorConfig()
	config.MaxConsecutiveFailures = 3
	hm := NewHealthMonitor(config)

	// Low overall error rate, but three failures in a row force UNHEALTHY
	for i := 0; i < 50; i++ {
		hm.RecordSuccess(time.Millisecond)
	}
	hm.RecordFailure(time.Millisecond, errors.New("boom"))
	hm.RecordFailure(time.Millisecond, errors.New("boom"))
	assert.True(t, hm.IsAvailable())

	hm.RecordFailure(time.Millisecond, errors.New("boom"))
	assert.Equal(t, HealthUnhealthy, hm.Status())
	assert.False(t, hm.IsAvailable())
}

func TestHealthMonitor_WindowEvictsOldest(t *testing.T) {
	config := testMonitorConfig()
	config.RollingWindowSize = 3
	hm := NewHealthMonitor(config)

	// Five records into a window of three leaves only the last three
	hm.RecordFailure(time.Millisecond, errors.New("boom"))
	hm.RecordFailure(time.Millisecond, errors.New("boom"))
	hm.RecordSuccess(time.Millisecond)
	hm.RecordSuccess(time.Millisecond)
	hm.RecordSuccess(time.Millisecond)

	m := hm.GetMetrics()
	assert.Equal(t, 3, m.WindowSize)
	assert.Equal(t, 0.0, m.ErrorRate)
	assert.Equal(t, int64(5), m.TotalRequests)
	assert.Equal(t, HealthHealthy, m.Status)
}

func TestHealthMonitor_Percentiles(t *testing.T) {
	hm := NewHealthMonitor(testMonitorConfig())

	for _, ms := range []int{10, 20, 30, 40, 50} {
		hm.RecordSuccess(time.Duration(ms) * time.Millisecond)
	}

	m := hm.GetMetrics()
	assert.Equal(t, 50*time.Millisecond, m.P95Latency)
	assert.Equal(t, 50*time.Millisecond, m.P99Latency)
	assert.Equal(t, 30*time.Millisecond, m.AverageLatency)
}

func TestHealthMonitor_PercentileIndex(t *testing.T) {
	durations := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
	}

	assert.Equal(t, 30*time.Millisecond, percentile(durations, 50))
	assert.Equal(t, 50*time.Millisecond, percentile(durations, 95))
	assert.Equal(t, 10*time.Millisecond, percentile(durations, 0))
	assert.Equal(t, time.Duration(0), percentile(nil, 95))
}

func TestHealthMonitor_GetMetricsSnapshot(t *testing.T) {
	hm := NewHealthMonitor(testMonitorConfig())

	hm.RecordSuccess(10 * time.Millisecond)
	hm.RecordFailure(20*time.Millisecond, errors.New("boom"))

	m := hm.GetMetrics()
	assert.Equal(t, int64(2), m.TotalRequests)
	assert.Equal(t, int64(1), m.TotalSuccesses)
	assert.Equal(t, int64(1), m.TotalFailures)
	assert.InDelta(t, 0.5, m.ErrorRate, 1e-9)
	assert.InDelta(t, 0.5, m.SuccessRate, 1e-9)
	assert.Equal(t, 1, m.ConsecutiveFailures)
	assert.False(t, m.LastSuccessAt.IsZero())
	assert.False(t, m.LastFailureAt.IsZero())
}

func TestHealthMonitor_Reset(t *testing.T) {
	hm := NewHealthMonitor(testMonitorConfig())

	for i := 0; i < 10; i++ {
		hm.RecordFailure(time.Millisecond, errors.New("boom"))
	}
	require.Equal(t, HealthUnhealthy, hm.Status())

	hm.Reset()

	assert.Equal(t, HealthUnknown, hm.Status())
	assert.True(t, hm.IsAvailable())

	m := hm.GetMetrics()
	assert.Equal(t, int64(0), m.TotalRequests)
	assert.Equal(t, 0, m.WindowSize)
	assert.Equal(t, 0, m.ConsecutiveFailures)
}

func TestHealthStatus_String(t *testing.T) {
	assert.Equal(t, "UNKNOWN", HealthUnknown.String())
	assert.Equal(t, "HEALTHY", HealthHealthy.String())
	assert.Equal(t, "DEGRADED", HealthDegraded.String())
	assert.Equal(t, "UNHEALTHY", HealthUnhealthy.String())
}
