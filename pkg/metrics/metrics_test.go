package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusSink_RecordsAndServes(t *testing.T) {
	sink := NewPrometheusSink(&Config{Namespace: "test"})

	sink.IncrementCounter("supervisor_executions_total",
		map[string]string{"agent": "claude", "outcome": "success"})
	sink.IncrementCounter("supervisor_executions_total",
		map[string]string{"agent": "claude", "outcome": "success"})
	sink.RecordHistogram("supervisor_execution_duration_ms", 123,
		map[string]string{"agent": "claude"})
	sink.SetGauge("agent_health_status", 1, map[string]string{"agent": "claude"})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	sink.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	require.Equal(t, 200, w.Code)
	assert.Contains(t, body, "test_supervisor_executions_total")
	assert.Contains(t, body, `agent="claude"`)
	assert.Contains(t, body, "test_supervisor_execution_duration_ms_bucket")
	assert.Contains(t, body, "test_agent_health_status")
}

func TestPrometheusSink_SurvivesLabelMismatch(t *testing.T) {
	sink := NewPrometheusSink(nil)

	sink.IncrementCounter("requests_total", map[string]string{"agent": "a"})

	// Different label keys for the same metric must not panic into the caller
	assert.NotPanics(t, func() {
		sink.IncrementCounter("requests_total", map[string]string{"other": "b"})
	})
}

func TestNoopSink(t *testing.T) {
	sink := NewNoopSink()

	assert.NotPanics(t, func() {
		sink.IncrementCounter("x", nil)
		sink.RecordHistogram("y", 1, nil)
		sink.SetGauge("z", 2, nil)
	})
}
