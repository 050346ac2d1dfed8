package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot/postpilot/internal/orchestrator"
	"github.com/postpilot/postpilot/internal/supervisor"
	"github.com/postpilot/postpilot/pkg/config"
	"github.com/postpilot/postpilot/pkg/metrics"
)

func newTestRouter(t *testing.T) (*gin.Engine, *supervisor.Supervisor, *orchestrator.Orchestrator) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Logging.Level = "info"

	supCfg := supervisor.DefaultConfig()
	supCfg.Retry.Backoff = time.Millisecond
	sup := supervisor.NewSupervisor(supCfg, metrics.NewNoopSink())

	orch := orchestrator.NewOrchestrator(sup, metrics.NewNoopSink(), nil)
	orch.RegisterHandler(orchestrator.ReasoningAgent, func(ctx context.Context, task orchestrator.Task) (interface{}, error) {
		return "done", nil
	})

	return NewRouter(cfg, sup, orch, nil), sup, orch
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)
}

func TestQueueTask(t *testing.T) {
	router, _, orch := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/tasks", gin.H{
		"type":     "writing",
		"priority": 5,
		"payload":  gin.H{"subject": "release notes", "tone": "formal"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Regexp(t, `^task_\d+_[0-9a-f]{8}\d+$`, data["task_id"])
	assert.Equal(t, 1, orch.QueueLength())
}

func TestQueueTask_UnknownTypeRejected(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/tasks", gin.H{
		"type":    "juggling",
		"payload": gin.H{},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestQueueTask_MissingPayloadRejected(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/tasks", gin.H{"type": "writing"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetQueueAndProcess(t *testing.T) {
	router, _, orch := newTestRouter(t)

	for i := 0; i < 3; i++ {
		doRequest(router, http.MethodPost, "/api/v1/tasks", gin.H{
			"type":     "analysis",
			"priority": i,
			"payload":  gin.H{"content": "text", "focus": "tone"},
		})
	}

	w := doRequest(router, http.MethodGet, "/api/v1/tasks/queue", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["depth"])

	w = doRequest(router, http.MethodPost, "/api/v1/tasks/queue/process", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data = decodeResponse(t, w).Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["processed"])
	assert.Equal(t, 0, orch.QueueLength())
}

func TestAgentEndpoints(t *testing.T) {
	router, sup, _ := newTestRouter(t)
	sup.RegisterAgent(supervisor.AgentOptions{Name: "claude"})

	w := doRequest(router, http.MethodGet, "/api/v1/agents", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/agents/claude/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/agents/claude/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/agents/missing/health", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestForceCircuitAndReset(t *testing.T) {
	router, sup, _ := newTestRouter(t)
	sup.RegisterAgent(supervisor.AgentOptions{Name: "claude"})

	w := doRequest(router, http.MethodPost, "/api/v1/agents/claude/circuit", gin.H{"state": "OPEN"})
	assert.Equal(t, http.StatusOK, w.Code)

	status := sup.GetAllAgentsStatus()["claude"]
	assert.Equal(t, "OPEN", status.Circuit.StateName)

	w = doRequest(router, http.MethodPost, "/api/v1/agents/claude/circuit", gin.H{"state": "HALF_OPEN"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/agents/claude/reset", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	status = sup.GetAllAgentsStatus()["claude"]
	assert.Equal(t, "CLOSED", status.Circuit.StateName)

	w = doRequest(router, http.MethodPost, "/api/v1/agents/missing/reset", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatisticsEndpoint(t *testing.T) {
	router, sup, _ := newTestRouter(t)
	sup.RegisterAgent(supervisor.AgentOptions{Name: "claude"})
	sup.RegisterAgent(supervisor.AgentOptions{Name: "gpt"})

	w := doRequest(router, http.MethodGet, "/api/v1/agents/statistics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["total_agents"])
}
