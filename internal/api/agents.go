package api

import (
	"github.com/gin-gonic/gin"

	"github.com/postpilot/postpilot/internal/resilience"
	"github.com/postpilot/postpilot/internal/supervisor"
	apperrors "github.com/postpilot/postpilot/pkg/errors"
)

// AgentHandler exposes the supervisor's read and administrative surface
type AgentHandler struct {
	supervisor *supervisor.Supervisor
}

// NewAgentHandler creates an agent admin handler
func NewAgentHandler(sup *supervisor.Supervisor) *AgentHandler {
	return &AgentHandler{supervisor: sup}
}

// ListAgents returns the status of every registered agent
func (h *AgentHandler) ListAgents(c *gin.Context) {
	SuccessResponse(c, h.supervisor.GetAllAgentsStatus())
}

// GetAgentHealth returns one agent's derived health status
func (h *AgentHandler) GetAgentHealth(c *gin.Context) {
	status, err := h.supervisor.GetAgentHealth(c.Param("name"))
	if err != nil {
		ErrorResponse(c, err)
		return
	}
	SuccessResponse(c, gin.H{"agent": c.Param("name"), "status": status.String()})
}

// GetAgentMetrics returns one agent's health metrics snapshot
func (h *AgentHandler) GetAgentMetrics(c *gin.Context) {
	m, err := h.supervisor.GetAgentMetrics(c.Param("name"))
	if err != nil {
		ErrorResponse(c, err)
		return
	}
	SuccessResponse(c, m)
}

// ResetAgent clears an agent's circuit breaker and health monitor
func (h *AgentHandler) ResetAgent(c *gin.Context) {
	if err := h.supervisor.ResetAgent(c.Param("name")); err != nil {
		ErrorResponse(c, err)
		return
	}
	SuccessResponse(c, gin.H{"agent": c.Param("name"), "reset": true})
}

type forceCircuitRequest struct {
	State string `json:"state" binding:"required"`
}

// ForceCircuitState pins an agent's breaker OPEN or CLOSED
func (h *AgentHandler) ForceCircuitState(c *gin.Context) {
	var req forceCircuitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, apperrors.NewValidationError("state is required"))
		return
	}

	state, err := resilience.ParseCircuitState(req.State)
	if err != nil {
		ErrorResponse(c, apperrors.NewValidationError(err.Error()))
		return
	}

	if err := h.supervisor.ForceCircuitState(c.Param("name"), state); err != nil {
		ErrorResponse(c, err)
		return
	}
	SuccessResponse(c, gin.H{"agent": c.Param("name"), "state": state.String()})
}

// GetStatistics aggregates registry counts by health and circuit state
func (h *AgentHandler) GetStatistics(c *gin.Context) {
	SuccessResponse(c, h.supervisor.GetStatistics())
}
