package api

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/postpilot/postpilot/internal/orchestrator"
	apperrors "github.com/postpilot/postpilot/pkg/errors"
)

// TaskHandler exposes the orchestrator's queue surface
type TaskHandler struct {
	orchestrator *orchestrator.Orchestrator
}

// NewTaskHandler creates a task queue handler
func NewTaskHandler(orch *orchestrator.Orchestrator) *TaskHandler {
	return &TaskHandler{orchestrator: orch}
}

type queueTaskRequest struct {
	Type     string          `json:"type" binding:"required"`
	Priority int             `json:"priority"`
	Payload  json.RawMessage `json:"payload" binding:"required"`
}

// QueueTask enqueues one task, returning its assigned id
func (h *TaskHandler) QueueTask(c *gin.Context) {
	var req queueTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, apperrors.NewValidationError("type and payload are required"))
		return
	}

	taskType, err := orchestrator.ParseTaskType(req.Type)
	if err != nil {
		ErrorResponse(c, apperrors.NewValidationError(err.Error()))
		return
	}

	payload, err := decodePayload(taskType, req.Payload)
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	id := h.orchestrator.QueueTask(orchestrator.Task{
		Type:     taskType,
		Payload:  payload,
		Priority: req.Priority,
	})
	SuccessResponse(c, gin.H{"task_id": id, "queue_depth": h.orchestrator.QueueLength()})
}

// decodePayload unmarshals the raw payload into the concrete type for
// the task kind, keeping the tagged union intact across the HTTP edge.
func decodePayload(taskType orchestrator.TaskType, raw json.RawMessage) (orchestrator.TaskPayload, error) {
	var (
		payload orchestrator.TaskPayload
		err     error
	)

	switch taskType {
	case orchestrator.TaskResearch:
		var p orchestrator.ResearchPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case orchestrator.TaskWriting:
		var p orchestrator.WritingPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case orchestrator.TaskAnalysis:
		var p orchestrator.AnalysisPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case orchestrator.TaskEmbedding:
		var p orchestrator.EmbeddingPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported task type %s", taskType))
	}

	if err != nil {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("invalid %s payload: %v", taskType, err))
	}
	return payload, nil
}

// GetQueue returns the queued tasks in drain order
func (h *TaskHandler) GetQueue(c *gin.Context) {
	SuccessResponse(c, gin.H{
		"depth": h.orchestrator.QueueLength(),
		"tasks": h.orchestrator.QueueSnapshot(),
	})
}

// ProcessQueue drains the queue synchronously and reports how many tasks
// were attempted.
func (h *TaskHandler) ProcessQueue(c *gin.Context) {
	processed := h.orchestrator.ProcessQueue(c.Request.Context())
	SuccessResponse(c, gin.H{"processed": processed})
}
