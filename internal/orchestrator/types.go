package orchestrator

import (
	"context"
	"fmt"
	"time"
)

// TaskType is the closed set of work the orchestrator routes. Adding a
// type requires a matching case in the routing switch.
type TaskType int

const (
	TaskResearch TaskType = iota
	TaskWriting
	TaskAnalysis
	TaskEmbedding
)

func (t TaskType) String() string {
	switch t {
	case TaskResearch:
		return "research"
	case TaskWriting:
		return "writing"
	case TaskAnalysis:
		return "analysis"
	case TaskEmbedding:
		return "embedding"
	default:
		return "unknown"
	}
}

// ParseTaskType parses a task type name as produced by String
func ParseTaskType(s string) (TaskType, error) {
	switch s {
	case "research":
		return TaskResearch, nil
	case "writing":
		return TaskWriting, nil
	case "analysis":
		return TaskAnalysis, nil
	case "embedding":
		return TaskEmbedding, nil
	default:
		return TaskResearch, fmt.Errorf("unknown task type: %q", s)
	}
}

// TaskPayload is the sealed union of per-kind task inputs. Handlers
// type-switch on the concrete payload rather than poking at untyped maps.
type TaskPayload interface {
	taskPayload()
}

// ResearchPayload asks for source-backed background on a topic
type ResearchPayload struct {
	Topic string `json:"topic"`
	Depth int    `json:"depth"`
}

// WritingPayload asks for drafted content
type WritingPayload struct {
	Subject  string `json:"subject"`
	Tone     string `json:"tone"`
	MaxWords int    `json:"max_words"`
}

// AnalysisPayload asks for an assessment of existing content
type AnalysisPayload struct {
	Content string `json:"content"`
	Focus   string `json:"focus"`
}

// EmbeddingPayload asks for vector embeddings of the given texts
type EmbeddingPayload struct {
	Texts []string `json:"texts"`
}

func (ResearchPayload) taskPayload()  {}
func (WritingPayload) taskPayload()   {}
func (AnalysisPayload) taskPayload()  {}
func (EmbeddingPayload) taskPayload() {}

// Task is one unit of queued work. Higher priority means more urgent.
type Task struct {
	ID        string      `json:"id"`
	Type      TaskType    `json:"-"`
	TypeName  string      `json:"type"`
	Payload   TaskPayload `json:"payload"`
	Priority  int         `json:"priority"`
	Timestamp time.Time   `json:"timestamp"`
}

// TaskHandler executes one task for its routed agent
type TaskHandler func(ctx context.Context, task Task) (interface{}, error)

// Agent names the routing table resolves to. They double as supervisor
// registry keys, so circuit state and health are tracked per agent.
const (
	ResearchAgent  = "research-agent"
	ReasoningAgent = "reasoning-agent"
	EmbeddingAgent = "embedding-agent"
)

// AgentCapability documents why the routing table assigns work the way
// it does. It is a static reference record, not consulted at runtime.
type AgentCapability struct {
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Cost       string   `json:"cost"`
	Speed      string   `json:"speed"`
}

// Capabilities is the static reference table behind the routing choices
var Capabilities = map[string]AgentCapability{
	ResearchAgent: {
		Strengths:  []string{"web-grounded answers", "source citations", "recency"},
		Weaknesses: []string{"long-form composition", "strict formatting"},
		Cost:       "medium",
		Speed:      "medium",
	},
	ReasoningAgent: {
		Strengths:  []string{"long-form writing", "nuanced analysis", "instruction following"},
		Weaknesses: []string{"no live web access"},
		Cost:       "high",
		Speed:      "medium",
	},
	EmbeddingAgent: {
		Strengths:  []string{"cheap dense vectors", "batching"},
		Weaknesses: []string{"no generation"},
		Cost:       "low",
		Speed:      "fast",
	},
}
