package orchestrator

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/postpilot/internal/supervisor"
	"github.com/postpilot/postpilot/pkg/logging"
	"github.com/postpilot/postpilot/pkg/metrics"
	"github.com/postpilot/postpilot/pkg/tracing"
)

// Orchestrator owns an in-memory priority task queue and a static
// capability-based routing table. Delegation goes through the Supervisor,
// so orchestrated work gets circuit protection, retry, and fallback like
// any other supervised call.
type Orchestrator struct {
	supervisor *supervisor.Supervisor

	mu       sync.Mutex
	queue    []Task
	handlers map[string]TaskHandler

	seq    atomic.Uint64
	sink   metrics.Sink
	tracer *tracing.TracingService
	logger *logging.Logger
}

// NewOrchestrator creates an orchestrator delegating through the given
// supervisor. The tracer may be nil.
func NewOrchestrator(sup *supervisor.Supervisor, sink metrics.Sink, tracer *tracing.TracingService) *Orchestrator {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}

	return &Orchestrator{
		supervisor: sup,
		handlers:   make(map[string]TaskHandler),
		sink:       sink,
		tracer:     tracer,
		logger:     logging.GetLogger(),
	}
}

// RegisterHandler binds a handler to an agent name. Tasks routed to that
// agent are executed by the handler under supervision.
func (o *Orchestrator) RegisterHandler(agentName string, handler TaskHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers[agentName] = handler
}

// QueueTask assigns the task an id and timestamp, enqueues it, and
// re-sorts the queue descending by priority. The sort is stable: equal
// priorities keep insertion order. Returns the assigned id.
func (o *Orchestrator) QueueTask(task Task) string {
	task.ID = o.nextTaskID()
	task.Timestamp = time.Now()
	task.TypeName = task.Type.String()

	o.mu.Lock()
	o.queue = append(o.queue, task)
	sort.SliceStable(o.queue, func(i, j int) bool {
		return o.queue[i].Priority > o.queue[j].Priority
	})
	depth := len(o.queue)
	o.mu.Unlock()

	o.sink.IncrementCounter("orchestrator_tasks_queued_total",
		map[string]string{"type": task.Type.String()})
	o.sink.SetGauge("orchestrator_queue_depth", float64(depth), nil)

	o.logger.Debug("Task queued",
		"task_id", task.ID,
		"type", task.Type.String(),
		"priority", task.Priority,
		"queue_depth", depth,
	)
	return task.ID
}

// nextTaskID builds "task_<unixMillis>_<suffix>". The suffix combines
// random hex with a monotonic sequence, so ids stay unique even when many
// tasks are enqueued within the same millisecond.
func (o *Orchestrator) nextTaskID() string {
	u := uuid.New()
	return fmt.Sprintf("task_%d_%s%d",
		time.Now().UnixMilli(), hex.EncodeToString(u[:4]), o.seq.Add(1))
}

// SelectBestAgent routes a task to the agent whose declared capabilities
// fit its type. Unknown future types fall through to the reasoning agent.
func (o *Orchestrator) SelectBestAgent(task Task) string {
	switch task.Type {
	case TaskResearch:
		return ResearchAgent
	case TaskWriting, TaskAnalysis:
		return ReasoningAgent
	case TaskEmbedding:
		return EmbeddingAgent
	default:
		return ReasoningAgent
	}
}

// DelegateTask resolves the task's agent and executes its handler through
// the supervisor. Like supervisor.Execute it is total: failures come back
// in the result, never as a Go error.
func (o *Orchestrator) DelegateTask(ctx context.Context, task Task) supervisor.Result {
	agentName := o.SelectBestAgent(task)

	o.mu.Lock()
	handler, ok := o.handlers[agentName]
	o.mu.Unlock()
	if !ok {
		err := fmt.Errorf("no handler registered for agent %q", agentName)
		o.logger.Error("Task delegation failed", "task_id", task.ID, "error", err.Error())
		o.recordProcessed(task, "no_handler")
		return supervisor.Result{
			Success:      false,
			Error:        err,
			ErrorMessage: err.Error(),
			AgentUsed:    agentName,
		}
	}

	ctx, span := o.startTaskSpan(ctx, task)
	defer span()

	result := o.supervisor.Execute(ctx, agentName, func(ctx context.Context) (interface{}, error) {
		return handler(ctx, task)
	}, nil)

	if result.Success {
		o.recordProcessed(task, "success")
	} else {
		o.recordProcessed(task, "failure")
	}
	return result
}

// startTaskSpan opens a task span when tracing is wired, returning the
// span-end func either way.
func (o *Orchestrator) startTaskSpan(ctx context.Context, task Task) (context.Context, func()) {
	if o.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := o.tracer.StartTaskSpan(ctx, task.ID, task.Type.String())
	return ctx, func() { span.End() }
}

func (o *Orchestrator) recordProcessed(task Task, outcome string) {
	o.sink.IncrementCounter("orchestrator_tasks_processed_total", map[string]string{
		"type":    task.Type.String(),
		"outcome": outcome,
	})
}

// ProcessQueue drains the queue front to back, highest priority first,
// one task at a time. Per-task failures are logged and swallowed so a
// bad task never halts the drain. Returns the number of tasks attempted.
func (o *Orchestrator) ProcessQueue(ctx context.Context) int {
	processed := 0
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.mu.Unlock()
			break
		}
		task := o.queue[0]
		o.queue = o.queue[1:]
		depth := len(o.queue)
		o.mu.Unlock()

		o.sink.SetGauge("orchestrator_queue_depth", float64(depth), nil)

		result := o.DelegateTask(ctx, task)
		processed++
		if !result.Success {
			errMsg := "unknown error"
			if result.Error != nil {
				errMsg = result.Error.Error()
			}
			o.logger.Error("Queued task failed",
				"task_id", task.ID,
				"type", task.Type.String(),
				"agent", result.AgentUsed,
				"attempts", result.Attempts,
				"error", errMsg,
			)
			continue
		}

		o.logger.Info("Queued task completed",
			"task_id", task.ID,
			"type", task.Type.String(),
			"agent", result.AgentUsed,
			"attempts", result.Attempts,
			"duration_ms", result.Duration.Milliseconds(),
		)
	}
	return processed
}

// QueueLength returns the number of tasks waiting in the queue
func (o *Orchestrator) QueueLength() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// QueueSnapshot returns a copy of the queued tasks in drain order
func (o *Orchestrator) QueueSnapshot() []Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	snapshot := make([]Task, len(o.queue))
	copy(snapshot, o.queue)
	return snapshot
}
