package supervisor

import (
	"context"
	"time"

	"github.com/postpilot/postpilot/internal/resilience"
)

// Executor is the opaque asynchronous call supplied by call sites. It
// wraps the actual provider or platform I/O; the supervision layer never
// looks inside it. Timeout enforcement is the executor's responsibility:
// the supervisor accepts a per-call timeout as configuration but does not
// independently enforce it.
type Executor func(ctx context.Context) (interface{}, error)

// RetryConfig controls the attempt loop
type RetryConfig struct {
	Enabled bool `json:"enabled"`
	// MaxAttempts bounds total attempts, including the first
	MaxAttempts int `json:"max_attempts"`
	// Backoff is the delay before the second attempt; subsequent delays
	// grow as Backoff * BackoffMultiplier^(attempt-1)
	Backoff           time.Duration `json:"backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// FallbackStrategy selects how a result is produced once retries are exhausted
type FallbackStrategy string

const (
	// FallbackCache is reserved; it currently always yields nothing
	FallbackCache FallbackStrategy = "cache"
	// FallbackDefault returns the configured DefaultValue verbatim
	FallbackDefault FallbackStrategy = "default"
	// FallbackAlternate delegates once to the bound fallback agent, only
	// if that agent is available and has a registered executor
	FallbackAlternate FallbackStrategy = "alternate"
)

// FallbackConfig controls what happens after the attempt loop is exhausted
type FallbackConfig struct {
	Enabled  bool             `json:"enabled"`
	Agent    string           `json:"agent,omitempty"`
	Strategy FallbackStrategy `json:"strategy,omitempty"`
	// DefaultValue is returned verbatim under FallbackDefault
	DefaultValue interface{} `json:"default_value,omitempty"`
}

// ExecConfig carries per-call overrides merged over the supervisor
// defaults. A nil field keeps the default.
type ExecConfig struct {
	// Timeout is advisory only: it is passed through for the executor to
	// honor, never enforced here
	Timeout  time.Duration   `json:"timeout,omitempty"`
	Retry    *RetryConfig    `json:"retry,omitempty"`
	Fallback *FallbackConfig `json:"fallback,omitempty"`
}

// Result is the total outcome of a supervised execution. Execute never
// returns a Go error; callers must inspect Success.
type Result struct {
	Success      bool          `json:"success"`
	Data         interface{}   `json:"data,omitempty"`
	Error        error         `json:"-"`
	ErrorMessage string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
	FromCache    bool          `json:"from_cache"`
	FromFallback bool          `json:"from_fallback"`
	Attempts     int           `json:"attempts"`
	AgentUsed    string        `json:"agent_used"`
}

// AgentOptions configures an agent registration. Zero-valued threshold
// fields fall back to the supervisor defaults.
type AgentOptions struct {
	Name string
	// FallbackAgent is consulted by the alternate fallback strategy
	FallbackAgent string
	// Executor, when set, binds a callable to the agent so it can serve
	// as an alternate fallback target
	Executor Executor
	Circuit  *resilience.CircuitBreakerConfig
	Health   *resilience.HealthMonitorConfig
}

// AgentStatus is the admin view of one registered agent
type AgentStatus struct {
	Name          string                     `json:"name"`
	FallbackAgent string                     `json:"fallback_agent,omitempty"`
	HasExecutor   bool                       `json:"has_executor"`
	Health        resilience.HealthMetrics   `json:"health"`
	Circuit       resilience.CircuitSnapshot `json:"circuit"`
}

// Statistics aggregates registry state by health class and circuit state
type Statistics struct {
	TotalAgents    int            `json:"total_agents"`
	ByHealthStatus map[string]int `json:"by_health_status"`
	ByCircuitState map[string]int `json:"by_circuit_state"`
}
