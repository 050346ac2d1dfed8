package supervisor

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/postpilot/postpilot/pkg/errors"
	"github.com/postpilot/postpilot/pkg/logging"
	"github.com/postpilot/postpilot/pkg/metrics"

	"github.com/postpilot/postpilot/internal/resilience"
)

// Config holds the supervisor-wide defaults. Call sites may override
// retry and fallback behavior per call through ExecConfig.
type Config struct {
	Retry    RetryConfig
	Fallback FallbackConfig
	Circuit  resilience.CircuitBreakerConfig
	Health   resilience.HealthMonitorConfig
}

// DefaultConfig returns conservative supervision defaults
func DefaultConfig() Config {
	return Config{
		Retry: RetryConfig{
			Enabled:           true,
			MaxAttempts:       3,
			Backoff:           time.Second,
			BackoffMultiplier: 2.0,
		},
		Fallback: FallbackConfig{Enabled: false},
		Circuit:  resilience.DefaultCircuitBreakerConfig(""),
		Health:   resilience.DefaultHealthMonitorConfig(""),
	}
}

// supervisedAgent binds one circuit breaker and one health monitor to an
// agent name. Both are owned exclusively by the supervisor registry.
type supervisedAgent struct {
	name          string
	breaker       *resilience.CircuitBreaker
	monitor       *resilience.HealthMonitor
	fallbackAgent string
	executor      Executor
}

// Supervisor wraps agent executions with circuit protection, retry with
// exponential backoff, health recording, and fallback selection. It is an
// explicitly constructed service: tests and callers build isolated
// instances rather than sharing process-global state.
type Supervisor struct {
	config Config

	mu       sync.RWMutex
	registry map[string]*supervisedAgent

	sink   metrics.Sink
	logger *logging.Logger
}

// NewSupervisor creates a supervisor with the given defaults and metrics sink
func NewSupervisor(config Config, sink metrics.Sink) *Supervisor {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry.MaxAttempts = 1
	}
	if config.Retry.BackoffMultiplier <= 0 {
		config.Retry.BackoffMultiplier = 1
	}

	return &Supervisor{
		config:   config,
		registry: make(map[string]*supervisedAgent),
		sink:     sink,
		logger:   logging.GetLogger(),
	}
}

// RegisterAgent adds an agent to the registry. Registration is
// idempotent: re-registering an existing name warns and leaves the
// original binding untouched.
func (s *Supervisor) RegisterAgent(opts AgentOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.registry[opts.Name]; exists {
		s.logger.Warn("Agent already registered, ignoring", "agent", opts.Name)
		return
	}

	s.registry[opts.Name] = s.buildAgent(opts)
	s.logger.Info("Agent registered",
		"agent", opts.Name,
		"fallback_agent", opts.FallbackAgent,
		"has_executor", opts.Executor != nil,
	)
}

// buildAgent constructs the per-agent breaker and monitor from the
// registration options merged over the supervisor defaults.
// Caller must hold the write lock.
func (s *Supervisor) buildAgent(opts AgentOptions) *supervisedAgent {
	circuitCfg := s.config.Circuit
	if opts.Circuit != nil {
		circuitCfg = *opts.Circuit
	}
	circuitCfg.Name = opts.Name
	circuitCfg.OnStateChange = s.onCircuitStateChange

	healthCfg := s.config.Health
	if opts.Health != nil {
		healthCfg = *opts.Health
	}
	healthCfg.Name = opts.Name

	return &supervisedAgent{
		name:          opts.Name,
		breaker:       resilience.NewCircuitBreaker(circuitCfg),
		monitor:       resilience.NewHealthMonitor(healthCfg),
		fallbackAgent: opts.FallbackAgent,
		executor:      opts.Executor,
	}
}

func (s *Supervisor) onCircuitStateChange(name string, from, to resilience.CircuitState) {
	s.sink.IncrementCounter("circuit_state_changes_total", map[string]string{
		"agent": name,
		"from":  from.String(),
		"to":    to.String(),
	})
	s.sink.SetGauge("circuit_state", float64(to), map[string]string{"agent": name})
}

// ensureAgent returns the registered agent, lazily registering it with
// defaults when absent.
func (s *Supervisor) ensureAgent(name string) *supervisedAgent {
	s.mu.RLock()
	agent, ok := s.registry[name]
	s.mu.RUnlock()
	if ok {
		return agent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if agent, ok = s.registry[name]; ok {
		return agent
	}
	agent = s.buildAgent(AgentOptions{Name: name})
	s.registry[name] = agent
	s.logger.Info("Agent lazily registered with defaults", "agent", name)
	return agent
}

func (s *Supervisor) lookupAgent(name string) (*supervisedAgent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.registry[name]
	return agent, ok
}

// Execute runs the executor under the named agent's supervision: circuit
// protection, retry with exponential backoff, health recording, and
// fallback on exhaustion. It is total: failures are reported through the
// returned Result, never as a Go error.
func (s *Supervisor) Execute(ctx context.Context, agentName string, executor Executor, cfg *ExecConfig) Result {
	start := time.Now()
	agent := s.ensureAgent(agentName)

	retry := s.config.Retry
	fallback := s.config.Fallback
	if cfg != nil {
		if cfg.Retry != nil {
			retry = *cfg.Retry
		}
		if cfg.Fallback != nil {
			fallback = *cfg.Fallback
		}
	}

	maxAttempts := retry.MaxAttempts
	if !retry.Enabled || maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt

		callStart := time.Now()
		data, err := agent.breaker.Execute(ctx, executor)
		callDuration := time.Since(callStart)

		if err == nil {
			agent.monitor.RecordSuccess(callDuration)
			s.recordOutcome(agentName, "success", time.Since(start))
			return Result{
				Success:   true,
				Data:      data,
				Duration:  time.Since(start),
				Attempts:  attempt,
				AgentUsed: agentName,
			}
		}

		// Circuit-open rejections count against the agent's health too:
		// the caller asked for work and did not get it.
		agent.monitor.RecordFailure(callDuration, err)
		lastErr = s.classifyError(agentName, err)

		s.logger.Warn("Supervised execution attempt failed",
			"agent", agentName,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err.Error(),
		)

		if attempt == maxAttempts {
			break
		}

		delay := backoffDelay(retry, attempt)
		s.sink.IncrementCounter("supervisor_retries_total", map[string]string{
			"agent":   agentName,
			"attempt": strconv.Itoa(attempt),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			s.recordOutcome(agentName, "canceled", time.Since(start))
			return failure(lastErr, time.Since(start), attempts, agentName)
		}
	}

	if fallback.Enabled {
		if result, ok := s.tryFallback(ctx, agent, fallback, attempts, start); ok {
			return result
		}
	}

	s.recordOutcome(agentName, "failure", time.Since(start))
	return failure(lastErr, time.Since(start), attempts, agentName)
}

// tryFallback applies the configured strategy after the attempt loop is
// exhausted. It reports whether a usable result was produced; fallback
// exhaustion leaves the caller with the last executor error.
func (s *Supervisor) tryFallback(ctx context.Context, agent *supervisedAgent, fallback FallbackConfig, attempts int, start time.Time) (Result, bool) {
	switch fallback.Strategy {
	case FallbackDefault:
		s.recordFallback(agent.name, fallback.Strategy, "hit")
		return Result{
			Success:      true,
			Data:         fallback.DefaultValue,
			Duration:     time.Since(start),
			FromFallback: true,
			Attempts:     attempts,
			AgentUsed:    agent.name,
		}, true

	case FallbackAlternate:
		altName := fallback.Agent
		if altName == "" {
			altName = agent.fallbackAgent
		}
		alt, ok := s.lookupAgent(altName)
		if !ok || !alt.monitor.IsAvailable() || alt.executor == nil {
			// Never fabricate success from an absent or unavailable alternate
			s.recordFallback(agent.name, fallback.Strategy, "unavailable")
			return Result{}, false
		}

		callStart := time.Now()
		data, err := alt.breaker.Execute(ctx, alt.executor)
		callDuration := time.Since(callStart)
		if err != nil {
			alt.monitor.RecordFailure(callDuration, err)
			s.recordFallback(agent.name, fallback.Strategy, "failed")
			return Result{}, false
		}

		alt.monitor.RecordSuccess(callDuration)
		s.recordFallback(agent.name, fallback.Strategy, "hit")
		return Result{
			Success:      true,
			Data:         data,
			Duration:     time.Since(start),
			FromFallback: true,
			Attempts:     attempts + 1,
			AgentUsed:    altName,
		}, true

	case FallbackCache:
		// Reserved: no cache layer is bound yet, so this always misses
		s.recordFallback(agent.name, fallback.Strategy, "miss")
		return Result{}, false

	default:
		s.logger.Warn("Unknown fallback strategy", "agent", agent.name, "strategy", string(fallback.Strategy))
		return Result{}, false
	}
}

func (s *Supervisor) classifyError(agentName string, err error) error {
	if resilience.IsCircuitOpen(err) {
		return apperrors.NewCircuitOpenError(agentName)
	}
	return apperrors.NewExecutorError(agentName, err)
}

func (s *Supervisor) recordOutcome(agentName, outcome string, duration time.Duration) {
	labels := map[string]string{"agent": agentName, "outcome": outcome}
	s.sink.IncrementCounter("supervisor_executions_total", labels)
	s.sink.RecordHistogram("supervisor_execution_duration_ms",
		float64(duration.Milliseconds()), map[string]string{"agent": agentName})

	if agent, ok := s.lookupAgent(agentName); ok {
		s.sink.SetGauge("agent_health_status",
			float64(agent.monitor.Status()), map[string]string{"agent": agentName})
	}
}

func (s *Supervisor) recordFallback(agentName string, strategy FallbackStrategy, outcome string) {
	s.sink.IncrementCounter("supervisor_fallbacks_total", map[string]string{
		"agent":    agentName,
		"strategy": string(strategy),
		"outcome":  outcome,
	})
}

// backoffDelay computes the exponential delay before the next attempt:
// backoff * multiplier^(attempt-1).
func backoffDelay(retry RetryConfig, attempt int) time.Duration {
	factor := math.Pow(retry.BackoffMultiplier, float64(attempt-1))
	return time.Duration(float64(retry.Backoff) * factor)
}

func failure(err error, duration time.Duration, attempts int, agentName string) Result {
	result := Result{
		Success:   false,
		Error:     err,
		Duration:  duration,
		Attempts:  attempts,
		AgentUsed: agentName,
	}
	if err != nil {
		result.ErrorMessage = err.Error()
	}
	return result
}

// GetAgentHealth returns the current health status of a registered agent
func (s *Supervisor) GetAgentHealth(name string) (resilience.HealthStatus, error) {
	agent, ok := s.lookupAgent(name)
	if !ok {
		return resilience.HealthUnknown, apperrors.NewNotFoundError(fmt.Sprintf("agent %s", name))
	}
	return agent.monitor.Status(), nil
}

// GetAgentMetrics returns the health metrics snapshot of a registered agent
func (s *Supervisor) GetAgentMetrics(name string) (resilience.HealthMetrics, error) {
	agent, ok := s.lookupAgent(name)
	if !ok {
		return resilience.HealthMetrics{}, apperrors.NewNotFoundError(fmt.Sprintf("agent %s", name))
	}
	return agent.monitor.GetMetrics(), nil
}

// GetAllAgentsStatus returns the admin view of every registered agent
func (s *Supervisor) GetAllAgentsStatus() map[string]AgentStatus {
	s.mu.RLock()
	agents := make([]*supervisedAgent, 0, len(s.registry))
	for _, agent := range s.registry {
		agents = append(agents, agent)
	}
	s.mu.RUnlock()

	statuses := make(map[string]AgentStatus, len(agents))
	for _, agent := range agents {
		statuses[agent.name] = AgentStatus{
			Name:          agent.name,
			FallbackAgent: agent.fallbackAgent,
			HasExecutor:   agent.executor != nil,
			Health:        agent.monitor.GetMetrics(),
			Circuit:       agent.breaker.Snapshot(),
		}
	}
	return statuses
}

// ResetAgent clears the agent's circuit breaker and health monitor
func (s *Supervisor) ResetAgent(name string) error {
	agent, ok := s.lookupAgent(name)
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("agent %s", name))
	}

	agent.breaker.Reset()
	agent.monitor.Reset()
	s.logger.Info("Agent reset", "agent", name)
	return nil
}

// ForceCircuitState administratively pins an agent's breaker OPEN or
// CLOSED until the next ResetAgent.
func (s *Supervisor) ForceCircuitState(name string, state resilience.CircuitState) error {
	agent, ok := s.lookupAgent(name)
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("agent %s", name))
	}

	switch state {
	case resilience.StateOpen:
		agent.breaker.ForceOpen()
	case resilience.StateClosed:
		agent.breaker.ForceClose()
	default:
		return apperrors.NewValidationError(
			fmt.Sprintf("cannot force circuit state %s", state))
	}

	s.logger.Info("Circuit state forced", "agent", name, "state", state.String())
	return nil
}

// GetStatistics aggregates registry counts by health class and circuit state
func (s *Supervisor) GetStatistics() Statistics {
	s.mu.RLock()
	agents := make([]*supervisedAgent, 0, len(s.registry))
	for _, agent := range s.registry {
		agents = append(agents, agent)
	}
	s.mu.RUnlock()

	stats := Statistics{
		TotalAgents:    len(agents),
		ByHealthStatus: make(map[string]int),
		ByCircuitState: make(map[string]int),
	}
	for _, agent := range agents {
		stats.ByHealthStatus[agent.monitor.Status().String()]++
		stats.ByCircuitState[agent.breaker.State().String()]++
	}
	return stats
}

// Close releases per-agent resources. The supervisor must not be used
// afterwards.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, agent := range s.registry {
		agent.breaker.Destroy()
	}
	s.registry = make(map[string]*supervisedAgent)
}
