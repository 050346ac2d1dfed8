package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/postpilot/postpilot/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, requests are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, requests are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, trial requests are allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ParseCircuitState parses a state name as produced by String
func ParseCircuitState(s string) (CircuitState, error) {
	switch s {
	case "CLOSED":
		return StateClosed, nil
	case "OPEN":
		return StateOpen, nil
	case "HALF_OPEN":
		return StateHalfOpen, nil
	default:
		return StateClosed, fmt.Errorf("unknown circuit state: %q", s)
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name of the guarded resource, for logging/metrics
	Name string
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from CLOSED to OPEN
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in
	// HALF_OPEN required to close the breaker again
	SuccessThreshold int
	// Timeout is the period of the open state. The OPEN to HALF_OPEN
	// transition is observed lazily on the next call after it elapses;
	// a breaker that receives no calls stays OPEN indefinitely.
	Timeout time.Duration
	// OnStateChange is called whenever the state of the circuit breaker changes
	OnStateChange func(name string, from CircuitState, to CircuitState)
}

// DefaultCircuitBreakerConfig returns sensible defaults for guarding an
// external provider call.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

// CircuitSnapshot is a point-in-time copy of breaker state
type CircuitSnapshot struct {
	Name                 string       `json:"name"`
	State                CircuitState `json:"-"`
	StateName            string       `json:"state"`
	ConsecutiveFailures  int          `json:"consecutive_failures"`
	ConsecutiveSuccesses int          `json:"consecutive_successes"`
	LastStateChange      time.Time    `json:"last_state_change"`
	Forced               bool         `json:"forced"`
}

// CircuitBreaker guards calls against a named resource. One instance per
// resource name, owned by the supervisor registry for the process lifetime.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	onStateChange    func(name string, from CircuitState, to CircuitState)

	mutex                sync.Mutex
	state                CircuitState
	forced               bool
	consecutiveFailures  int
	consecutiveSuccesses int
	lastStateChange      time.Time

	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &CircuitBreaker{
		name:             config.Name,
		failureThreshold: config.FailureThreshold,
		successThreshold: config.SuccessThreshold,
		timeout:          config.Timeout,
		onStateChange:    config.OnStateChange,
		state:            StateClosed,
		lastStateChange:  time.Now(),
		logger:           logging.GetLogger(),
	}
}

// Execute runs the given request if the circuit breaker accepts it.
// While OPEN and within the timeout the request is rejected with a
// CircuitOpenError and the function is never invoked.
func (cb *CircuitBreaker) Execute(ctx context.Context, req func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := cb.beforeRequest(); err != nil {
		return nil, err
	}

	result, err := req(ctx)
	cb.afterRequest(err == nil)
	return result, err
}

// State returns the current state, observing a pending OPEN to HALF_OPEN
// transition if the timeout has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.observeExpiry(time.Now())
	return cb.state
}

// Snapshot returns a copy of the breaker's current counters and state
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.observeExpiry(time.Now())
	return CircuitSnapshot{
		Name:                 cb.name,
		State:                cb.state,
		StateName:            cb.state.String(),
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		LastStateChange:      cb.lastStateChange,
		Forced:               cb.forced,
	}
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// ForceOpen pins the breaker OPEN until Reset is called
func (cb *CircuitBreaker) ForceOpen() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.setState(StateOpen, time.Now())
	cb.forced = true
}

// ForceClose pins the breaker CLOSED until Reset is called
func (cb *CircuitBreaker) ForceClose() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.setState(StateClosed, time.Now())
	cb.forced = true
}

// Reset clears counters and any administrative pin, returning to CLOSED
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.forced = false
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.setState(StateClosed, time.Now())
}

// Destroy releases held references. The breaker must not be used afterwards.
func (cb *CircuitBreaker) Destroy() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.onStateChange = nil
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	cb.observeExpiry(now)

	if cb.state == StateOpen {
		return &CircuitOpenError{Name: cb.name, Since: cb.lastStateChange}
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	if success {
		cb.onSuccess(now)
	} else {
		cb.onFailure(now)
	}
}

func (cb *CircuitBreaker) onSuccess(now time.Time) {
	cb.consecutiveFailures = 0

	switch cb.state {
	case StateHalfOpen:
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.successThreshold {
			cb.setState(StateClosed, now)
		}
	default:
		cb.consecutiveSuccesses++
	}
}

func (cb *CircuitBreaker) onFailure(now time.Time) {
	cb.consecutiveSuccesses = 0
	cb.consecutiveFailures++

	switch cb.state {
	case StateClosed:
		if !cb.forced && cb.consecutiveFailures >= cb.failureThreshold {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

// observeExpiry applies the lazy OPEN to HALF_OPEN transition. There is
// no background timer: the transition happens on the next observation
// after the timeout, never on a schedule.
func (cb *CircuitBreaker) observeExpiry(now time.Time) {
	if cb.forced {
		return
	}
	if cb.state == StateOpen && now.Sub(cb.lastStateChange) >= cb.timeout {
		cb.setState(StateHalfOpen, now)
	}
}

// setState transitions the breaker, resetting the opposing counters.
// Caller must hold the mutex.
func (cb *CircuitBreaker) setState(state CircuitState, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.lastStateChange = now
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.Info("Circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", state.String(),
	)
}

// CircuitOpenError is returned when a call is rejected fail-fast because
// the breaker is OPEN. The wrapped executor was never invoked.
type CircuitOpenError struct {
	Name  string
	Since time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open", e.Name)
}

// IsCircuitOpen checks if an error is a circuit-open rejection
func IsCircuitOpen(err error) bool {
	var coErr *CircuitOpenError
	return errors.As(err, &coErr)
}
