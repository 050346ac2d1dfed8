package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProvider = errors.New("provider unavailable")

func failingCall(ctx context.Context) (interface{}, error) {
	return nil, errProvider
}

func succeedingCall(ctx context.Context) (interface{}, error) {
	return "ok", nil
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"))

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "test", cb.Name())
}

func TestCircuitBreaker_OpensAtFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(ctx, failingCall)
		require.ErrorIs(t, err, errProvider)
		assert.Equal(t, StateClosed, cb.State())
	}

	_, err := cb.Execute(ctx, failingCall)
	require.ErrorIs(t, err, errProvider)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})
	ctx := context.Background()

	_, err := cb.Execute(ctx, failingCall)
	require.ErrorIs(t, err, errProvider)
	require.Equal(t, StateOpen, cb.State())

	invoked := false
	_, err = cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		invoked = true
		return nil, nil
	})

	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.False(t, invoked, "executor must not run while the breaker is open")
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingCall)
	_, _ = cb.Execute(ctx, failingCall)
	_, err := cb.Execute(ctx, succeedingCall)
	require.NoError(t, err)

	// Two more failures do not reach the threshold of three
	_, _ = cb.Execute(ctx, failingCall)
	_, _ = cb.Execute(ctx, failingCall)
	assert.Equal(t, StateClosed, cb.State())

	_, _ = cb.Execute(ctx, failingCall)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          20 * time.Millisecond,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingCall)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)

	// The transition is observed lazily on the next call
	invocations := 0
	_, err := cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		invocations++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, invocations)
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          20 * time.Millisecond,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingCall)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	_, err := cb.Execute(ctx, failingCall)
	require.ErrorIs(t, err, errProvider)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          20 * time.Millisecond,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingCall)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	_, err := cb.Execute(ctx, succeedingCall)
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, cb.State())

	_, err = cb.Execute(ctx, succeedingCall)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ForceOpenPinsUntilReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          20 * time.Millisecond,
	})
	ctx := context.Background()

	cb.ForceOpen()
	assert.Equal(t, StateOpen, cb.State())

	// Timeout does not half-open a forced breaker
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateOpen, cb.State())

	_, err := cb.Execute(ctx, succeedingCall)
	assert.True(t, IsCircuitOpen(err))

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())

	_, err = cb.Execute(ctx, succeedingCall)
	assert.NoError(t, err)
}

func TestCircuitBreaker_ForceClosePinsThroughFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})
	ctx := context.Background()

	cb.ForceClose()
	for i := 0; i < 5; i++ {
		_, err := cb.Execute(ctx, failingCall)
		require.ErrorIs(t, err, errProvider)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	type transition struct {
		from, to CircuitState
	}
	var transitions []transition

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          20 * time.Millisecond,
		OnStateChange: func(name string, from, to CircuitState) {
			transitions = append(transitions, transition{from, to})
		},
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingCall)
	time.Sleep(30 * time.Millisecond)
	_, _ = cb.Execute(ctx, succeedingCall)

	require.Len(t, transitions, 3)
	assert.Equal(t, transition{StateClosed, StateOpen}, transitions[0])
	assert.Equal(t, transition{StateOpen, StateHalfOpen}, transitions[1])
	assert.Equal(t, transition{StateHalfOpen, StateClosed}, transitions[2])
}

func TestCircuitBreaker_Snapshot(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "snap",
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failingCall)
	_, _ = cb.Execute(ctx, failingCall)

	snap := cb.Snapshot()
	assert.Equal(t, "snap", snap.Name)
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, "CLOSED", snap.StateName)
	assert.Equal(t, 2, snap.ConsecutiveFailures)
	assert.False(t, snap.Forced)
}

func TestParseCircuitState(t *testing.T) {
	for _, state := range []CircuitState{StateClosed, StateOpen, StateHalfOpen} {
		parsed, err := ParseCircuitState(state.String())
		require.NoError(t, err)
		assert.Equal(t, state, parsed)
	}

	_, err := ParseCircuitState("bogus")
	assert.Error(t, err)
}
