package supervisor

import (
	"context"
	"time"
)

// TypedResult mirrors Result with a typed Data field
type TypedResult[T any] struct {
	Success      bool
	Data         T
	Error        error
	Duration     time.Duration
	FromCache    bool
	FromFallback bool
	Attempts     int
	AgentUsed    string
}

// Execute runs a typed executor under supervision, preserving the result
// type end to end. Fallback default values that are not of type T are
// dropped and the execution reported as failed rather than returning a
// mistyped payload.
func Execute[T any](ctx context.Context, s *Supervisor, agentName string, executor func(ctx context.Context) (T, error), cfg *ExecConfig) TypedResult[T] {
	raw := s.Execute(ctx, agentName, func(ctx context.Context) (interface{}, error) {
		return executor(ctx)
	}, cfg)

	typed := TypedResult[T]{
		Success:      raw.Success,
		Error:        raw.Error,
		Duration:     raw.Duration,
		FromCache:    raw.FromCache,
		FromFallback: raw.FromFallback,
		Attempts:     raw.Attempts,
		AgentUsed:    raw.AgentUsed,
	}

	if raw.Data != nil {
		data, ok := raw.Data.(T)
		if !ok {
			typed.Success = false
			return typed
		}
		typed.Data = data
	}
	return typed
}
