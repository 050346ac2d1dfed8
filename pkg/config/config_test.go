package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Supervisor.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Supervisor.Backoff)
	assert.Equal(t, 2.0, cfg.Supervisor.BackoffMultiplier)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 2, cfg.Circuit.SuccessThreshold)
	assert.Equal(t, 60*time.Second, cfg.Circuit.Timeout)
	assert.Equal(t, 0.2, cfg.Health.DegradedThreshold)
	assert.Equal(t, 0.5, cfg.Health.UnhealthyThreshold)
	assert.Equal(t, 100, cfg.Health.RollingWindowSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SUPERVISOR_MAX_ATTEMPTS", "5")
	t.Setenv("SUPERVISOR_BACKOFF", "250ms")
	t.Setenv("CIRCUIT_FAILURE_THRESHOLD", "7")
	t.Setenv("HEALTH_DEGRADED_THRESHOLD", "0.1")
	t.Setenv("SUPERVISOR_RETRY_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Supervisor.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Supervisor.Backoff)
	assert.Equal(t, 7, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 0.1, cfg.Health.DegradedThreshold)
	assert.False(t, cfg.Supervisor.RetryEnabled)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("SUPERVISOR_BACKOFF", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Supervisor.Backoff)
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Supervisor.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg, _ = Load()
	cfg.Circuit.FailureThreshold = 0
	assert.Error(t, cfg.Validate())

	cfg, _ = Load()
	cfg.Health.DegradedThreshold = 0.9
	cfg.Health.UnhealthyThreshold = 0.5
	assert.Error(t, cfg.Validate())
}

func TestLoad_RejectsInvalidConfiguration(t *testing.T) {
	t.Setenv("SUPERVISOR_MAX_ATTEMPTS", "0")

	_, err := Load()
	assert.Error(t, err)
}
