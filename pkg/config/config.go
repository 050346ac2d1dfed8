package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Supervisor SupervisorConfig `json:"supervisor"`
	Circuit    CircuitConfig    `json:"circuit"`
	Health     HealthConfig     `json:"health"`
	Providers  ProvidersConfig  `json:"providers"`
	Logging    LoggingConfig    `json:"logging"`
	Tracing    TracingConfig    `json:"tracing"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// SupervisorConfig contains default retry and fallback behavior for
// supervised agent calls. Call sites may override per call.
type SupervisorConfig struct {
	RetryEnabled      bool          `json:"retry_enabled"`
	MaxAttempts       int           `json:"max_attempts"`
	Backoff           time.Duration `json:"backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	FallbackEnabled   bool          `json:"fallback_enabled"`
}

// CircuitConfig contains default circuit breaker thresholds
type CircuitConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	Timeout          time.Duration `json:"timeout"`
}

// HealthConfig contains default health monitor thresholds
type HealthConfig struct {
	DegradedThreshold      float64       `json:"degraded_threshold"`
	UnhealthyThreshold     float64       `json:"unhealthy_threshold"`
	MaxResponseTime        time.Duration `json:"max_response_time"`
	RollingWindowSize      int           `json:"rolling_window_size"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures"`
}

// ProvidersConfig contains AI provider credentials and model selection
type ProvidersConfig struct {
	AnthropicAPIKey string `json:"anthropic_api_key"`
	AnthropicModel  string `json:"anthropic_model"`
	AnthropicTokens int    `json:"anthropic_max_tokens"`
	OpenAIAPIKey    string `json:"openai_api_key"`
	EmbeddingModel  string `json:"embedding_model"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// TracingConfig contains distributed tracing configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	JaegerEndpoint string  `json:"jaeger_endpoint"`
	SamplingRate   float64 `json:"sampling_rate"`
	Environment    string  `json:"environment"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Supervisor: SupervisorConfig{
			RetryEnabled:      getEnvBool("SUPERVISOR_RETRY_ENABLED", true),
			MaxAttempts:       getEnvInt("SUPERVISOR_MAX_ATTEMPTS", 3),
			Backoff:           getEnvDuration("SUPERVISOR_BACKOFF", 1*time.Second),
			BackoffMultiplier: getEnvFloat("SUPERVISOR_BACKOFF_MULTIPLIER", 2.0),
			FallbackEnabled:   getEnvBool("SUPERVISOR_FALLBACK_ENABLED", false),
		},
		Circuit: CircuitConfig{
			FailureThreshold: getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
			SuccessThreshold: getEnvInt("CIRCUIT_SUCCESS_THRESHOLD", 2),
			Timeout:          getEnvDuration("CIRCUIT_TIMEOUT", 60*time.Second),
		},
		Health: HealthConfig{
			DegradedThreshold:      getEnvFloat("HEALTH_DEGRADED_THRESHOLD", 0.2),
			UnhealthyThreshold:     getEnvFloat("HEALTH_UNHEALTHY_THRESHOLD", 0.5),
			MaxResponseTime:        getEnvDuration("HEALTH_MAX_RESPONSE_TIME", 30*time.Second),
			RollingWindowSize:      getEnvInt("HEALTH_ROLLING_WINDOW_SIZE", 100),
			MaxConsecutiveFailures: getEnvInt("HEALTH_MAX_CONSECUTIVE_FAILURES", 5),
		},
		Providers: ProvidersConfig{
			AnthropicAPIKey: getEnvString("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnvString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			AnthropicTokens: getEnvInt("ANTHROPIC_MAX_TOKENS", 1024),
			OpenAIAPIKey:    getEnvString("OPENAI_API_KEY", ""),
			EmbeddingModel:  getEnvString("EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvBool("TRACING_ENABLED", false),
			JaegerEndpoint: getEnvString("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			SamplingRate:   getEnvFloat("TRACING_SAMPLING_RATE", 1.0),
			Environment:    getEnvString("ENVIRONMENT", "development"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Supervisor.MaxAttempts < 1 {
		return fmt.Errorf("supervisor max attempts must be at least 1")
	}
	if c.Supervisor.BackoffMultiplier <= 0 {
		return fmt.Errorf("supervisor backoff multiplier must be positive")
	}
	if c.Circuit.FailureThreshold < 1 || c.Circuit.SuccessThreshold < 1 {
		return fmt.Errorf("circuit thresholds must be at least 1")
	}
	if c.Health.RollingWindowSize < 1 {
		return fmt.Errorf("health rolling window size must be at least 1")
	}
	if c.Health.DegradedThreshold > c.Health.UnhealthyThreshold {
		return fmt.Errorf("degraded threshold must not exceed unhealthy threshold")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
