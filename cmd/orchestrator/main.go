package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/postpilot/postpilot/internal/agents"
	"github.com/postpilot/postpilot/internal/api"
	"github.com/postpilot/postpilot/internal/orchestrator"
	"github.com/postpilot/postpilot/internal/resilience"
	"github.com/postpilot/postpilot/internal/supervisor"
	"github.com/postpilot/postpilot/pkg/config"
	"github.com/postpilot/postpilot/pkg/logging"
	"github.com/postpilot/postpilot/pkg/metrics"
	"github.com/postpilot/postpilot/pkg/tracing"
)

func main() {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "postpilot",
		Version:     "1.0.0",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logging.SetGlobalLogger(logger)

	sink := metrics.NewPrometheusSink(metrics.DefaultConfig())

	tracer, err := tracing.NewTracingService(&tracing.Config{
		ServiceName:    "postpilot",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Tracing.Environment,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	sup := supervisor.NewSupervisor(supervisorConfig(cfg), sink)
	orch := orchestrator.NewOrchestrator(sup, sink, tracer)

	registerAgents(cfg, sup, orch)

	router := api.NewRouter(cfg, sup, orch, sink)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", "error", err.Error())
	}
	if err := tracer.Shutdown(ctx); err != nil {
		logger.Error("Tracer shutdown failed", "error", err.Error())
	}
	sup.Close()

	logger.Info("Shutdown complete")
}

func supervisorConfig(cfg *config.Config) supervisor.Config {
	return supervisor.Config{
		Retry: supervisor.RetryConfig{
			Enabled:           cfg.Supervisor.RetryEnabled,
			MaxAttempts:       cfg.Supervisor.MaxAttempts,
			Backoff:           cfg.Supervisor.Backoff,
			BackoffMultiplier: cfg.Supervisor.BackoffMultiplier,
		},
		Fallback: supervisor.FallbackConfig{
			Enabled: cfg.Supervisor.FallbackEnabled,
		},
		Circuit: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Circuit.FailureThreshold,
			SuccessThreshold: cfg.Circuit.SuccessThreshold,
			Timeout:          cfg.Circuit.Timeout,
		},
		Health: resilience.HealthMonitorConfig{
			DegradedThreshold:      cfg.Health.DegradedThreshold,
			UnhealthyThreshold:     cfg.Health.UnhealthyThreshold,
			MaxResponseTime:        cfg.Health.MaxResponseTime,
			RollingWindowSize:      cfg.Health.RollingWindowSize,
			MaxConsecutiveFailures: cfg.Health.MaxConsecutiveFailures,
		},
	}
}

// registerAgents binds the provider adapters to the routing table. The
// reasoning agent falls back to the research agent, which runs on a
// different provider.
func registerAgents(cfg *config.Config, sup *supervisor.Supervisor, orch *orchestrator.Orchestrator) {
	anthropicClient := agents.NewAnthropicClient(agents.AnthropicConfig{
		APIKey:    cfg.Providers.AnthropicAPIKey,
		Model:     cfg.Providers.AnthropicModel,
		MaxTokens: cfg.Providers.AnthropicTokens,
	})
	openaiClient := agents.NewOpenAIClient(agents.OpenAIConfig{
		APIKey:         cfg.Providers.OpenAIAPIKey,
		EmbeddingModel: cfg.Providers.EmbeddingModel,
	})

	reasoningHandler := anthropicClient.Handler()
	researchHandler := openaiClient.ResearchHandler()
	embeddingHandler := openaiClient.EmbeddingHandler()

	sup.RegisterAgent(supervisor.AgentOptions{
		Name:          orchestrator.ReasoningAgent,
		FallbackAgent: orchestrator.ResearchAgent,
	})
	sup.RegisterAgent(supervisor.AgentOptions{
		Name: orchestrator.ResearchAgent,
		Executor: func(ctx context.Context) (interface{}, error) {
			return openaiClient.Chat(ctx, "Summarize the most relevant recent context for the pending request.")
		},
	})
	sup.RegisterAgent(supervisor.AgentOptions{
		Name: orchestrator.EmbeddingAgent,
	})

	orch.RegisterHandler(orchestrator.ReasoningAgent, reasoningHandler)
	orch.RegisterHandler(orchestrator.ResearchAgent, researchHandler)
	orch.RegisterHandler(orchestrator.EmbeddingAgent, embeddingHandler)
}
