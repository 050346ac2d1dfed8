// Package agents contains the executor adapters the supervision core
// wraps. Each adapter owns its provider client, builds prompts from task
// payloads, and enforces its own per-call timeout; retry, circuit
// protection, and fallback stay in the supervisor.
package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/postpilot/postpilot/internal/orchestrator"
	apperrors "github.com/postpilot/postpilot/pkg/errors"
	"github.com/postpilot/postpilot/pkg/logging"
)

// AnthropicConfig configures the Claude-backed reasoning adapter
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AnthropicClient is the reasoning-agent adapter over the Anthropic API.
// It handles writing and analysis tasks.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *logging.Logger
}

// NewAnthropicClient creates a Claude-backed adapter
func NewAnthropicClient(config AnthropicConfig) *AnthropicClient {
	if config.Model == "" {
		config.Model = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		model:     config.Model,
		maxTokens: config.MaxTokens,
		timeout:   config.Timeout,
		logger:    logging.GetLogger(),
	}
}

// Complete sends a single-turn prompt and returns the text response
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	duration := time.Since(start)

	if err != nil {
		return "", apperrors.NewExternalError("anthropic", "message creation failed").WithCause(err)
	}
	if len(message.Content) == 0 {
		return "", apperrors.NewExternalError("anthropic", "empty response")
	}

	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		return "", apperrors.NewExternalError("anthropic", "unexpected response content type")
	}

	c.logger.Debug("Anthropic completion finished",
		"model", c.model,
		"duration_ms", duration.Milliseconds(),
		"output_chars", len(textBlock.Text),
	)
	return textBlock.Text, nil
}

// Handler adapts the client to the orchestrator's task contract. It
// serves writing and analysis payloads.
func (c *AnthropicClient) Handler() orchestrator.TaskHandler {
	return func(ctx context.Context, task orchestrator.Task) (interface{}, error) {
		prompt, err := reasoningPrompt(task)
		if err != nil {
			return nil, err
		}
		return c.Complete(ctx, prompt)
	}
}

func reasoningPrompt(task orchestrator.Task) (string, error) {
	switch payload := task.Payload.(type) {
	case orchestrator.WritingPayload:
		tone := payload.Tone
		if tone == "" {
			tone = "neutral"
		}
		maxWords := payload.MaxWords
		if maxWords <= 0 {
			maxWords = 300
		}
		return fmt.Sprintf(
			"Write a %s social media post about: %s. Keep it under %d words.",
			tone, payload.Subject, maxWords), nil
	case orchestrator.AnalysisPayload:
		focus := payload.Focus
		if focus == "" {
			focus = "overall quality and engagement potential"
		}
		return fmt.Sprintf(
			"Analyze the following content, focusing on %s:\n\n%s",
			focus, payload.Content), nil
	default:
		return "", apperrors.NewValidationError(
			fmt.Sprintf("reasoning agent cannot handle %s payload", task.Type))
	}
}
