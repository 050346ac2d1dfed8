package agents

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/postpilot/postpilot/internal/orchestrator"
	apperrors "github.com/postpilot/postpilot/pkg/errors"
	"github.com/postpilot/postpilot/pkg/logging"
)

// OpenAIConfig configures the OpenAI-backed research and embedding adapters
type OpenAIConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration
}

// OpenAIClient backs two agents: research (chat completions with a
// research-oriented prompt) and embedding (dense vectors).
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
	timeout        time.Duration
	logger         *logging.Logger
}

// NewOpenAIClient creates an OpenAI-backed adapter
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.ChatModel == "" {
		config.ChatModel = openai.GPT4oMini
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &OpenAIClient{
		client:         openai.NewClient(config.APIKey),
		chatModel:      config.ChatModel,
		embeddingModel: openai.EmbeddingModel(config.EmbeddingModel),
		timeout:        config.Timeout,
		logger:         logging.GetLogger(),
	}
}

// Chat sends a single-turn prompt and returns the text response
func (c *OpenAIClient) Chat(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	duration := time.Since(start)

	if err != nil {
		return "", apperrors.NewExternalError("openai", "chat completion failed").WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewExternalError("openai", "empty response")
	}

	c.logger.Debug("OpenAI chat completion finished",
		"model", c.chatModel,
		"duration_ms", duration.Milliseconds(),
	)
	return resp.Choices[0].Message.Content, nil
}

// Embed returns one dense vector per input text
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperrors.NewValidationError("embedding request needs at least one text")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.embeddingModel,
	})
	if err != nil {
		return nil, apperrors.NewExternalError("openai", "embedding request failed").WithCause(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.NewExternalError("openai",
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// ResearchHandler adapts chat completions to research tasks
func (c *OpenAIClient) ResearchHandler() orchestrator.TaskHandler {
	return func(ctx context.Context, task orchestrator.Task) (interface{}, error) {
		payload, ok := task.Payload.(orchestrator.ResearchPayload)
		if !ok {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("research agent cannot handle %s payload", task.Type))
		}

		depth := payload.Depth
		if depth <= 0 {
			depth = 3
		}
		prompt := fmt.Sprintf(
			"Research the topic %q. Provide %d key findings with brief supporting reasoning.",
			payload.Topic, depth)
		return c.Chat(ctx, prompt)
	}
}

// EmbeddingHandler adapts the embeddings endpoint to embedding tasks
func (c *OpenAIClient) EmbeddingHandler() orchestrator.TaskHandler {
	return func(ctx context.Context, task orchestrator.Task) (interface{}, error) {
		payload, ok := task.Payload.(orchestrator.EmbeddingPayload)
		if !ok {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("embedding agent cannot handle %s payload", task.Type))
		}
		return c.Embed(ctx, payload.Texts)
	}
}
