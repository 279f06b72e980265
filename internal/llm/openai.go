package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openaiMaxRetries = 3
	openaiRetryDelay = time.Second
)

// OpenAIClient implements Client against any OpenAI-compatible endpoint.
//
// Requests are retried with linear backoff on rate limits (429) and
// server errors (5xx); client errors fail immediately. Each Complete()
// call is independent, so the client is safe for concurrent use.
type OpenAIClient struct {
	client         *openai.Client
	embeddingModel string
	maxRetries     int
	retryDelay     time.Duration
}

// OpenAIConfig contains configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string // optional custom base URL
	EmbeddingModel string // defaults to text-embedding-3-small
}

// NewOpenAIClient creates a client for the configured endpoint.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		embeddingModel: model,
		maxRetries:     openaiMaxRetries,
		retryDelay:     openaiRetryDelay,
	}
}

// Name returns "openai".
func (c *OpenAIClient) Name() string { return "openai" }

// Complete sends one chat completion request and returns the response text.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.ReasoningEffort != "" {
		chatReq.ReasoningEffort = req.ReasoningEffort
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}
		resp, err = c.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			break
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("openai completion: %w", err)
		}
	}
	if err != nil {
		return "", fmt.Errorf("openai completion after %d retries: %w", c.maxRetries, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: empty choice list")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns one embedding vector per input text, in input order.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	results := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		results[data.Index] = data.Embedding
	}
	return results, nil
}

// isRetryable reports whether an API error suggests a retry may succeed:
// rate limits, timeouts and server-side failures.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return true
		case apiErr.HTTPStatusCode >= 500:
			return true
		default:
			return false
		}
	}
	// Transport-level failures without an API status.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
