package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 1024

// AnthropicClient implements Client against the Anthropic Messages API.
// Embeddings are delegated to a fallback client (Anthropic has no
// embedding endpoint); with a nil fallback Embed returns
// ErrEmbeddingsUnsupported.
type AnthropicClient struct {
	client   anthropic.Client
	embedder Client
}

// AnthropicConfig contains configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey string
}

// NewAnthropicClient creates an Anthropic-backed client. embedder may be
// nil when retrieval embeddings come from elsewhere.
func NewAnthropicClient(cfg AnthropicConfig, embedder Client) *AnthropicClient {
	return &AnthropicClient{
		client:   anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		embedder: embedder,
	}
}

// Name returns "anthropic".
func (c *AnthropicClient) Name() string { return "anthropic" }

// Complete sends one message and returns the concatenated text blocks.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(float64(req.Temperature)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Embed delegates to the fallback embedding client.
func (c *AnthropicClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.embedder == nil {
		return nil, ErrEmbeddingsUnsupported
	}
	return c.embedder.Embed(ctx, texts)
}
