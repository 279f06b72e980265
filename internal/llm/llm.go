// Package llm provides the completion and embedding clients behind the
// Generator and Judge collaborators.
//
// Two backends are supported, selected from configuration: OpenAI-compatible
// endpoints (generation, judging and query embeddings) and Anthropic
// (generation and judging; embeddings stay on the OpenAI endpoint).
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/haasonsaas/ragmark/internal/config"
)

// ErrEmbeddingsUnsupported is returned by backends that cannot produce
// embeddings.
var ErrEmbeddingsUnsupported = errors.New("llm: embeddings not supported by this provider")

// CompletionRequest carries one prompt to a completion backend.
type CompletionRequest struct {
	// Model is the model identifier.
	Model string

	// System is the system prompt, empty for none.
	System string

	// Prompt is the single user turn.
	Prompt string

	// MaxTokens bounds the response. Zero uses the backend default.
	MaxTokens int

	// Temperature is the decoding temperature.
	Temperature float32

	// ReasoningEffort is passed through for models that accept it.
	ReasoningEffort string
}

// Client is the narrow surface the harness needs from a model backend.
type Client interface {
	// Name returns the backend identifier ("openai", "anthropic").
	Name() string

	// Complete sends one prompt and returns the full text response.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Embed returns one embedding vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewClient constructs the client selected by the configuration. For the
// anthropic provider the returned client completes against Anthropic and
// embeds against the OpenAI endpoint.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.ResolveProvider() {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			EmbeddingModel: cfg.EmbeddingModel,
		}), nil
	case "anthropic":
		embedder := NewOpenAIClient(OpenAIConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			EmbeddingModel: cfg.EmbeddingModel,
		})
		return NewAnthropicClient(AnthropicConfig{APIKey: cfg.AnthropicAPIKey}, embedder), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}
