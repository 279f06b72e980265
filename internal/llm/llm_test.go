package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/ragmark/internal/config"
)

func TestNewClientProviderSelection(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LLMConfig
		want string
	}{
		{
			name: "openai by default",
			cfg:  config.LLMConfig{Model: "gpt-5-nano", APIKey: "sk-test"},
			want: "openai",
		},
		{
			name: "anthropic from model prefix",
			cfg: config.LLMConfig{
				Model:           "claude-sonnet-4-5",
				APIKey:          "sk-test",
				AnthropicAPIKey: "sk-ant-test",
			},
			want: "anthropic",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			if client.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", client.Name(), tt.want)
			}
		})
	}
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Provider: "cohere", Model: "command-r"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "rate limit", err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, want: true},
		{name: "server error", err: &openai.APIError{HTTPStatusCode: http.StatusBadGateway}, want: true},
		{name: "bad request", err: &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, want: false},
		{name: "auth failure", err: &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, want: false},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "transport", err: errors.New("connection reset"), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestAnthropicEmbedWithoutFallback(t *testing.T) {
	client := NewAnthropicClient(AnthropicConfig{APIKey: "sk-ant-test"}, nil)
	_, err := client.Embed(context.Background(), []string{"text"})
	if !errors.Is(err, ErrEmbeddingsUnsupported) {
		t.Fatalf("expected ErrEmbeddingsUnsupported, got %v", err)
	}
}
