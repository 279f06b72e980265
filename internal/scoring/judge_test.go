package scoring

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/ragmark/internal/llm"
)

type stubClient struct {
	response string
	err      error
	calls    int
	gotReq   llm.CompletionRequest
}

func (s *stubClient) Name() string { return "stub" }

func (s *stubClient) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	s.calls++
	s.gotReq = req
	return s.response, s.err
}

func (s *stubClient) Embed(context.Context, []string) ([][]float32, error) {
	return nil, llm.ErrEmbeddingsUnsupported
}

func newTestJudge(t *testing.T, client llm.Client) *Judge {
	t.Helper()
	j, err := NewJudge(client, "gpt-4.1-nano")
	if err != nil {
		t.Fatalf("NewJudge: %v", err)
	}
	return j
}

func TestNewJudgeValidation(t *testing.T) {
	if _, err := NewJudge(nil, "m"); err == nil {
		t.Error("NewJudge accepted nil client")
	}
	if _, err := NewJudge(&stubClient{}, " "); err == nil {
		t.Error("NewJudge accepted empty model")
	}
}

func TestGroundedness(t *testing.T) {
	client := &stubClient{response: "0.85"}
	j := newTestJudge(t, client)

	score, err := j.Groundedness(context.Background(), "The store opens at nine.", []string{"We open at 9am."})
	if err != nil {
		t.Fatalf("Groundedness: %v", err)
	}
	if score != 0.85 {
		t.Errorf("score = %v, want 0.85", score)
	}
	if !strings.Contains(client.gotReq.Prompt, "We open at 9am.") {
		t.Errorf("prompt missing context: %q", client.gotReq.Prompt)
	}
	if !strings.Contains(client.gotReq.Prompt, "The store opens at nine.") {
		t.Errorf("prompt missing answer: %q", client.gotReq.Prompt)
	}
	if client.gotReq.Model != "gpt-4.1-nano" {
		t.Errorf("model = %q", client.gotReq.Model)
	}
}

func TestGroundednessEmptyAnswerSkipsCall(t *testing.T) {
	client := &stubClient{response: "1.0"}
	j := newTestJudge(t, client)

	score, err := j.Groundedness(context.Background(), "   ", []string{"context"})
	if err != nil {
		t.Fatalf("Groundedness: %v", err)
	}
	if score != 0 {
		t.Errorf("score = %v, want 0 for empty answer", score)
	}
	if client.calls != 0 {
		t.Errorf("judge called %d times for empty answer, want 0", client.calls)
	}
}

func TestGroundednessCallErrorIsNotAScore(t *testing.T) {
	callErr := errors.New("rate limited")
	j := newTestJudge(t, &stubClient{err: callErr})

	_, err := j.Groundedness(context.Background(), "answer", nil)
	if !errors.Is(err, callErr) {
		t.Fatalf("Groundedness = %v, want wrapped call error", err)
	}
}

func TestGroundednessTimeout(t *testing.T) {
	slow := &slowClient{delay: 50 * time.Millisecond}
	j := newTestJudge(t, slow)
	j.SetTimeout(time.Millisecond)

	_, err := j.Groundedness(context.Background(), "answer", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Groundedness = %v, want deadline exceeded", err)
	}
}

type slowClient struct {
	delay time.Duration
}

func (s *slowClient) Name() string { return "slow" }

func (s *slowClient) Complete(ctx context.Context, _ llm.CompletionRequest) (string, error) {
	select {
	case <-time.After(s.delay):
		return "1.0", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *slowClient) Embed(context.Context, []string) ([][]float32, error) {
	return nil, llm.ErrEmbeddingsUnsupported
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    float64
		wantErr bool
	}{
		{"plain", "0.8", 0.8, false},
		{"integer one", "1", 1, false},
		{"zero", "0", 0, false},
		{"wrapped in prose", "Score: 0.75 based on the context", 0.75, false},
		{"percent", "85%", 0.85, false},
		{"percent with prose", "I rate this 90% supported", 0.9, false},
		{"out of range high", "42", 0, true},
		{"negative", "-0.5", 0, true},
		{"no number", "fully supported", 0, true},
		{"empty", "  ", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScore(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseScore(%q) = %v, want error", tt.text, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseScore(%q): %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("parseScore(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
