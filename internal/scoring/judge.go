package scoring

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/ragmark/internal/llm"
)

const (
	defaultJudgeMaxTokens = 256
	defaultJudgeTimeout   = 30 * time.Second
)

var scorePattern = regexp.MustCompile(`[-+]?[0-9]*\.?[0-9]+`)

const judgeSystem = "You are a strict evaluator. Return only a single number between 0 and 1. " +
	"0 means the answer is not supported by the context. 1 means all claims are fully supported."

// Judge scores how well an answer is grounded in its retrieved context
// using an LLM as the evaluator. A failed judge call is an error, never a
// score; callers decide how to record the absence.
type Judge struct {
	client    llm.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewJudge builds a Judge on the given client and model.
func NewJudge(client llm.Client, model string) (*Judge, error) {
	if client == nil {
		return nil, fmt.Errorf("scoring: judge client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("scoring: judge model is required")
	}
	return &Judge{
		client:    client,
		model:     model,
		maxTokens: defaultJudgeMaxTokens,
		timeout:   defaultJudgeTimeout,
	}, nil
}

// SetTimeout overrides the per-call timeout.
func (j *Judge) SetTimeout(d time.Duration) {
	if d > 0 {
		j.timeout = d
	}
}

// Model returns the judge model identifier.
func (j *Judge) Model() string { return j.model }

// Groundedness scores answer against the retrieved context texts. An empty
// answer scores 0.0 without calling the model. The returned score is
// always in [0, 1]; anything the model says outside that range is an
// error, not a clamped value.
func (j *Judge) Groundedness(ctx context.Context, answer string, contexts []string) (float64, error) {
	if strings.TrimSpace(answer) == "" {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	text, err := j.client.Complete(ctx, llm.CompletionRequest{
		Model:  j.model,
		System: judgeSystem,
		Prompt: fmt.Sprintf("Context:\n%s\n\nAnswer:\n%s\n\nScore (0-1):",
			strings.Join(contexts, "\n\n"), answer),
		MaxTokens: j.maxTokens,
	})
	if err != nil {
		return 0, fmt.Errorf("scoring: judge call: %w", err)
	}
	score, err := parseScore(text)
	if err != nil {
		return 0, fmt.Errorf("scoring: %w", err)
	}
	return score, nil
}

// parseScore extracts the first numeric value from a judge response.
// "85%" style answers are mapped into [0, 1]; anything else outside the
// range is rejected.
func parseScore(text string) (float64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("empty judge response")
	}
	match := scorePattern.FindString(trimmed)
	if match == "" {
		return 0, fmt.Errorf("no numeric score in response: %q", trimmed)
	}
	val, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid score %q: %w", match, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("score out of range: %v", val)
	}
	if val > 1 {
		if val <= 100 && strings.Contains(trimmed, "%") {
			val = val / 100
		} else {
			return 0, fmt.Errorf("score out of range: %v", val)
		}
	}
	return val, nil
}
