// Package pipeline adapts a retriever and a generator into the
// retrieve-then-generate pipeline the harness evaluates. The adapter holds
// only immutable configuration so one instance is safe to share across
// concurrent item workers.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/ragmark/internal/index"
	"github.com/haasonsaas/ragmark/internal/llm"
)

// RetrievedDocument is one document surfaced for a question, with the
// retriever's relevance score.
type RetrievedDocument struct {
	SourceID string  `json:"source_id"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

// Retriever finds the documents most relevant to a query. Satisfied by
// *index.Index.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]index.Result, error)
}

// Adapter composes retrieval and generation for a fixed model and k.
type Adapter struct {
	retriever Retriever
	generator llm.Client

	model           string
	k               int
	temperature     float32
	reasoningEffort string
}

// Options fixes the generation parameters for an Adapter.
type Options struct {
	Model           string
	K               int
	Temperature     float32
	ReasoningEffort string
}

// New builds an Adapter over the given collaborators.
func New(retriever Retriever, generator llm.Client, opts Options) (*Adapter, error) {
	if retriever == nil {
		return nil, fmt.Errorf("pipeline: retriever is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("pipeline: generator is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("pipeline: model is required")
	}
	if opts.K <= 0 {
		return nil, fmt.Errorf("pipeline: k must be positive, got %d", opts.K)
	}
	return &Adapter{
		retriever:       retriever,
		generator:       generator,
		model:           opts.Model,
		k:               opts.K,
		temperature:     opts.Temperature,
		reasoningEffort: opts.ReasoningEffort,
	}, nil
}

// Model returns the configured generation model identifier.
func (a *Adapter) Model() string { return a.model }

// Retrieve returns up to the configured k documents for the question, in
// the retriever's relevance order.
func (a *Adapter) Retrieve(ctx context.Context, question string) ([]RetrievedDocument, error) {
	results, err := a.retriever.Search(ctx, question, a.k)
	if err != nil {
		return nil, fmt.Errorf("pipeline: retrieve: %w", err)
	}
	docs := make([]RetrievedDocument, len(results))
	for i, r := range results {
		docs[i] = RetrievedDocument{SourceID: r.SourceID, Content: r.Content, Score: r.Score}
	}
	return docs, nil
}

// Generate answers the question from the given documents only.
func (a *Adapter) Generate(ctx context.Context, question string, docs []RetrievedDocument) (string, error) {
	answer, err := a.generator.Complete(ctx, llm.CompletionRequest{
		Model:           a.model,
		Prompt:          buildPrompt(question, docs),
		Temperature:     a.temperature,
		ReasoningEffort: a.reasoningEffort,
	})
	if err != nil {
		return "", fmt.Errorf("pipeline: generate: %w", err)
	}
	return answer, nil
}

// Respond runs retrieval then generation for one question.
func (a *Adapter) Respond(ctx context.Context, question string) (string, []RetrievedDocument, error) {
	docs, err := a.Retrieve(ctx, question)
	if err != nil {
		return "", nil, err
	}
	answer, err := a.Generate(ctx, question, docs)
	if err != nil {
		// Retrieval succeeded; hand its output back so the caller can
		// still score retrieval quality for this item.
		return "", docs, err
	}
	return answer, docs, nil
}
