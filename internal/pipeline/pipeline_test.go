package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/ragmark/internal/index"
	"github.com/haasonsaas/ragmark/internal/llm"
)

type stubRetriever struct {
	results []index.Result
	err     error
	gotK    int
}

func (s *stubRetriever) Search(_ context.Context, _ string, k int) ([]index.Result, error) {
	s.gotK = k
	return s.results, s.err
}

type stubGenerator struct {
	answer string
	err    error
	gotReq llm.CompletionRequest
}

func (s *stubGenerator) Name() string { return "stub" }

func (s *stubGenerator) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	s.gotReq = req
	return s.answer, s.err
}

func (s *stubGenerator) Embed(context.Context, []string) ([][]float32, error) {
	return nil, llm.ErrEmbeddingsUnsupported
}

func newTestAdapter(t *testing.T, r Retriever, g llm.Client) *Adapter {
	t.Helper()
	a, err := New(r, g, Options{Model: "gpt-4o-mini", K: 3, Temperature: 0.2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNewValidation(t *testing.T) {
	r := &stubRetriever{}
	g := &stubGenerator{}

	if _, err := New(nil, g, Options{Model: "m", K: 1}); err == nil {
		t.Error("New accepted nil retriever")
	}
	if _, err := New(r, nil, Options{Model: "m", K: 1}); err == nil {
		t.Error("New accepted nil generator")
	}
	if _, err := New(r, g, Options{Model: "", K: 1}); err == nil {
		t.Error("New accepted empty model")
	}
	if _, err := New(r, g, Options{Model: "m", K: 0}); err == nil {
		t.Error("New accepted k=0")
	}
}

func TestRespond(t *testing.T) {
	retriever := &stubRetriever{results: []index.Result{
		{SourceID: "faq-1", Content: "Reset via the login page.", Score: 0.91},
		{SourceID: "faq-2", Content: "Contact support for locked accounts.", Score: 0.75},
	}}
	generator := &stubGenerator{answer: "Use the reset link (Document 1)."}
	a := newTestAdapter(t, retriever, generator)

	answer, docs, err := a.Respond(context.Background(), "How do I reset my password?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if answer != "Use the reset link (Document 1)." {
		t.Errorf("answer = %q", answer)
	}
	if retriever.gotK != 3 {
		t.Errorf("retriever got k=%d, want 3", retriever.gotK)
	}
	if len(docs) != 2 || docs[0].SourceID != "faq-1" || docs[0].Score != 0.91 {
		t.Errorf("docs = %+v", docs)
	}

	prompt := generator.gotReq.Prompt
	if !strings.Contains(prompt, "Document 1:\nReset via the login page.\nSource: faq-1") {
		t.Errorf("prompt missing numbered document block:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Document 2:") {
		t.Errorf("prompt missing second document:\n%s", prompt)
	}
	if !strings.Contains(prompt, "User Question: How do I reset my password?") {
		t.Errorf("prompt missing question:\n%s", prompt)
	}
	if generator.gotReq.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", generator.gotReq.Model)
	}
	if generator.gotReq.Temperature != 0.2 {
		t.Errorf("temperature = %v", generator.gotReq.Temperature)
	}
}

func TestRespondRetrievalError(t *testing.T) {
	retrErr := errors.New("search failed")
	a := newTestAdapter(t, &stubRetriever{err: retrErr}, &stubGenerator{})

	_, docs, err := a.Respond(context.Background(), "q")
	if !errors.Is(err, retrErr) {
		t.Fatalf("Respond = %v, want wrapped retrieval error", err)
	}
	if docs != nil {
		t.Errorf("docs = %+v, want nil on retrieval failure", docs)
	}
}

func TestRespondGenerationErrorKeepsDocs(t *testing.T) {
	genErr := errors.New("model unavailable")
	retriever := &stubRetriever{results: []index.Result{{SourceID: "faq-9", Content: "c"}}}
	a := newTestAdapter(t, retriever, &stubGenerator{err: genErr})

	_, docs, err := a.Respond(context.Background(), "q")
	if !errors.Is(err, genErr) {
		t.Fatalf("Respond = %v, want wrapped generation error", err)
	}
	if len(docs) != 1 || docs[0].SourceID != "faq-9" {
		t.Errorf("docs = %+v, want the retrieved documents", docs)
	}
}

func TestPromptDeterministic(t *testing.T) {
	docs := []RetrievedDocument{{SourceID: "s1", Content: "body"}}
	if buildPrompt("q", docs) != buildPrompt("q", docs) {
		t.Fatal("buildPrompt is not deterministic")
	}
}

func TestFormatContextEmpty(t *testing.T) {
	got := formatContext(nil)
	if !strings.Contains(got, "No documents were retrieved.") {
		t.Errorf("formatContext(nil) = %q", got)
	}
}
