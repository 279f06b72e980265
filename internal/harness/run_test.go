package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/haasonsaas/ragmark/internal/dataset"
	"github.com/haasonsaas/ragmark/internal/observability"
	"github.com/haasonsaas/ragmark/internal/pipeline"
)

type fakeSource struct {
	items []dataset.Item
	err   error
}

func (s *fakeSource) Iterate(context.Context, string) ([]dataset.Item, error) {
	return s.items, s.err
}

type fakePipeline struct {
	mu          sync.Mutex
	answers     map[string]string
	docs        map[string][]pipeline.RetrievedDocument
	retrieveErr map[string]error
	generateErr map[string]error
	delay       time.Duration
}

func (p *fakePipeline) Model() string { return "gpt-4o-mini" }

func (p *fakePipeline) Retrieve(ctx context.Context, question string) ([]pipeline.RetrievedDocument, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.retrieveErr[question]; err != nil {
		return nil, err
	}
	docs := p.docs[question]
	if docs == nil {
		docs = []pipeline.RetrievedDocument{}
	}
	return docs, nil
}

func (p *fakePipeline) Generate(_ context.Context, question string, _ []pipeline.RetrievedDocument) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.generateErr[question]; err != nil {
		return "", err
	}
	return p.answers[question], nil
}

type fakeJudge struct {
	score float64
	fail  map[string]error
}

func (j *fakeJudge) Groundedness(_ context.Context, answer string, _ []string) (float64, error) {
	if err := j.fail[answer]; err != nil {
		return 0, err
	}
	return j.score, nil
}

// fakeSink records everything in arrival order so tests can assert the
// streaming contract.
type fakeSink struct {
	mu        sync.Mutex
	run       RunRecord
	recorded  []*ItemResult
	summary   *Summary
	beginErr  error
	recordErr error
}

func (s *fakeSink) BeginRun(_ context.Context, run RunRecord) (RunScope, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.run = run
	return &fakeScope{sink: s}, nil
}

type fakeScope struct {
	sink *fakeSink
}

func (s *fakeScope) Context() context.Context { return context.Background() }

func (s *fakeScope) Item(ctx context.Context, _ int, _ string) (context.Context, trace.Span) {
	return noop.NewTracerProvider().Tracer("test").Start(ctx, "item")
}

func (s *fakeScope) RecordItem(_ context.Context, _ trace.Span, result *ItemResult) error {
	s.sink.mu.Lock()
	defer s.sink.mu.Unlock()
	s.sink.recorded = append(s.sink.recorded, result)
	return s.sink.recordErr
}

func (s *fakeScope) Finalize(_ context.Context, summary Summary) error {
	s.sink.mu.Lock()
	defer s.sink.mu.Unlock()
	s.sink.summary = &summary
	return nil
}

func testItems(n int) []dataset.Item {
	items := make([]dataset.Item, n)
	for i := range items {
		items[i] = dataset.Item{
			ID:       fmt.Sprintf("item-%d", i),
			Input:    fmt.Sprintf("question %d", i),
			Metadata: dataset.ItemMetadata{ExpectedSourceIDs: []string{fmt.Sprintf("faq-%d", i)}},
		}
	}
	return items
}

func happyPipeline(items []dataset.Item) *fakePipeline {
	p := &fakePipeline{
		answers:     map[string]string{},
		docs:        map[string][]pipeline.RetrievedDocument{},
		retrieveErr: map[string]error{},
		generateErr: map[string]error{},
	}
	for i, item := range items {
		p.answers[item.Input] = fmt.Sprintf("answer %d", i)
		p.docs[item.Input] = []pipeline.RetrievedDocument{
			{SourceID: item.Metadata.ExpectedSourceIDs[0], Content: "body", Score: 0.9},
		}
	}
	return p
}

func newTestRunner(t *testing.T, source ItemSource, pipe Pipeline, judge GroundednessJudge, sink Sink, opts Options) *Runner {
	t.Helper()
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	r, err := NewRunner(source, pipe, judge, sink, logger, observability.NewMetrics(), opts)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func TestRunAllItemsScored(t *testing.T) {
	items := testItems(3)
	sink := &fakeSink{}
	r := newTestRunner(t, &fakeSource{items: items}, happyPipeline(items),
		&fakeJudge{score: 0.8}, sink, Options{NamePrefix: "eval-"})

	summary, err := r.Run(context.Background(), "support-faq")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 3 || summary.Scored != 3 || summary.Partial != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if !strings.HasPrefix(summary.RunName, "eval-") {
		t.Errorf("run name = %q, want eval- prefix", summary.RunName)
	}
	if !strings.HasSuffix(summary.RunName, "-gpt-4o-mini") {
		t.Errorf("run name = %q, want model suffix", summary.RunName)
	}
	if sink.summary == nil {
		t.Fatal("run was not finalized")
	}
	if len(sink.recorded) != 3 {
		t.Fatalf("recorded %d items, want 3", len(sink.recorded))
	}
	for i, res := range sink.recorded {
		if res.Ordinal != i {
			t.Errorf("recorded[%d].Ordinal = %d, results out of dataset order", i, res.Ordinal)
		}
		if res.HitRate == nil || *res.HitRate != 1.0 {
			t.Errorf("recorded[%d].HitRate = %v, want 1.0", i, res.HitRate)
		}
		if res.Groundedness == nil || *res.Groundedness != 0.8 {
			t.Errorf("recorded[%d].Groundedness = %v, want 0.8", i, res.Groundedness)
		}
	}
}

func TestRunJudgeFailureKeepsRunGoing(t *testing.T) {
	items := testItems(3)
	sink := &fakeSink{}
	judge := &fakeJudge{score: 0.7, fail: map[string]error{"answer 1": errors.New("judge timeout")}}
	r := newTestRunner(t, &fakeSource{items: items}, happyPipeline(items), judge, sink, Options{})

	summary, err := r.Run(context.Background(), "ds")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 3 || summary.Scored != 2 || summary.Partial != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	failed := sink.recorded[1]
	if failed.Groundedness != nil {
		t.Errorf("judge-failed item has groundedness %v, want nil", *failed.Groundedness)
	}
	if !strings.Contains(failed.JudgeError, "judge timeout") {
		t.Errorf("JudgeError = %q", failed.JudgeError)
	}
	// Retrieval scoring is independent of the judge.
	if failed.HitRate == nil || *failed.HitRate != 1.0 {
		t.Errorf("judge-failed item HitRate = %v, want 1.0", failed.HitRate)
	}
}

func TestRunPipelineFailureRecordsFailedItem(t *testing.T) {
	items := testItems(3)
	pipe := happyPipeline(items)
	pipe.retrieveErr["question 0"] = errors.New("index unavailable")
	sink := &fakeSink{}
	r := newTestRunner(t, &fakeSource{items: items}, pipe, &fakeJudge{score: 0.9}, sink, Options{})

	summary, err := r.Run(context.Background(), "ds")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 3 || summary.Scored != 2 || summary.Partial != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	failed := sink.recorded[0]
	if !strings.Contains(failed.Err, "index unavailable") {
		t.Errorf("failed item Err = %q", failed.Err)
	}
	if failed.Answer != "" || failed.Groundedness != nil {
		t.Errorf("failed item carries answer/score: %+v", failed)
	}
	if failed.HitRate != nil {
		t.Errorf("retrieval-failed item HitRate = %v, want nil", *failed.HitRate)
	}
}

func TestRunGenerationFailureKeepsHitRate(t *testing.T) {
	items := testItems(1)
	pipe := happyPipeline(items)
	// Retrieval succeeds, generation fails afterwards.
	pipe.generateErr["question 0"] = errors.New("generate: boom")
	sink := &fakeSink{}
	r := newTestRunner(t, &fakeSource{items: items}, pipe, &fakeJudge{}, sink, Options{})

	if _, err := r.Run(context.Background(), "ds"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	failed := sink.recorded[0]
	if failed.HitRate == nil || *failed.HitRate != 1.0 {
		t.Errorf("HitRate = %v, want 1.0 from the surviving retrieval", failed.HitRate)
	}
}

func TestRunObservesEachCollaborator(t *testing.T) {
	items := testItems(2)
	sink := &fakeSink{}
	metrics := observability.NewMetrics()
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	r, err := NewRunner(&fakeSource{items: items}, happyPipeline(items),
		&fakeJudge{score: 1}, sink, logger, metrics, Options{})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	if _, err := r.Run(context.Background(), "ds"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// One latency series per collaborator the runner drives.
	if count := testutil.CollectAndCount(metrics.CallDuration); count != 3 {
		t.Errorf("call duration series = %d, want retriever, generator and judge", count)
	}
}

func TestRunConcurrentPreservesOrder(t *testing.T) {
	items := testItems(8)
	sink := &fakeSink{}
	pipe := happyPipeline(items)
	pipe.delay = 2 * time.Millisecond
	r := newTestRunner(t, &fakeSource{items: items}, pipe, &fakeJudge{score: 1}, sink,
		Options{Workers: 4})

	summary, err := r.Run(context.Background(), "ds")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Scored != 8 {
		t.Fatalf("summary = %+v", summary)
	}
	for i, res := range sink.recorded {
		if res.Ordinal != i {
			t.Fatalf("recorded[%d].Ordinal = %d, order not preserved under concurrency", i, res.Ordinal)
		}
	}
}

func TestRunEmptyDataset(t *testing.T) {
	sink := &fakeSink{}
	r := newTestRunner(t, &fakeSource{}, happyPipeline(nil), &fakeJudge{}, sink, Options{})

	summary, err := r.Run(context.Background(), "empty")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if sink.summary == nil {
		t.Fatal("empty run was not finalized")
	}
}

func TestRunCancellationStillFinalizes(t *testing.T) {
	items := testItems(5)
	pipe := happyPipeline(items)
	pipe.delay = 50 * time.Millisecond
	sink := &fakeSink{}
	r := newTestRunner(t, &fakeSource{items: items}, pipe, &fakeJudge{score: 1}, sink, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(75 * time.Millisecond)
		cancel()
	}()

	summary, err := r.Run(ctx, "ds")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if sink.summary == nil {
		t.Fatal("cancelled run was not finalized")
	}
	if summary.Total != len(sink.recorded) {
		t.Errorf("summary.Total = %d but %d items recorded", summary.Total, len(sink.recorded))
	}
	if summary.Total >= len(items) {
		t.Errorf("summary.Total = %d, expected cancellation before all %d items", summary.Total, len(items))
	}
}

func TestRunBeginFailureIsFatal(t *testing.T) {
	beginErr := errors.New("collector unreachable")
	sink := &fakeSink{beginErr: beginErr}
	r := newTestRunner(t, &fakeSource{items: testItems(1)}, happyPipeline(testItems(1)),
		&fakeJudge{}, sink, Options{})

	if _, err := r.Run(context.Background(), "ds"); !errors.Is(err, beginErr) {
		t.Fatalf("Run = %v, want begin error", err)
	}
}

func TestRunDatasetErrorIsFatal(t *testing.T) {
	srcErr := errors.New("no such dataset")
	r := newTestRunner(t, &fakeSource{err: srcErr}, happyPipeline(nil), &fakeJudge{}, &fakeSink{}, Options{})

	if _, err := r.Run(context.Background(), "missing"); !errors.Is(err, srcErr) {
		t.Fatalf("Run = %v, want dataset error", err)
	}
}

func TestNewRunName(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	name := NewRunName("eval-", "gpt-4o-mini", now)
	if !strings.HasPrefix(name, "eval-2026-09-01-") {
		t.Errorf("name = %q", name)
	}
	if !strings.HasSuffix(name, "-gpt-4o-mini") {
		t.Errorf("name = %q", name)
	}
	// The disambiguator makes collisions within a day implausible.
	if name == NewRunName("eval-", "gpt-4o-mini", now) {
		t.Error("two run names collided")
	}
}
