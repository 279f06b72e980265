package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/ragmark/internal/dataset"
	"github.com/haasonsaas/ragmark/internal/observability"
	"github.com/haasonsaas/ragmark/internal/pipeline"
	"github.com/haasonsaas/ragmark/internal/scoring"
)

// ItemSource yields the labeled items of a named dataset in a stable
// order. Satisfied by *dataset.Store.
type ItemSource interface {
	Iterate(ctx context.Context, name string) ([]dataset.Item, error)
}

// Pipeline is the system under evaluation. The runner drives the two
// phases separately so each collaborator is timed on its own. Satisfied
// by *pipeline.Adapter.
type Pipeline interface {
	Retrieve(ctx context.Context, question string) ([]pipeline.RetrievedDocument, error)
	Generate(ctx context.Context, question string, docs []pipeline.RetrievedDocument) (string, error)
	Model() string
}

// GroundednessJudge scores an answer against its retrieved context.
// Satisfied by *scoring.Judge.
type GroundednessJudge interface {
	Groundedness(ctx context.Context, answer string, contexts []string) (float64, error)
}

// RunScope is one recording session. Satisfied by *recorder.RunScope.
type RunScope interface {
	Context() context.Context
	Item(ctx context.Context, ordinal int, question string) (context.Context, trace.Span)
	RecordItem(ctx context.Context, span trace.Span, result *ItemResult) error
	Finalize(ctx context.Context, summary Summary) error
}

// Sink opens recording sessions. Satisfied via recorder.Recorder.BeginRun.
type Sink interface {
	BeginRun(ctx context.Context, run RunRecord) (RunScope, error)
}

// Options fixes a Runner's behavior for all its runs.
type Options struct {
	// NamePrefix is prepended to generated run names.
	NamePrefix string

	// Description overrides the generated run description.
	Description string

	// Workers bounds concurrent item processing. Zero or one is
	// sequential. Results reach the recorder in dataset order either way.
	Workers int

	// ItemTimeout bounds one item end to end. Zero means no bound.
	ItemTimeout time.Duration

	// Snapshot is the immutable config snapshot attached to the run.
	Snapshot map[string]any
}

// Runner replays datasets through the pipeline and scores every item.
type Runner struct {
	source  ItemSource
	pipe    Pipeline
	judge   GroundednessJudge
	sink    Sink
	logger  *observability.Logger
	metrics *observability.Metrics
	opts    Options
}

// NewRunner builds a Runner. All collaborators are required.
func NewRunner(source ItemSource, pipe Pipeline, judge GroundednessJudge, sink Sink,
	logger *observability.Logger, metrics *observability.Metrics, opts Options) (*Runner, error) {
	if source == nil || pipe == nil || judge == nil || sink == nil {
		return nil, fmt.Errorf("harness: source, pipeline, judge and sink are required")
	}
	if logger == nil || metrics == nil {
		return nil, fmt.Errorf("harness: logger and metrics are required")
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("harness: workers must not be negative, got %d", opts.Workers)
	}
	return &Runner{
		source:  source,
		pipe:    pipe,
		judge:   judge,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
	}, nil
}

// Run replays every item of the named dataset and returns the summary.
// Item failures are recorded and do not stop the run; cancellation stops
// item processing but still finalizes what was recorded.
func (r *Runner) Run(ctx context.Context, datasetName string) (Summary, error) {
	items, err := r.source.Iterate(ctx, datasetName)
	if err != nil {
		return Summary{}, fmt.Errorf("harness: load dataset: %w", err)
	}

	model := r.pipe.Model()
	run := RunRecord{
		Name:        NewRunName(r.opts.NamePrefix, model, time.Now()),
		Description: r.opts.Description,
		DatasetName: datasetName,
		Config:      r.opts.Snapshot,
		StartedAt:   time.Now(),
	}
	if strings.TrimSpace(run.Description) == "" {
		run.Description = fmt.Sprintf("Run evaluation for %s", model)
	}

	ctx = observability.WithRunName(ctx, run.Name)
	scope, err := r.sink.BeginRun(ctx, run)
	if err != nil {
		return Summary{}, fmt.Errorf("harness: begin run: %w", err)
	}

	r.logger.Info(ctx, "run started",
		"run", run.Name, "dataset", datasetName, "items", len(items), "workers", r.workers())

	start := time.Now()
	summary := r.processAll(ctx, scope, items)
	summary.RunName = run.Name
	summary.Elapsed = time.Since(start)
	r.metrics.RunDuration.Observe(summary.Elapsed.Seconds())

	// Finalize must run even when ctx was cancelled mid-run, so already
	// recorded items are flushed. Use a detached context for the flush.
	finalizeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		finalizeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
	}
	if err := scope.Finalize(finalizeCtx, summary); err != nil {
		return summary, fmt.Errorf("harness: finalize run: %w", err)
	}

	r.logger.Info(ctx, "run finished",
		"run", run.Name, "total", summary.Total, "scored", summary.Scored,
		"partial", summary.Partial, "elapsed", summary.Elapsed.Round(10*time.Millisecond))

	if ctx.Err() != nil {
		return summary, fmt.Errorf("harness: run interrupted: %w", ctx.Err())
	}
	return summary, nil
}

func (r *Runner) workers() int {
	if r.opts.Workers <= 1 {
		return 1
	}
	return r.opts.Workers
}

type sequencedResult struct {
	result *ItemResult
	span   trace.Span
}

// processAll fans items out to at most workers() goroutines and consumes
// the results strictly in dataset order. Each item's span stays open until
// its result has been handed to the recorder.
func (r *Runner) processAll(ctx context.Context, scope RunScope, items []dataset.Item) Summary {
	summary := Summary{}
	if len(items) == 0 {
		return summary
	}

	slots := make([]chan sequencedResult, len(items))
	for i := range slots {
		slots[i] = make(chan sequencedResult, 1)
	}
	sem := make(chan struct{}, r.workers())

	for i, item := range items {
		go func(ordinal int, item dataset.Item) {
			sem <- struct{}{}
			defer func() { <-sem }()

			itemCtx, span := scope.Item(scope.Context(), ordinal, item.Input)
			result := r.processItem(itemCtx, ordinal, item)
			slots[ordinal] <- sequencedResult{result: result, span: span}
		}(i, item)
	}

	for i := range items {
		var seq sequencedResult
		select {
		case <-ctx.Done():
			r.logger.Warn(ctx, "run cancelled", "recorded_items", i)
			go func(from int) {
				for j := from; j < len(slots); j++ {
					seq := <-slots[j]
					seq.span.End()
				}
			}(i)
			return summary
		default:
		}
		select {
		case seq = <-slots[i]:
		case <-ctx.Done():
			// Stop consuming. In-flight workers drain into their buffered
			// slots; end their spans without recording the results.
			r.logger.Warn(ctx, "run cancelled", "recorded_items", i)
			go func(from int) {
				for j := from; j < len(slots); j++ {
					seq := <-slots[j]
					seq.span.End()
				}
			}(i)
			return summary
		}

		summary.Total++
		if err := scope.RecordItem(ctx, seq.span, seq.result); err != nil {
			r.logger.Error(ctx, "item record lost", "ordinal", i, "error", err)
		}
		seq.span.End()

		switch {
		case seq.result.Err != "":
			r.metrics.ItemCounter.WithLabelValues("failed").Inc()
			summary.Partial++
		case seq.result.Scored():
			r.metrics.ItemCounter.WithLabelValues("scored").Inc()
			summary.Scored++
		default:
			r.metrics.ItemCounter.WithLabelValues("partial").Inc()
			summary.Partial++
		}
	}
	return summary
}

// processItem runs one item through the pipeline and both metrics. It
// always returns a result; errors become fields on it.
func (r *Runner) processItem(ctx context.Context, ordinal int, item dataset.Item) *ItemResult {
	if r.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.ItemTimeout)
		defer cancel()
	}

	result := &ItemResult{
		Ordinal:           ordinal,
		ItemID:            item.ID,
		Question:          item.Input,
		ExpectedOutput:    item.ExpectedOutput,
		ExpectedSourceIDs: item.Metadata.ExpectedSourceIDs,
	}
	start := time.Now()
	defer func() { result.Elapsed = time.Since(start) }()

	retrieveStart := time.Now()
	docs, err := r.pipe.Retrieve(ctx, item.Input)
	r.metrics.ObserveCall("retriever", retrieveStart)
	if err != nil {
		result.Err = err.Error()
		r.logger.Warn(ctx, "item failed", "ordinal", ordinal, "error", err)
		return result
	}
	result.Retrieved = docs

	// Hit rate is pure; once retrieval succeeded it is scorable even if
	// generation fails afterwards.
	hit := scoring.HitRate(item.Metadata.ExpectedSourceIDs, result.RetrievedSourceIDs())
	result.HitRate = &hit

	generateStart := time.Now()
	answer, err := r.pipe.Generate(ctx, item.Input, docs)
	r.metrics.ObserveCall("generator", generateStart)
	if err != nil {
		result.Err = err.Error()
		r.logger.Warn(ctx, "item failed", "ordinal", ordinal, "error", err)
		return result
	}
	result.Answer = answer

	contexts := make([]string, len(docs))
	for i, doc := range docs {
		contexts[i] = doc.Content
	}
	judgeStart := time.Now()
	grounded, err := r.judge.Groundedness(ctx, answer, contexts)
	r.metrics.ObserveCall("judge", judgeStart)
	if err != nil {
		// A judge failure is not a score. Keep the item, mark the gap.
		result.JudgeError = err.Error()
		r.logger.Warn(ctx, "judge failed", "ordinal", ordinal, "error", err)
		return result
	}
	result.Groundedness = &grounded
	return result
}
