// Package recorder persists benchmark results: every item outcome is
// appended to a per-run JSONL file and attached to the run's trace. A
// recording failure never fails the run; it is retried and, if the sink
// stays down, the record is diverted to a recovery file.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/ragmark/internal/backoff"
	"github.com/haasonsaas/ragmark/internal/harness"
	"github.com/haasonsaas/ragmark/internal/observability"
)

const recordAttempts = 3

// Config locates the recorder's on-disk artifacts.
type Config struct {
	// ResultsDir receives one <run name>.jsonl file per run.
	ResultsDir string

	// RecoveryPath receives records the primary sink could not take.
	RecoveryPath string
}

// Recorder streams run and item records to the trace sink and the local
// results file.
type Recorder struct {
	cfg     Config
	tracer  *observability.Tracer
	logger  *observability.Logger
	metrics *observability.Metrics
	policy  backoff.Policy
}

// New builds a Recorder. All collaborators are required.
func New(cfg Config, tracer *observability.Tracer, logger *observability.Logger, metrics *observability.Metrics) (*Recorder, error) {
	if tracer == nil || logger == nil || metrics == nil {
		return nil, fmt.Errorf("recorder: tracer, logger and metrics are required")
	}
	if strings.TrimSpace(cfg.ResultsDir) == "" {
		cfg.ResultsDir = "."
	}
	if strings.TrimSpace(cfg.RecoveryPath) == "" {
		cfg.RecoveryPath = filepath.Join(cfg.ResultsDir, "recovery.jsonl")
	}
	return &Recorder{
		cfg:     cfg,
		tracer:  tracer,
		logger:  logger,
		metrics: metrics,
		policy:  backoff.DefaultPolicy(),
	}, nil
}

// BeginRun is Begin with the scope typed as the harness-facing interface.
func (r *Recorder) BeginRun(ctx context.Context, run harness.RunRecord) (harness.RunScope, error) {
	return r.Begin(ctx, run)
}

// RunScope is one run being recorded. Not safe for concurrent Finalize;
// RecordItem may be called from multiple workers.
type RunScope struct {
	rec     *Recorder
	run     harness.RunRecord
	ctx     context.Context
	span    trace.Span
	results *jsonlWriter
	done    bool
}

// Begin opens the run: the root span is started and the results file is
// created. The returned scope must be finalized.
func (r *Recorder) Begin(ctx context.Context, run harness.RunRecord) (*RunScope, error) {
	if err := os.MkdirAll(r.cfg.ResultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create results dir: %w", err)
	}
	results, err := openJSONL(filepath.Join(r.cfg.ResultsDir, run.Name+".jsonl"))
	if err != nil {
		return nil, err
	}

	model, _ := run.Config["model"].(string)
	runCtx, span := r.tracer.StartRun(ctx, run.Name, run.DatasetName, model)
	if snapshot, err := json.Marshal(run.Config); err == nil {
		span.SetAttributes(attribute.String("run.config", string(snapshot)))
	}
	span.SetAttributes(attribute.String("run.description", run.Description))

	scope := &RunScope{rec: r, run: run, ctx: runCtx, span: span, results: results}
	if err := scope.append(ctx, runHeader{Run: run}); err != nil {
		results.Close()
		span.End()
		return nil, err
	}
	return scope, nil
}

// runHeader is the first line of every results file.
type runHeader struct {
	Run harness.RunRecord `json:"run"`
}

// itemLine wraps an item result for the results file.
type itemLine struct {
	RunName string              `json:"run_name"`
	Item    *harness.ItemResult `json:"item"`
}

// Context returns the run-scoped context carrying the root span. Item
// spans started from it nest under the run.
func (s *RunScope) Context() context.Context { return s.ctx }

// Item opens the span for one dataset item. The returned context carries
// the item span; close always ends it.
func (s *RunScope) Item(ctx context.Context, ordinal int, question string) (context.Context, trace.Span) {
	return s.rec.tracer.StartItem(ctx, s.run.Name, ordinal, question)
}

// RecordItem persists one item result and attaches its scores to the item
// span. Failures are retried; after retries are exhausted the record goes
// to the recovery file and the run continues. RecordItem only errors when
// even the recovery write failed.
func (s *RunScope) RecordItem(ctx context.Context, span trace.Span, result *harness.ItemResult) error {
	s.annotate(span, result)
	return s.append(ctx, itemLine{RunName: s.run.Name, Item: result})
}

func (s *RunScope) annotate(span trace.Span, result *harness.ItemResult) {
	attrs := []attribute.KeyValue{
		attribute.String("item.input", result.Question),
		attribute.String("item.output", result.Answer),
		attribute.StringSlice("item.expected_source_ids", result.ExpectedSourceIDs),
		attribute.StringSlice("item.retrieved_source_ids", result.RetrievedSourceIDs()),
	}
	scores := make([]float64, len(result.Retrieved))
	for i, doc := range result.Retrieved {
		scores[i] = doc.Score
	}
	attrs = append(attrs, attribute.Float64Slice("item.similarity_scores", scores))

	if result.HitRate != nil {
		attrs = append(attrs,
			attribute.Float64("score.hitrate", *result.HitRate),
			attribute.String("score.hitrate_comment", hitRateComment(result)),
		)
	}
	if result.Groundedness != nil {
		attrs = append(attrs, attribute.Float64("score.response_groundedness", *result.Groundedness))
	}
	if result.JudgeError != "" {
		attrs = append(attrs, attribute.String("score.judge_error", result.JudgeError))
	}
	if result.Err != "" {
		attrs = append(attrs, attribute.String("item.error", result.Err))
	}
	span.SetAttributes(attrs...)
}

// hitRateComment explains the hit-rate value with the two id sets that
// produced it.
func hitRateComment(result *harness.ItemResult) string {
	expected, _ := json.Marshal(result.ExpectedSourceIDs)
	received, _ := json.Marshal(result.RetrievedSourceIDs())
	return fmt.Sprintf("expected_source_ids: %s\n\nreceived sources: %s", expected, received)
}

func (s *RunScope) append(ctx context.Context, record any) error {
	err := backoff.Retry(ctx, s.rec.policy, recordAttempts, func(attempt int) error {
		if attempt > 1 {
			s.rec.metrics.RecordingRetry.Inc()
			s.rec.logger.Warn(ctx, "retrying result record", "attempt", attempt)
		}
		appendStart := time.Now()
		defer s.rec.metrics.ObserveCall("sink", appendStart)
		return s.results.Append(record)
	})
	if err == nil {
		return nil
	}
	s.rec.logger.Warn(ctx, "result sink unavailable, diverting to recovery file",
		"error", err, "recovery_path", s.rec.cfg.RecoveryPath)
	if rerr := appendRecovery(s.rec.cfg.RecoveryPath, record); rerr != nil {
		return fmt.Errorf("recorder: record lost: %w", rerr)
	}
	return nil
}

// Finalize writes the summary, ends the root span and force-flushes the
// exporter. When it returns without error, everything recorded so far has
// been handed to the sink.
func (s *RunScope) Finalize(ctx context.Context, summary harness.Summary) error {
	if s.done {
		return nil
	}
	s.done = true

	err := s.append(ctx, summary)

	s.span.SetAttributes(
		attribute.Int("run.items_total", summary.Total),
		attribute.Int("run.items_scored", summary.Scored),
		attribute.Int("run.items_partial", summary.Partial),
		attribute.Float64("run.elapsed_seconds", summary.Elapsed.Seconds()),
	)
	s.span.End()

	if cerr := s.results.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("recorder: close results file: %w", cerr)
	}
	if ferr := s.rec.tracer.ForceFlush(ctx); ferr != nil && err == nil {
		err = fmt.Errorf("recorder: flush trace sink: %w", ferr)
	}
	return err
}
