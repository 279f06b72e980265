package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer exports evaluation traces over OpenTelemetry.
//
// Every run produces one root span plus one child span per dataset item.
// Item spans carry the full provenance payload (question, answer,
// retrieved evidence, scores, configuration snapshot) so a persisted
// trace is self-contained.
//
// With an empty Endpoint a no-op tracer is returned: spans are still
// created so scoped recording keeps the same shape, they are just never
// exported.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// TraceConfig configures trace export.
type TraceConfig struct {
	// ServiceName identifies this harness in traces.
	ServiceName string

	// ServiceVersion identifies the harness build.
	ServiceVersion string

	// Environment tags exported spans (dev, staging, production).
	Environment string

	// Endpoint is the OTLP gRPC collector endpoint. Empty disables export.
	Endpoint string

	// EnableInsecure disables TLS for the OTLP connection.
	EnableInsecure bool
}

// NewTracer creates a tracer and returns it with a shutdown function that
// must be called on exit. Shutdown flushes any batched spans.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error, error) {
	if config.ServiceName == "" {
		config.ServiceName = "ragmark"
	}
	if config.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(config.ServiceName)},
			func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.EnableInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Tracer{provider: provider, tracer: provider.Tracer(config.ServiceName)}
	return t, provider.Shutdown, nil
}

// Start creates a new span and returns a context containing it.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if len(attrs) > 0 {
		return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	}
	return t.tracer.Start(ctx, name)
}

// StartRun opens the root span for one evaluation run.
func (t *Tracer) StartRun(ctx context.Context, runName, datasetName, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "evaluation_run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.name", runName),
			attribute.String("run.dataset", datasetName),
			attribute.String("run.model", model),
		))
}

// StartItem opens the span for one dataset item.
func (t *Tracer) StartItem(ctx context.Context, runName string, ordinal int, question string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "evaluation_item",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.name", runName),
			attribute.Int("item.ordinal", ordinal),
			attribute.String("item.input", question),
		))
}

// StartRetrieval opens the span for one retriever call.
func (t *Tracer) StartRetrieval(ctx context.Context, k int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "retriever_call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("retrieval.k", k)))
}

// StartGeneration opens the span for one generator call.
func (t *Tracer) StartGeneration(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "llm_call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("llm.model", model)))
}

// StartJudge opens the span for one groundedness judge call.
func (t *Tracer) StartJudge(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "judge_call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("judge.model", model)))
}

// RecordError records an error on the span and marks the span status.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// ForceFlush pushes all batched spans to the exporter. This is the
// mandatory synchronization point at run end: when ForceFlush returns
// nil, every previously recorded item is durably handed to the sink.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}

// TraceID returns the active trace ID from the context, or "".
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
