package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects harness counters for one process.
//
// Tracked series:
//   - items evaluated, labeled by outcome (scored|partial|failed)
//   - collaborator call latency, labeled by collaborator
//     (retriever|generator|judge|sink)
//   - run duration
type Metrics struct {
	ItemCounter    *prometheus.CounterVec
	CallDuration   *prometheus.HistogramVec
	RunDuration    prometheus.Histogram
	RecordingRetry prometheus.Counter
	registry       *prometheus.Registry
}

// NewMetrics creates and registers all harness metrics on a private
// registry, so repeated construction in tests does not collide.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		ItemCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragmark_items_total",
				Help: "Dataset items evaluated, by outcome",
			},
			[]string{"outcome"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragmark_collaborator_call_duration_seconds",
				Help:    "Latency of collaborator calls",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"collaborator"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ragmark_run_duration_seconds",
				Help:    "Wall-clock duration of evaluation runs",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		),
		RecordingRetry: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ragmark_recording_retries_total",
				Help: "Trace sink record retries",
			},
		),
		registry: registry,
	}
	registry.MustRegister(m.ItemCounter, m.CallDuration, m.RunDuration, m.RecordingRetry)
	return m
}

// ObserveCall records the latency of one collaborator call.
func (m *Metrics) ObserveCall(collaborator string, start time.Time) {
	m.CallDuration.WithLabelValues(collaborator).Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled. A nil error is
// returned on clean shutdown.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
