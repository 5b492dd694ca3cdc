package telemetry

import (
	"context"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanRecorder is an in-memory span exporter for tests.
type SpanRecorder struct {
	mu    sync.RWMutex
	spans []sdktrace.ReadOnlySpan
}

// NewSpanRecorder returns an empty recorder.
func NewSpanRecorder() *SpanRecorder {
	return &SpanRecorder{spans: make([]sdktrace.ReadOnlySpan, 0)}
}

// NewTestProvider builds a tracer provider that exports synchronously into
// the returned recorder.
func NewTestProvider() (*sdktrace.TracerProvider, *SpanRecorder) {
	recorder := NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(recorder))
	return tp, recorder
}

func (r *SpanRecorder) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, spans...)
	return nil
}

func (r *SpanRecorder) Shutdown(ctx context.Context) error { return nil }

// SpansByName returns the recorded spans with the given name.
func (r *SpanRecorder) SpansByName(name string) []sdktrace.ReadOnlySpan {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matching := []sdktrace.ReadOnlySpan{}
	for _, span := range r.spans {
		if span.Name() == name {
			matching = append(matching, span)
		}
	}
	return matching
}
