package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Recorder records the spans and metrics emitted by the engine, tool
// manager, and HTTP adapter. A nil *Recorder is safe to call: every
// method is a no-op, so a component can hold an unset Recorder field and
// instrument unconditionally.
type Recorder struct {
	tracer trace.Tracer

	transitions  metric.Int64Counter
	toolCalls    metric.Int64Counter
	toolErrors   metric.Int64Counter
	toolDuration metric.Float64Histogram
	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram
}

// newRecorder creates the instruments Recorder needs against the given
// providers.
func newRecorder(tp trace.TracerProvider, mp metric.MeterProvider) (*Recorder, error) {
	tracer := tp.Tracer("agentrun")
	meter := mp.Meter("agentrun")

	transitions, err := meter.Int64Counter("engine.transitions",
		metric.WithDescription("Engine state transitions, labeled by the source and destination state."))
	if err != nil {
		return nil, err
	}
	toolCalls, err := meter.Int64Counter("tool.calls",
		metric.WithDescription("Tool dispatch attempts, labeled by server and tool name."))
	if err != nil {
		return nil, err
	}
	toolErrors, err := meter.Int64Counter("tool.errors",
		metric.WithDescription("Tool dispatch failures, labeled by server and tool name."))
	if err != nil {
		return nil, err
	}
	toolDuration, err := meter.Float64Histogram("tool.duration_seconds",
		metric.WithDescription("Tool call latency in seconds."))
	if err != nil {
		return nil, err
	}
	httpRequests, err := meter.Int64Counter("http.requests",
		metric.WithDescription("HTTP requests served, labeled by method, route, and status."))
	if err != nil {
		return nil, err
	}
	httpDuration, err := meter.Float64Histogram("http.duration_seconds",
		metric.WithDescription("HTTP request latency in seconds."))
	if err != nil {
		return nil, err
	}

	return &Recorder{
		tracer:       tracer,
		transitions:  transitions,
		toolCalls:    toolCalls,
		toolErrors:   toolErrors,
		toolDuration: toolDuration,
		httpRequests: httpRequests,
		httpDuration: httpDuration,
	}, nil
}

// RecordTransition records one engine state transition.
func (r *Recorder) RecordTransition(ctx context.Context, sessionID, from, to string) {
	if r == nil || r.transitions == nil {
		return
	}
	r.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
	_, span := r.tracer.Start(ctx, "engine.transition", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("from", from),
		attribute.String("to", to),
	))
	span.End()
}

// RecordToolCall records one tool dispatch's outcome and latency.
func (r *Recorder) RecordToolCall(ctx context.Context, server, tool string, duration time.Duration, err error) {
	if r == nil || r.toolCalls == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("tool", tool),
	)
	r.toolCalls.Add(ctx, 1, attrs)
	if r.toolDuration != nil {
		r.toolDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if err != nil && r.toolErrors != nil {
		r.toolErrors.Add(ctx, 1, attrs)
	}
}

// StartToolSpan starts a span around one tool dispatch. Callers must End
// the returned span; calling End on a nil Recorder's span is safe because
// StartToolSpan returns a no-op span in that case.
func (r *Recorder) StartToolSpan(ctx context.Context, server, tool string) (context.Context, trace.Span) {
	return r.StartSpan(ctx, "tool.call", attribute.String("server", server), attribute.String("tool", tool))
}

// StartSpan starts a span named name with the given attributes. Safe to
// call on a nil Recorder, which returns the context's existing span
// unchanged so callers can always defer span.End() unconditionally.
func (r *Recorder) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if r == nil || r.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordHTTPRequest records one served HTTP request.
func (r *Recorder) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if r == nil || r.httpRequests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status_code", status),
	)
	r.httpRequests.Add(ctx, 1, attrs)
	if r.httpDuration != nil {
		r.httpDuration.Record(ctx, duration.Seconds(), attrs)
	}
}
