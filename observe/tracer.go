package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// CallMeta describes one broker invocation for telemetry purposes.
type CallMeta struct {
	Tool        string // Tool name (required)
	Host        string // Target vCenter host (may be empty before resolution)
	Role        string // Caller role (empty when unresolved)
	Destructive bool
}

// SpanName returns the deterministic span name for this call.
// Format: broker.invoke.<tool>
func (m CallMeta) SpanName() string {
	return "broker.invoke." + m.Tool
}

// Validate reports whether the metadata can name a span.
func (m CallMeta) Validate() error {
	if m.Tool == "" {
		return ErrMissingTool
	}
	return nil
}

func (m CallMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("call.tool", m.Tool),
		attribute.Bool("call.destructive", m.Destructive),
	}
	if m.Host != "" {
		attrs = append(attrs, attribute.String("call.host", m.Host))
	}
	if m.Role != "" {
		attrs = append(attrs, attribute.String("call.role", m.Role))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with broker-call span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a broker call.
	StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error and its kind.
	EndSpan(span trace.Span, err error, kind string)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with call metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("call.error", false))
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error, kind string) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.Bool("call.error", true),
			attribute.String("call.error.kind", kind),
		)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

func newNoopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error, kind string) {
	span.End()
}
