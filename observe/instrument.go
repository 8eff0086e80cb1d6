package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// KindFunc maps an error to a stable, low-cardinality kind label.
type KindFunc func(error) string

// Instrumenter wraps broker invocations with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use; each Start returns an independent scope.
//   - Context: Start returns a context carrying the call span.
//   - Errors: errors passed to End are recorded, never altered.
type Instrumenter struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
	kindOf  KindFunc
}

// NewInstrumenter creates an Instrumenter. A nil kindOf labels every error "error".
func NewInstrumenter(tracer Tracer, metrics Metrics, logger Logger, kindOf KindFunc) *Instrumenter {
	if kindOf == nil {
		kindOf = func(error) string { return "error" }
	}
	return &Instrumenter{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
		kindOf:  kindOf,
	}
}

// InstrumenterFromObserver creates an Instrumenter backed by an Observer.
func InstrumenterFromObserver(obs Observer, kindOf KindFunc) (*Instrumenter, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewInstrumenter(NewTracer(obs.Tracer()), metrics, obs.Logger(), kindOf), nil
}

// NoopInstrumenter returns an Instrumenter that records nothing.
func NoopInstrumenter() *Instrumenter {
	return NewInstrumenter(newNoopTracer(), &noopMetrics{}, NopLogger(), nil)
}

// Metrics returns the underlying metrics recorder.
func (i *Instrumenter) Metrics() Metrics { return i.metrics }

// Logger returns the underlying logger.
func (i *Instrumenter) Logger() Logger { return i.logger }

// Start opens a call scope. The caller must invoke End exactly once.
func (i *Instrumenter) Start(ctx context.Context, meta CallMeta) (context.Context, *CallScope) {
	ctx, span := i.tracer.StartSpan(ctx, meta)
	return ctx, &CallScope{
		inst:  i,
		ctx:   ctx,
		meta:  meta,
		span:  span,
		start: time.Now(),
	}
}

// CallScope tracks one in-flight broker call.
type CallScope struct {
	inst  *Instrumenter
	ctx   context.Context
	meta  CallMeta
	span  trace.Span
	start time.Time
}

// Annotate attaches details learned after Start, such as the resolved role and host.
func (s *CallScope) Annotate(role, host string) {
	if role != "" {
		s.meta.Role = role
		s.span.SetAttributes(attribute.String("call.role", role))
	}
	if host != "" {
		s.meta.Host = host
		s.span.SetAttributes(attribute.String("call.host", host))
	}
}

// Meta returns the call metadata including annotations.
func (s *CallScope) Meta() CallMeta { return s.meta }

// End closes the span, records metrics, logs the outcome, and returns the elapsed time.
func (s *CallScope) End(err error) time.Duration {
	duration := time.Since(s.start)

	var kind string
	if err != nil {
		kind = s.inst.kindOf(err)
	}
	s.inst.tracer.EndSpan(s.span, err, kind)
	s.inst.metrics.RecordCall(s.ctx, s.meta, duration, kind)

	log := s.inst.logger.WithCall(s.meta)
	fields := []Field{{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000}}
	if err != nil {
		fields = append(fields,
			Field{Key: "error", Value: err.Error()},
			Field{Key: "error.kind", Value: kind},
		)
		log.Error(s.ctx, "call failed", fields...)
	} else {
		log.Info(s.ctx, "call completed", fields...)
	}
	return duration
}
