package observe

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestObserverContract_Noops(t *testing.T) {
	cfg := Config{
		ServiceName: "observe-test",
		Tracing: TracingConfig{
			Enabled:  false,
			Exporter: "none",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Exporter: "none",
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
	}

	obs, err := NewObserver(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewObserver failed: %v", err)
	}

	if obs.Tracer() == nil {
		t.Fatalf("expected non-nil tracer")
	}
	if obs.Meter() == nil {
		t.Fatalf("expected non-nil meter")
	}
	if obs.Logger() == nil {
		t.Fatalf("expected non-nil logger")
	}
}

func TestLoggerContract_Derive(t *testing.T) {
	logger := NopLogger()
	if logger.WithCall(CallMeta{Tool: "noop"}) == nil {
		t.Fatalf("WithCall should return non-nil logger")
	}
	if logger.With(Field{Key: "k", Value: "v"}) == nil {
		t.Fatalf("With should return non-nil logger")
	}
}

func TestMetricsContract_NoPanic(t *testing.T) {
	metrics := &noopMetrics{}
	metrics.RecordCall(context.Background(), CallMeta{Tool: "noop"}, 10*time.Millisecond, "")
	metrics.RecordLogin(context.Background(), "vc01", errors.New("rejected"))
	metrics.RecordDenied(context.Background(), "noop")
}

func TestTracerContract_NoPanic(t *testing.T) {
	tracer := newNoopTracer()
	_, span := tracer.StartSpan(context.Background(), CallMeta{Tool: "noop"})
	tracer.EndSpan(span, errors.New("boom"), "internal")
}

func TestInstrumenterContract_Noop(t *testing.T) {
	inst := NoopInstrumenter()
	ctx, scope := inst.Start(context.Background(), CallMeta{Tool: "noop"})
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	scope.Annotate("viewer", "vc01")
	if d := scope.End(nil); d < 0 {
		t.Errorf("expected non-negative duration, got %v", d)
	}
}
