package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records broker call and session metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records one broker call. kind is empty on success.
	RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, kind string)

	// RecordLogin records one vCenter login attempt.
	RecordLogin(ctx context.Context, host string, err error)

	// RecordDenied records a call rejected by the rate limiter.
	RecordDenied(ctx context.Context, tool string)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	loginCount   metric.Int64Counter
	deniedCount  metric.Int64Counter
}

// NewMetrics creates the broker instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	totalCount, err := meter.Int64Counter(
		"broker.calls.total",
		metric.WithDescription("Total number of broker calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"broker.calls.errors",
		metric.WithDescription("Total number of failed broker calls by error kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"broker.call.duration_ms",
		metric.WithDescription("Broker call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	loginCount, err := meter.Int64Counter(
		"vcenter.session.logins",
		metric.WithDescription("vCenter login attempts"),
		metric.WithUnit("{login}"),
	)
	if err != nil {
		return nil, err
	}

	deniedCount, err := meter.Int64Counter(
		"broker.ratelimit.denied",
		metric.WithDescription("Calls rejected by the per-identity rate limiter"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
		loginCount:   loginCount,
		deniedCount:  deniedCount,
	}, nil
}

// RecordCall records metrics for a broker call.
func (m *metricsImpl) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, kind string) {
	attrs := []attribute.KeyValue{attribute.String("call.tool", meta.Tool)}
	if meta.Host != "" {
		attrs = append(attrs, attribute.String("call.host", meta.Host))
	}
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)
	if kind != "" {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error.kind", kind))...))
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

// RecordLogin records a vCenter login attempt.
func (m *metricsImpl) RecordLogin(ctx context.Context, host string, err error) {
	m.loginCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("vcenter.host", host),
		attribute.Bool("success", err == nil),
	))
}

// RecordDenied records a rate-limited call.
func (m *metricsImpl) RecordDenied(ctx context.Context, tool string) {
	m.deniedCount.Add(ctx, 1, metric.WithAttributes(attribute.String("call.tool", tool)))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (m *noopMetrics) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, kind string) {
}

func (m *noopMetrics) RecordLogin(ctx context.Context, host string, err error) {}

func (m *noopMetrics) RecordDenied(ctx context.Context, tool string) {}
