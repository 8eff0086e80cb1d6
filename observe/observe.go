package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/vspherebroker/observe/exporters"
)

// Config selects the broker's telemetry backends.
type Config struct {
	ServiceName string
	Version     string

	// Attributes are added to the telemetry resource, e.g. vcenter.host.
	Attributes map[string]string

	Tracing TracingConfig
	Metrics MetricsConfig
	Logging LoggingConfig
}

// TracingConfig configures span export for broker invocations.
type TracingConfig struct {
	Enabled   bool
	Exporter  string  // otlp|jaeger|stdout|none
	SamplePct float64 // 0.0-1.0, applied to root spans only
}

// MetricsConfig configures the broker counters and histograms.
type MetricsConfig struct {
	Enabled  bool
	Exporter string // otlp|prometheus|stdout|none

	// Registerer receives the Prometheus collector. Nil uses the default registry.
	Registerer prometheus.Registerer
}

// LoggingConfig configures the JSON logger.
type LoggingConfig struct {
	Enabled bool
	Level   string    // debug|info|warn|error
	Writer  io.Writer // defaults to os.Stderr
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.ServiceName == "":
		return ErrMissingServiceName
	case c.Tracing.Enabled && !slices.Contains(tracingExporters, c.Tracing.Exporter):
		return fmt.Errorf("%w: %q", ErrInvalidTracingExporter, c.Tracing.Exporter)
	case c.Tracing.Enabled && (c.Tracing.SamplePct < 0 || c.Tracing.SamplePct > 1):
		return fmt.Errorf("%w, got: %f", ErrInvalidSamplePct, c.Tracing.SamplePct)
	case c.Metrics.Enabled && !slices.Contains(metricsExporters, c.Metrics.Exporter):
		return fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, c.Metrics.Exporter)
	case c.Logging.Enabled && !slices.Contains(logLevels, c.Logging.Level):
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}
	return nil
}

// Observer hands out the tracer, meter and logger every broker component
// shares. Implementations are safe for concurrent use; Shutdown flushes
// pending telemetry once and returns the same result on later calls.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger
	Shutdown(ctx context.Context) error
}

// Logger is a minimal structured logging interface.
//
// Implementations must be safe for concurrent use and must never panic.
// With and WithCall return derived loggers sharing the writer.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
	WithCall(meta CallMeta) Logger
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

type observer struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger Logger

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	once    sync.Once
	stopErr error
}

// NewObserver validates cfg and builds the providers it enables. Disabled
// signals get no-op implementations.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	obs := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer("noop"),
		meter:  noop.NewMeterProvider().Meter("noop"),
		logger: NopLogger(),
	}
	if cfg.Tracing.Enabled {
		if obs.tp, err = newTracerProvider(ctx, cfg, res); err != nil {
			return nil, fmt.Errorf("observe: tracing: %w", err)
		}
		obs.tracer = obs.tp.Tracer(cfg.ServiceName)
	}
	if cfg.Metrics.Enabled {
		if obs.mp, err = newMeterProvider(ctx, cfg, res); err != nil {
			_ = obs.Shutdown(ctx)
			return nil, fmt.Errorf("observe: metrics: %w", err)
		}
		obs.meter = obs.mp.Meter(cfg.ServiceName)
	}
	if cfg.Logging.Enabled {
		w := cfg.Logging.Writer
		if w == nil {
			w = os.Stderr
		}
		obs.logger = NewLoggerWithWriter(cfg.Logging.Level, w)
	}
	return obs, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	}
	for _, k := range slices.Sorted(maps.Keys(cfg.Attributes)) {
		if v := cfg.Attributes[k]; v != "" {
			attrs = append(attrs, attribute.String(k, v))
		}
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

// sampler follows the caller's decision for child spans and samples roots
// at pct.
func sampler(pct float64) sdktrace.Sampler {
	switch {
	case pct >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case pct <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(pct))
	}
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := exporters.NewTracingExporter(ctx, cfg.Tracing.Exporter)
	if err != nil {
		return nil, err
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.Tracing.SamplePct)),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	var opts []exporters.Option
	if cfg.Metrics.Registerer != nil {
		opts = append(opts, exporters.WithRegisterer(cfg.Metrics.Registerer))
	}
	reader, err := exporters.NewMetricsReader(ctx, cfg.Metrics.Exporter, opts...)
	if err != nil {
		return nil, err
	}
	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		mpOpts = append(mpOpts, sdkmetric.WithReader(reader))
	}
	mp := sdkmetric.NewMeterProvider(mpOpts...)
	otel.SetMeterProvider(mp)
	return mp, nil
}

func (o *observer) Tracer() trace.Tracer { return o.tracer }
func (o *observer) Meter() metric.Meter  { return o.meter }
func (o *observer) Logger() Logger       { return o.logger }

func (o *observer) Shutdown(ctx context.Context) error {
	o.once.Do(func() {
		var errs []error
		if o.tp != nil {
			if err := o.tp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
			}
		}
		if o.mp != nil {
			if err := o.mp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
			}
		}
		o.stopErr = errors.Join(errs...)
	})
	return o.stopErr
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...Field)  {}
func (nopLogger) Warn(context.Context, string, ...Field)  {}
func (nopLogger) Error(context.Context, string, ...Field) {}
func (nopLogger) Debug(context.Context, string, ...Field) {}
func (l nopLogger) With(...Field) Logger                  { return l }
func (l nopLogger) WithCall(CallMeta) Logger              { return l }
