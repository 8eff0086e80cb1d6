package observe

import "errors"

// Errors returned by Config.Validate. Each wraps the offending value.
var (
	ErrMissingServiceName     = errors.New("observe: telemetry.service_name is empty")
	ErrInvalidSamplePct       = errors.New("observe: telemetry.sample_pct outside [0, 1]")
	ErrInvalidTracingExporter = errors.New("observe: unknown traces exporter")
	ErrInvalidMetricsExporter = errors.New("observe: unknown metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: unknown log level")
)

// ErrNilObserver is returned by InstrumenterFromObserver for a nil Observer.
var ErrNilObserver = errors.New("observe: nil observer")

// ErrMissingTool is returned by CallMeta.Validate when no tool is named.
var ErrMissingTool = errors.New("observe: call has no tool")

// An empty name selects the default for each setting.
var (
	tracingExporters = []string{"", "none", "stdout", "otlp", "jaeger"}
	metricsExporters = []string{"", "none", "stdout", "otlp", "prometheus"}
	logLevels        = []string{"", "debug", "info", "warn", "error"}
)

// SecretKeys are log field keys whose values are never written. Matching
// ignores case.
var SecretKeys = []string{
	// broker callers
	"token", "authorization", "jwt_secret", "input",
	// vCenter
	"password", "credential", "vmware-api-session-id", "session_id",
	// generic
	"secret", "api_key", "apiKey",
}
