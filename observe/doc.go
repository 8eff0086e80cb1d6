// Package observe provides logging, tracing, and metrics for the broker.
//
// An Observer owns the OpenTelemetry providers and the JSON logger. The
// Instrumenter wraps each broker call in one span, one set of metric
// observations, and one log line:
//
//	inst, _ := observe.InstrumenterFromObserver(obs, broker.KindOf)
//	ctx, scope := inst.Start(ctx, observe.CallMeta{Tool: "list_vms"})
//	defer scope.End(err)
//
// Fields whose keys appear in SecretKeys are replaced before they are
// written, so credentials and session tokens never reach log output.
package observe
