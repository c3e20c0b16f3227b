// Package observability wires OpenTelemetry tracing and metrics into
// buildgraph.
//
// Computations run inside spans named "<prefix>.<kind>", and Metrics records
// one operation per computation and per artifact fetch. When telemetry is
// disabled the global no-op providers stay in place, so instrumented code
// needs no conditionals.
//
//	tel, err := observability.Setup(ctx, cfg.Observability, log)
//	defer tel.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, "compute.rule_key")
//	defer span.End()
package observability
