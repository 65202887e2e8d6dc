// Package tracing provides OpenTelemetry distributed tracing for quotagate.
//
// # Overview
//
// The sidecar continues the caller's trace (W3C Trace Context), records a
// server span per request, and the upstream client records one span per
// forwarded call with the limiter outcome and wait time attached. The
// trace context is injected into every upstream attempt so the provider's
// own tracing, if any, joins the same trace.
//
// Spans are exported over OTLP gRPC. When tracing is disabled New returns
// a noop tracer and every helper in this package is still safe to call.
//
// # Sampling Strategies
//
//   - always: Sample all traces (development/debugging)
//   - never: Sample no traces
//   - ratio: Sample a percentage of traces (production)
//
// All strategies respect the parent's sampling decision.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "upstream.request")
//	defer span.End()
//	tracing.SetLimiterAttributes(span, ratelimit.OutcomeAdmitted, wait)
package tracing
