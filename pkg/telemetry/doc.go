// Package telemetry groups the observability packages used by quotagate.
//
// # Components
//
//   - logging: structured slog logging with secret redaction and request
//     context fields
//   - metrics: Prometheus collectors for rate limit windows and upstream calls
//   - tracing: OpenTelemetry spans exported over OTLP/gRPC
//   - health: liveness and readiness endpoints
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.WatchLimiter(limiter)
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	defer tracer.Shutdown(context.Background())
//
// # Redaction
//
// API keys, bearer tokens and passwords are masked in log output by default.
// Custom redaction patterns can be configured.
package telemetry
