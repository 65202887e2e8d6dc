// Package health provides liveness and readiness probes for quotagate.
//
// # Endpoints
//
//   - /health: Liveness probe, always 200 while the process serves HTTP
//   - /ready: Readiness probe, 503 once the limiter is closed or the
//     upstream is not configured
//
// Paths come from config.HealthConfig.
//
// # Usage
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("limiter", health.LimiterCheck(limiter))
//	checker.RegisterCheck("upstream", health.UpstreamConfiguredCheck(cfg.Upstream.BaseURL))
//	health.Register(mux, &cfg.Telemetry.Health, checker)
//
// Readiness deliberately ignores saturation. An exhausted window makes
// callers wait for the next refill; the process is still doing its job.
package health
