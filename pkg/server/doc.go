// Package server provides the quotagate HTTP sidecar.
//
// The sidecar sits between local callers and one rate-limited third-party
// API. Every request under the forward prefix (default "/v1/") is sent
// through the upstream client, which waits until every configured quota
// window has capacity before each attempt. Callers never see the upstream's
// own 429 for quota the sidecar already tracks; they see added latency.
//
// # Routes
//
//	/v1/...   forwarded to the upstream (path and query unchanged)
//	/health   liveness
//	/ready    readiness: limiter not closed, upstream configured
//	/limits   JSON status of every window; never consumes a permit
//	/metrics  Prometheus metrics, when enabled
//	/version  build information
//
// # Error Mapping
//
//	limiter closed (shutdown)      503 rate_limiter_closed
//	caller disconnected            499 in the request log, nothing written
//	upstream 429                   429 with Retry-After in whole seconds
//	upstream 401/403 and other 4xx passed through with the upstream body
//	upstream 5xx after retries     passed through
//	upstream timeout               504
//	upstream unreachable           502
//
// # Graceful Shutdown
//
// Shutdown stops the listener and waits for in-flight requests up to
// proxy.shutdown_timeout, then closes the limiter and the upstream client.
// Closing the limiter fails every request still waiting for capacity with 503.
package server
