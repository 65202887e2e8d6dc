// Package middleware provides the HTTP middleware of the quotagate sidecar.
//
// # Middleware Chain
//
// The server applies the middleware in this order, outermost first:
//
//	RequestID -> Recovery -> tracing.HTTPMiddleware -> TraceFields -> Logging -> mux
//
// RequestID runs first so a recovered panic can still be logged with the
// request ID. TraceFields runs inside the tracing middleware so the trace ID
// of the server span reaches the request log line.
//
// # Request ID
//
// RequestID keeps a caller-supplied X-Request-ID or generates a UUID v4:
//
//	X-Request-ID: 550e8400-e29b-41d4-a716-446655440000
//
// The ID is stored with logging.WithRequestID, echoed in the response and
// forwarded to the upstream by the upstream client.
//
// # Errors
//
// Errors produced by the sidecar itself share one JSON shape:
//
//	{
//	  "error": {
//	    "type": "rate_limiter_closed",
//	    "message": "rate limiter is shutting down",
//	    "request_id": "550e8400-e29b-41d4-a716-446655440000"
//	  }
//	}
package middleware
