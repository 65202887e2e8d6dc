// Package upstream is the rate-limited HTTP client that quotagate uses to
// call the protected API.
//
// Every attempt, including retries, first passes through a Gate (normally a
// *ratelimit.Limiter), so retries are paid for out of the same quota as
// first attempts. Network failures and 5xx responses are retried with
// exponential backoff; 4xx responses are returned immediately as typed
// errors:
//
//   - *AuthError: 401 or 403
//   - *RateLimitError: 429, with the parsed Retry-After
//   - *UpstreamError: any other failure, StatusCode 0 for network errors
//   - *TimeoutError: deadline exceeded
//   - *ParseError: DoJSON could not decode the response
//   - *GateError: the limiter refused the call, so nothing was sent
//
// Usage:
//
//	client, err := upstream.NewClient(&cfg.Upstream, limiter,
//	    upstream.WithLogger(logger.Slog()),
//	    upstream.WithRecorder(collector),
//	    upstream.WithTracer(tracer),
//	)
//	var out Invoice
//	err = client.DoJSON(ctx, http.MethodGet, "/v1/invoices/42", nil, &out)
package upstream
