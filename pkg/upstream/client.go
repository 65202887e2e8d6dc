package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/quotagate/pkg/config"
	"mercator-hq/quotagate/pkg/telemetry/tracing"
)

// RequestIDHeader carries the request ID to the upstream.
const RequestIDHeader = "X-Request-ID"

const (
	defaultBackoff = time.Second
	maxBackoff     = 30 * time.Second

	// maxErrorBody bounds how much of an error response is kept in memory.
	maxErrorBody = 64 << 10
)

// Gate admits calls to the upstream. *ratelimit.Limiter satisfies it.
type Gate interface {
	Acquire(ctx context.Context) error
}

// Recorder receives per-attempt upstream metrics. *metrics.Collector
// satisfies it.
type Recorder interface {
	RecordUpstreamRequest(upstream, method string, status int, duration time.Duration)
	RecordUpstreamError(upstream, errorType string)
	RecordUpstreamRetry(upstream string)
}

type nopRecorder struct{}

func (nopRecorder) RecordUpstreamRequest(string, string, int, time.Duration) {}
func (nopRecorder) RecordUpstreamError(string, string)                       {}
func (nopRecorder) RecordUpstreamRetry(string)                               {}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithTracer enables an "upstream.request" span per call.
func WithTracer(t *tracing.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithHTTPClient replaces the pooled HTTP client built from the config.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithBackoff sets the base retry delay. Attempt n waits base*2^(n-1),
// capped at 30s. Zero retries without waiting.
func WithBackoff(base time.Duration) Option {
	return func(c *Client) {
		c.backoff = base
	}
}

// WithAPIKeyFunc resolves the API key before each call instead of using the
// static key from the config. It lets a rotated key take effect without a
// restart. A resolution error fails the call before any quota is consumed.
func WithAPIKeyFunc(fn func(ctx context.Context) (string, error)) Option {
	return func(c *Client) {
		c.apiKeyFunc = fn
	}
}

// Client sends requests to a single upstream API. Every attempt, retries
// included, first passes through the Gate, so the upstream never sees more
// calls than the configured windows allow.
type Client struct {
	name       string
	baseURL    *url.URL
	apiKey     string
	apiKeyFunc func(ctx context.Context) (string, error)
	timeout    time.Duration
	maxRetries int

	gate     Gate
	http     *http.Client
	logger   *slog.Logger
	recorder Recorder
	tracer   *tracing.Tracer
	backoff  time.Duration

	closed atomic.Bool
}

// NewClient creates a client for the upstream described by cfg.
func NewClient(cfg *config.UpstreamConfig, gate Gate, opts ...Option) (*Client, error) {
	if gate == nil {
		return nil, errors.New("upstream client requires a gate")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid upstream base URL %q: scheme must be http or https", cfg.BaseURL)
	}

	c := &Client{
		name:       cfg.Name,
		baseURL:    base,
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		gate:       gate,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
			ForceAttemptHTTP2:   true,
		}
		c.http = &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "upstream", "upstream", c.name)
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}

	return c, nil
}

// Name returns the configured upstream name.
func (c *Client) Name() string {
	return c.name
}

// Do sends a request to path, relative to the base URL, and returns the
// response for a 2xx status. The caller must close the response body.
//
// Network failures and 5xx responses are retried with exponential backoff.
// 4xx responses are not retried: 401/403 yield *AuthError, 429 yields
// *RateLimitError and other statuses *UpstreamError. When the limiter does
// not admit an attempt, Do returns *GateError and nothing is sent for that
// attempt.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, headers http.Header) (*http.Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	requestID := headers.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := c.logger.With("request_id", requestID, "method", method, "path", path)

	apiKey, err := c.credentials(ctx)
	if err != nil {
		c.recorder.RecordUpstreamError(c.name, ErrorTypeUnknown)
		logger.Error("failed to resolve upstream credentials", "error", err)
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "upstream.request", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	tracing.SetUpstreamAttributes(span, c.name, method, target)
	span.SetAttributes(attribute.String(tracing.AttrRequestID, requestID))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffFor(attempt)
			logger.Debug("retrying upstream request",
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"backoff", delay,
				"error", lastErr,
			)
			c.recorder.RecordUpstreamRetry(c.name)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				tracing.SetErrorAttributes(span, ctx.Err(), ErrorTypeCancelled)
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		waitStart := time.Now()
		if err := c.gate.Acquire(ctx); err != nil {
			gerr := &GateError{Upstream: c.name, Attempt: attempt, Cause: err}
			c.recorder.RecordUpstreamError(c.name, ErrorTypeGate)
			tracing.SetErrorAttributes(span, gerr, ErrorTypeGate)
			logger.Debug("upstream call not admitted", "attempt", attempt, "error", err)
			return nil, gerr
		}
		wait := time.Since(waitStart)
		span.AddEvent("ratelimit.acquired", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.Int64(tracing.AttrLimiterWaitMS, wait.Milliseconds()),
		))

		resp, err := c.send(ctx, method, target, body, headers, requestID, apiKey)
		if err == nil {
			tracing.SetStatusCode(span, resp.StatusCode)
			tracing.SetRetryAttribute(span, attempt)
			tracing.SetStatus(span, nil)
			return resp, nil
		}

		errType := ErrorType(err)
		c.recorder.RecordUpstreamError(c.name, errType)

		if !IsRetryable(err) {
			tracing.SetErrorAttributes(span, err, errType)
			return nil, err
		}

		logger.Warn("upstream request failed, will retry",
			"attempt", attempt+1,
			"error", err,
		)
		lastErr = err
	}

	logger.Error("upstream retries exhausted", "attempts", c.maxRetries+1, "error", lastErr)
	tracing.SetRetryAttribute(span, c.maxRetries)
	tracing.SetErrorAttributes(span, lastErr, ErrorType(lastErr))
	return nil, lastErr
}

// send performs a single attempt and maps the response to an error type.
func (c *Client) send(ctx context.Context, method, target string, body []byte, headers http.Header, requestID, apiKey string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range headers {
		req.Header[key] = append([]string(nil), values...)
	}
	req.Header.Set(RequestIDHeader, requestID)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.Inject(ctx, req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, &TimeoutError{Upstream: c.name, Timeout: c.timeout, Cause: err}
		}
		return nil, &UpstreamError{Upstream: c.name, Message: "request failed", Cause: err}
	}
	c.recorder.RecordUpstreamRequest(c.name, method, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Upstream: c.name, StatusCode: resp.StatusCode, Message: string(errorBody)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{
			Upstream:   c.name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    string(errorBody),
		}
	default:
		return nil, &UpstreamError{Upstream: c.name, StatusCode: resp.StatusCode, Message: string(errorBody)}
	}
}

// DoJSON marshals reqBody, sends it, and decodes a 2xx response into
// respBody. Either may be nil.
func (c *Client) DoJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json")

	resp, err := c.Do(ctx, method, path, bodyBytes, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ParseError{
			Upstream: c.name,
			Cause:    fmt.Errorf("failed to read response: %w", err),
		}
	}

	if respBody != nil && len(responseBytes) > 0 {
		if err := json.Unmarshal(responseBytes, respBody); err != nil {
			return &ParseError{
				Upstream:    c.name,
				RawResponse: string(responseBytes),
				Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
			}
		}
	}

	return nil
}

// Close releases idle connections. Later calls to Do fail with ErrClosed.
// The gate is owned by the caller and is not closed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.http.CloseIdleConnections()
	c.logger.Info("upstream client closed")
	return nil
}

func (c *Client) credentials(ctx context.Context) (string, error) {
	if c.apiKeyFunc == nil {
		return c.apiKey, nil
	}
	key, err := c.apiKeyFunc(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve upstream credentials: %w", err)
	}
	return key, nil
}

// resolve joins path (which may carry a query string) onto the base URL,
// keeping any path prefix of the base.
func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("invalid request path %q: must be relative to the upstream base URL", path)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}

// backoffFor returns the delay before retry attempt (1-based). A zero base
// disables the delay.
func (c *Client) backoffFor(attempt int) time.Duration {
	if c.backoff <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	// Doubling past the cap, or past what a Duration holds, stays capped.
	if c.backoff >= maxBackoff || attempt-1 >= 62 || c.backoff > maxBackoff>>(attempt-1) {
		return maxBackoff
	}
	return c.backoff << (attempt - 1)
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}
