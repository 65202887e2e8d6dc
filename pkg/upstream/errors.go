package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("upstream client closed")

// UpstreamError represents a failed upstream call: a non-2xx status that is
// not covered by a more specific type, or a network failure (StatusCode 0).
type UpstreamError struct {
	// Upstream is the configured upstream name
	Upstream string

	// StatusCode is the HTTP status code (0 if no response was received)
	StatusCode int

	// Message is the response body or a description of the failure
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %q error (status %d): %s", e.Upstream, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("upstream %q error: %v", e.Upstream, e.Cause)
	}
	return fmt.Sprintf("upstream %q error: %s", e.Upstream, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// AuthError represents an authentication failure (HTTP 401 or 403).
type AuthError struct {
	Upstream   string
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream %q authentication failed (status %d): %s", e.Upstream, e.StatusCode, e.Message)
}

// RateLimitError is returned when the upstream answers 429 despite the
// local limiter, usually because another client shares the same quota.
type RateLimitError struct {
	Upstream string

	// RetryAfter is the delay requested by the upstream, 0 if absent.
	RetryAfter time.Duration

	Message string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("upstream %q rate limit exceeded (retry after %s): %s",
			e.Upstream, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("upstream %q rate limit exceeded: %s", e.Upstream, e.Message)
}

// TimeoutError represents a request that exceeded its deadline.
type TimeoutError struct {
	Upstream string
	Timeout  time.Duration
	Cause    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream %q request timeout after %s", e.Upstream, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ParseError represents a response body that could not be decoded.
type ParseError struct {
	Upstream    string
	RawResponse string
	Cause       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("upstream %q response parse error: %v", e.Upstream, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// GateError is returned when the rate limiter did not admit the call, so
// nothing was sent upstream. Cause is the caller's context error or
// ratelimit.ErrDisposed; match it with errors.Is.
type GateError struct {
	Upstream string
	Attempt  int
	Cause    error
}

func (e *GateError) Error() string {
	return fmt.Sprintf("upstream %q call not admitted by rate limiter (attempt %d): %v", e.Upstream, e.Attempt+1, e.Cause)
}

func (e *GateError) Unwrap() error {
	return e.Cause
}

// Error types reported to metrics and traces.
const (
	ErrorTypeGate      = "gate"
	ErrorTypeTimeout   = "timeout"
	ErrorTypeRateLimit = "rate_limit"
	ErrorTypeAuth      = "auth"
	ErrorTypeParse     = "parse"
	ErrorTypeServer    = "server_error"
	ErrorTypeClient    = "client_error"
	ErrorTypeNetwork   = "network"
	ErrorTypeCancelled = "cancelled"
	ErrorTypeUnknown   = "unknown"
)

// ErrorType classifies err for metrics labels.
func ErrorType(err error) string {
	var (
		gateErr    *GateError
		timeoutErr *TimeoutError
		rateErr    *RateLimitError
		authErr    *AuthError
		parseErr   *ParseError
		upErr      *UpstreamError
	)
	switch {
	case errors.As(err, &gateErr):
		return ErrorTypeGate
	case errors.As(err, &timeoutErr):
		return ErrorTypeTimeout
	case errors.As(err, &rateErr):
		return ErrorTypeRateLimit
	case errors.As(err, &authErr):
		return ErrorTypeAuth
	case errors.As(err, &parseErr):
		return ErrorTypeParse
	case errors.As(err, &upErr):
		switch {
		case upErr.StatusCode >= 500:
			return ErrorTypeServer
		case upErr.StatusCode > 0:
			return ErrorTypeClient
		default:
			return ErrorTypeNetwork
		}
	case errors.Is(err, context.Canceled):
		return ErrorTypeCancelled
	default:
		return ErrorTypeUnknown
	}
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		return false
	}
	return upErr.StatusCode == 0 || upErr.StatusCode >= 500
}
