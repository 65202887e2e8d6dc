package health

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Disposable is implemented by *ratelimit.Limiter.
type Disposable interface {
	Disposed() bool
}

// LimiterCheck fails once the limiter has been closed. A limiter that is
// merely exhausted is still ready: callers wait rather than fail.
func LimiterCheck(l Disposable) CheckFunc {
	return func(ctx context.Context) error {
		if l == nil {
			return errors.New("rate limiter not configured")
		}
		if l.Disposed() {
			return errors.New("rate limiter closed")
		}
		return nil
	}
}

// UpstreamConfiguredCheck fails when the upstream base URL is missing or
// unusable. It does not call the upstream, since every call costs quota.
func UpstreamConfiguredCheck(baseURL string) CheckFunc {
	return func(ctx context.Context) error {
		if baseURL == "" {
			return errors.New("upstream base URL not configured")
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("invalid upstream base URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid upstream base URL %q", baseURL)
		}
		return nil
	}
}
