package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mercator-hq/quotagate/pkg/limits/ratelimit"
	"mercator-hq/quotagate/pkg/server/middleware"
	"mercator-hq/quotagate/pkg/telemetry/logging"
	"mercator-hq/quotagate/pkg/upstream"
)

// StatusClientClosedRequest is recorded when the caller went away before the
// upstream answered. No body is written.
const StatusClientClosedRequest = 499

// hopHeaders are connection-level headers that must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// forwardHandler sends every request under the forward prefix through the
// upstream client. The path and query are forwarded unchanged; the client
// waits for rate limit capacity before each attempt.
func (s *Server) forwardHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithUpstream(r.Context(), s.client.Name())
		r = r.WithContext(ctx)

		body, err := s.readBody(w, r)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				middleware.WriteError(w, r, http.StatusRequestEntityTooLarge, "request_too_large",
					"request body exceeds "+strconv.FormatInt(maxErr.Limit, 10)+" bytes")
				return
			}
			middleware.WriteError(w, r, http.StatusBadRequest, "invalid_request", "failed to read request body")
			return
		}

		resp, err := s.client.Do(ctx, r.Method, r.URL.RequestURI(), body, forwardHeaders(r.Header))
		if err != nil {
			s.writeUpstreamError(w, r, err)
			return
		}
		defer resp.Body.Close()

		copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := copyBody(w, resp.Body); err != nil {
			s.logger.DebugContext(ctx, "response copy interrupted", "error", err)
		}
	})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	reader := io.Reader(r.Body)
	if limit := s.config.Proxy.MaxBodyBytes; limit > 0 {
		reader = http.MaxBytesReader(w, r.Body, limit)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

// writeUpstreamError maps a client error to the response the caller sees.
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var (
		gateErr    *upstream.GateError
		rateErr    *upstream.RateLimitError
		authErr    *upstream.AuthError
		timeoutErr *upstream.TimeoutError
		upErr      *upstream.UpstreamError
	)

	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// The caller is gone; the status only reaches the request log.
		s.logger.DebugContext(ctx, "caller cancelled request", "error", err)
		w.WriteHeader(StatusClientClosedRequest)

	case errors.As(err, &gateErr) && errors.Is(err, ratelimit.ErrDisposed),
		errors.Is(err, upstream.ErrClosed):
		middleware.WriteError(w, r, http.StatusServiceUnavailable, "rate_limiter_closed",
			"rate limiter is shutting down")

	case errors.As(err, &gateErr) && errors.Is(err, context.DeadlineExceeded):
		middleware.WriteError(w, r, http.StatusGatewayTimeout, "rate_limit_wait_timeout",
			"timed out waiting for rate limit capacity")

	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", retryAfterSeconds(rateErr.RetryAfter))
		middleware.WriteError(w, r, http.StatusTooManyRequests, upstream.ErrorTypeRateLimit, upstreamMessage(rateErr.Message, err))

	case errors.As(err, &authErr):
		middleware.WriteError(w, r, authErr.StatusCode, upstream.ErrorTypeAuth, upstreamMessage(authErr.Message, err))

	case errors.As(err, &timeoutErr):
		middleware.WriteError(w, r, http.StatusGatewayTimeout, upstream.ErrorTypeTimeout, "upstream request timed out")

	case errors.As(err, &upErr) && upErr.StatusCode > 0:
		middleware.WriteError(w, r, upErr.StatusCode, upstream.ErrorType(err), upstreamMessage(upErr.Message, err))

	case errors.As(err, &upErr):
		middleware.WriteError(w, r, http.StatusBadGateway, upstream.ErrorTypeNetwork, "upstream unreachable")

	default:
		s.logger.ErrorContext(ctx, "forwarding failed", "error", err)
		middleware.WriteError(w, r, http.StatusBadGateway, upstream.ErrorTypeUnknown, "failed to forward request")
	}
}

// handleLimits serves the state of every window. It never consumes a permit.
func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		middleware.WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	body := LimitsResponse{
		Upstream: s.client.Name(),
		Disposed: s.limiter.Disposed(),
		Windows:  s.limiter.Status(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// LimitsResponse is the body served at /limits.
type LimitsResponse struct {
	Upstream string                   `json:"upstream"`
	Disposed bool                     `json:"disposed"`
	Windows  []ratelimit.BucketStatus `json:"windows"`
}

func forwardHeaders(in http.Header) http.Header {
	out := in.Clone()
	for _, f := range out.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			out.Del(strings.TrimSpace(name))
		}
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	out.Del("Content-Length")
	return out
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		dst[key] = append([]string(nil), values...)
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

// copyBody streams the upstream response, flushing after each chunk so
// server-sent events are not held back.
func copyBody(w http.ResponseWriter, body io.Reader) (int64, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return io.Copy(w, body)
	}

	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			flusher.Flush()
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// retryAfterSeconds formats d as whole seconds, rounded up, never below 1.
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func upstreamMessage(body string, err error) string {
	if body = strings.TrimSpace(body); body != "" {
		return body
	}
	return err.Error()
}
