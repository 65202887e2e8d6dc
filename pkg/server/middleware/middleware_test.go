package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/quotagate/pkg/telemetry/logging"
)

func newTestLogger(t *testing.T, buf *bytes.Buffer) *logging.Logger {
	t.Helper()
	logger, err := logging.New(logging.Config{Level: "debug", Format: "json", Writer: buf})
	if err != nil {
		t.Fatalf("logging.New() error = %v", err)
	}
	return logger
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates request ID when not provided", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		id := w.Header().Get(RequestIDHeader)
		if len(id) != 36 {
			t.Errorf("request ID = %q, want a UUID", id)
		}
		if seen != id {
			t.Errorf("context request ID = %q, header = %q", seen, id)
		}
		if req.Header.Get(RequestIDHeader) != id {
			t.Error("generated ID should be set on the request for forwarding")
		}
	})

	t.Run("uses provided request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, "custom-request-id-12345")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if got := w.Header().Get(RequestIDHeader); got != "custom-request-id-12345" {
			t.Errorf("request ID = %q, want custom-request-id-12345", got)
		}
	})

	t.Run("generates unique IDs for different requests", func(t *testing.T) {
		w1 := httptest.NewRecorder()
		handler.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/test", nil))
		w2 := httptest.NewRecorder()
		handler.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/test", nil))

		if w1.Header().Get(RequestIDHeader) == w2.Header().Get(RequestIDHeader) {
			t.Error("request IDs should be unique")
		}
	})
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(t, &buf)

	t.Run("recovers from panic", func(t *testing.T) {
		handler := RequestID(Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		})))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, "req-panic")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
		}

		var resp ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if resp.Error.Type != "server_error" {
			t.Errorf("error type = %q, want server_error", resp.Error.Type)
		}
		if resp.Error.RequestID != "req-panic" {
			t.Errorf("request_id = %q, want req-panic", resp.Error.RequestID)
		}
		if strings.Contains(resp.Error.Message, "test panic") {
			t.Error("panic value must not reach the client")
		}

		logs := buf.String()
		if !strings.Contains(logs, "panic in handler") || !strings.Contains(logs, `"request_id":"req-panic"`) {
			t.Errorf("panic not logged with request ID: %s", logs)
		}
	})

	t.Run("passes through normal requests", func(t *testing.T) {
		handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("OK"))
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		if w.Code != http.StatusOK || w.Body.String() != "OK" {
			t.Errorf("got %d %q, want 200 OK", w.Code, w.Body.String())
		}
	})
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
	}{
		{"success", "/v1/orders", http.StatusOK, "INFO"},
		{"client error", "/v1/orders", http.StatusTooManyRequests, "WARN"},
		{"server error", "/v1/orders", http.StatusBadGateway, "ERROR"},
		{"quiet path", "/health", http.StatusOK, "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newTestLogger(t, &buf)

			handler := RequestID(Logging(logger, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			})))

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			req.Header.Set(RequestIDHeader, "req-log")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				var m map[string]any
				if err := json.Unmarshal([]byte(line), &m); err != nil {
					t.Fatalf("invalid log line %q: %v", line, err)
				}
				if m["msg"] == "request completed" {
					entry = m
				}
			}
			if entry == nil {
				t.Fatalf("no completion log in %s", buf.String())
			}

			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if entry["status"] != float64(tt.status) {
				t.Errorf("status = %v, want %d", entry["status"], tt.status)
			}
			if entry["request_id"] != "req-log" {
				t.Errorf("request_id = %v, want req-log", entry["request_id"])
			}
			if entry["bytes"] != float64(4) {
				t.Errorf("bytes = %v, want 4", entry["bytes"])
			}
		})
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.Flush()

	if !rec.Flushed {
		t.Error("Flush should reach the underlying writer")
	}
	if rw.statusCode != http.StatusOK || !rw.written {
		t.Error("Flush should commit a 200 status")
	}
}

func TestWriteError_Head(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, httptest.NewRequest(http.MethodHead, "/", nil), http.StatusServiceUnavailable, "x", "y")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("HEAD response has body %q", w.Body.String())
	}
}
