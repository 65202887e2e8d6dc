package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, cfg Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	cfg.Writer = buf
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return logger, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid JSON config",
			config: Config{Level: "info", Format: "json", RedactSecrets: true},
		},
		{
			name:   "valid text config",
			config: Config{Level: "debug", Format: "text"},
		},
		{
			name:   "console is text",
			config: Config{Level: "warn", Format: "console"},
		},
		{
			name:   "defaults",
			config: Config{},
		},
		{
			name:    "invalid log level",
			config:  Config{Level: "verbose"},
			wantErr: true,
		},
		{
			name:    "invalid format",
			config:  Config{Format: "xml"},
			wantErr: true,
		},
		{
			name: "invalid redact pattern",
			config: Config{
				RedactPatterns: []Pattern{{Name: "broken", Regex: "("}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Writer = &bytes.Buffer{}
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, buf := newTestLogger(t, Config{Level: "warn"})

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0]["msg"] != "warn" || entries[1]["msg"] != "error" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	logger, buf := newTestLogger(t, Config{Level: "info"})
	child := logger.With("component", "test")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug logged at info level: %s", buf.String())
	}

	if err := logger.SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	if logger.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", logger.Level())
	}

	child.Debug("visible")
	logger.Slog().Debug("visible through slog")

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0]["component"] != "test" {
		t.Errorf("derived logger lost its fields: %v", entries[0])
	}

	if err := logger.SetLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogger_ContextFields(t *testing.T) {
	logger, buf := newTestLogger(t, Config{Level: "debug"})

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithUpstream(ctx, "billing-api")
	ctx = WithBucket(ctx, "short")

	logger.InfoContext(ctx, "forwarding", "path", "/v1/invoices")
	logger.WithContext(ctx).Warn("slow")

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, entry := range entries {
		if entry["request_id"] != "req-123" {
			t.Errorf("request_id = %v", entry["request_id"])
		}
		if entry["upstream"] != "billing-api" {
			t.Errorf("upstream = %v", entry["upstream"])
		}
		if entry["bucket"] != "short" {
			t.Errorf("bucket = %v", entry["bucket"])
		}
	}
	if entries[0]["path"] != "/v1/invoices" {
		t.Errorf("path = %v", entries[0]["path"])
	}
}

func TestLogger_WithContextEmpty(t *testing.T) {
	logger, _ := newTestLogger(t, Config{})

	if got := logger.WithContext(context.Background()); got != logger {
		t.Error("WithContext without fields should return the same logger")
	}
}

func TestLogger_TextFormat(t *testing.T) {
	logger, buf := newTestLogger(t, Config{Format: "text"})

	logger.Info("hello", "bucket", "short")

	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "bucket=short") {
		t.Errorf("unexpected text output: %s", out)
	}
}
