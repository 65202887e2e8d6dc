package ratelimit

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLogBackpressure_ThrottlesPerBucket(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := LogBackpressure(logger, time.Hour)
	for i := 0; i < 5; i++ {
		h("short")
	}
	h("long")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"bucket":"short"`) {
		t.Errorf("first line = %s", lines[0])
	}
	if !strings.Contains(lines[1], `"bucket":"long"`) {
		t.Errorf("second line = %s", lines[1])
	}
}
