package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/quotagate/pkg/limits/ratelimit"
	"mercator-hq/quotagate/pkg/server"
)

func TestLimitsCommand(t *testing.T) {
	sidecar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != server.LimitsPath {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(server.LimitsResponse{
			Upstream: "billing-api",
			Windows: []ratelimit.BucketStatus{
				{Name: "short", Window: "10 per 1s", Capacity: 10, Available: 3, Waiting: 0},
				{Name: "long", Window: "50 per 2m0s", Capacity: 50, Available: 0, Waiting: 4},
			},
		})
	}))
	defer sidecar.Close()

	out, err := execute(t, "limits", "--addr", sidecar.URL, "--format", "text")
	if err != nil {
		t.Fatalf("limits error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	if fields := strings.Fields(lines[2]); fields[0] != "long" || fields[len(fields)-1] != "4" {
		t.Errorf("long row = %q", lines[2])
	}
}

func TestFetchLimits_Errors(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	if _, err := fetchLimits(context.Background(), down.URL); err == nil {
		t.Error("expected error for non-200 status")
	}

	addr := strings.TrimPrefix(down.URL, "http://")
	down.Close()
	if _, err := fetchLimits(context.Background(), addr); err == nil {
		t.Error("expected error for unreachable sidecar")
	}
}

func TestLimitsTable_Closed(t *testing.T) {
	table := limitsTable{Windows: []ratelimit.BucketStatus{{Name: "short", Capacity: 10, Disposed: true}}}

	if got := table.Rows()[0][2]; got != "closed" {
		t.Errorf("available column = %q, want closed", got)
	}
}
