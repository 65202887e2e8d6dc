package logging

import (
	"context"
	"testing"
)

func TestContextAccessors(t *testing.T) {
	tests := []struct {
		name string
		set  func(context.Context, string) context.Context
		get  func(context.Context) string
	}{
		{"request id", WithRequestID, GetRequestID},
		{"upstream", WithUpstream, GetUpstream},
		{"bucket", WithBucket, GetBucket},
		{"trace id", WithTraceID, GetTraceID},
		{"span id", WithSpanID, GetSpanID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.get(context.Background()); got != "" {
				t.Errorf("empty context returned %q", got)
			}
			ctx := tt.set(context.Background(), "value")
			if got := tt.get(ctx); got != "value" {
				t.Errorf("got %q, want value", got)
			}
		})
	}
}

func TestExtractContextFields_Order(t *testing.T) {
	ctx := WithSpanID(context.Background(), "span")
	ctx = WithRequestID(ctx, "req")

	fields := extractContextFields(ctx)
	want := []any{"request_id", "req", "span_id", "span"}
	if len(fields) != len(want) {
		t.Fatalf("fields = %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("fields[%d] = %v, want %v", i, fields[i], want[i])
		}
	}
}
