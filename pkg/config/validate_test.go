package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	if err == nil {
		return nil
	}
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	return verr.Errors
}

func hasField(errs []FieldError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(NewTestConfig().Build()); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_Upstream(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"https", "https://api.example.com", false},
		{"http with path", "http://localhost:9000/api", false},
		{"missing", "", true},
		{"no scheme", "api.example.com", true},
		{"ftp", "ftp://files.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewTestConfig().WithBaseURL(tt.baseURL).Build()
			errs := fieldErrors(t, Validate(cfg))
			if got := hasField(errs, "upstream.base_url"); got != tt.wantErr {
				t.Errorf("base_url error = %v, want %v (%v)", got, tt.wantErr, errs)
			}
		})
	}
}

func TestValidate_Windows(t *testing.T) {
	tests := []struct {
		name    string
		windows []WindowConfig
		field   string
	}{
		{
			name:    "zero capacity",
			windows: []WindowConfig{{Name: "short", Capacity: 0, Period: time.Second}},
			field:   "limits.windows[0].capacity",
		},
		{
			name:    "missing period",
			windows: []WindowConfig{{Name: "short", Capacity: 10}},
			field:   "limits.windows[0].period",
		},
		{
			name:    "period and schedule",
			windows: []WindowConfig{{Name: "daily", Capacity: 10, Period: time.Hour, Schedule: "@daily"}},
			field:   "limits.windows[0].schedule",
		},
		{
			name:    "bad schedule",
			windows: []WindowConfig{{Name: "daily", Capacity: 10, Schedule: "whenever"}},
			field:   "limits.windows[0].schedule",
		},
		{
			name: "duplicate names",
			windows: []WindowConfig{
				{Name: "short", Capacity: 10, Period: time.Second},
				{Name: "short", Capacity: 50, Period: time.Minute},
			},
			field: "limits.windows[1].name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewTestConfig().WithWindows(tt.windows...).Build()
			errs := fieldErrors(t, Validate(cfg))
			if !hasField(errs, tt.field) {
				t.Errorf("expected error on %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidate_EmptyWindows(t *testing.T) {
	cfg := NewTestConfig().Build()
	cfg.Limits.Windows = nil

	if !hasField(fieldErrors(t, Validate(cfg)), "limits.windows") {
		t.Error("expected error for empty window list")
	}
}

func TestValidate_Telemetry(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "bad level",
			mutate: func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			field:  "telemetry.logging.level",
		},
		{
			name:   "bad format",
			mutate: func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			field:  "telemetry.logging.format",
		},
		{
			name: "bad redact pattern",
			mutate: func(c *Config) {
				c.Telemetry.Logging.RedactPatterns = []RedactPattern{{Name: "x", Pattern: "("}}
			},
			field: "telemetry.logging.redact_patterns[0].pattern",
		},
		{
			name:   "tracing without endpoint",
			mutate: func(c *Config) { c.Telemetry.Tracing.Enabled = true },
			field:  "telemetry.tracing.endpoint",
		},
		{
			name:   "sample ratio out of range",
			mutate: func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 },
			field:  "telemetry.tracing.sample_ratio",
		},
		{
			name:   "unknown sampler",
			mutate: func(c *Config) { c.Telemetry.Tracing.Sampler = "sometimes" },
			field:  "telemetry.tracing.sampler",
		},
		{
			name:   "relative readiness path",
			mutate: func(c *Config) { c.Telemetry.Health.ReadinessPath = "ready" },
			field:  "telemetry.health.readiness_path",
		},
		{
			name:   "bad forward prefix",
			mutate: func(c *Config) { c.Proxy.ForwardPrefix = "/v1" },
			field:  "proxy.forward_prefix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewTestConfig().Build()
			tt.mutate(cfg)
			if !hasField(fieldErrors(t, Validate(cfg)), tt.field) {
				t.Errorf("expected error on %s", tt.field)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := NewTestConfig().WithListenAddress("").WithBaseURL("").WithLoggingLevel("loud").Build()

	errs := fieldErrors(t, Validate(cfg))
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(errs), errs)
	}
}

func TestValidate_TLS(t *testing.T) {
	cfg := NewTestConfig().Build()
	cfg.Proxy.TLS.Enabled = true
	cfg.Proxy.TLS.MinVersion = "1.1"

	errs := fieldErrors(t, Validate(cfg))
	for _, field := range []string{"proxy.tls.cert_file", "proxy.tls.key_file", "proxy.tls.min_version"} {
		if !hasField(errs, field) {
			t.Errorf("missing error for %s: %v", field, errs)
		}
	}
}

func TestValidate_Secrets(t *testing.T) {
	cfg := NewTestConfig().Build()
	cfg.Secrets.CacheTTL = -time.Second
	cfg.Secrets.EnvPrefix = ""

	errs := fieldErrors(t, Validate(cfg))
	if !hasField(errs, "secrets.cache_ttl") || !hasField(errs, "secrets.env_prefix") {
		t.Errorf("errors = %v", errs)
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got := single.Error(); got != "configuration validation failed: a: bad" {
		t.Errorf("single = %q", got)
	}

	multi := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}}
	got := multi.Error()
	if !strings.Contains(got, "2 errors") || !strings.Contains(got, "  - b: worse") {
		t.Errorf("multi = %q", got)
	}
}
