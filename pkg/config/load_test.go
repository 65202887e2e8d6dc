package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quotagate.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
proxy:
  listen_address: "0.0.0.0:8080"
  read_timeout: "60s"

upstream:
  name: billing-api
  base_url: "https://api.example.com"
  api_key: "sk-test-key-123"
  max_retries: 5

limits:
  windows:
    - name: short
      capacity: 20
      period: 1s
    - name: daily
      capacity: 1000
      schedule: "TZ=UTC 0 0 * * *"
  backpressure_log_interval: 30s

telemetry:
  logging:
    level: debug
    format: text
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Proxy.ListenAddress != "0.0.0.0:8080" {
		t.Errorf("ListenAddress = %q", cfg.Proxy.ListenAddress)
	}
	if cfg.Proxy.ReadTimeout != 60*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.Proxy.ReadTimeout)
	}
	if cfg.Upstream.Name != "billing-api" || cfg.Upstream.MaxRetries != 5 {
		t.Errorf("Upstream = %+v", cfg.Upstream)
	}
	if len(cfg.Limits.Windows) != 2 {
		t.Fatalf("windows = %+v", cfg.Limits.Windows)
	}
	if cfg.Limits.Windows[1].Schedule != "TZ=UTC 0 0 * * *" {
		t.Errorf("schedule = %q", cfg.Limits.Windows[1].Schedule)
	}
	if cfg.Limits.BackpressureLogInterval != 30*time.Second {
		t.Errorf("BackpressureLogInterval = %v", cfg.Limits.BackpressureLogInterval)
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Telemetry.Logging)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics.enabled: false was not honoured")
	}
	if !cfg.Telemetry.Health.Enabled {
		t.Error("health should stay enabled when not mentioned")
	}

	// Defaults fill the rest.
	if cfg.Proxy.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("WriteTimeout = %v", cfg.Proxy.WriteTimeout)
	}

	windows := cfg.Limits.RateLimitWindows()
	if windows[0].Name != "short" || windows[0].Capacity != 20 || windows[0].Period != time.Second {
		t.Errorf("RateLimitWindows()[0] = %+v", windows[0])
	}
}

func TestLoadConfig_DefaultWindows(t *testing.T) {
	path := writeConfig(t, `
upstream:
  base_url: "https://api.example.com"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(cfg.Limits.Windows) != 2 || cfg.Limits.Windows[0].Name != "short" {
		t.Errorf("windows = %+v", cfg.Limits.Windows)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error does not wrap os.ErrNotExist: %v", err)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "upstream: [unclosed")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfig_UnknownField(t *testing.T) {
	path := writeConfig(t, `
upstream:
  base_url: "https://api.example.com"
limits:
  windows:
    - name: short
      capacity: 10
      perod: 1s
`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for misspelled field")
	}
	if !strings.Contains(err.Error(), "perod") {
		t.Errorf("error does not name the field: %v", err)
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
upstream:
  base_url: "not a url"
limits:
  windows:
    - name: short
      capacity: 0
      period: 1s
`)

	_, err := LoadConfig(path)

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 2 {
		t.Errorf("got %d field errors, want 2: %v", len(verr.Errors), verr)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
upstream:
  base_url: "https://api.example.com"
telemetry:
  logging:
    level: info
`)

	t.Setenv("QUOTAGATE_PROXY_LISTEN_ADDRESS", "0.0.0.0:9999")
	t.Setenv("QUOTAGATE_UPSTREAM_API_KEY", "sk-from-env")
	t.Setenv("QUOTAGATE_UPSTREAM_TIMEOUT", "15s")
	t.Setenv("QUOTAGATE_UPSTREAM_MAX_RETRIES", "not-a-number")
	t.Setenv("QUOTAGATE_TELEMETRY_LOGGING_LEVEL", "warn")
	t.Setenv("QUOTAGATE_TELEMETRY_METRICS_ENABLED", "false")
	t.Setenv("QUOTAGATE_LIMITS_WINDOWS", "burst=5/500ms, hourly=100/1h")
	t.Setenv("QUOTAGATE_SECRETS_DIR", "/run/secrets")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if cfg.Proxy.ListenAddress != "0.0.0.0:9999" {
		t.Errorf("ListenAddress = %q", cfg.Proxy.ListenAddress)
	}
	if cfg.Upstream.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q", cfg.Upstream.APIKey)
	}
	if cfg.Upstream.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v", cfg.Upstream.Timeout)
	}
	if cfg.Upstream.MaxRetries != DefaultUpstreamMaxRetries {
		t.Errorf("invalid env value should be ignored, MaxRetries = %d", cfg.Upstream.MaxRetries)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("Level = %q", cfg.Telemetry.Logging.Level)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics should be disabled by env")
	}
	if cfg.Secrets.Dir != "/run/secrets" {
		t.Errorf("Secrets.Dir = %q", cfg.Secrets.Dir)
	}

	want := []WindowConfig{
		{Name: "burst", Capacity: 5, Period: 500 * time.Millisecond},
		{Name: "hourly", Capacity: 100, Period: time.Hour},
	}
	if len(cfg.Limits.Windows) != len(want) {
		t.Fatalf("windows = %+v", cfg.Limits.Windows)
	}
	for i := range want {
		if cfg.Limits.Windows[i] != want[i] {
			t.Errorf("windows[%d] = %+v, want %+v", i, cfg.Limits.Windows[i], want[i])
		}
	}
}

func TestLoadConfigWithEnvOverrides_InvalidWindows(t *testing.T) {
	path := writeConfig(t, `
upstream:
  base_url: "https://api.example.com"
`)
	t.Setenv("QUOTAGATE_LIMITS_WINDOWS", "short=ten/1s")

	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Fatal("expected error for malformed window list")
	}
}

func TestParseWindows(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []WindowConfig
		wantErr bool
	}{
		{
			name:  "period windows",
			input: "short=10/1s,long=50/2m",
			want: []WindowConfig{
				{Name: "short", Capacity: 10, Period: time.Second},
				{Name: "long", Capacity: 50, Period: 2 * time.Minute},
			},
		},
		{
			name:  "schedule window",
			input: "daily=1000@TZ=UTC 0 0 * * *",
			want:  []WindowConfig{{Name: "daily", Capacity: 1000, Schedule: "TZ=UTC 0 0 * * *"}},
		},
		{name: "missing name", input: "10/1s", wantErr: true},
		{name: "missing period", input: "short=10", wantErr: true},
		{name: "bad duration", input: "short=10/soon", wantErr: true},
		{name: "empty", input: " , ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindows(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWindows() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLoadConfig_ZeroRetriesKept(t *testing.T) {
	path := writeConfig(t, `
upstream:
  base_url: "https://api.example.com"
  max_retries: 0
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Upstream.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", cfg.Upstream.MaxRetries)
	}
}

func TestLoadConfig_Example(t *testing.T) {
	cfg, err := LoadConfig("../../examples/quotagate.yaml")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(cfg.Limits.Windows) != 3 {
		t.Errorf("windows = %+v", cfg.Limits.Windows)
	}
	if cfg.Upstream.APIKey != "${secret:billing-api-key}" {
		t.Errorf("APIKey = %q, reference should be kept unresolved", cfg.Upstream.APIKey)
	}
}
