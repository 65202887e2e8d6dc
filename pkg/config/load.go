package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "QUOTAGATE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected so a
// misspelled window field does not silently fall back to a default.
// An empty document yields the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention QUOTAGATE_SECTION_FIELD (e.g., QUOTAGATE_UPSTREAM_API_KEY).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Malformed numeric, boolean or duration values are ignored, as is done for
// the other sections; only the window list reports a parse error because a
// half-applied quota list would be unsafe.
func applyEnvOverrides(cfg *Config) error {
	// Proxy overrides
	envString("PROXY_LISTEN_ADDRESS", &cfg.Proxy.ListenAddress)
	envDuration("PROXY_READ_TIMEOUT", &cfg.Proxy.ReadTimeout)
	envDuration("PROXY_WRITE_TIMEOUT", &cfg.Proxy.WriteTimeout)
	envDuration("PROXY_IDLE_TIMEOUT", &cfg.Proxy.IdleTimeout)
	envDuration("PROXY_SHUTDOWN_TIMEOUT", &cfg.Proxy.ShutdownTimeout)
	envInt("PROXY_MAX_HEADER_BYTES", &cfg.Proxy.MaxHeaderBytes)
	envString("PROXY_FORWARD_PREFIX", &cfg.Proxy.ForwardPrefix)
	envBool("PROXY_TLS_ENABLED", &cfg.Proxy.TLS.Enabled)
	envString("PROXY_TLS_CERT_FILE", &cfg.Proxy.TLS.CertFile)
	envString("PROXY_TLS_KEY_FILE", &cfg.Proxy.TLS.KeyFile)

	// Upstream overrides
	envString("UPSTREAM_NAME", &cfg.Upstream.Name)
	envString("UPSTREAM_BASE_URL", &cfg.Upstream.BaseURL)
	envString("UPSTREAM_API_KEY", &cfg.Upstream.APIKey)
	envDuration("UPSTREAM_TIMEOUT", &cfg.Upstream.Timeout)
	envInt("UPSTREAM_MAX_RETRIES", &cfg.Upstream.MaxRetries)

	// Limits overrides
	if val := os.Getenv(EnvPrefix + "LIMITS_WINDOWS"); val != "" {
		windows, err := ParseWindows(val)
		if err != nil {
			return fmt.Errorf("invalid %sLIMITS_WINDOWS: %w", EnvPrefix, err)
		}
		cfg.Limits.Windows = windows
	}
	envDuration("LIMITS_BACKPRESSURE_LOG_INTERVAL", &cfg.Limits.BackpressureLogInterval)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_LOGGING_REDACT_SECRETS", &cfg.Telemetry.Logging.RedactSecrets)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envString("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
	envBool("TELEMETRY_HEALTH_ENABLED", &cfg.Telemetry.Health.Enabled)

	// Secrets overrides
	envString("SECRETS_DIR", &cfg.Secrets.Dir)
	envBool("SECRETS_WATCH", &cfg.Secrets.Watch)
	envDuration("SECRETS_CACHE_TTL", &cfg.Secrets.CacheTTL)

	return nil
}

// ParseWindows parses a compact window list such as
// "short=10/1s,long=50/2m,daily=1000@TZ=UTC 0 0 * * *".
// Each entry is name=capacity/period or name=capacity@cron.
func ParseWindows(s string) ([]WindowConfig, error) {
	var windows []WindowConfig
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, spec, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("window %q: expected name=capacity/period", entry)
		}
		w := WindowConfig{Name: strings.TrimSpace(name)}

		var capacity string
		if c, schedule, ok := strings.Cut(spec, "@"); ok {
			capacity = c
			w.Schedule = strings.TrimSpace(schedule)
		} else if c, period, ok := strings.Cut(spec, "/"); ok {
			capacity = c
			d, err := time.ParseDuration(strings.TrimSpace(period))
			if err != nil {
				return nil, fmt.Errorf("window %q: %w", w.Name, err)
			}
			w.Period = d
		} else {
			return nil, fmt.Errorf("window %q: expected capacity/period or capacity@schedule", w.Name)
		}

		n, err := strconv.Atoi(strings.TrimSpace(capacity))
		if err != nil {
			return nil, fmt.Errorf("window %q: invalid capacity: %w", w.Name, err)
		}
		w.Capacity = n

		windows = append(windows, w)
	}
	if len(windows) == 0 {
		return nil, errors.New("no windows given")
	}
	return windows, nil
}

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}
