package config

import (
	"time"

	"mercator-hq/quotagate/pkg/limits/ratelimit"
)

// Config is the root configuration structure for quotagate.
// It contains the sidecar server, the upstream API, the rate limit windows
// and telemetry settings.
type Config struct {
	// Proxy contains HTTP server configuration including listen address,
	// timeouts, and the forwarded path prefix.
	Proxy ProxyConfig `yaml:"proxy"`

	// Upstream describes the third-party API every call is gated for.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Limits contains the quota windows enforced by the upstream API.
	Limits LimitsConfig `yaml:"limits"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing and health endpoints.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets controls how ${secret:name} references in upstream.api_key
	// are resolved.
	Secrets SecretsConfig `yaml:"secrets"`
}

// SecretsConfig configures secret resolution.
type SecretsConfig struct {
	// EnvPrefix is prepended to upper-cased secret names to find them in the
	// environment.
	// Default: "QUOTAGATE_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir is a directory holding one file per secret. Checked after the
	// environment when set.
	Dir string `yaml:"dir"`

	// Watch invalidates cached secrets when a file in Dir changes.
	// Default: true
	Watch bool `yaml:"watch"`

	// CacheTTL is how long a resolved secret is reused. Zero disables caching.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// ProxyConfig contains configuration for the HTTP sidecar server.
type ProxyConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It must cover time spent waiting for rate limit capacity.
	// Default: 5m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight requests
	// during graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ForwardPrefix is the path prefix forwarded to the upstream API.
	// Default: "/v1/"
	ForwardPrefix string `yaml:"forward_prefix"`

	// MaxBodyBytes limits the size of forwarded request bodies.
	// Default: 10485760 (10MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// TLS serves the listener over HTTPS when enabled.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures TLS for the listener.
type TLSConfig struct {
	Enabled bool `yaml:"enabled"`

	// CertFile and KeyFile are PEM files. They are re-read when their
	// modification time changes, so renewed certificates apply without a
	// restart.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ClientCAFile, when set, requires callers to present a certificate
	// signed by one of these CAs.
	ClientCAFile string `yaml:"client_ca_file"`

	// ReloadInterval is how often the certificate files are checked.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// UpstreamConfig describes the rate-limited third-party API.
type UpstreamConfig struct {
	// Name labels the upstream in logs and metrics.
	// Default: "upstream"
	Name string `yaml:"name"`

	// BaseURL is the root URL requests are forwarded to.
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a bearer token when set. It may be a
	// ${secret:name} reference, resolved before each attempt.
	APIKey string `yaml:"api_key"`

	// Timeout bounds a single upstream attempt, not the rate limit wait.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries after a failed attempt.
	// Every retry waits for rate limit capacity again.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost is the maximum number of idle connections per host.
	// Default: 10
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout is how long idle connections are kept.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// LimitsConfig contains the quota windows enforced by the upstream API.
type LimitsConfig struct {
	// Windows are checked in order; declare the shortest window first.
	// Default: short 10/1s and long 50/2m
	Windows []WindowConfig `yaml:"windows"`

	// BackpressureLogInterval is the minimum spacing between two
	// "window exhausted" warnings for the same window.
	// Default: 10s
	BackpressureLogInterval time.Duration `yaml:"backpressure_log_interval"`
}

// WindowConfig is a single quota window.
type WindowConfig struct {
	// Name labels the window in logs and metrics.
	Name string `yaml:"name"`

	// Capacity is the number of calls admitted between two refills.
	Capacity int `yaml:"capacity"`

	// Period is the interval between full refills.
	Period time.Duration `yaml:"period"`

	// Schedule is a cron expression for windows that reset at fixed
	// wall-clock times (e.g. "TZ=UTC 0 0 * * *"). Exclusive with Period.
	Schedule string `yaml:"schedule"`
}

// RateLimitWindows converts the configured windows for ratelimit.New.
func (c *LimitsConfig) RateLimitWindows() []ratelimit.Window {
	windows := make([]ratelimit.Window, len(c.Windows))
	for i, w := range c.Windows {
		windows[i] = ratelimit.Window{
			Name:     w.Name,
			Capacity: w.Capacity,
			Period:   w.Period,
			Schedule: w.Schedule,
		}
	}
	return windows
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit. Reloaded without restart.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks API keys, bearer tokens and passwords in logs.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`

	// RedactPatterns contains additional redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "quotagate"
	Namespace string `yaml:"namespace"`

	// WaitBuckets defines histogram buckets for rate limit waits (seconds).
	// Default: [0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120]
	WaitBuckets []float64 `yaml:"wait_buckets"`

	// LatencyBuckets defines histogram buckets for upstream latency (seconds).
	// Default: [0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30]
	LatencyBuckets []float64 `yaml:"latency_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Exporter determines the trace exporter to use.
	// Options: "otlp"
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector endpoint (e.g. "localhost:4317").
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "quotagate"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for the OTLP connection.
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health check endpoints are served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout is the timeout for individual health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
