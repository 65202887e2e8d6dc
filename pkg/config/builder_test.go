package config

import "time"

// ConfigBuilder builds configurations for tests.
type ConfigBuilder struct {
	cfg *Config
}

// NewTestConfig returns a builder seeded with a valid configuration.
func NewTestConfig() *ConfigBuilder {
	cfg := Default()
	cfg.Upstream.BaseURL = "https://api.example.com"
	cfg.Upstream.APIKey = "sk-test-key"
	return &ConfigBuilder{cfg: cfg}
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Proxy.ListenAddress = addr
	return b
}

func (b *ConfigBuilder) WithBaseURL(url string) *ConfigBuilder {
	b.cfg.Upstream.BaseURL = url
	return b
}

func (b *ConfigBuilder) WithWindow(name string, capacity int, period time.Duration) *ConfigBuilder {
	b.cfg.Limits.Windows = append(b.cfg.Limits.Windows, WindowConfig{
		Name:     name,
		Capacity: capacity,
		Period:   period,
	})
	return b
}

func (b *ConfigBuilder) WithWindows(windows ...WindowConfig) *ConfigBuilder {
	b.cfg.Limits.Windows = windows
	return b
}

func (b *ConfigBuilder) WithLoggingLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

func (b *ConfigBuilder) WithTracingEnabled(enabled bool, endpoint string) *ConfigBuilder {
	b.cfg.Telemetry.Tracing.Enabled = enabled
	b.cfg.Telemetry.Tracing.Endpoint = endpoint
	return b
}
