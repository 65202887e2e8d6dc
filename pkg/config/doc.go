// Package config provides configuration management for quotagate.
//
// This package handles loading, validating, and watching configuration from
// YAML files with environment variable overrides. There is no global
// instance: the loaded *Config is passed explicitly to the components that
// need it.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("quotagate.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("quotagate.yaml")
//
// # Example
//
//	upstream:
//	  name: billing-api
//	  base_url: https://api.example.com
//	  api_key: sk-live-...
//
//	limits:
//	  windows:
//	    - name: short
//	      capacity: 10
//	      period: 1s
//	    - name: long
//	      capacity: 50
//	      period: 2m
//	    - name: daily
//	      capacity: 1000
//	      schedule: "TZ=UTC 0 0 * * *"
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention QUOTAGATE_SECTION_FIELD.
// For example:
//
//   - QUOTAGATE_PROXY_LISTEN_ADDRESS overrides proxy.listen_address
//   - QUOTAGATE_UPSTREAM_API_KEY overrides upstream.api_key
//   - QUOTAGATE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//   - QUOTAGATE_LIMITS_WINDOWS replaces limits.windows, e.g. "short=10/1s,long=50/2m"
//   - QUOTAGATE_SECRETS_DIR overrides secrets.dir
//
// # Secret References
//
// upstream.api_key may hold a reference of the form ${secret:name} instead
// of a literal key. The reference is resolved at startup and again whenever
// the cached value expires, first from QUOTAGATE_SECRET_<NAME> and then from
// a file named <name> in secrets.dir.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Reloading
//
// Watcher reloads the file when it changes. Only the log level is applied
// to a running process; Diff reports every other changed section as
// requiring a restart, including the rate limit windows.
package config
