package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix is prepended to secret names to form variable names.
const DefaultEnvPrefix = "QUOTAGATE_SECRET_"

// EnvSource reads secrets from environment variables.
//
// The secret "billing-api-key" is read from QUOTAGATE_SECRET_BILLING_API_KEY
// with the default prefix.
type EnvSource struct {
	Prefix string
}

// NewEnvSource creates an environment source. An empty prefix means
// DefaultEnvPrefix.
func NewEnvSource(prefix string) *EnvSource {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvSource{Prefix: prefix}
}

// Get reads the variable for name. An empty variable counts as missing.
func (s *EnvSource) Get(ctx context.Context, name string) (string, error) {
	key := s.VarName(name)
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%w: %s (env var %s)", ErrNotFound, name, key)
	}
	return value, nil
}

// Name returns "env".
func (s *EnvSource) Name() string {
	return "env"
}

// VarName converts a secret name to its environment variable name.
func (s *EnvSource) VarName(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_", "/", "_")
	return s.Prefix + strings.ToUpper(r.Replace(name))
}
