package cli

import (
	"errors"
	"fmt"
)

// Exit codes returned by the quotagate command.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

// ConfigError marks a failure caused by the configuration file, as opposed
// to the runtime environment. It maps to ExitConfig.
type ConfigError struct {
	Path string
	Err  error
}

// NewConfigError wraps a failure to load or validate the file at path.
func NewConfigError(path string, err error) *ConfigError {
	return &ConfigError{Path: path, Err: err}
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "invalid configuration: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CommandError names the step of a subcommand that failed.
type CommandError struct {
	Step string
	Err  error
}

// NewCommandError wraps err with the step that produced it.
func NewCommandError(step string, err error) *CommandError {
	return &CommandError{Step: step, Err: err}
}

func (e *CommandError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	var cfgErr *ConfigError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &cfgErr):
		return ExitConfig
	default:
		return ExitFailure
	}
}
