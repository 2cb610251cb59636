package cli

import (
	"errors"
	"fmt"

	"mercator-hq/backlog/pkg/config"
)

// Exit statuses.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Path    string
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
	case e.Path != "":
		return fmt.Sprintf("config error in %s: %s", e.Path, e.Message)
	default:
		return fmt.Sprintf("config error: %s", e.Message)
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps a configuration load or validation failure. A
// validation error with a single field is reported against that field.
func NewConfigError(path string, err error) *ConfigError {
	ce := &ConfigError{Path: path, Message: err.Error(), Err: err}

	var verr config.ValidationError
	if errors.As(err, &verr) && len(verr.Errors) == 1 {
		ce.Field = verr.Errors[0].Field
		ce.Message = verr.Errors[0].Message
	}
	return ce
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps an error returned by a command to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ExitConfig
	}
	return ExitFailure
}
