package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/kvemu/pkg/keyvault"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// StepError reports a scenario step whose outcome did not match its expectation
type StepError struct {
	File      string
	Step      int
	Operation string
	Message   string
}

func (e StepError) Error() string {
	msg := fmt.Sprintf("step %d (%s)", e.Step, e.Operation)
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	return msg + ": " + e.Message
}

// VaultError wraps an emulator failure with a suggestion matching its kind
func VaultError(operation, name string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s %q failed", operation, name),
		Details:    err.Error(),
		Suggestion: vaultSuggestion(err),
		Err:        err,
	}
}

func vaultSuggestion(err error) string {
	switch {
	case keyvault.IsSecretNotFound(err):
		return "Secret names are case-sensitive. A deleted secret must be recovered before it can be read"
	case keyvault.IsDeletedSecretNotFound(err):
		return "Only soft-deleted secrets can be recovered or purged. Purged secrets are gone for good"
	case keyvault.IsInvalidArgument(err):
		return "Secret names must not be blank"
	}
	return ""
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	var userErr UserError
	var configErr ConfigError
	var stepErr StepError
	if errors.As(err, &userErr) || errors.As(err, &configErr) || errors.As(err, &stepErr) {
		return err
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "address already in use") {
		return UserError{
			Message:    "Listen address is already in use",
			Details:    err.Error(),
			Suggestion: "Pick another address with --listen or listen_addr in kvemu.yaml",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
