package keyvault

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/systmms/kvemu/internal/lifecycle"
)

// Error kinds. Every *ResponseError unwraps to one of these.
var (
	ErrSecretNotFound        = lifecycle.ErrSecretNotFound
	ErrDeletedSecretNotFound = lifecycle.ErrDeletedSecretNotFound
	ErrInvalidArgument       = lifecycle.ErrInvalidArgument
)

// Key Vault error codes carried by ResponseError.
const (
	CodeSecretNotFound        = "SecretNotFound"
	CodeDeletedSecretNotFound = "DeletedSecretNotFound"
	CodeBadParameter          = "BadParameter"
)

// ResponseError is returned by every failing Client operation.
type ResponseError struct {
	// StatusCode is the HTTP status Key Vault would answer with.
	StatusCode int
	// ErrorCode is the Key Vault error code, e.g. "SecretNotFound".
	ErrorCode string
	// Name is the secret name the operation addressed.
	Name    string
	Message string
	Err     error
}

func (e *ResponseError) Error() string {
	return e.Message
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// IsSecretNotFound reports whether err means the secret is not active.
func IsSecretNotFound(err error) bool {
	return errors.Is(err, ErrSecretNotFound)
}

// IsDeletedSecretNotFound reports whether err means the secret is not in the
// deleted partition.
func IsDeletedSecretNotFound(err error) bool {
	return errors.Is(err, ErrDeletedSecretNotFound)
}

// IsInvalidArgument reports whether err was caused by malformed input.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func secretNotFound(name, version string) *ResponseError {
	msg := fmt.Sprintf("Secret with name '%s' not found.", name)
	if version != "" {
		msg = fmt.Sprintf("Secret with name '%s' and version '%s' not found.", name, version)
	}
	return &ResponseError{
		StatusCode: http.StatusNotFound,
		ErrorCode:  CodeSecretNotFound,
		Name:       name,
		Message:    msg,
		Err:        ErrSecretNotFound,
	}
}

func deletedSecretNotFound(name string) *ResponseError {
	return &ResponseError{
		StatusCode: http.StatusNotFound,
		ErrorCode:  CodeDeletedSecretNotFound,
		Name:       name,
		Message:    fmt.Sprintf("Deleted secret with name '%s' not found.", name),
		Err:        ErrDeletedSecretNotFound,
	}
}

func badParameter(name, msg string) *ResponseError {
	return &ResponseError{
		StatusCode: http.StatusBadRequest,
		ErrorCode:  CodeBadParameter,
		Name:       name,
		Message:    msg,
		Err:        ErrInvalidArgument,
	}
}

// translate maps a store error onto the caller-facing taxonomy. Context errors
// pass through untouched.
func translate(err error, name, version string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, lifecycle.ErrSecretNotFound):
		return secretNotFound(name, version)
	case errors.Is(err, lifecycle.ErrDeletedSecretNotFound):
		return deletedSecretNotFound(name)
	case errors.Is(err, lifecycle.ErrInvalidArgument):
		if version != "" {
			return badParameter(name, fmt.Sprintf("Version '%s' of secret '%s' is not the current version and cannot be updated.", version, name))
		}
		return badParameter(name, fmt.Sprintf("Invalid request for secret '%s'.", name))
	}
	return err
}
