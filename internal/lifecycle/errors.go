package lifecycle

import "errors"

// Sentinel errors returned by the registry. Callers match them with errors.Is.
var (
	ErrSecretNotFound        = errors.New("secret not found")
	ErrDeletedSecretNotFound = errors.New("deleted secret not found")
	ErrInvalidArgument       = errors.New("invalid argument")
)
