package service

import (
	"errors"

	"pawsit/agent/internal/identity/repository"
)

// validationError describes bad caller input (email or password format).
type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }

func invalid(msg string) error { return validationError{msg: msg} }

// IsValidationError reports whether err describes bad caller input rather than a
// failure of the service or its stores.
func IsValidationError(err error) bool {
	var v validationError
	return errors.As(err, &v)
}

func isDuplicate(err error) bool {
	return errors.Is(err, repository.ErrDuplicateEmail)
}
