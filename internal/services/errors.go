package services

import (
	"errors"

	"github.com/recipesnap/apiserver/internal/store"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = store.ErrNotFound
	// ErrConflict is returned when a username or email is already taken.
	ErrConflict = store.ErrConflict
	// ErrUnauthenticated covers bad credentials and invalid or expired tokens.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
