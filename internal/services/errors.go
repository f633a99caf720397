package services

import (
	"errors"
	"strings"
)

// Expected outcomes. Handlers map these to client errors; anything else is
// an internal failure.
var (
	ErrProductNotFound    = errors.New("product not found")
	ErrUserAlreadyExists  = errors.New("username or email already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrProductConflict    = errors.New("product was modified by another user, please refresh and try again")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// ValidationError carries client-correctable input problems.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

func newValidationError(msgs ...string) *ValidationError {
	return &ValidationError{Errors: msgs}
}
