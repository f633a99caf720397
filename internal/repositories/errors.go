package repositories

import "errors"

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("record not found")

	// ErrStaleVersion is returned when a conditional update finds the row
	// but its version no longer matches the one the caller read.
	ErrStaleVersion = errors.New("record version is stale")

	// ErrDuplicateKey is returned when an insert violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key")
)
