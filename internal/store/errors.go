package store

import "errors"

// Sentinel errors shared by store implementations. Backend-specific
// failures are mapped onto these so callers never branch on driver
// error types.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate means a uniqueness constraint was violated.
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidEntity means the record violated a store constraint.
	ErrInvalidEntity = errors.New("invalid entity")
)
