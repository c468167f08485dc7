package fixstore

import "errors"

// Sentinel errors for fix store operations.
var (
	// ErrDuplicateKey is returned when inserting a record whose id already exists.
	ErrDuplicateKey = errors.New("duplicate fix id")

	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("fix not found")

	// ErrDimensionMismatch is returned when an embedding does not have the
	// store's fixed dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrValidation indicates malformed input rejected before storage is touched.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("fix store is closed")
)
