package shared

import "errors"

var (
	// ErrNotInitialised is returned by stores built without a database.
	ErrNotInitialised = errors.New("shared: store not initialised")
	// ErrIdempotencyConflict indicates a duplicate key.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
)
