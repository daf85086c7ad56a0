package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when no snapshot exists for a key.
	ErrNotFound = errors.New("snapshot not found")

	// ErrConflict is returned when a save would replace a snapshot with
	// an older one.
	ErrConflict = errors.New("newer snapshot already stored")
)
