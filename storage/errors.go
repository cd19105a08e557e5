package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a run is not found.
	ErrNotFound = errors.New("run not found")

	// ErrExists is returned when creating a run whose ID is taken.
	ErrExists = errors.New("run already exists")
)
