package storage

import "errors"

// Storage errors shared by all stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBusy indicates a write-intent lock could not be acquired within
	// the store's busy timeout. Callers retry with backoff.
	ErrBusy = errors.New("store busy")

	// ErrStillActive is returned when an atomic archive move finds rows
	// for the key that are not yet expired. The move is rolled back and
	// the key stays in the hot table for a later cycle.
	ErrStillActive = errors.New("contract has still-active rows")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
