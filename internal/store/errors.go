package store

import "errors"

var (
	// ErrNotFound is returned when the named document does not exist.
	ErrNotFound = errors.New("store: document not found")

	// ErrVersionConflict is returned when a conditional write is rejected
	// because the document changed since the supplied version was read.
	// The caller decides policy; this package never retries.
	ErrVersionConflict = errors.New("store: version conflict")
)
