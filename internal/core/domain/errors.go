package domain

import "errors"

var (
	// ErrImageRequired is returned when a container spec has no image.
	ErrImageRequired = errors.New("image is required")
	// ErrNotFound marks engine errors for missing containers or images.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks engine errors for name clashes and invalid state transitions.
	ErrConflict = errors.New("conflict")
)
