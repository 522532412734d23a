package adapter

import (
	"errors"
)

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrPreconditionFailed is returned when an ETag mismatch occurs.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrInvalidInput is returned when a note or folder fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a resource with the same ID already exists.
	ErrConflict = errors.New("resource already exists")
)
