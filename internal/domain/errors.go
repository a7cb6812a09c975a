package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrUnsupportedMediaType is returned when a submitted file is not an image.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrInvalidTransition is returned when a job cannot move from its
	// current state to the requested one.
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrContextLocked is returned when the context hint of a job is edited
	// while the job is in-flight or completed.
	ErrContextLocked = errors.New("job context cannot be edited in its current state")
)
