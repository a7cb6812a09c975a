package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/store"
)

// Common service errors - sentinel errors callers check with errors.Is().
// The API layer maps each to an HTTP status code.
var (
	// ErrJobNotFound indicates the job does not exist (or was removed).
	// API layer should map this to HTTP 404 Not Found.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobInFlight indicates the job already has an outstanding request.
	// API layer should map this to HTTP 409 Conflict.
	ErrJobInFlight = errors.New("job is already in flight")

	// ErrJobNotInFlight indicates there is no outstanding request to cancel.
	// API layer should map this to HTTP 409 Conflict.
	ErrJobNotInFlight = errors.New("job is not in flight")

	// ErrNoImages indicates a submission without any image.
	// API layer should map this to HTTP 400 Bad Request.
	ErrNoImages = errors.New("no images submitted")

	// ErrInvalidSettings indicates settings that failed validation.
	// API layer should map this to HTTP 400 Bad Request.
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrServiceClosed indicates the service is shutting down.
	ErrServiceClosed = errors.New("batch service is closed")
)

// BatchServiceError wraps unexpected errors from the batch service with context.
type BatchServiceError struct {
	// Operation is the operation that failed (e.g., "export", "save_settings")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for BatchServiceError.
func (e *BatchServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("batch service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("batch service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *BatchServiceError) Unwrap() error {
	return e.Err
}

// NewBatchServiceError creates a new BatchServiceError.
// Known sentinel errors are returned directly without wrapping.
func NewBatchServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, store.ErrJobNotFound) || errors.Is(err, ErrJobNotFound) {
		return ErrJobNotFound
	}

	for _, sentinel := range []error{
		ErrJobInFlight,
		ErrJobNotInFlight,
		ErrNoImages,
		ErrInvalidSettings,
		ErrServiceClosed,
		domain.ErrContextLocked,
		domain.ErrValidation,
		domain.ErrEmptyContent,
		domain.ErrUnsupportedMediaType,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	return &BatchServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
