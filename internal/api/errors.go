package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/stockmeta/internal/api/shared"
	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/service"
	"github.com/phrazzld/stockmeta/internal/service/auth"
	"github.com/phrazzld/stockmeta/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking their types to clients.
func MapErrorToStatusCode(err error) int {
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongScope):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrJobInFlight),
		errors.Is(err, service.ErrJobNotInFlight),
		errors.Is(err, domain.ErrContextLocked),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict

	case errors.Is(err, domain.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType

	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, service.ErrNoImages),
		errors.Is(err, service.ErrInvalidSettings),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrServiceClosed),
		errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var maxBytes *http.MaxBytesError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrWrongScope):
		return "Invalid token"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, service.ErrJobNotFound):
		return "Job not found"
	case errors.Is(err, store.ErrPreviewNotFound):
		return "Preview not found"

	case errors.Is(err, service.ErrJobInFlight):
		return "Job is already being processed"
	case errors.Is(err, service.ErrJobNotInFlight):
		return "Job is not being processed"
	case errors.Is(err, domain.ErrContextLocked):
		return "Context can only be edited on pending or failed jobs"

	case errors.Is(err, domain.ErrUnsupportedMediaType):
		return "Only image files are accepted"
	case errors.As(err, &maxBytes):
		return "Request body too large"

	case errors.Is(err, service.ErrNoImages):
		return "At least one image is required"
	case errors.Is(err, domain.ErrEmptyContent):
		return "Image file is empty"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(err)
	case errors.Is(err, service.ErrInvalidSettings),
		errors.Is(err, domain.ErrValidation):
		return "Validation error"

	case errors.Is(err, service.ErrServiceClosed),
		errors.Is(err, store.ErrUnavailable):
		return "Service temporarily unavailable"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a message naming the
// first offending field.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		fe := validationErrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the mapped status and a safe message for err.
// A non-empty fallback replaces the generic message of a 500.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
