package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/stockmeta/internal/api/shared"
	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/service"
	"github.com/phrazzld/stockmeta/internal/service/auth"
	"github.com/phrazzld/stockmeta/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"nil error", nil, http.StatusInternalServerError},
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"wrapped expired token", fmt.Errorf("validate: %w", auth.ErrExpiredToken), http.StatusUnauthorized},
		{"job not found", service.ErrJobNotFound, http.StatusNotFound},
		{"store job not found", store.ErrJobNotFound, http.StatusNotFound},
		{"preview not found", store.ErrPreviewNotFound, http.StatusNotFound},
		{"job in flight", service.ErrJobInFlight, http.StatusConflict},
		{"job not in flight", service.ErrJobNotInFlight, http.StatusConflict},
		{"context locked", fmt.Errorf("%w: job is completed", domain.ErrContextLocked), http.StatusConflict},
		{"unsupported media type", domain.ErrUnsupportedMediaType, http.StatusUnsupportedMediaType},
		{"body too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{"no images", service.ErrNoImages, http.StatusBadRequest},
		{"invalid settings", fmt.Errorf("%w: bad", service.ErrInvalidSettings), http.StatusBadRequest},
		{"invalid id", domain.ErrInvalidID, http.StatusBadRequest},
		{"empty body", shared.ErrEmptyBody, http.StatusBadRequest},
		{"service closed", service.ErrServiceClosed, http.StatusServiceUnavailable},
		{"store unavailable", fmt.Errorf("redis: %w", store.ErrUnavailable), http.StatusServiceUnavailable},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expectedStatus, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, "An unexpected error occurred"},
		{"job not found", service.ErrJobNotFound, "Job not found"},
		{"preview not found", store.ErrPreviewNotFound, "Preview not found"},
		{"in flight", service.ErrJobInFlight, "Job is already being processed"},
		{"no images", service.ErrNoImages, "At least one image is required"},
		{"store unavailable", store.ErrUnavailable, "Service temporarily unavailable"},
		{
			name:     "internal details are not leaked",
			err:      errors.New("dial tcp 10.0.0.12:5432: connection refused for user=admin password=hunter2"),
			expected: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, GetSafeErrorMessage(tt.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name  string `validate:"required"`
		Count int    `validate:"lte=3"`
	}
	v := validator.New()

	assert.Equal(t, "Invalid Name: required field", SanitizeValidationError(v.Struct(payload{Count: 1})))
	assert.Equal(t, "Invalid Count: too large", SanitizeValidationError(v.Struct(payload{Name: "x", Count: 9})))
	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}

func TestHandleAPIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		err             error
		fallback        string
		expectedStatus  int
		expectedMessage string
	}{
		{
			name:            "mapped error keeps its message",
			err:             service.ErrJobNotFound,
			fallback:        "Failed to get job",
			expectedStatus:  http.StatusNotFound,
			expectedMessage: "Job not found",
		},
		{
			name:            "fallback replaces generic server error",
			err:             errors.New("secret internals"),
			fallback:        "Failed to get job",
			expectedStatus:  http.StatusInternalServerError,
			expectedMessage: "Failed to get job",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
			req = req.WithContext(shared.SetTraceID(req.Context()))
			rec := httptest.NewRecorder()

			HandleAPIError(rec, req, tt.err, tt.fallback)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			var resp shared.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.expectedMessage, resp.Error)
			assert.Equal(t, shared.GetTraceID(req.Context()), resp.TraceID)
			assert.Len(t, resp.TraceID, 2*shared.TraceIDLength)
		})
	}
}
