package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/stockmeta/internal/api/shared"
	"github.com/phrazzld/stockmeta/internal/export"
	"github.com/phrazzld/stockmeta/internal/platform/logger"
)

// BatchHandler handles batch runs, progress, export and settings.
type BatchHandler struct {
	service BatchService
	logger  *slog.Logger
	now     func() time.Time
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(svc BatchService, logger *slog.Logger) *BatchHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for BatchHandler")
	}
	return &BatchHandler{
		service: svc,
		logger:  logger.With(slog.String("component", "batch_handler")),
		now:     time.Now,
	}
}

// RunBatch handles POST /api/batch/run. It answers 202 when a batch was
// started and 200 when the request was a no-op.
func (h *BatchHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	start, err := h.service.DispatchAllEligible(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to start batch")
		return
	}

	status := http.StatusOK
	if start.Started {
		status = http.StatusAccepted
	}
	logger.FromContext(r.Context()).InfoContext(r.Context(), "batch run requested",
		slog.Bool("started", start.Started),
		slog.Int("eligible", start.Eligible))
	shared.RespondWithJSON(w, r, status, start)
}

// GetStatus handles GET /api/batch/status.
func (h *BatchHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.service.Status())
}

// Export handles GET /api/export. It answers 204 when no job has completed.
func (h *BatchHandler) Export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.ExportCompleted(r.Context())
	if errors.Is(err, export.ErrNothingToExport) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to export metadata")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.FileName(h.now())))
	w.WriteHeader(http.StatusOK)
	if err := export.Write(w, doc); err != nil {
		logger.FromContext(r.Context()).WarnContext(r.Context(), "failed to write export", "error", err)
	}
}

// GetSettings handles GET /api/settings.
func (h *BatchHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Settings(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read settings")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, settings)
}

// SaveSettings handles PUT /api/settings.
func (h *BatchHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		if errors.Is(err, shared.ErrEmptyBody) {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	settings, err := h.service.SaveSettings(r.Context(), req.toDomain())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to save settings")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, settings)
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}
