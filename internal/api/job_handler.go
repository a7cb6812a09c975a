package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/stockmeta/internal/api/shared"
	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/platform/logger"
	"github.com/phrazzld/stockmeta/internal/service"
	"github.com/phrazzld/stockmeta/internal/store"
)

// Multipart form fields of POST /api/jobs.
const (
	FormFieldImages  = "images"
	FormFieldContext = "context"
)

// multipartMemory is how much of an upload is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// BatchService is the set of batch operations exposed over HTTP.
type BatchService interface {
	SubmitImages(ctx context.Context, uploads []service.ImageUpload, contextHint string) ([]domain.Job, error)
	Jobs() []domain.Job
	Job(id uuid.UUID) (domain.Job, error)
	RemoveJob(ctx context.Context, id uuid.UUID) error
	UpdateContext(ctx context.Context, id uuid.UUID, text string) (domain.Job, error)
	DispatchSingle(ctx context.Context, id uuid.UUID) error
	CancelJob(ctx context.Context, id uuid.UUID) error
	ResetAll(ctx context.Context) int
	DispatchAllEligible(ctx context.Context) (service.BatchStart, error)
	Status() service.BatchStatus
	ExportCompleted(ctx context.Context) (string, error)
	Settings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error)
}

// PreviewSource resolves preview tokens.
type PreviewSource interface {
	Open(token string) (store.Preview, error)
}

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	service        BatchService
	previews       PreviewSource
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewJobHandler creates a new JobHandler. maxUploadBytes bounds the whole
// multipart body of a submission.
func NewJobHandler(
	svc BatchService,
	previews PreviewSource,
	maxUploadBytes int64,
	logger *slog.Logger,
) *JobHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for JobHandler")
	}
	return &JobHandler{
		service:        svc,
		previews:       previews,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "job_handler")),
	}
}

// SubmitImages handles POST /api/jobs. Every file in the "images" field
// becomes one pending job, in upload order.
func (h *JobHandler) SubmitImages(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.WarnContext(r.Context(), "failed to remove multipart temp files", "error", err)
		}
	}()

	files := r.MultipartForm.File[FormFieldImages]
	uploads := make([]service.ImageUpload, 0, len(files))
	for _, fh := range files {
		upload, err := readUpload(fh)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Failed to read uploaded file", err)
			return
		}
		uploads = append(uploads, upload)
	}

	jobs, err := h.service.SubmitImages(r.Context(), uploads, r.FormValue(FormFieldContext))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit images")
		return
	}

	log.DebugContext(r.Context(), "images submitted", slog.Int("count", len(jobs)))
	shared.RespondWithJSON(w, r, http.StatusCreated, jobsToResponse(jobs))
}

func readUpload(fh *multipart.FileHeader) (service.ImageUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return service.ImageUpload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return service.ImageUpload{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	return service.ImageUpload{
		Filename: fh.Filename,
		MIMEType: mimeType,
		Data:     data,
	}, nil
}

// ListJobs handles GET /api/jobs.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, jobsToResponse(h.service.Jobs()))
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.service.Job(id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// RemoveJob handles DELETE /api/jobs/{id}.
func (h *JobHandler) RemoveJob(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.RemoveJob(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "Failed to remove job")
		return
	}

	logger.FromContext(r.Context()).DebugContext(r.Context(), "job removed", slog.String("job_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// ResetJobs handles DELETE /api/jobs.
func (h *JobHandler) ResetJobs(w http.ResponseWriter, r *http.Request) {
	removed := h.service.ResetAll(r.Context())
	shared.RespondWithJSON(w, r, http.StatusOK, ResetResponse{Removed: removed})
}

// UpdateContext handles PUT /api/jobs/{id}/context.
func (h *JobHandler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateContextRequest
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

	job, err := h.service.UpdateContext(r.Context(), id, strings.TrimSpace(req.Context))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update context")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// DispatchJob handles POST /api/jobs/{id}/dispatch. The job runs in the
// background; the response carries its state at the time of the request.
func (h *JobHandler) DispatchJob(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DispatchSingle(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "Failed to dispatch job")
		return
	}

	job, err := h.service.Job(id)
	if err != nil {
		// Removed while dispatching.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// CancelJob handles POST /api/jobs/{id}/cancel.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.CancelJob(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "Failed to cancel job")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetPreview handles GET /api/previews/{token}.
func (h *JobHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	preview, err := h.previews.Open(token)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to open preview")
		return
	}

	w.Header().Set("Content-Type", preview.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(preview.Data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(preview.Data); err != nil {
		logger.FromContext(r.Context()).WarnContext(r.Context(), "failed to write preview", "error", err)
	}
}
