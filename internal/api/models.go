package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/stockmeta/internal/domain"
)

// JobResponse is the client view of a job.
type JobResponse struct {
	ID            uuid.UUID        `json:"id"`
	Filename      string           `json:"filename"`
	MIMEType      string           `json:"mime_type"`
	Status        domain.JobStatus `json:"status"`
	Context       string           `json:"context"`
	Attempts      int              `json:"attempts"`
	FailureReason string           `json:"failure_reason,omitempty"`
	Result        *domain.Metadata `json:"result,omitempty"`

	// PreviewURL is empty once the preview has been released.
	PreviewURL string `json:"preview_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobListResponse wraps a list of jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// UpdateContextRequest is the payload of PUT /api/jobs/{id}/context.
type UpdateContextRequest struct {
	Context string `json:"context" validate:"max=2000"`
}

// SettingsRequest is the payload of PUT /api/settings.
type SettingsRequest struct {
	NegativeKeywords string `json:"negativeKeywords" validate:"max=4000"`
	ArtistName       string `json:"artistName"       validate:"max=200"`
	Model            string `json:"model"            validate:"max=100"`
	MaxConcurrency   int    `json:"maxConcurrency"   validate:"gte=1,lte=10"`
}

// ResetResponse reports how many jobs DELETE /api/jobs removed.
type ResetResponse struct {
	Removed int `json:"removed"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func jobToResponse(job domain.Job) JobResponse {
	resp := JobResponse{
		ID:        job.ID,
		Filename:  job.Source.Filename,
		MIMEType:  job.Source.MIMEType,
		Status:    job.Status(),
		Context:   job.Context,
		Attempts:  job.Attempts,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if reason, ok := job.FailureReason(); ok {
		resp.FailureReason = reason
	}
	if result, ok := job.Result(); ok {
		resp.Result = &result
	}
	if job.Source.PreviewToken != "" {
		resp.PreviewURL = "/api/previews/" + job.Source.PreviewToken
	}
	return resp
}

func jobsToResponse(jobs []domain.Job) JobListResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobToResponse(job))
	}
	return JobListResponse{Jobs: out}
}

func (r SettingsRequest) toDomain() domain.Settings {
	return domain.Settings{
		NegativeKeywords: r.NegativeKeywords,
		ArtistName:       r.ArtistName,
		Model:            r.Model,
		MaxConcurrency:   r.MaxConcurrency,
	}
}
