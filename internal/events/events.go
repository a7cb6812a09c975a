package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/stockmeta/internal/domain"
)

// Event types
const (
	TypeJobCreated    = "job.created"
	TypeJobUpdated    = "job.updated"
	TypeJobRemoved    = "job.removed"
	TypeJobsReset     = "jobs.reset"
	TypeBatchStarted  = "batch.started"
	TypeBatchFinished = "batch.finished"
)

// Event is a notification about a change in the job pipeline.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// Payload contains the type-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified type and payload.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// JobPayload is the payload of job.* events.
type JobPayload struct {
	JobID         uuid.UUID        `json:"job_id"`
	Filename      string           `json:"filename"`
	Status        domain.JobStatus `json:"status"`
	Attempts      int              `json:"attempts"`
	FailureReason string           `json:"failure_reason,omitempty"`
	Result        *domain.Metadata `json:"result,omitempty"`
}

// NewJobPayload builds the payload describing the given job.
func NewJobPayload(job domain.Job) JobPayload {
	p := JobPayload{
		JobID:    job.ID,
		Filename: job.Source.Filename,
		Status:   job.Status(),
		Attempts: job.Attempts,
	}
	if reason, ok := job.FailureReason(); ok {
		p.FailureReason = reason
	}
	if result, ok := job.Result(); ok {
		p.Result = &result
	}
	return p
}

// BatchPayload is the payload of batch.* events.
type BatchPayload struct {
	Total      int   `json:"total"`
	Limit      int   `json:"limit"`
	Completed  int   `json:"completed,omitempty"`
	Failed     int   `json:"failed,omitempty"`
	Skipped    int   `json:"skipped,omitempty"`
	DurationMS int64 `json:"duration_ms,omitempty"`
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts an ordinary function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *Event) error
}

// Emit builds an event and publishes it, logging nothing and ignoring a nil
// emitter. It returns the first error encountered.
func Emit(ctx context.Context, emitter EventEmitter, eventType string, payload interface{}) error {
	if emitter == nil {
		return nil
	}
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	return emitter.EmitEvent(ctx, event)
}
