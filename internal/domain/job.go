package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the externally visible name of a job state.
type JobStatus string

// Possible job status values
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusInFlight  JobStatus = "in-flight"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
)

// JobState is the state of a job. It is a closed set of variants:
// Pending, InFlight, Completed and Failed. Each variant carries exactly the
// fields that are valid in that state.
type JobState interface {
	Status() JobStatus
	isJobState()
}

// Pending is the state of a freshly submitted job.
type Pending struct{}

// InFlight is the state of a job whose generator call is outstanding.
type InFlight struct {
	StartedAt time.Time
}

// Completed is the state of a job that holds a generated result.
type Completed struct {
	Result      Metadata
	CompletedAt time.Time
}

// Failed is the state of a job whose last run failed.
type Failed struct {
	Reason   string
	FailedAt time.Time
}

func (Pending) Status() JobStatus   { return JobStatusPending }
func (InFlight) Status() JobStatus  { return JobStatusInFlight }
func (Completed) Status() JobStatus { return JobStatusCompleted }
func (Failed) Status() JobStatus    { return JobStatusError }

func (Pending) isJobState()   {}
func (InFlight) isJobState()  {}
func (Completed) isJobState() {}
func (Failed) isJobState()    {}

// Job is one unit of work: a single submitted image and the metadata
// generated for it. Jobs are values; the job store replaces them whole.
type Job struct {
	ID        uuid.UUID
	Source    SourceRef
	Context   string
	State     JobState
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob creates a pending job for the given image.
// Returns an error if the image fails validation.
func NewJob(source SourceRef, context string) (Job, error) {
	if err := source.Validate(); err != nil {
		return Job{}, err
	}

	now := time.Now().UTC()
	return Job{
		ID:        uuid.New(),
		Source:    source,
		Context:   context,
		State:     Pending{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Status returns the status of the job's current state.
func (j Job) Status() JobStatus {
	if j.State == nil {
		return JobStatusPending
	}
	return j.State.Status()
}

// Result returns the generated metadata when the job is completed.
func (j Job) Result() (Metadata, bool) {
	c, ok := j.State.(Completed)
	if !ok {
		return Metadata{}, false
	}
	return c.Result, true
}

// FailureReason returns the failure message when the job is in error.
func (j Job) FailureReason() (string, bool) {
	f, ok := j.State.(Failed)
	if !ok {
		return "", false
	}
	return f.Reason, true
}

// IsEligible reports whether a full-batch run should pick up this job.
func (j Job) IsEligible() bool {
	switch j.State.(type) {
	case Pending, Failed, nil:
		return true
	default:
		return false
	}
}

// Transition computes the next value of a job. It must not mutate its input.
type Transition func(Job) (Job, error)

// Dispatch moves a pending, failed or completed job to in-flight. Any
// previous result or failure reason is dropped with the old state. Only a
// user-requested regenerate may dispatch a completed job; batch runs use
// DispatchEligible.
func Dispatch(at time.Time) Transition {
	return func(j Job) (Job, error) {
		switch j.State.(type) {
		case Pending, Failed, Completed, nil:
		default:
			return j, fmt.Errorf("%w: cannot dispatch %s job", ErrInvalidTransition, j.Status())
		}
		return startRun(j, at), nil
	}
}

// DispatchEligible moves a pending or failed job to in-flight. It rejects
// completed jobs, so a batch never overwrites a result.
func DispatchEligible(at time.Time) Transition {
	return func(j Job) (Job, error) {
		if !j.IsEligible() {
			return j, fmt.Errorf("%w: cannot dispatch %s job in a batch", ErrInvalidTransition, j.Status())
		}
		return startRun(j, at), nil
	}
}

func startRun(j Job, at time.Time) Job {
	j.State = InFlight{StartedAt: at}
	j.Attempts++
	j.UpdatedAt = at
	return j
}

// Complete stores a generated result on an in-flight job.
func Complete(result Metadata, at time.Time) Transition {
	return func(j Job) (Job, error) {
		if _, ok := j.State.(InFlight); !ok {
			return j, fmt.Errorf("%w: cannot complete %s job", ErrInvalidTransition, j.Status())
		}

		j.State = Completed{Result: result.Clone(), CompletedAt: at}
		j.UpdatedAt = at
		return j, nil
	}
}

// Fail records a failure on an in-flight job.
func Fail(reason string, at time.Time) Transition {
	return func(j Job) (Job, error) {
		if _, ok := j.State.(InFlight); !ok {
			return j, fmt.Errorf("%w: cannot fail %s job", ErrInvalidTransition, j.Status())
		}

		j.State = Failed{Reason: reason, FailedAt: at}
		j.UpdatedAt = at
		return j, nil
	}
}

// SetContext replaces the user context hint. Only pending and failed jobs
// accept edits; a dispatched request has already captured the old value.
func SetContext(text string, at time.Time) Transition {
	return func(j Job) (Job, error) {
		switch j.State.(type) {
		case Pending, Failed, nil:
		default:
			return j, fmt.Errorf("%w: job is %s", ErrContextLocked, j.Status())
		}

		j.Context = text
		j.UpdatedAt = at
		return j, nil
	}
}
