package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/events"
)

// JobCounts summarises the job store for progress displays.
type JobCounts struct {
	Pending   int `json:"pending"`
	InFlight  int `json:"in_flight"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// JobRecordStore is the authoritative, in-memory record of every job in the
// current batch. Jobs are kept in submission order.
//
// Events are emitted in the order the mutations were applied, so an
// observer never sees job.updated after job.removed for the same job.
// Handlers must not mutate the store.
type JobRecordStore struct {
	// writeMu serializes mutations together with their events. It is
	// always taken before mu; reads take only mu.
	writeMu  sync.Mutex
	mu       sync.RWMutex
	jobs     map[uuid.UUID]domain.Job
	order    []uuid.UUID
	previews *PreviewRegistry
	emitter  events.EventEmitter
	logger   *slog.Logger
}

// NewJobRecordStore creates an empty job store. previews may be nil when the
// caller does not serve previews; emitter may be nil when nobody observes
// the store.
func NewJobRecordStore(
	previews *PreviewRegistry,
	emitter events.EventEmitter,
	logger *slog.Logger,
) *JobRecordStore {
	return &JobRecordStore{
		jobs:     make(map[uuid.UUID]domain.Job),
		previews: previews,
		emitter:  emitter,
		logger:   logger.With("component", "job_store"),
	}
}

// Add inserts new jobs at the end of the batch. Either all jobs are added
// or, if any id is already present, none are.
func (s *JobRecordStore) Add(ctx context.Context, jobs ...domain.Job) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	for _, job := range jobs {
		if _, exists := s.jobs[job.ID]; exists {
			s.mu.Unlock()
			return fmt.Errorf("%w: job %s", ErrDuplicate, job.ID)
		}
	}
	for _, job := range jobs {
		s.jobs[job.ID] = job
		s.order = append(s.order, job.ID)
	}
	s.mu.Unlock()

	for _, job := range jobs {
		s.emit(ctx, events.TypeJobCreated, job)
	}
	return nil
}

// Get returns the current value of a job.
func (s *JobRecordStore) Get(id uuid.UUID) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	return job, nil
}

// Apply runs a transition against the current value of a job and, if it
// succeeds, replaces the stored record with the result. The transition runs
// under the store lock, so it observes and replaces the record atomically.
// Returns ErrJobNotFound when the job has been removed.
func (s *JobRecordStore) Apply(ctx context.Context, id uuid.UUID, transition domain.Transition) (domain.Job, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	current, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return domain.Job{}, ErrJobNotFound
	}

	next, err := transition(current)
	if err != nil {
		s.mu.Unlock()
		return current, err
	}
	s.jobs[id] = next
	s.mu.Unlock()

	s.emit(ctx, events.TypeJobUpdated, next)
	return next, nil
}

// Remove deletes a job and releases its preview.
func (s *JobRecordStore) Remove(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return domain.Job{}, ErrJobNotFound
	}
	delete(s.jobs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.release(job)
	s.emit(ctx, events.TypeJobRemoved, job)
	return job, nil
}

// Reset removes every job and releases every preview. It returns the number
// of jobs removed.
func (s *JobRecordStore) Reset(ctx context.Context) int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	removed := make([]domain.Job, 0, len(s.order))
	for _, id := range s.order {
		removed = append(removed, s.jobs[id])
	}
	s.jobs = make(map[uuid.UUID]domain.Job)
	s.order = nil
	s.mu.Unlock()

	for _, job := range removed {
		s.release(job)
	}

	if err := events.Emit(ctx, s.emitter, events.TypeJobsReset, map[string]int{"removed": len(removed)}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit reset event", "error", err)
	}
	return len(removed)
}

// Snapshot returns a copy of every job in submission order.
func (s *JobRecordStore) Snapshot() []domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id])
	}
	return out
}

// EligibleIDs returns, in submission order, the ids of every job a
// full-batch run should process (pending or failed).
func (s *JobRecordStore) EligibleIDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uuid.UUID
	for _, id := range s.order {
		if s.jobs[id].IsEligible() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Counts tallies jobs by state.
func (s *JobRecordStore) Counts() JobCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := JobCounts{Total: len(s.order)}
	for _, id := range s.order {
		switch s.jobs[id].Status() {
		case domain.JobStatusPending:
			c.Pending++
		case domain.JobStatusInFlight:
			c.InFlight++
		case domain.JobStatusCompleted:
			c.Completed++
		case domain.JobStatusError:
			c.Failed++
		}
	}
	return c
}

func (s *JobRecordStore) release(job domain.Job) {
	if s.previews == nil || job.Source.PreviewToken == "" {
		return
	}
	s.previews.Release(job.Source.PreviewToken)
}

func (s *JobRecordStore) emit(ctx context.Context, eventType string, job domain.Job) {
	if err := events.Emit(ctx, s.emitter, eventType, events.NewJobPayload(job)); err != nil {
		s.logger.WarnContext(ctx, "failed to emit job event",
			"error", err,
			"event_type", eventType,
			"job_id", job.ID)
	}
}
