package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/generation"
	"github.com/phrazzld/stockmeta/internal/redact"
	"github.com/phrazzld/stockmeta/internal/store"
)

// Failure reasons recorded for runs that were stopped rather than failed.
const (
	ReasonCancelled = "cancelled"
	ReasonTimeout   = "timeout"
	ReasonDefault   = "Failed"
)

// Causes attached to a run's context when it is stopped.
var (
	ErrRunCancelled = errors.New("job run cancelled")
	ErrRunTimedOut  = errors.New("job run timed out")
)

// Outcome reports how a single run ended.
type Outcome string

const (
	// OutcomeCompleted means the job now holds a result.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means the job is now in error.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the job was not dispatched: it was removed, already
	// in flight, or completed and the run does not allow regenerating.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDiscarded means the job was removed while its request was
	// outstanding; the result was dropped.
	OutcomeDiscarded Outcome = "discarded"
)

// RunOptions carries the per-batch settings read when the batch started.
type RunOptions struct {
	// Limit is the concurrency limit used by WorkerPool. Values <= 0 mean
	// the default of 5.
	Limit int

	// NegativeKeywords is the raw comma-separated exclusion list.
	NegativeKeywords string

	// Model names the model; empty means the generator default.
	Model string

	// JobTimeout bounds each generator call. Zero disables it.
	JobTimeout time.Duration

	// AllowRegenerate lets the run re-dispatch a completed job. Only a
	// user-requested single dispatch sets it; batch runs leave results alone.
	AllowRegenerate bool
}

// JobStore is the part of the job store a Runner needs.
type JobStore interface {
	Apply(ctx context.Context, id uuid.UUID, transition domain.Transition) (domain.Job, error)
}

// Runner drives one job through dispatch, generation and its terminal write.
// It is safe for concurrent use; each Run call handles one job id.
type Runner struct {
	store     JobStore
	generator generation.Generator
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	seq     uint64
	running map[uuid.UUID]runEntry
}

// runEntry is the registration of one run. The token tells a run's own
// entry apart from one left by a later run of the same job.
type runEntry struct {
	token  uint64
	cancel context.CancelCauseFunc
}

// NewRunner creates a Runner over the given store and generator.
func NewRunner(jobs JobStore, generator generation.Generator, logger *slog.Logger) *Runner {
	return &Runner{
		store:     jobs,
		generator: generator,
		logger:    logger.With("component", "job_runner"),
		now:       func() time.Time { return time.Now().UTC() },
		running:   make(map[uuid.UUID]runEntry),
	}
}

// Run dispatches the job and waits for its generator call. It never returns
// an error: every failure is recorded on the job itself.
func (r *Runner) Run(ctx context.Context, id uuid.UUID, opts RunOptions) Outcome {
	log := r.logger.With("job_id", id)

	dispatch := domain.DispatchEligible(r.now())
	if opts.AllowRegenerate {
		dispatch = domain.Dispatch(r.now())
	}

	job, err := r.store.Apply(ctx, id, dispatch)
	if err != nil {
		log.DebugContext(ctx, "job not dispatched", "error", err)
		return OutcomeSkipped
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	token := r.register(id, cancel)
	defer func() {
		r.unregister(id, token)
		cancel(nil)
	}()

	callCtx := runCtx
	if opts.JobTimeout > 0 {
		var stop context.CancelFunc
		callCtx, stop = context.WithTimeoutCause(runCtx, opts.JobTimeout, ErrRunTimedOut)
		defer stop()
	}

	log.InfoContext(ctx, "job dispatched",
		"filename", job.Source.Filename,
		"attempt", job.Attempts)

	req := generation.Request{
		Image:      job.Source.Data,
		MIMEType:   job.Source.MIMEType,
		Context:    job.Context,
		Exclusions: opts.NegativeKeywords,
		Model:      opts.Model,
	}

	started := time.Now()
	result, err := r.generate(callCtx, req)
	if err != nil {
		reason := failureReason(callCtx, err)
		log.WarnContext(ctx, "job failed",
			"reason", reason,
			"duration_ms", time.Since(started).Milliseconds())
		r.unregister(id, token)
		return r.finish(ctx, log, id, domain.Fail(reason, r.now()), OutcomeFailed)
	}

	metadata := result.Clone()
	metadata.Keywords = domain.FilterKeywords(metadata.Keywords, domain.ParseExclusions(opts.NegativeKeywords))

	log.InfoContext(ctx, "job completed",
		"keywords", len(metadata.Keywords),
		"duration_ms", time.Since(started).Milliseconds())
	r.unregister(id, token)
	return r.finish(ctx, log, id, domain.Complete(metadata, r.now()), OutcomeCompleted)
}

// Cancel aborts the outstanding request of an in-flight job. It reports
// whether a run was found.
func (r *Runner) Cancel(id uuid.UUID) bool {
	r.mu.Lock()
	entry, ok := r.running[id]
	r.mu.Unlock()

	if ok {
		entry.cancel(ErrRunCancelled)
	}
	return ok
}

// CancelAll aborts every outstanding request and returns how many there were.
func (r *Runner) CancelAll() int {
	r.mu.Lock()
	cancels := make([]context.CancelCauseFunc, 0, len(r.running))
	for _, entry := range r.running {
		cancels = append(cancels, entry.cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel(ErrRunCancelled)
	}
	return len(cancels)
}

// Running returns the number of outstanding requests.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

func (r *Runner) register(id uuid.UUID, cancel context.CancelCauseFunc) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.running[id] = runEntry{token: r.seq, cancel: cancel}
	return r.seq
}

// unregister drops the entry for id only if it still belongs to the run
// holding token. It is called before the terminal write so that a run
// dispatched right after that write keeps its entry.
func (r *Runner) unregister(id uuid.UUID, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.running[id]; ok && entry.token == token {
		delete(r.running, id)
	}
}

// generate calls the generator, turning a panic or an empty result into an
// ordinary error.
func (r *Runner) generate(ctx context.Context, req generation.Request) (result *domain.Metadata, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "generator panicked", "panic", fmt.Sprint(p))
			result = nil
			err = fmt.Errorf("%w: generator panicked", generation.ErrGenerationFailed)
		}
	}()

	result, err = r.generator.GenerateMetadata(ctx, req)
	if err == nil && result == nil {
		err = fmt.Errorf("%w: empty result", generation.ErrInvalidResponse)
	}
	return result, err
}

// finish applies the terminal transition. A job removed while its request
// was outstanding is not resurrected; the write is dropped.
func (r *Runner) finish(
	ctx context.Context,
	log *slog.Logger,
	id uuid.UUID,
	transition domain.Transition,
	outcome Outcome,
) Outcome {
	if _, err := r.store.Apply(ctx, id, transition); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			log.DebugContext(ctx, "job removed during run; result discarded")
		} else {
			log.WarnContext(ctx, "terminal write rejected", "error", err)
		}
		return OutcomeDiscarded
	}
	return outcome
}

// failureReason derives the message stored on a failed job.
func failureReason(ctx context.Context, err error) string {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrRunTimedOut):
		return ReasonTimeout
	case errors.Is(cause, ErrRunCancelled), errors.Is(cause, context.Canceled):
		return ReasonCancelled
	}

	if msg := strings.TrimSpace(redact.Error(err)); msg != "" {
		return msg
	}
	return ReasonDefault
}
