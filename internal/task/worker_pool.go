package task

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/stockmeta/internal/domain"
)

// JobRunner runs a single job to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, id uuid.UUID, opts RunOptions) Outcome
}

// Summary describes a finished pool run.
type Summary struct {
	Total      int           `json:"total"`
	Limit      int           `json:"limit"`
	Dispatched int           `json:"dispatched"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Discarded  int           `json:"discarded"`
	Duration   time.Duration `json:"duration"`
}

// WorkerPool runs batches of jobs with bounded concurrency.
type WorkerPool struct {
	runner JobRunner
	logger *slog.Logger

	// gate is the admission gate of the run in progress, if any.
	gate atomic.Pointer[AdmissionGate]
}

// NewWorkerPool creates a pool that runs jobs through runner.
func NewWorkerPool(runner JobRunner, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{
		runner: runner,
		logger: logger.With("component", "worker_pool"),
	}
}

// Run processes ids with at most opts.Limit jobs in flight, dispatching in
// the given order. A new job is admitted as soon as any running job reaches
// a terminal state. Run returns once every admitted job has finished.
//
// Jobs that completed after ids were selected are skipped, never
// regenerated. Cancelling ctx stops admission; jobs not yet admitted stay
// pending.
func (p *WorkerPool) Run(ctx context.Context, ids []uuid.UUID, opts RunOptions) Summary {
	limit := opts.Limit
	if limit <= 0 {
		limit = domain.DefaultConcurrencyLimit
	}
	// A batch drives pending and failed jobs only; a job completed since
	// the ids were selected keeps its result.
	opts.AllowRegenerate = false

	summary := Summary{Total: len(ids), Limit: limit}
	if len(ids) == 0 {
		return summary
	}

	started := time.Now()
	gate := NewAdmissionGate(limit)
	p.gate.Store(gate)
	defer p.gate.Store(nil)

	queue := NewDispatchQueue(len(ids), p.logger)
	for _, id := range ids {
		// Sized to the batch, so Enqueue cannot fail here.
		_ = queue.Enqueue(id)
	}
	queue.Close()

	p.logger.InfoContext(ctx, "batch started", "total", len(ids), "limit", limit)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make(map[Outcome]int)
	)

	for id := range queue.GetChannel() {
		if err := gate.Acquire(ctx); err != nil {
			p.logger.WarnContext(ctx, "batch admission stopped", "error", err)
			break
		}
		summary.Dispatched++

		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			defer gate.Release()

			outcome := p.runner.Run(ctx, id, opts)

			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}(id)
	}

	wg.Wait()

	summary.Completed = outcomes[OutcomeCompleted]
	summary.Failed = outcomes[OutcomeFailed]
	summary.Discarded = outcomes[OutcomeDiscarded]
	summary.Skipped = outcomes[OutcomeSkipped] + summary.Total - summary.Dispatched
	summary.Duration = time.Since(started)

	p.logger.InfoContext(ctx, "batch finished",
		"total", summary.Total,
		"limit", summary.Limit,
		"dispatched", summary.Dispatched,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"discarded", summary.Discarded,
		"duration_ms", summary.Duration.Milliseconds())

	return summary
}

// InFlight returns the number of jobs the current run has admitted and not
// yet finished. It is zero when no run is in progress.
func (p *WorkerPool) InFlight() int {
	if g := p.gate.Load(); g != nil {
		return g.InFlight()
	}
	return 0
}
