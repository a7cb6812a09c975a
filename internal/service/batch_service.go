package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/events"
	"github.com/phrazzld/stockmeta/internal/export"
	"github.com/phrazzld/stockmeta/internal/generation"
	"github.com/phrazzld/stockmeta/internal/store"
	"github.com/phrazzld/stockmeta/internal/task"
)

// ImageUpload is one image received from a client.
type ImageUpload struct {
	Filename string
	MIMEType string
	Data     []byte
}

// BatchStart reports the result of a full-batch dispatch request.
type BatchStart struct {
	// Started is false when a batch was already running or nothing was
	// eligible.
	Started  bool `json:"started"`
	Eligible int  `json:"eligible"`
	Limit    int  `json:"limit,omitempty"`
}

// BatchStatus is the observable progress of the current batch.
type BatchStatus struct {
	Running bool            `json:"isBatchRunning"`
	Counts  store.JobCounts `json:"counts"`

	// PendingCount is the number of jobs a full-batch run would pick up.
	PendingCount int `json:"pendingCount"`

	// Progress is the completed share of all jobs, in percent.
	Progress int `json:"progress"`

	// InFlight is the number of jobs admitted by the running pool.
	InFlight int `json:"inFlight"`
}

// BatchServiceConfig carries the tunables of the batch service.
type BatchServiceConfig struct {
	// JobTimeout bounds each generator call. Zero disables it.
	JobTimeout time.Duration
}

// BatchService coordinates the job store, the runner and the worker pool.
type BatchService struct {
	jobs     *store.JobRecordStore
	previews *store.PreviewRegistry
	settings store.SettingsStore
	runner   *task.Runner
	pool     *task.WorkerPool
	emitter  events.EventEmitter
	validate *validator.Validate
	logger   *slog.Logger
	cfg      BatchServiceConfig

	batchRunning atomic.Bool

	// ctx outlives requests; background runs are bound to it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
	// lifecycleMu orders wg.Add in start against closed in Close.
	lifecycleMu sync.Mutex
}

// NewBatchService creates a new BatchService.
// It returns an error if any of the required dependencies are nil.
func NewBatchService(
	jobs *store.JobRecordStore,
	previews *store.PreviewRegistry,
	settings store.SettingsStore,
	generator generation.Generator,
	emitter events.EventEmitter,
	cfg BatchServiceConfig,
	logger *slog.Logger,
) (*BatchService, error) {
	if jobs == nil {
		return nil, &BatchServiceError{Operation: "create_service", Message: "jobs cannot be nil"}
	}
	if previews == nil {
		return nil, &BatchServiceError{Operation: "create_service", Message: "previews cannot be nil"}
	}
	if settings == nil {
		return nil, &BatchServiceError{Operation: "create_service", Message: "settings cannot be nil"}
	}
	if generator == nil {
		return nil, &BatchServiceError{Operation: "create_service", Message: "generator cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	runner := task.NewRunner(jobs, generator, logger)
	ctx, cancel := context.WithCancel(context.Background())

	return &BatchService{
		jobs:     jobs,
		previews: previews,
		settings: settings,
		runner:   runner,
		pool:     task.NewWorkerPool(runner, logger),
		emitter:  emitter,
		validate: validator.New(),
		logger:   logger.With("component", "batch_service"),
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// SubmitImages creates one pending job per image, in the given order, with
// the same initial context hint. Either every image is accepted or none is.
func (s *BatchService) SubmitImages(ctx context.Context, uploads []ImageUpload, contextHint string) ([]domain.Job, error) {
	if len(uploads) == 0 {
		return nil, ErrNoImages
	}

	contextHint = strings.TrimSpace(contextHint)
	jobs := make([]domain.Job, 0, len(uploads))
	for _, u := range uploads {
		job, err := domain.NewJob(domain.SourceRef{
			Filename: u.Filename,
			MIMEType: u.MIMEType,
			Data:     u.Data,
		}, contextHint)
		if err != nil {
			return nil, NewBatchServiceError("submit_images", "invalid image", err)
		}
		jobs = append(jobs, job)
	}

	for i := range jobs {
		jobs[i].Source.PreviewToken = s.previews.Register(jobs[i].Source.MIMEType, jobs[i].Source.Data)
	}

	if err := s.jobs.Add(ctx, jobs...); err != nil {
		for _, job := range jobs {
			s.previews.Release(job.Source.PreviewToken)
		}
		return nil, NewBatchServiceError("submit_images", "failed to add jobs", err)
	}

	s.logger.InfoContext(ctx, "images submitted", "count", len(jobs))
	return jobs, nil
}

// Jobs returns every job in submission order.
func (s *BatchService) Jobs() []domain.Job {
	return s.jobs.Snapshot()
}

// Job returns one job.
func (s *BatchService) Job(id uuid.UUID) (domain.Job, error) {
	job, err := s.jobs.Get(id)
	if err != nil {
		return domain.Job{}, NewBatchServiceError("get_job", "failed to get job", err)
	}
	return job, nil
}

// RemoveJob deletes a job and releases its preview. An outstanding request
// for the job is cancelled and its result discarded.
func (s *BatchService) RemoveJob(ctx context.Context, id uuid.UUID) error {
	if _, err := s.jobs.Remove(ctx, id); err != nil {
		return NewBatchServiceError("remove_job", "failed to remove job", err)
	}
	s.runner.Cancel(id)
	return nil
}

// UpdateContext replaces the context hint of a pending or failed job.
func (s *BatchService) UpdateContext(ctx context.Context, id uuid.UUID, text string) (domain.Job, error) {
	job, err := s.jobs.Apply(ctx, id, domain.SetContext(text, time.Now().UTC()))
	if err != nil {
		return domain.Job{}, NewBatchServiceError("update_context", "failed to update context", err)
	}
	return job, nil
}

// DispatchSingle starts one job regardless of whether a batch is running.
// The run continues in the background; its progress is observable through
// the job store. Completed jobs are regenerated.
func (s *BatchService) DispatchSingle(ctx context.Context, id uuid.UUID) error {
	if s.closed.Load() {
		return ErrServiceClosed
	}

	job, err := s.jobs.Get(id)
	if err != nil {
		return NewBatchServiceError("dispatch_single", "failed to get job", err)
	}
	if job.Status() == domain.JobStatusInFlight {
		return ErrJobInFlight
	}

	opts, err := s.runOptions(ctx)
	if err != nil {
		return err
	}
	opts.AllowRegenerate = true

	if !s.start(func() { s.runner.Run(s.ctx, id, opts) }) {
		return ErrServiceClosed
	}
	return nil
}

// DispatchAllEligible starts a worker pool over every pending or failed job.
// Settings are read once, now. When a batch is already running, or nothing
// is eligible, the call is a no-op reported through BatchStart.Started.
func (s *BatchService) DispatchAllEligible(ctx context.Context) (BatchStart, error) {
	if s.closed.Load() {
		return BatchStart{}, ErrServiceClosed
	}

	if !s.batchRunning.CompareAndSwap(false, true) {
		s.logger.InfoContext(ctx, "batch already running; request ignored")
		return BatchStart{Started: false, Eligible: len(s.jobs.EligibleIDs())}, nil
	}

	ids := s.jobs.EligibleIDs()
	if len(ids) == 0 {
		s.batchRunning.Store(false)
		return BatchStart{Started: false}, nil
	}

	opts, err := s.runOptions(ctx)
	if err != nil {
		s.batchRunning.Store(false)
		return BatchStart{}, err
	}

	started := s.start(func() {
		defer s.batchRunning.Store(false)
		s.runBatch(s.ctx, ids, opts)
	})
	if !started {
		s.batchRunning.Store(false)
		return BatchStart{}, ErrServiceClosed
	}

	return BatchStart{Started: true, Eligible: len(ids), Limit: opts.Limit}, nil
}

// RunAllEligible is DispatchAllEligible that blocks until the batch ends.
// It returns the zero Summary when a batch is already running.
func (s *BatchService) RunAllEligible(ctx context.Context) (task.Summary, error) {
	if !s.batchRunning.CompareAndSwap(false, true) {
		return task.Summary{}, nil
	}
	defer s.batchRunning.Store(false)

	opts, err := s.runOptions(ctx)
	if err != nil {
		return task.Summary{}, err
	}

	return s.runBatch(ctx, s.jobs.EligibleIDs(), opts), nil
}

func (s *BatchService) runBatch(ctx context.Context, ids []uuid.UUID, opts task.RunOptions) task.Summary {
	s.emit(ctx, events.TypeBatchStarted, events.BatchPayload{Total: len(ids), Limit: opts.Limit})

	summary := s.pool.Run(ctx, ids, opts)

	s.emit(ctx, events.TypeBatchFinished, events.BatchPayload{
		Total:      summary.Total,
		Limit:      summary.Limit,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
		DurationMS: summary.Duration.Milliseconds(),
	})
	return summary
}

// CancelJob aborts the outstanding request of an in-flight job, which then
// fails with reason "cancelled".
func (s *BatchService) CancelJob(ctx context.Context, id uuid.UUID) error {
	if _, err := s.jobs.Get(id); err != nil {
		return NewBatchServiceError("cancel_job", "failed to get job", err)
	}
	if !s.runner.Cancel(id) {
		return ErrJobNotInFlight
	}
	s.logger.InfoContext(ctx, "job cancelled", "job_id", id)
	return nil
}

// ResetAll removes every job, releases every preview and cancels every
// outstanding request. It returns the number of jobs removed.
func (s *BatchService) ResetAll(ctx context.Context) int {
	removed := s.jobs.Reset(ctx)
	cancelled := s.runner.CancelAll()
	s.logger.InfoContext(ctx, "jobs reset", "removed", removed, "cancelled", cancelled)
	return removed
}

// ExportCompleted renders every completed job as CSV, attributed to the
// configured artist. Returns export.ErrNothingToExport when nothing has
// completed.
func (s *BatchService) ExportCompleted(ctx context.Context) (string, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return "", NewBatchServiceError("export", "failed to read settings", err)
	}

	doc, err := export.Format(s.jobs.Snapshot(), settings.Attribution())
	if err != nil {
		if errors.Is(err, export.ErrNothingToExport) {
			return "", err
		}
		return "", NewBatchServiceError("export", "failed to format export", err)
	}
	return doc, nil
}

// Status returns the current progress figures.
func (s *BatchService) Status() BatchStatus {
	counts := s.jobs.Counts()
	status := BatchStatus{
		Running:      s.batchRunning.Load(),
		Counts:       counts,
		PendingCount: counts.Pending + counts.Failed,
		InFlight:     s.pool.InFlight(),
	}
	if counts.Total > 0 {
		status.Progress = int(math.Round(float64(counts.Completed) / float64(counts.Total) * 100))
	}
	return status
}

// IsBatchRunning reports whether a full-batch run is in progress.
func (s *BatchService) IsBatchRunning() bool {
	return s.batchRunning.Load()
}

// Settings returns the current user settings.
func (s *BatchService) Settings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return domain.Settings{}, NewBatchServiceError("get_settings", "failed to read settings", err)
	}
	return settings, nil
}

// SaveSettings validates and persists the user settings. A running batch
// keeps the values it started with.
func (s *BatchService) SaveSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	settings.NegativeKeywords = strings.TrimSpace(settings.NegativeKeywords)
	settings.ArtistName = strings.TrimSpace(settings.ArtistName)
	settings.Model = strings.TrimSpace(settings.Model)

	if err := s.validate.Struct(settings); err != nil {
		return domain.Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	if err := s.settings.Save(ctx, settings); err != nil {
		return domain.Settings{}, NewBatchServiceError("save_settings", "failed to save settings", err)
	}
	s.logger.InfoContext(ctx, "settings saved",
		"max_concurrency", settings.MaxConcurrency,
		"model", settings.Model)
	return settings, nil
}

// Close stops admitting work, cancels outstanding requests and waits for
// background runs to finish or ctx to end.
func (s *BatchService) Close(ctx context.Context) error {
	s.lifecycleMu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.lifecycleMu.Unlock()
		return nil
	}
	s.lifecycleMu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("batch service shutdown: %w", ctx.Err())
	}
}

// start runs fn in the background unless the service is closed. Once Close
// has marked the service closed, no further run joins the wait group.
func (s *BatchService) start(fn func()) bool {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.closed.Load() {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

// runOptions snapshots the settings for a run.
func (s *BatchService) runOptions(ctx context.Context) (task.RunOptions, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return task.RunOptions{}, NewBatchServiceError("dispatch", "failed to read settings", err)
	}
	return task.RunOptions{
		Limit:            settings.ConcurrencyLimit(),
		NegativeKeywords: settings.NegativeKeywords,
		Model:            settings.ModelHint(),
		JobTimeout:       s.cfg.JobTimeout,
	}, nil
}

func (s *BatchService) emit(ctx context.Context, eventType string, payload interface{}) {
	if err := events.Emit(ctx, s.emitter, eventType, payload); err != nil {
		s.logger.WarnContext(ctx, "failed to emit event", "type", eventType, "error", err)
	}
}
