package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/events"
	"github.com/phrazzld/stockmeta/internal/export"
	"github.com/phrazzld/stockmeta/internal/generation"
	"github.com/phrazzld/stockmeta/internal/mocks"
	"github.com/phrazzld/stockmeta/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *BatchService
	jobs     *store.JobRecordStore
	previews *store.PreviewRegistry
	settings *store.MemorySettingsStore
	emitter  *events.InMemoryEventEmitter
}

func newFixture(t *testing.T, gen generation.Generator) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	emitter := events.NewInMemoryEventEmitter(logger)
	previews := store.NewPreviewRegistry()
	jobs := store.NewJobRecordStore(previews, emitter, logger)
	settings := store.NewMemorySettingsStore(domain.DefaultSettings())

	svc, err := NewBatchService(jobs, previews, settings, gen, emitter, BatchServiceConfig{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})

	return &fixture{svc: svc, jobs: jobs, previews: previews, settings: settings, emitter: emitter}
}

func okGenerator() generation.Generator {
	return generation.GeneratorFunc(func(_ context.Context, req generation.Request) (*domain.Metadata, error) {
		return &domain.Metadata{
			Title:       "Title " + string(req.Image),
			Description: "Description",
			Keywords:    []string{"cat", "Cat", "dog"},
		}, nil
	})
}

// gatedGenerator blocks every call until release is closed.
type gatedGenerator struct {
	release chan struct{}
	calls   atomic.Int64
	current atomic.Int64
	max     atomic.Int64
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{release: make(chan struct{})}
}

func (g *gatedGenerator) GenerateMetadata(ctx context.Context, req generation.Request) (*domain.Metadata, error) {
	g.calls.Add(1)
	n := g.current.Add(1)
	defer g.current.Add(-1)
	for {
		m := g.max.Load()
		if n <= m || g.max.CompareAndSwap(m, n) {
			break
		}
	}

	select {
	case <-g.release:
		return &domain.Metadata{Title: "T", Description: "D", Keywords: []string{"k"}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func uploads(names ...string) []ImageUpload {
	out := make([]ImageUpload, 0, len(names))
	for _, n := range names {
		out = append(out, ImageUpload{Filename: n, MIMEType: "image/jpeg", Data: []byte(n)})
	}
	return out
}

func waitIdle(t *testing.T, svc *BatchService) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !svc.IsBatchRunning() && svc.Status().Counts.InFlight == 0
	}, 5*time.Second, 2*time.Millisecond)
}

func TestSubmitImages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okGenerator())
	ctx := context.Background()

	jobs, err := f.svc.SubmitImages(ctx, uploads("a.jpg", "b.jpg"), "  beach  ")
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	listed := f.svc.Jobs()
	require.Len(t, listed, 2)
	assert.Equal(t, "a.jpg", listed[0].Source.Filename)
	assert.Equal(t, "b.jpg", listed[1].Source.Filename)
	assert.Equal(t, "beach", listed[0].Context)
	assert.Equal(t, domain.JobStatusPending, listed[0].Status())
	assert.NotEmpty(t, listed[0].Source.PreviewToken)
	assert.Equal(t, 2, f.previews.Len())

	_, err = f.svc.SubmitImages(ctx, nil, "")
	assert.ErrorIs(t, err, ErrNoImages)

	bad := append(uploads("c.jpg"), ImageUpload{Filename: "notes.txt", MIMEType: "text/plain", Data: []byte("x")})
	_, err = f.svc.SubmitImages(ctx, bad, "")
	assert.ErrorIs(t, err, domain.ErrUnsupportedMediaType)
	assert.Len(t, f.svc.Jobs(), 2, "a rejected submission adds nothing")
	assert.Equal(t, 2, f.previews.Len())
}

func TestRemoveJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okGenerator())
	ctx := context.Background()
	jobs, err := f.svc.SubmitImages(ctx, uploads("a.jpg"), "")
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveJob(ctx, jobs[0].ID))
	assert.Empty(t, f.svc.Jobs())
	_, err = f.previews.Open(jobs[0].Source.PreviewToken)
	assert.Error(t, err, "the preview is released with the job")

	assert.ErrorIs(t, f.svc.RemoveJob(ctx, jobs[0].ID), ErrJobNotFound)
	_, err = f.svc.Job(uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRemoveInFlightJob(t *testing.T) {
	t.Parallel()

	gen := newGatedGenerator()
	f := newFixture(t, gen)
	ctx := context.Background()
	jobs, err := f.svc.SubmitImages(ctx, uploads("a.jpg"), "")
	require.NoError(t, err)

	require.NoError(t, f.svc.DispatchSingle(ctx, jobs[0].ID))
	require.Eventually(t, func() bool { return gen.current.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, f.svc.RemoveJob(ctx, jobs[0].ID))
	require.Eventually(t, func() bool { return gen.current.Load() == 0 }, time.Second, time.Millisecond)

	assert.Empty(t, f.svc.Jobs(), "the cancelled run does not recreate the job")
}

func TestUpdateContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okGenerator())
	ctx := context.Background()
	jobs, err := f.svc.SubmitImages(ctx, uploads("a.jpg"), "")
	require.NoError(t, err)
	id := jobs[0].ID

	job, err := f.svc.UpdateContext(ctx, id, "mountain lake")
	require.NoError(t, err)
	assert.Equal(t, "mountain lake", job.Context)

	_, err = f.jobs.Apply(ctx, id, domain.Dispatch(time.Now()))
	require.NoError(t, err)
	_, err = f.svc.UpdateContext(ctx, id, "too late")
	assert.ErrorIs(t, err, domain.ErrContextLocked)

	_, err = f.svc.UpdateContext(ctx, uuid.New(), "x")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestDispatchAllEligible(t *testing.T) {
	t.Parallel()

	gen := newGatedGenerator()
	f := newFixture(t, gen)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []string
	f.emitter.RegisterHandler(events.HandlerFunc(func(_ context.Context, e *events.Event) error {
		if e.Type == events.TypeBatchStarted || e.Type == events.TypeBatchFinished {
			mu.Lock()
			seen = append(seen, e.Type)
			mu.Unlock()
		}
		return nil
	}))

	_, err := f.svc.SaveSettings(ctx, domain.Settings{MaxConcurrency: 2, NegativeKeywords: "cat"})
	require.NoError(t, err)
	_, err = f.svc.SubmitImages(ctx, uploads("1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg"), "")
	require.NoError(t, err)

	start, err := f.svc.DispatchAllEligible(ctx)
	require.NoError(t, err)
	assert.True(t, start.Started)
	assert.Equal(t, 5, start.Eligible)
	assert.Equal(t, 2, start.Limit)
	assert.True(t, f.svc.IsBatchRunning())

	again, err := f.svc.DispatchAllEligible(ctx)
	require.NoError(t, err)
	assert.False(t, again.Started, "an overlapping batch request is a no-op")

	require.Eventually(t, func() bool { return gen.current.Load() == 2 }, time.Second, time.Millisecond)
	assert.LessOrEqual(t, f.svc.Status().InFlight, 2)
	close(gen.release)
	waitIdle(t, f.svc)

	assert.LessOrEqual(t, gen.max.Load(), int64(2))
	status := f.svc.Status()
	assert.Equal(t, 5, status.Counts.Completed)
	assert.Equal(t, 100, status.Progress)
	assert.Zero(t, status.PendingCount)

	mu.Lock()
	assert.Equal(t, []string{events.TypeBatchStarted, events.TypeBatchFinished}, seen)
	mu.Unlock()

	nothing, err := f.svc.DispatchAllEligible(ctx)
	require.NoError(t, err)
	assert.False(t, nothing.Started, "nothing eligible")
}

func TestDispatchAllEligible_AppliesExclusions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okGenerator())
	ctx := context.Background()

	_, err := f.svc.SaveSettings(ctx, domain.Settings{NegativeKeywords: " CAT "})
	require.NoError(t, err)
	jobs, err := f.svc.SubmitImages(ctx, uploads("a.jpg"), "")
	require.NoError(t, err)

	summary, err := f.svc.RunAllEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)

	job, err := f.svc.Job(jobs[0].ID)
	require.NoError(t, err)
	result, ok := job.Result()
	require.True(t, ok)
	assert.Equal(t, []string{"dog"}, result.Keywords)
}

func TestDispatchSingle(t *testing.T) {
	t.Parallel()

	gen := newGatedGenerator()
	f := newFixture(t, gen)
	ctx := context.Background()
	jobs, err := f.svc.SubmitImages(ctx, uploads("a.jpg"), "")
	require.NoError(t, err)
	id := jobs[0].ID

	require.NoError(t, f.svc.DispatchSingle(ctx, id))
	require.Eventually(t, func() bool {
		job, _ := f.svc.Job(id)
		return job.Status() == domain.JobStatusInFlight
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, f.svc.DispatchSingle(ctx, id), ErrJobInFlight)
	assert.ErrorIs(t, f.svc.DispatchSingle(ctx, uuid.New()), ErrJobNotFound)

	close(gen.release)
	require.Eventually(t, func() bool {
		job, _ := f.svc.Job(id)
		return job.Status() == domain.JobStatusCompleted
	}, time.Second, time.Millisecond)

	require.NoError(t, f.svc.DispatchSingle(ctx, id), "completed jobs may be regenerated")
	require.Eventually(t, func() bool {
		job, _ := f.svc.Job(id)
		return job.Status() == domain.JobStatusCompleted && job.Attempts == 2
	}, time.Second, time.Millisecond)
}

func TestCancelJob(t *testing.T) {
	t.Parallel()

	gen := newGatedGenerator()
	f := newFixture(t, gen)
	ctx := context.Background()
	jobs, err := f.svc.SubmitImages(ctx, uploads("a.jpg"), "")
	require.NoError(t, err)
	id := jobs[0].ID

	assert.ErrorIs(t, f.svc.CancelJob(ctx, id), ErrJobNotInFlight)

	require.NoError(t, f.svc.DispatchSingle(ctx, id))
	require.Eventually(t, func() bool { return gen.current.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, f.svc.CancelJob(ctx, id))

	require.Eventually(t, func() bool {
		job, _ := f.svc.Job(id)
		return job.Status() == domain.JobStatusError
	}, time.Second, time.Millisecond)
	job, err := f.svc.Job(id)
	require.NoError(t, err)
	reason, _ := job.FailureReason()
	assert.Equal(t, "cancelled", reason)
	assert.Equal(t, 1, f.svc.Status().PendingCount, "failed jobs count as pending work")
}

func TestResetAll(t *testing.T) {
	t.Parallel()

	gen := newGatedGenerator()
	f := newFixture(t, gen)
	ctx := context.Background()
	_, err := f.svc.SubmitImages(ctx, uploads("a.jpg", "b.jpg", "c.jpg"), "")
	require.NoError(t, err)

	_, err = f.svc.SaveSettings(ctx, domain.Settings{MaxConcurrency: 1})
	require.NoError(t, err)
	start, err := f.svc.DispatchAllEligible(ctx)
	require.NoError(t, err)
	require.True(t, start.Started)
	require.Eventually(t, func() bool { return gen.current.Load() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, 3, f.svc.ResetAll(ctx))
	waitIdle(t, f.svc)

	assert.Empty(t, f.svc.Jobs())
	assert.Zero(t, f.previews.Len())
	assert.Equal(t, int64(1), gen.calls.Load(), "jobs removed before dispatch never run")
}

func TestExportCompleted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okGenerator())
	ctx := context.Background()

	_, err := f.svc.ExportCompleted(ctx)
	assert.ErrorIs(t, err, export.ErrNothingToExport)

	_, err = f.svc.SaveSettings(ctx, domain.Settings{ArtistName: "  Jane Doe "})
	require.NoError(t, err)
	_, err = f.svc.SubmitImages(ctx, uploads("a.jpg"), "")
	require.NoError(t, err)
	_, err = f.svc.RunAllEligible(ctx)
	require.NoError(t, err)

	doc, err := f.svc.ExportCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t,
		"filename,title,keywords,Artist,locale,description\na.jpg,Title a.jpg,\"cat,Cat,dog\",Jane Doe,en,Description",
		doc)
}

func TestSaveSettings(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okGenerator())
	ctx := context.Background()

	_, err := f.svc.SaveSettings(ctx, domain.Settings{MaxConcurrency: 11})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	saved, err := f.svc.SaveSettings(ctx, domain.Settings{
		NegativeKeywords: " text, logo ",
		ArtistName:       "me",
		Model:            " gemini-2.5-pro ",
		MaxConcurrency:   3,
	})
	require.NoError(t, err)
	assert.Equal(t, "text, logo", saved.NegativeKeywords)
	assert.Equal(t, "gemini-2.5-pro", saved.Model)

	got, err := f.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
}

func TestFailedJobsAreRetried(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	fail.Store(true)
	gen := generation.GeneratorFunc(func(context.Context, generation.Request) (*domain.Metadata, error) {
		if fail.Load() {
			return nil, errors.New("")
		}
		return &domain.Metadata{Title: "T", Description: "D", Keywords: []string{"k"}}, nil
	})
	f := newFixture(t, gen)
	ctx := context.Background()
	jobs, err := f.svc.SubmitImages(ctx, uploads("a.jpg", "b.jpg"), "")
	require.NoError(t, err)

	summary, err := f.svc.RunAllEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	job, _ := f.svc.Job(jobs[0].ID)
	reason, _ := job.FailureReason()
	assert.Equal(t, "Failed", reason)

	fail.Store(false)
	summary, err = f.svc.RunAllEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 100, f.svc.Status().Progress)
}

func TestClose(t *testing.T) {
	t.Parallel()

	gen := newGatedGenerator()
	f := newFixture(t, gen)
	ctx := context.Background()
	jobs, err := f.svc.SubmitImages(ctx, uploads("a.jpg"), "")
	require.NoError(t, err)

	require.NoError(t, f.svc.DispatchSingle(ctx, jobs[0].ID))
	require.Eventually(t, func() bool { return gen.current.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, f.svc.Close(ctx))
	job, err := f.svc.Job(jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, job.Status())

	assert.ErrorIs(t, f.svc.DispatchSingle(ctx, jobs[0].ID), ErrServiceClosed)
	_, err = f.svc.DispatchAllEligible(ctx)
	assert.ErrorIs(t, err, ErrServiceClosed)
}

func TestClose_RacingDispatches(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newGatedGenerator())
	ctx := context.Background()
	jobs, err := f.svc.SubmitImages(ctx, uploads("a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg"), "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, job := range jobs {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			<-start
			err := f.svc.DispatchSingle(ctx, id)
			if err != nil && !errors.Is(err, ErrJobInFlight) {
				assert.ErrorIs(t, err, ErrServiceClosed)
			}
		}(job.ID)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		_, err := f.svc.DispatchAllEligible(ctx)
		if err != nil {
			assert.ErrorIs(t, err, ErrServiceClosed)
		}
	}()

	close(start)
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Close(closeCtx))

	// Every run admitted before Close has ended; nothing starts afterwards.
	assert.Zero(t, f.svc.Status().Counts.InFlight)
	wg.Wait()
	assert.Zero(t, f.svc.Status().Counts.InFlight)
	assert.False(t, f.svc.IsBatchRunning())
}

func TestRunAllEligible_RequestCarriesSettings(t *testing.T) {
	t.Parallel()

	gen := mocks.NewMockGeneratorWithDefaultMetadata()
	f := newFixture(t, gen)
	ctx := context.Background()

	_, err := f.svc.SaveSettings(ctx, domain.Settings{
		NegativeKeywords: "Harbour, sea",
		Model:            "gemini-custom",
		MaxConcurrency:   1,
	})
	require.NoError(t, err)
	_, err = f.svc.SubmitImages(ctx, uploads("a.jpg", "b.jpg"), "  morning light ")
	require.NoError(t, err)

	summary, err := f.svc.RunAllEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Completed)

	requests := gen.Requests()
	require.Len(t, requests, 2)
	for _, req := range requests {
		assert.Equal(t, "gemini-custom", req.Model)
		assert.Equal(t, "Harbour, sea", req.Exclusions)
		assert.Equal(t, "morning light", req.Context)
		assert.Equal(t, "image/jpeg", req.MIMEType)
	}

	for _, job := range f.svc.Jobs() {
		result, ok := job.Result()
		require.True(t, ok)
		assert.NotContains(t, result.Keywords, "harbour")
		assert.NotContains(t, result.Keywords, "sea")
		assert.Contains(t, result.Keywords, "boats")
	}
}

func TestRunAllEligible_GeneratorFailure(t *testing.T) {
	t.Parallel()

	gen := mocks.MockGeneratorWithContentBlocked()
	f := newFixture(t, gen)
	ctx := context.Background()

	jobs, err := f.svc.SubmitImages(ctx, uploads("a.jpg"), "")
	require.NoError(t, err)

	summary, err := f.svc.RunAllEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, gen.CallCount())

	job, err := f.svc.Job(jobs[0].ID)
	require.NoError(t, err)
	reason, ok := job.FailureReason()
	require.True(t, ok)
	assert.NotEmpty(t, reason)
}
