package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/events"
	"github.com/phrazzld/stockmeta/internal/generation"
	"github.com/phrazzld/stockmeta/internal/service"
	"github.com/phrazzld/stockmeta/internal/store"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *service.BatchService
	jobs     *store.JobRecordStore
	previews *store.PreviewRegistry
	emitter  *events.InMemoryEventEmitter
	router   http.Handler
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newFixture(t *testing.T, gen generation.Generator) *fixture {
	t.Helper()

	logger := testLogger()
	emitter := events.NewInMemoryEventEmitter(logger)
	previews := store.NewPreviewRegistry()
	jobs := store.NewJobRecordStore(previews, emitter, logger)
	settings := store.NewMemorySettingsStore(domain.DefaultSettings())

	svc, err := service.NewBatchService(jobs, previews, settings, gen, emitter, service.BatchServiceConfig{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})

	jobHandler := NewJobHandler(svc, previews, 1<<20, logger)
	batchHandler := NewBatchHandler(svc, logger)
	eventsHandler := NewEventsHandler(emitter, svc, 50*time.Millisecond, logger)

	r := chi.NewRouter()
	r.Get("/health", Health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", jobHandler.SubmitImages)
		r.Get("/jobs", jobHandler.ListJobs)
		r.Delete("/jobs", jobHandler.ResetJobs)
		r.Get("/jobs/{id}", jobHandler.GetJob)
		r.Delete("/jobs/{id}", jobHandler.RemoveJob)
		r.Put("/jobs/{id}/context", jobHandler.UpdateContext)
		r.Post("/jobs/{id}/dispatch", jobHandler.DispatchJob)
		r.Post("/jobs/{id}/cancel", jobHandler.CancelJob)
		r.Get("/previews/{token}", jobHandler.GetPreview)
		r.Post("/batch/run", batchHandler.RunBatch)
		r.Get("/batch/status", batchHandler.GetStatus)
		r.Get("/export", batchHandler.Export)
		r.Get("/settings", batchHandler.GetSettings)
		r.Put("/settings", batchHandler.SaveSettings)
		r.Get("/events", eventsHandler.Stream)
	})

	return &fixture{svc: svc, jobs: jobs, previews: previews, emitter: emitter, router: r}
}

func okGenerator() generation.Generator {
	return generation.GeneratorFunc(func(_ context.Context, req generation.Request) (*domain.Metadata, error) {
		return &domain.Metadata{
			Title:       "Title " + string(req.Image),
			Description: "Description",
			Keywords:    []string{"cat", "dog"},
		}, nil
	})
}

// blockingGenerator holds every call until release is closed or the call
// is cancelled.
func blockingGenerator(release <-chan struct{}) generation.Generator {
	return generation.GeneratorFunc(func(ctx context.Context, _ generation.Request) (*domain.Metadata, error) {
		select {
		case <-release:
			return &domain.Metadata{Title: "T", Description: "D", Keywords: []string{"k"}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, files []upload, contextHint string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+FormFieldImages+`"; filename="`+f.name+`"`)
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	if contextHint != "" {
		require.NoError(t, mw.WriteField(FormFieldContext, contextHint))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (f *fixture) submit(t *testing.T, names ...string) []JobResponse {
	t.Helper()

	files := make([]upload, 0, len(names))
	for _, n := range names {
		files = append(files, upload{name: n, contentType: "image/jpeg", data: []byte(n)})
	}
	body, contentType := multipartBody(t, files, "")

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp JobListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Jobs
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func waitForStatus(t *testing.T, f *fixture, id string, want domain.JobStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, job := range f.svc.Jobs() {
			if job.ID.String() == id {
				return job.Status() == want
			}
		}
		return false
	}, 5*time.Second, 2*time.Millisecond)
}
