package task

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/store"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestStore() *store.JobRecordStore {
	return store.NewJobRecordStore(store.NewPreviewRegistry(), nil, testLogger())
}

// addJobs submits one pending job per filename and returns their ids in
// submission order.
func addJobs(t *testing.T, s *store.JobRecordStore, filenames ...string) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(filenames))
	jobs := make([]domain.Job, 0, len(filenames))
	for _, name := range filenames {
		job, err := domain.NewJob(domain.SourceRef{
			Filename: name,
			MIMEType: "image/jpeg",
			Data:     []byte(name),
		}, "")
		require.NoError(t, err)
		jobs = append(jobs, job)
		ids = append(ids, job.ID)
	}
	require.NoError(t, s.Add(context.Background(), jobs...))
	return ids
}

func mustGet(t *testing.T, s *store.JobRecordStore, id uuid.UUID) domain.Job {
	t.Helper()
	job, err := s.Get(id)
	require.NoError(t, err)
	return job
}

func sampleMetadata(name string) *domain.Metadata {
	return &domain.Metadata{
		Title:       "Title for " + name,
		Description: "Description for " + name,
		Keywords:    []string{"one", "two"},
	}
}
