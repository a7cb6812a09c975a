package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/stockmeta/internal/events"
	"github.com/phrazzld/stockmeta/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readEventTypes collects "event:" lines until want have been seen or the
// stream ends.
func readEventTypes(t *testing.T, scanner *bufio.Scanner, want ...string) []string {
	t.Helper()

	var seen []string
	pending := map[string]bool{}
	for _, w := range want {
		pending[w] = true
	}
	for len(pending) > 0 && scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "event: ") {
			continue
		}
		typ := strings.TrimPrefix(line, "event: ")
		seen = append(seen, typ)
		delete(pending, typ)
	}
	return seen
}

func TestEventsStream(t *testing.T) {
	t.Parallel()
	f := newFixture(t, okGenerator())

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	seen := readEventTypes(t, scanner, EventTypeStatus)
	require.Equal(t, []string{EventTypeStatus}, seen)

	_, err = f.svc.SubmitImages(ctx, []service.ImageUpload{
		{Filename: "a.jpg", MIMEType: "image/jpeg", Data: []byte("a")},
	}, "")
	require.NoError(t, err)
	_, err = f.svc.RunAllEligible(ctx)
	require.NoError(t, err)

	seen = readEventTypes(t, scanner, events.TypeJobCreated, events.TypeBatchStarted, events.TypeBatchFinished)
	assert.Contains(t, seen, events.TypeJobCreated)
	assert.Contains(t, seen, events.TypeJobUpdated)
	assert.Contains(t, seen, events.TypeBatchFinished)
}

func TestEventsStreamUnregistersOnDisconnect(t *testing.T) {
	t.Parallel()
	f := newFixture(t, okGenerator())

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)

	scanner := bufio.NewScanner(resp.Body)
	readEventTypes(t, scanner, EventTypeStatus)
	assert.Equal(t, 1, f.emitter.HandlerCount())

	cancel()
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		return f.emitter.HandlerCount() == 0
	}, 5*time.Second, 5*time.Millisecond)
}
