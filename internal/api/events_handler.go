package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/phrazzld/stockmeta/internal/api/shared"
	"github.com/phrazzld/stockmeta/internal/events"
	"github.com/phrazzld/stockmeta/internal/platform/logger"
)

// EventTypeStatus is the first event of every stream. Its payload is the
// current BatchStatus.
const EventTypeStatus = "status"

const (
	defaultHeartbeat  = 15 * time.Second
	streamBufferSize  = 64
	sseContentType    = "text/event-stream"
	droppedEventsWarn = "event stream too slow; events dropped"
)

// EventSource lets a stream subscribe to pipeline events.
type EventSource interface {
	RegisterHandler(handler events.EventHandler) (unregister func())
}

// EventsHandler streams job and batch events as Server-Sent Events.
type EventsHandler struct {
	source    EventSource
	service   BatchService
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewEventsHandler creates a new EventsHandler. A non-positive heartbeat
// selects the default of 15 seconds.
func NewEventsHandler(source EventSource, svc BatchService, heartbeat time.Duration, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for EventsHandler")
	}
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &EventsHandler{
		source:    source,
		service:   svc,
		heartbeat: heartbeat,
		logger:    logger.With(slog.String("component", "events_handler")),
	}
}

// Stream handles GET /api/events. Events are delivered to the client in
// emission order; a client that cannot keep up loses events rather than
// slowing the pipeline down.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	log := logger.FromContext(r.Context())

	ch := make(chan *events.Event, streamBufferSize)
	var dropped atomic.Int64
	unregister := h.source.RegisterHandler(events.HandlerFunc(func(ctx context.Context, event *events.Event) error {
		select {
		case ch <- event:
		default:
			dropped.Add(1)
		}
		return nil
	}))
	defer unregister()

	w.Header().Set("Content-Type", sseContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	initial, err := events.NewEvent(EventTypeStatus, h.service.Status())
	if err == nil {
		if err := writeEvent(w, initial); err != nil {
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			if n := dropped.Load(); n > 0 {
				log.WarnContext(r.Context(), droppedEventsWarn, slog.Int64("dropped", n))
			}
			return
		case event := <-ch:
			if err := writeEvent(w, event); err != nil {
				log.DebugContext(r.Context(), "event stream closed", "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event *events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
	return err
}
