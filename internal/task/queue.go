package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Common errors returned by the DispatchQueue
var (
	ErrQueueClosed = errors.New("dispatch queue is closed")
	ErrQueueFull   = errors.New("dispatch queue is full")
)

// DispatchQueue is a buffered FIFO of job ids awaiting admission.
type DispatchQueue struct {
	ids    chan uuid.UUID
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// NewDispatchQueue creates a new queue with the specified buffer size
func NewDispatchQueue(size int, logger *slog.Logger) *DispatchQueue {
	return &DispatchQueue{
		ids:    make(chan uuid.UUID, size),
		logger: logger,
	}
}

// Enqueue adds a job id to the queue.
// Returns an error if the queue is full or closed
func (q *DispatchQueue) Enqueue(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ids <- id:
		q.logger.Debug("job enqueued",
			"job_id", id,
			"queue_len", len(q.ids),
			"queue_cap", cap(q.ids))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.ids))
	}
}

// Close closes the queue, preventing further submission. Ids already
// enqueued can still be received.
func (q *DispatchQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ids)
	}
}

// GetChannel returns a read-only channel for consuming job ids
func (q *DispatchQueue) GetChannel() <-chan uuid.UUID {
	return q.ids
}
