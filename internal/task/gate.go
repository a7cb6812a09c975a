package task

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// AdmissionGate bounds the number of jobs running at once. A slot is taken
// before a job is dispatched and given back when its runner returns.
type AdmissionGate struct {
	sem      *semaphore.Weighted
	limit    int
	inFlight atomic.Int64
}

// NewAdmissionGate creates a gate with limit slots. limit must be positive.
func NewAdmissionGate(limit int) *AdmissionGate {
	return &AdmissionGate{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *AdmissionGate) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	// Acquire may succeed after ctx is done; admission must still stop.
	if err := ctx.Err(); err != nil {
		g.sem.Release(1)
		return err
	}
	g.inFlight.Add(1)
	return nil
}

// Release gives back a slot taken by Acquire.
func (g *AdmissionGate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// InFlight returns the number of slots currently held.
func (g *AdmissionGate) InFlight() int {
	return int(g.inFlight.Load())
}

// Limit returns the gate size.
func (g *AdmissionGate) Limit() int {
	return g.limit
}
