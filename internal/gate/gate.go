// Package gate bounds how many job executions may run at the same time.
//
// A Gate is a counting semaphore with an advisory, non reserving HasCapacity
// check. Admission has no fairness guarantee besides eventual admission.
package gate

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

type Gate struct {
	capacity int
	sem      *semaphore.Weighted
	inUse    atomic.Int64
}

// New creates a gate with given number of slots. Capacity lower than 1 is
// treated as 1.
func New(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		capacity: capacity,
		sem:      semaphore.NewWeighted(int64(capacity)),
	}
}

// Admit blocks until a slot is free or ctx is done. The returned release
// function must be called once the work is finished, calling it more than
// once is a no-op.
func (g *Gate) Admit(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	g.inUse.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			g.inUse.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

// Do runs fn while holding a slot. The slot is released on every return
// path of fn, panics included.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	release, err := g.Admit(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// HasCapacity reports whether a slot is free right now. It neither blocks
// nor reserves, so a following Admit may still wait.
func (g *Gate) HasCapacity() bool {
	return g.inUse.Load() < int64(g.capacity)
}

func (g *Gate) InUse() int {
	return int(g.inUse.Load())
}

func (g *Gate) Capacity() int {
	return g.capacity
}
