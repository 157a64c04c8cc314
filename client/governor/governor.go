// Package governor bounds how many fetches run at once.
package governor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrInvalidLimit is returned by New for a non-positive limit.
var ErrInvalidLimit = errors.New("max tasks must be greater than zero")

// Governor hands out at most Limit slots. Waiters are admitted in
// arrival order.
type Governor struct {
	sem   *semaphore.Weighted
	limit int64
	inUse atomic.Int64
}

// New returns a Governor with maxTasks slots.
func New(maxTasks int) (*Governor, error) {
	if maxTasks <= 0 {
		return nil, fmt.Errorf("max tasks[%d]: %w", maxTasks, ErrInvalidLimit)
	}

	g := Governor{
		sem:   semaphore.NewWeighted(int64(maxTasks)),
		limit: int64(maxTasks),
	}

	return &g, nil
}

// Acquire blocks until a slot is free or ctx ends. On success the
// caller must call Release exactly once.
func (g *Governor) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.inUse.Add(1)

	return nil
}

// TryAcquire takes a slot without blocking and reports whether it did.
func (g *Governor) TryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.inUse.Add(1)

	return true
}

// Release returns a slot.
func (g *Governor) Release() {
	g.inUse.Add(-1)
	g.sem.Release(1)
}

// Do runs fn while holding a slot. The slot is released however fn
// returns.
func (g *Governor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()

	return fn(ctx)
}

// InUse is the number of slots currently held.
func (g *Governor) InUse() int {
	return int(g.inUse.Load())
}

// Available is the number of free slots.
func (g *Governor) Available() int {
	return int(g.limit - g.inUse.Load())
}

// Limit is the configured slot count.
func (g *Governor) Limit() int {
	return int(g.limit)
}
