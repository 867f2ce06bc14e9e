// Package executor provides bounded admission for backend calls.
//
// An Executor owns a fixed number of slots. Callers beyond the limit wait in
// arrival order and are admitted as slots free up. The executor never inspects
// or swallows operation errors; it only manages admission.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Operation is a unit of work admitted by the Executor.
type Operation func(ctx context.Context) error

// Executor limits the number of operations running at once.
type Executor struct {
	sem      *semaphore.Weighted
	max      int
	timeout  time.Duration
	inFlight atomic.Int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithCallTimeout bounds each admitted operation. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// New creates an Executor with max slots. Values below 1 are clamped to 1.
func New(max int, opts ...Option) *Executor {
	if max < 1 {
		max = 1
	}
	e := &Executor{
		sem: semaphore.NewWeighted(int64(max)),
		max: max,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Max returns the number of slots.
func (e *Executor) Max() int {
	return e.max
}

// InFlight returns the number of operations currently holding a slot.
func (e *Executor) InFlight() int {
	return int(e.inFlight.Load())
}

// Run waits for a slot, runs op, and releases the slot on every exit path.
// If ctx is done while waiting, op never runs and ctx.Err() is returned.
func (e *Executor) Run(ctx context.Context, name string, op Operation) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)

	e.inFlight.Add(1)
	defer e.inFlight.Add(-1)

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	err := op(callCtx)
	if err != nil && e.timeout > 0 && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%s timed out after %s: %w", name, e.timeout, err)
	}
	return err
}

// Do runs op through e and returns its value.
func Do[T any](ctx context.Context, e *Executor, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Run(ctx, name, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
