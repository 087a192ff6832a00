package shm

import (
	"context"
	"fmt"
	"sync"

	"github.com/woofstack/platform/errs"
)

// Pool is a fixed-size set of slots holding values of type T, such as
// pre-created result-log leases. Slots are acquired by index and must be
// released exactly once; releasing an index that isn't currently held is a
// programming error and panics rather than silently corrupting the free
// list.
type Pool[T any] struct {
	slots []T
	free  chan int

	mu     sync.Mutex
	taken  map[int]bool
}

// NewPool creates a pool from a pre-populated slice of values, one slot
// per element. All slots start free.
func NewPool[T any](values []T) *Pool[T] {
	p := &Pool[T]{
		slots: values,
		free:  make(chan int, len(values)),
		taken: make(map[int]bool, len(values)),
	}
	for i := range values {
		p.free <- i
	}
	return p
}

// Acquire blocks until a slot is free (or ctx is done) and returns its
// index and value.
func (p *Pool[T]) Acquire(ctx context.Context) (int, T, error) {
	var zero T
	select {
	case idx := <-p.free:
		p.mu.Lock()
		p.taken[idx] = true
		p.mu.Unlock()
		return idx, p.slots[idx], nil
	case <-ctx.Done():
		return 0, zero, errs.Service("shm.Pool.Acquire", ctx.Err())
	}
}

// TryAcquire attempts a non-blocking acquire. ok is false if no slot is
// currently free.
func (p *Pool[T]) TryAcquire() (idx int, value T, ok bool) {
	select {
	case idx := <-p.free:
		p.mu.Lock()
		p.taken[idx] = true
		p.mu.Unlock()
		return idx, p.slots[idx], true
	default:
		var zero T
		return 0, zero, false
	}
}

// Release returns idx to the free list, optionally updating its stored
// value first. Panics if idx is not currently held — a double release
// indicates a bug in the caller's lease bookkeeping, not a recoverable
// runtime condition.
func (p *Pool[T]) Release(idx int, value T) {
	p.mu.Lock()
	if !p.taken[idx] {
		p.mu.Unlock()
		panic(fmt.Sprintf("shm.Pool: release of slot %d that is not held", idx))
	}
	delete(p.taken, idx)
	p.slots[idx] = value
	p.mu.Unlock()

	p.free <- idx
}

// Len returns the total number of slots in the pool.
func (p *Pool[T]) Len() int {
	return len(p.slots)
}

// Available returns the number of currently free slots.
func (p *Pool[T]) Available() int {
	return len(p.free)
}
