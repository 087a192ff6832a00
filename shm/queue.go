// Package shm provides the bounded, shared-memory-shaped concurrency
// primitives the rest of the platform is built from: a bounded work queue
// and a fixed-size slot pool. Both are expressed as buffered channels
// rather than the semaphore-and-shared-memory-segment constructs the
// original system used, since a goroutine and a channel already give the
// same bounded-capacity, multi-producer/multi-consumer guarantees.
package shm

import "context"

// BoundedQueue is a fixed-capacity FIFO queue of work items, backed by a
// buffered channel. Push blocks once the queue is full (PushCtx until ctx
// is done),
// giving the same backpressure a fixed-size job queue gives the worker
// pool without needing a separate "queue full" error path.
type BoundedQueue[T any] struct {
	ch chan T
}

// NewBoundedQueue creates a queue with room for depth pending items.
func NewBoundedQueue[T any](depth int) *BoundedQueue[T] {
	if depth <= 0 {
		depth = 1
	}
	return &BoundedQueue[T]{ch: make(chan T, depth)}
}

// TryPush attempts to enqueue item without blocking. Returns false if the
// queue is full.
func (q *BoundedQueue[T]) TryPush(item T) bool {
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// Push enqueues item, blocking until space is available.
func (q *BoundedQueue[T]) Push(item T) {
	q.ch <- item
}

// PushCtx enqueues item, blocking until space is available or ctx is
// done.
func (q *BoundedQueue[T]) PushCtx(ctx context.Context, item T) error {
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Chan exposes the underlying channel for range-based consumption.
func (q *BoundedQueue[T]) Chan() <-chan T {
	return q.ch
}

// Close closes the queue. No further items may be pushed; consumers
// ranging over Chan() drain remaining items then stop.
func (q *BoundedQueue[T]) Close() {
	close(q.ch)
}

// Len returns the number of items currently buffered.
func (q *BoundedQueue[T]) Len() int {
	return len(q.ch)
}
