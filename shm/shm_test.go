package shm

import (
	"context"
	"testing"
	"time"
)

func TestBoundedQueue_PushAndDrain(t *testing.T) {
	q := NewBoundedQueue[int](2)

	if !q.TryPush(1) {
		t.Fatal("expected push to succeed")
	}
	if !q.TryPush(2) {
		t.Fatal("expected push to succeed")
	}
	if q.TryPush(3) {
		t.Fatal("expected push to fail, queue at capacity")
	}

	q.Close()

	var got []int
	for v := range q.Chan() {
		got = append(got, v)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("unexpected drained items %v", got)
	}
}

func TestBoundedQueue_Len(t *testing.T) {
	q := NewBoundedQueue[string](4)
	q.Push("a")
	q.Push("b")
	if q.Len() != 2 {
		t.Errorf("expected len 2, got %d", q.Len())
	}
}

func TestPool_AcquireRelease(t *testing.T) {
	p := NewPool([]int{10, 20, 30})

	if p.Available() != 3 {
		t.Fatalf("expected 3 available, got %d", p.Available())
	}

	idx, v, err := p.Acquire(t.Context())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if p.Available() != 2 {
		t.Errorf("expected 2 available after acquire, got %d", p.Available())
	}

	p.Release(idx, v+1)

	if p.Available() != 3 {
		t.Errorf("expected 3 available after release, got %d", p.Available())
	}

	idx2, v2, ok := p.TryAcquire()
	if !ok {
		t.Fatal("expected TryAcquire to succeed")
	}
	if idx2 == idx && v2 != v+1 {
		t.Errorf("expected released value to persist, got %d", v2)
	}
}

func TestPool_ExhaustedBlocksUntilRelease(t *testing.T) {
	p := NewPool([]int{1})

	idx, v, err := p.Acquire(t.Context())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, _, ok := p.TryAcquire(); ok {
		t.Fatal("expected pool to be exhausted")
	}

	done := make(chan struct{})
	go func() {
		p.Release(idx, v)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("release did not complete")
	}

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	if _, _, err := p.Acquire(ctx); err != nil {
		t.Fatalf("expected acquire to succeed after release, got %v", err)
	}
}

func TestPool_DoubleReleasePanics(t *testing.T) {
	p := NewPool([]int{1})
	idx, v, err := p.Acquire(t.Context())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(idx, v)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on double release")
		}
	}()
	p.Release(idx, v)
}

func TestPool_AcquireRespectsContextCancellation(t *testing.T) {
	p := NewPool([]int{1})
	if _, _, err := p.Acquire(t.Context()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	if _, _, err := p.Acquire(ctx); err == nil {
		t.Fatal("expected error when pool stays exhausted past deadline")
	}
}
