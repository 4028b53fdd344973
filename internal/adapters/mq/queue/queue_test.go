package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/worksight/internal/domain/model"
)

func capture(ref string) model.Capture {
	return model.Capture{Ref: ref, Kind: model.SourceScreenshot, CapturedAt: time.Now()}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Cap(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if !q.Enqueue(ctx, capture("shot1.png"), 0) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	it, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("expected dequeue to succeed, got %v", err)
	}
	if it.Ref != "shot1.png" {
		t.Errorf("expected shot1.png, got %v", it.Ref)
	}
	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_DefaultCapacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(-5))
	if c := q.Cap(); c != defaultQueueCapacity {
		t.Errorf("expected default capacity %d, got %d", defaultQueueCapacity, c)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, capture("a"), 0) || !q.Enqueue(ctx, capture("b"), 0) {
		t.Fatal("expected enqueue to succeed")
	}

	start := time.Now()
	if q.Enqueue(ctx, capture("c"), 30*time.Millisecond) {
		t.Error("expected enqueue to fail when full")
	}
	if waited := time.Since(start); waited < 30*time.Millisecond {
		t.Errorf("expected enqueue to wait for the timeout, waited %s", waited)
	}
	if l := q.Len(); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_EnqueueWaitsForSpace(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx := context.Background()
	_ = q.Enqueue(ctx, capture("a"), 0)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = q.Dequeue(ctx, time.Second)
	}()

	if !q.Enqueue(ctx, capture("b"), time.Second) {
		t.Error("expected enqueue to succeed once space was freed")
	}
}

func TestInMemoryQueue_DequeueTimeoutAndCancel(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))

	if _, err := q.Dequeue(context.Background(), 10*time.Millisecond); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	numProducers := 10
	numItems := 100

	var producers sync.WaitGroup
	for i := 0; i < numProducers; i++ {
		producers.Add(1)
		go func(id int) {
			defer producers.Done()
			for j := 0; j < numItems; j++ {
				for !q.Enqueue(ctx, capture(fmt.Sprintf("shot%d_%d", id, j)), 10*time.Millisecond) {
				}
			}
		}(i)
	}

	consumed := 0
	done := make(chan struct{})
	go func() {
		for consumed < numProducers*numItems {
			if _, err := q.Dequeue(ctx, time.Second); err == nil {
				consumed++
			}
		}
		close(done)
	}()

	producers.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer did not drain the queue, consumed %d", consumed)
	}

	if l := q.Len(); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, capture("a"), 0) || !q.Enqueue(ctx, capture("b"), 0) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, capture("c"), time.Second) {
		t.Error("expected enqueue to fail after closing")
	}

	// Items queued before Close remain available, then ErrClosed.
	for _, want := range []string{"a", "b"} {
		it, err := q.Dequeue(ctx, time.Second)
		if err != nil || it.Ref != want {
			t.Errorf("expected %s, got %v (%v)", want, it.Ref, err)
		}
	}
	if _, err := q.Dequeue(ctx, time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}
