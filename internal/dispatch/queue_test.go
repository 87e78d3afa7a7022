package dispatch

import (
	"testing"
	"time"

	"bandwatch/internal/model"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(3)
	for i := int64(1); i <= 3; i++ {
		if !q.Enqueue(model.DispatchTask{EventID: i}) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	for i := int64(1); i <= 3; i++ {
		task, ok := q.Dequeue(10 * time.Millisecond)
		if !ok || task.EventID != i {
			t.Fatalf("expected %d, got %d (ok=%v)", i, task.EventID, ok)
		}
	}
}

func TestQueueOverflowDrops(t *testing.T) {
	q := NewQueue(2)
	q.Enqueue(model.DispatchTask{EventID: 1})
	q.Enqueue(model.DispatchTask{EventID: 2})

	start := time.Now()
	for i := 0; i < 100; i++ {
		if q.Enqueue(model.DispatchTask{EventID: int64(10 + i)}) {
			t.Fatalf("enqueue beyond capacity succeeded")
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("enqueue on full queue took %s", elapsed)
	}
	if q.Dropped() != 100 {
		t.Fatalf("expected 100 drops, got %d", q.Dropped())
	}
	if q.Len() != 2 || q.Cap() != 2 {
		t.Fatalf("len=%d cap=%d", q.Len(), q.Cap())
	}
}

func TestQueueDequeueTimeout(t *testing.T) {
	q := NewQueue(1)
	start := time.Now()
	if _, ok := q.Dequeue(30 * time.Millisecond); ok {
		t.Fatalf("expected timeout on empty queue")
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("dequeue returned too early: %s", elapsed)
	}
}

func TestQueueDequeueStops(t *testing.T) {
	q := NewQueue(1)
	stop := make(chan struct{})
	close(stop)
	start := time.Now()
	if _, ok := q.dequeue(time.Minute, stop); ok {
		t.Fatalf("expected no task")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("dequeue ignored stop")
	}
}
