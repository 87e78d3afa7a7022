package dispatch

import (
	"errors"
	"sync/atomic"
	"time"

	"bandwatch/internal/model"
)

var ErrQueueFull = errors.New("dispatch queue full")

// Queue is a bounded FIFO of dispatch tasks. Enqueue never blocks: when the
// queue is at capacity the task is dropped and counted.
type Queue struct {
	ch      chan model.DispatchTask
	dropped atomic.Uint64
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan model.DispatchTask, capacity)}
}

func (q *Queue) Enqueue(task model.DispatchTask) bool {
	select {
	case q.ch <- task:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dequeue waits up to timeout for a task. ok is false on timeout.
func (q *Queue) Dequeue(timeout time.Duration) (model.DispatchTask, bool) {
	return q.dequeue(timeout, nil)
}

// dequeue also returns early once stop is closed.
func (q *Queue) dequeue(timeout time.Duration, stop <-chan struct{}) (model.DispatchTask, bool) {
	select {
	case task := <-q.ch:
		return task, true
	default:
	}
	if timeout <= 0 {
		return model.DispatchTask{}, false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case task := <-q.ch:
		return task, true
	case <-timer.C:
	case <-stop:
	}
	return model.DispatchTask{}, false
}

func (q *Queue) Len() int {
	return len(q.ch)
}

func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Dropped reports how many tasks were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
