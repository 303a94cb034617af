// Package queue provides the shared task queue feeding all credential
// workers.
//
// The queue is multi-producer/multi-consumer safe. Put never blocks as
// long as the queue was sized for the full task set, which the
// orchestrator knows up front. Consumers use Get with a timeout and,
// on timeout, re-check Len before exiting: a worker must not retire
// while another goroutine is mid-insert of an asynchronously
// discovered retry.
package queue

import (
	"errors"
	"time"
)

// ErrFull is returned by Put when the queue's capacity is exhausted.
var ErrFull = errors.New("queue: capacity exhausted")

// Queue is a bounded-buffer task queue. The zero value is not usable;
// call New.
type Queue[T any] struct {
	ch chan T
}

// New creates a queue able to hold capacity tasks without blocking.
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Put enqueues a task without blocking. Put must not be called after
// Close.
func (q *Queue[T]) Put(task T) error {
	select {
	case q.ch <- task:
		return nil
	default:
		return ErrFull
	}
}

// Get waits up to timeout for a task. ok reports whether a task was
// received; drained reports that the queue was closed and emptied, the
// signal for a consumer to retire.
func (q *Queue[T]) Get(timeout time.Duration) (task T, ok bool, drained bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case task, ok = <-q.ch:
		if !ok {
			var zero T
			return zero, false, true
		}
		return task, true, false
	case <-timer.C:
		var zero T
		return zero, false, false
	}
}

// Len reports the number of tasks currently queued. Used by consumers
// for the emptiness double-check after a Get timeout.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Close signals that no further tasks will be enqueued. Consumers
// drain the remaining tasks and then observe the drained signal.
func (q *Queue[T]) Close() {
	close(q.ch)
}
