// Package outbox provides an unbounded, concurrency-safe FIFO queue with a
// blocking, cancellable wait for its consumer. It backs the outbound message
// queue of a duplex socket session.
package outbox

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// Queue is an unbounded first-in-first-out queue of elements of type T.
// Push never blocks and never fails. Any number of goroutines may push;
// Wait and Remove are meant for a single consumer at a time.
type Queue[T any] struct {
	mu    sync.Mutex
	items *queue.Queue
	ready chan struct{}
}

// New creates and returns a new empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: queue.New(),
		ready: make(chan struct{}, 1),
	}
}

// Push appends an element to the tail of the queue and wakes the consumer
// if it is waiting.
//
// Parameters:
//   - value: The element to append
func (q *Queue[T]) Push(value T) {
	q.mu.Lock()
	q.items.Add(value)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Peek returns the element at the head of the queue without removing it.
//
// Returns:
//   - The head element, or the zero value of T if the queue is empty
//   - true if an element was present, false otherwise
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() == 0 {
		var zero T
		return zero, false
	}

	return q.items.Peek().(T), true
}

// Remove removes and returns the element at the head of the queue.
//
// Returns:
//   - The removed element, or the zero value of T if the queue is empty
//   - true if an element was removed, false otherwise
func (q *Queue[T]) Remove() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() == 0 {
		var zero T
		return zero, false
	}

	return q.items.Remove().(T), true
}

// Wait blocks until the queue is non-empty and returns the head element
// without removing it. The element stays queued until Remove is called, so a
// consumer that fails to process it leaves it in place.
//
// Parameters:
//   - ctx: Context whose cancellation aborts the wait
//
// Returns:
//   - The head element
//   - ctx.Err() if the context is done before an element is available
func (q *Queue[T]) Wait(ctx context.Context) (T, error) {
	for {
		if v, ok := q.Peek(); ok {
			return v, nil
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Clear removes all queued elements and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.items.Length()
	q.items = queue.New()
	return n
}
