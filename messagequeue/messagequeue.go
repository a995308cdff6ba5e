// Package messagequeue implements an unbounded FIFO queue that connects one
// producer goroutine to one consumer.
//
// New() creates a queue.
//
// Push(item) adds an item to the back of the queue.  It never blocks, so a
// slow consumer never holds up the producer.
//
// Pop(ctx) removes the item at the front of the queue, waiting for one if
// the queue is empty.  Once the queue is closed and drained, Pop returns
// false.
//
// Close() tells the consumer that no more items will arrive.
package messagequeue

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO queue.  It's safe against asynchronous access.
type Queue[T any] struct {
	mutex  sync.Mutex
	items  []T
	closed bool
	// ready holds a token while the queue has something for the consumer:
	// an item or the news that it's closed.
	ready chan struct{}
}

// New creates a queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Push adds an item to the back of the queue.  Pushing to a closed queue
// does nothing and returns false.
func (q *Queue[T]) Push(item T) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)
	q.notify()
	return true
}

// Close marks the end of the items.  Items already in the queue can still
// be popped.
func (q *Queue[T]) Close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.closed = true
	q.notify()
}

// notify wakes the consumer.  The mutex must be held.
func (q *Queue[T]) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
		// There's already a token waiting.
	}
}

// TryPop removes the item at the front of the queue if there is one.  It
// never blocks.
func (q *Queue[T]) TryPop() (item T, ok bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.items) == 0 {
		return item, false
	}

	item = q.items[0]
	var zero T
	q.items[0] = zero // Let the garbage collector have it.
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// Start again with a fresh slice rather than creeping along the old one.
		q.items = nil
	}

	return item, true
}

// Pop removes the item at the front of the queue, waiting until there is
// one.  It returns false when the queue is closed and empty or when ctx is
// done.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	for {
		if item, ok := q.TryPop(); ok {
			return item, true
		}

		if q.Closed() {
			// An item may have arrived just before the close.
			return q.TryPop()
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// Closed is true once Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.closed
}

// Len returns the number of items waiting.
func (q *Queue[T]) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}
