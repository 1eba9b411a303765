// Package queue provides the thread-safe FIFO behind the race timeline. A
// bounded queue is a ring that keeps only the most recent items.
package queue

import "sync"

// Queue is a generic thread-safe FIFO.
type Queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // index of the oldest item in buf
	size     int
	capacity int // 0 means unbounded
	evicted  int
}

// New creates an empty, unbounded queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// NewBounded creates a queue holding at most capacity items; pushing onto a
// full queue evicts the oldest item. A capacity below one means unbounded.
func NewBounded[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		return New[T]()
	}
	return &Queue[T]{buf: make([]T, capacity), capacity: capacity}
}

// index maps the i-th oldest item to its slot in buf.
func (q *Queue[T]) index(i int) int {
	if q.capacity == 0 {
		return q.head + i
	}
	return (q.head + i) % q.capacity
}

// Push appends items in order.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range items {
		q.push(item)
	}
}

func (q *Queue[T]) push(item T) {
	switch {
	case q.capacity == 0:
		q.buf = append(q.buf, item)
		q.size++
	case q.size == q.capacity:
		q.buf[q.head] = item
		q.head = (q.head + 1) % q.capacity
		q.evicted++
	default:
		q.buf[q.index(q.size)] = item
		q.size++
	}
}

// Pop removes and returns the oldest item, or the zero value when empty.
func (q *Queue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 {
		return zero
	}
	i := q.index(0)
	item := q.buf[i]
	q.buf[i] = zero
	q.size--

	if q.capacity == 0 {
		q.head++
		switch {
		case q.size == 0:
			q.buf, q.head = q.buf[:0], 0
		case q.head*2 > len(q.buf):
			// popped slots outnumber live ones; move the live items down
			q.buf, q.head = append([]T(nil), q.buf[q.head:]...), 0
		}
	} else {
		q.head = (q.head + 1) % q.capacity
	}
	return item
}

// Last returns the most recently pushed item without removing it.
func (q *Queue[T]) Last() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.buf[q.index(q.size-1)], true
}

// Items returns a copy of the queued items, oldest first.
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items()
}

func (q *Queue[T]) items() []T {
	out := make([]T, q.size)
	for i := range out {
		out[i] = q.buf[q.index(i)]
	}
	return out
}

// Evicted returns how many items were dropped for capacity since the last Clear.
func (q *Queue[T]) Evicted() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

// Empty reports whether the queue has no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Clear removes all items and resets the eviction count.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reset()
	q.evicted = 0
}

// Drain returns all items, oldest first, and empties the queue. The
// eviction count is kept.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items()
	q.reset()
	return out
}

func (q *Queue[T]) reset() {
	if q.capacity == 0 {
		q.buf = nil
	} else {
		clear(q.buf)
	}
	q.head, q.size = 0, 0
}
