// Package queue implements the in-memory FIFO job queue and the typed
// handler registry that dispatches from it.
package queue

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
)

// Item is the unit of work carried by the queue. It references the
// durable job record by ID; the record, not the item, is the source of
// truth for job status.
type Item struct {
	JobID      string
	Type       model.JobType
	Payload    json.RawMessage
	EnqueuedAt time.Time
}

// DefaultCapacity is the buffered channel size used when no capacity is
// configured.
const DefaultCapacity = 1024

// Queue is an in-memory FIFO queue with one intended consumer.
//
// Enqueue never blocks the producer and never drops: when the buffered
// channel is full, items spill to an overflow list that is drained back
// into the channel in order. Ordering is guaranteed per producer; items
// from concurrent producers interleave arbitrarily.
//
// Construct queues explicitly and pass them to their producers and
// consumer; there is no package-level instance.
type Queue struct {
	ch chan Item

	mu       sync.Mutex
	overflow []Item
	closed   bool
}

// New creates a queue with the given channel capacity. A non-positive
// capacity uses DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		ch: make(chan Item, capacity),
	}
}

// Enqueue adds an item to the queue. It never blocks; it returns false
// only after Close.
func (q *Queue) Enqueue(item Item) bool {
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	// Once anything has spilled, new items must queue behind it to keep
	// FIFO order.
	if len(q.overflow) == 0 {
		select {
		case q.ch <- item:
			return true
		default:
		}
	}
	q.overflow = append(q.overflow, item)
	q.fill()
	return true
}

// Dequeue blocks up to timeout for the next item. The second return is
// false when the timeout elapsed, or immediately when the queue is
// closed and drained.
func (q *Queue) Dequeue(timeout time.Duration) (Item, bool) {
	q.mu.Lock()
	q.fill()
	drained := q.closed && len(q.ch) == 0 && len(q.overflow) == 0
	q.mu.Unlock()

	if drained {
		return Item{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-q.ch:
		q.mu.Lock()
		q.fill()
		q.mu.Unlock()
		return item, true
	case <-timer.C:
		return Item{}, false
	}
}

// TryDequeue returns the next item without blocking.
func (q *Queue) TryDequeue() (Item, bool) {
	q.mu.Lock()
	q.fill()
	q.mu.Unlock()

	select {
	case item := <-q.ch:
		q.mu.Lock()
		q.fill()
		q.mu.Unlock()
		return item, true
	default:
		return Item{}, false
	}
}

// Depth returns the number of items currently queued.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + len(q.overflow)
}

// Close stops accepting new items. Queued items can still be dequeued;
// once drained, Dequeue returns without waiting out its timeout.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// fill moves overflow items into the channel while space remains.
// Callers must hold q.mu.
func (q *Queue) fill() {
	for len(q.overflow) > 0 {
		select {
		case q.ch <- q.overflow[0]:
			q.overflow = q.overflow[1:]
		default:
			return
		}
	}
	q.overflow = nil
}
