package pool

import (
	"sync"
	"time"

	"github.com/roach88/plog/internal/record"
)

// queue is a thread-safe FIFO of records with optional capacity.
//
// Capacity 0 means unbounded: Enqueue never blocks. With a capacity,
// Enqueue blocks the producer until a slot frees or the queue is closed.
//
// The queue counts unfinished records: a record stays unfinished from
// Enqueue until the consumer calls Done, so Unfinished reaches zero only
// once every dequeued record has been fully executed.
//
// Waiting uses buffered signal channels of size 1; every state change that
// may leave work for another waiter re-arms the signal.
type queue struct {
	mu         sync.Mutex
	records    []*record.Record
	capacity   int
	unfinished int
	closed     bool
	available  chan struct{} // records may be available
	space      chan struct{} // a slot may be free
}

// newQueue creates an empty queue. capacity 0 is unbounded.
func newQueue(capacity int) *queue {
	return &queue{
		records:   make([]*record.Record, 0, 64),
		capacity:  capacity,
		available: make(chan struct{}, 1),
		space:     make(chan struct{}, 1),
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Enqueue appends r, blocking while the queue is full.
// Returns false if the queue is closed.
func (q *queue) Enqueue(r *record.Record) bool {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return false
		}
		if q.capacity == 0 || len(q.records) < q.capacity {
			q.records = append(q.records, r)
			q.unfinished++
			notify(q.available)
			if q.capacity != 0 && len(q.records) < q.capacity {
				notify(q.space)
			}
			q.mu.Unlock()
			return true
		}
		q.mu.Unlock()

		<-q.space
	}
}

// TryDequeue removes the front record without blocking.
func (q *queue) TryDequeue() (*record.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return nil, false
	}

	r := q.records[0]
	// Clear the slot so the backing array does not retain the record.
	q.records[0] = nil
	if len(q.records) == 1 {
		q.records = q.records[:0]
	} else {
		q.records = q.records[1:]
	}

	if len(q.records) > 0 {
		notify(q.available)
	}
	if q.capacity != 0 {
		notify(q.space)
	}
	return r, true
}

// DequeueTimeout waits up to d for a record.
// Returns (nil, false) on timeout or when the queue is closed and empty.
func (q *queue) DequeueTimeout(d time.Duration) (*record.Record, bool) {
	if r, ok := q.TryDequeue(); ok {
		return r, true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case _, ok := <-q.available:
			if r, got := q.TryDequeue(); got {
				return r, true
			}
			if !ok {
				return nil, false
			}
		case <-timer.C:
			return nil, false
		}
	}
}

// Done marks one dequeued record as finished.
func (q *queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished > 0 {
		q.unfinished--
	}
}

// Len returns the number of queued records.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Unfinished returns queued plus in-flight records.
func (q *queue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Close rejects further enqueues and wakes every waiter.
func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.available)
	close(q.space)
}
