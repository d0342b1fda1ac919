// Copyright 2025 James Ross
package eventproc

import (
	"sync"

	"github.com/flyingrobots/event-analytics-engine/internal/eventsdb"
)

// eventQueue is the analytics hand-off between CreateEvent and Run. Go
// channels have no native unbounded variant, so the default (unbounded)
// queue is a mutex-guarded slice with a condition variable; Push on it
// never fails. WithQueueCapacity swaps in a boundedQueue backed by a plain
// buffered channel, where Push reports false on a full queue instead of
// blocking.
type eventQueue interface {
	push(e eventsdb.Event) bool
	pop() (eventsdb.Event, bool) // blocks until an item is available or close()
	close()
}

type unboundedQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []eventsdb.Event
	closed bool
}

func newUnboundedQueue() *unboundedQueue {
	q := &unboundedQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *unboundedQueue) push(e eventsdb.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, e)
	q.cond.Signal()
	return true
}

func (q *unboundedQueue) pop() (eventsdb.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return eventsdb.Event{}, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}

func (q *unboundedQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

type boundedQueue struct {
	mu     sync.RWMutex
	closed bool
	ch     chan eventsdb.Event
}

func newBoundedQueue(capacity int) *boundedQueue {
	return &boundedQueue{ch: make(chan eventsdb.Event, capacity)}
}

func (q *boundedQueue) push(e eventsdb.Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- e:
		return true
	default:
		return false
	}
}

func (q *boundedQueue) pop() (eventsdb.Event, bool) {
	e, ok := <-q.ch
	return e, ok
}

func (q *boundedQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
