package trigger

import (
	"sync"
	"sync/atomic"
)

// Queue is a bounded, newest-wins event queue. Publish never blocks: when the
// queue is full the oldest unconsumed event is dropped. A single consumer
// waits on Ready and then calls Pop until it reports false.
type Queue struct {
	mu     sync.Mutex
	events []Event
	size   int
	ready  chan struct{}
	drops  atomic.Uint64
	onDrop func(Event)
}

// NewQueue returns a queue holding at most size events (minimum 1).
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		events: make([]Event, 0, size),
		size:   size,
		ready:  make(chan struct{}, 1),
	}
}

// OnDrop registers a callback invoked (outside the lock) for every dropped event.
// It must be set before the queue is shared.
func (q *Queue) OnDrop(fn func(Event)) {
	q.onDrop = fn
}

// Publish enqueues ev, evicting the oldest event when full.
func (q *Queue) Publish(ev Event) {
	q.mu.Lock()
	var dropped *Event
	if len(q.events) == q.size {
		old := q.events[0]
		dropped = &old
		copy(q.events, q.events[1:])
		q.events = q.events[:len(q.events)-1]
	}
	q.events = append(q.events, ev)
	q.mu.Unlock()

	if dropped != nil {
		q.drops.Add(1)
		if q.onDrop != nil {
			q.onDrop(*dropped)
		}
	}

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled whenever an event has been published since the last receive.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Pop removes and returns the oldest event.
func (q *Queue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return Event{}, false
	}
	ev := q.events[0]
	copy(q.events, q.events[1:])
	q.events = q.events[:len(q.events)-1]
	return ev, true
}

// Drain discards every queued event and returns how many were dropped.
func (q *Queue) Drain() int {
	select {
	case <-q.ready:
	default:
	}

	q.mu.Lock()
	n := len(q.events)
	q.events = q.events[:0]
	q.mu.Unlock()
	return n
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drops returns the number of events evicted because the queue was full.
func (q *Queue) Drops() uint64 {
	return q.drops.Load()
}
