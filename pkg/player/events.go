// ABOUTME: Non-blocking event queue shared by adapter implementations
// ABOUTME: Drops events rather than stalling a backend's callback goroutine
package player

import "sync"

const defaultQueueSize = 32

// EventQueue buffers adapter events for the engine
type EventQueue struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewEventQueue creates a queue; size <= 0 uses the default
func NewEventQueue(size int) *EventQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &EventQueue{ch: make(chan Event, size)}
}

// Push enqueues an event. It reports false when the queue is full or closed.
func (q *EventQueue) Push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	select {
	case q.ch <- ev:
		return true
	default:
		return false
	}
}

// C returns the receive side
func (q *EventQueue) C() <-chan Event {
	return q.ch
}

// Close closes the receive side; later pushes are dropped
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
