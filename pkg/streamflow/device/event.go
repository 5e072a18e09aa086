package device

import "sync"

// Event is a one-shot synchronization point between queues. One queue
// signals the event after producing a result; any number of other queues
// wait on it before consuming. Events cannot be reset.
type Event struct {
	once sync.Once
	done chan struct{}
}

// NewEvent creates an unsignaled event.
func NewEvent() *Event {
	return &Event{done: make(chan struct{})}
}

// Signal marks the event complete and releases all waiters. Signaling
// more than once is a no-op.
func (e *Event) Signal() {
	e.once.Do(func() {
		close(e.done)
	})
}

// Wait blocks until the event is signaled.
func (e *Event) Wait() {
	<-e.done
}

// Done returns a channel closed when the event is signaled, for use in
// select statements.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// Signaled reports whether the event has been signaled, without blocking.
func (e *Event) Signaled() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}
