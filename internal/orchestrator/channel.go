// File: internal/orchestrator/channel.go
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
)

// Run is the caller's handle on one in-flight task. Events must be drained
// until the channel closes; the producer applies backpressure rather than
// dropping events when the consumer lags.
type Run struct {
	Task Task

	events chan Event
	done   chan struct{}

	cancel    context.CancelFunc
	abortOnce sync.Once
	aborted   atomic.Bool

	terminal atomic.Pointer[Event]
	cleanup  func()
}

// Events is the ordered, single-consumer stream of this run's events. The
// channel closes after the terminal event.
func (r *Run) Events() <-chan Event { return r.events }

// Done closes when the run goroutine has fully exited.
func (r *Run) Done() <-chan struct{} { return r.done }

// Abort requests cancellation. Idempotent: no matter how many times it is
// called, the run emits exactly one aborted event. Any device action already
// in flight finishes but its outcome is discarded.
func (r *Run) Abort() {
	r.abortOnce.Do(func() {
		r.aborted.Store(true)
		r.cancel()
	})
}

// Aborted reports whether cancellation was requested.
func (r *Run) Aborted() bool { return r.aborted.Load() }

// Terminal returns the terminal event once the run has finished, nil before.
func (r *Run) Terminal() Event {
	if e := r.terminal.Load(); e != nil {
		return *e
	}
	return nil
}

// emit blocks until the consumer accepts the event. Events are never dropped:
// each one encodes a state transition the consumer must observe.
func (r *Run) emit(e Event) {
	if IsTerminal(e) {
		r.terminal.Store(&e)
	}
	r.events <- e
}
