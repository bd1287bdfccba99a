// Package dispatch provides the single main execution context that all
// observable viewer state is mutated on, plus cancelable delayed work.
package dispatch

import (
	"sync"
	"time"
)

// Scheduler runs closures on one logical goroutine. Post and After may be
// called from any goroutine; the closures they schedule never run concurrently.
type Scheduler interface {
	// Post queues fn to run on the main context.
	Post(fn func())
	// After runs fn on the main context once d has elapsed, unless the
	// returned item is canceled first.
	After(d time.Duration, fn func()) *WorkItem
	// Now is the scheduler's clock.
	Now() time.Time
}

// WorkItem is a handle to delayed work. The zero value and nil are valid and
// behave as an already-canceled item.
type WorkItem struct {
	mu       sync.Mutex
	fn       func()
	done     bool
	canceled bool
	stop     func() bool
}

func newWorkItem(fn func()) *WorkItem {
	return &WorkItem{fn: fn}
}

// Cancel prevents the work from running. Canceling an item that already ran
// or was already canceled is a no-op.
func (w *WorkItem) Cancel() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done || w.canceled {
		return
	}
	w.canceled = true
	w.fn = nil
	if w.stop != nil {
		w.stop()
	}
}

// Pending reports whether the work is still waiting to run.
func (w *WorkItem) Pending() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.done && !w.canceled
}

// fire runs the work if it was not canceled. Called on the main context.
func (w *WorkItem) fire() {
	w.mu.Lock()
	if w.done || w.canceled {
		w.mu.Unlock()
		return
	}
	w.done = true
	fn := w.fn
	w.fn = nil
	w.mu.Unlock()
	fn()
}
