package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultQueueSize = 256

// Queue is the production Scheduler: a buffered channel drained by the
// goroutine that calls Run.
type Queue struct {
	log   *slog.Logger
	work  chan func()
	done  chan struct{}
	close sync.Once
}

// NewQueue returns a Queue. Nothing runs until Run is called.
func NewQueue(log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		log:  log,
		work: make(chan func(), defaultQueueSize),
		done: make(chan struct{}),
	}
}

// Post implements Scheduler. Work posted after Stop is dropped.
func (q *Queue) Post(fn func()) {
	select {
	case <-q.done:
		return
	default:
	}
	select {
	case q.work <- fn:
	case <-q.done:
	}
}

// After implements Scheduler.
func (q *Queue) After(d time.Duration, fn func()) *WorkItem {
	item := newWorkItem(fn)
	t := time.AfterFunc(d, func() {
		q.Post(item.fire)
	})
	item.stop = t.Stop
	return item
}

// Now implements Scheduler.
func (q *Queue) Now() time.Time {
	return time.Now()
}

// Run drains the queue until ctx is done or Stop is called.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.Stop()
			return nil
		case <-q.done:
			return nil
		case fn := <-q.work:
			q.run(fn)
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (q *Queue) Stop() {
	q.close.Do(func() { close(q.done) })
}

func (q *Queue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("main queue task panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

// Call runs fn on s and waits for it to finish or for ctx to end.
func Call(ctx context.Context, s Scheduler, fn func()) error {
	done := make(chan struct{})
	s.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
