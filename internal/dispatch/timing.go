package dispatch

import (
	"time"

	"golang.org/x/time/rate"
)

// Debouncer runs only the last of a burst of calls, once delay has passed
// without a new call. Run must be called on the main context.
type Debouncer struct {
	sched   Scheduler
	delay   time.Duration
	pending *WorkItem
}

// NewDebouncer returns a Debouncer that schedules on s.
func NewDebouncer(s Scheduler, delay time.Duration) *Debouncer {
	return &Debouncer{sched: s, delay: delay}
}

// Run replaces any pending call with fn.
func (d *Debouncer) Run(fn func()) {
	d.pending.Cancel()
	d.pending = d.sched.After(d.delay, fn)
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.pending.Cancel()
	d.pending = nil
}

// Throttler lets the first call through and then at most one call per
// interval, dropping the rest.
type Throttler struct {
	clock   func() time.Time
	limiter *rate.Limiter
}

// NewThrottler returns a Throttler reading time from s.
func NewThrottler(s Scheduler, interval time.Duration) *Throttler {
	return &Throttler{
		clock:   s.Now,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Run calls fn if the interval since the last accepted call has elapsed.
// It reports whether fn ran.
func (t *Throttler) Run(fn func()) bool {
	if !t.limiter.AllowN(t.clock(), 1) {
		return false
	}
	fn()
	return true
}
