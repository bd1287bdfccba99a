package dispatch

import (
	"sort"
	"sync"
	"time"
)

// Manual is a virtual-time Scheduler. Posted work runs on Flush and timers
// fire on Advance, both on the caller's goroutine.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	pending []func()
	timers  []*manualTimer
	seq     int
}

type manualTimer struct {
	at   time.Time
	seq  int
	item *WorkItem
}

// NewManual returns a Manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Post implements Scheduler.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.pending = append(m.pending, fn)
	m.mu.Unlock()
}

// After implements Scheduler.
func (m *Manual) After(d time.Duration, fn func()) *WorkItem {
	item := newWorkItem(fn)
	m.mu.Lock()
	m.seq++
	m.timers = append(m.timers, &manualTimer{at: m.now.Add(d), seq: m.seq, item: item})
	m.mu.Unlock()
	return item
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Flush runs posted work, including work posted while flushing.
func (m *Manual) Flush() {
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()
		fn()
	}
}

// Advance moves the clock forward by d, firing due timers in deadline order
// and flushing after each one.
func (m *Manual) Advance(d time.Duration) {
	m.Flush()
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		if next.at.After(m.now) {
			m.now = next.at
		}
		m.mu.Unlock()
		next.item.fire()
		m.Flush()
	}
}

// PendingTimers counts timers that have neither fired nor been canceled.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if t.item.Pending() {
			n++
		}
	}
	return n
}

func (m *Manual) nextDueLocked(target time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if t.item.Pending() {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.Slice(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	if len(m.timers) == 0 || m.timers[0].at.After(target) {
		return nil
	}
	t := m.timers[0]
	m.timers = m.timers[1:]
	return t
}
