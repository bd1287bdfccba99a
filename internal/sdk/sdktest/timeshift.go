package sdktest

import (
	"sync"
	"time"

	"multiangle-viewer/internal/sdk"
)

type registry[T any] struct {
	mu   sync.Mutex
	next int
	cbs  map[int]func(T)
}

func (r *registry[T]) add(cb func(T)) sdk.Disposable {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cbs == nil {
		r.cbs = map[int]func(T){}
	}
	id := r.next
	r.next++
	r.cbs[id] = cb
	return sdk.DisposeFunc(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.cbs, id)
	})
}

func (r *registry[T]) emit(v T) {
	r.mu.Lock()
	cbs := make([]func(T), 0, len(r.cbs))
	for _, cb := range r.cbs {
		cbs = append(cbs, cb)
	}
	r.mu.Unlock()
	for _, cb := range cbs {
		cb(v)
	}
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cbs)
}

type limits struct {
	mu     sync.Mutex
	next   int
	values map[int]int64
}

func (l *limits) add(bps int64) sdk.Disposable {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.values == nil {
		l.values = map[int]int64{}
	}
	id := l.next
	l.next++
	l.values[id] = bps
	return sdk.DisposeFunc(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.values, id)
	})
}

func (l *limits) active() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int64, 0, len(l.values))
	for _, v := range l.values {
		out = append(out, v)
	}
	return out
}

// SeekRequest is a pending TimeShift.Seek call.
type SeekRequest struct {
	Offset   time.Duration
	mu       sync.Mutex
	cb       func(sdk.RequestStatus)
	disposed bool
}

// Ack completes the seek with status unless it was disposed.
func (s *SeekRequest) Ack(status sdk.RequestStatus) {
	s.mu.Lock()
	cb := s.cb
	if s.disposed {
		cb = nil
	}
	s.cb = nil
	s.mu.Unlock()
	if cb != nil {
		cb(status)
	}
}

// Disposed reports whether the caller dropped the seek subscription.
func (s *SeekRequest) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// TimeShift is a fake sdk.TimeShift.
type TimeShift struct {
	Offset time.Duration
	start  time.Time

	ready   registry[bool]
	head    registry[time.Time]
	failure registry[sdk.RequestStatus]
	ended   registry[bool]
	limits  limits

	mu       sync.Mutex
	seeks    []*SeekRequest
	plays    int
	pauses   int
	stops    int
	disposed bool
}

// NewTimeShift returns a session created at offset.
func NewTimeShift(offset time.Duration) *TimeShift {
	return &TimeShift{Offset: offset, start: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// StartTime implements sdk.TimeShift.
func (t *TimeShift) StartTime() time.Time { return t.start }

// ObserveReadyForPlayback implements sdk.TimeShift.
func (t *TimeShift) ObserveReadyForPlayback(cb func(bool)) sdk.Disposable { return t.ready.add(cb) }

// ObservePlaybackHead implements sdk.TimeShift.
func (t *TimeShift) ObservePlaybackHead(cb func(time.Time)) sdk.Disposable { return t.head.add(cb) }

// ObserveFailure implements sdk.TimeShift.
func (t *TimeShift) ObserveFailure(cb func(sdk.RequestStatus)) sdk.Disposable {
	return t.failure.add(cb)
}

// ObserveEnded implements sdk.TimeShift.
func (t *TimeShift) ObserveEnded(cb func(bool)) sdk.Disposable { return t.ended.add(cb) }

// Seek implements sdk.TimeShift.
func (t *TimeShift) Seek(offset time.Duration, cb func(sdk.RequestStatus)) sdk.Disposable {
	req := &SeekRequest{Offset: offset, cb: cb}
	t.mu.Lock()
	t.seeks = append(t.seeks, req)
	t.mu.Unlock()
	return sdk.DisposeFunc(func() {
		req.mu.Lock()
		defer req.mu.Unlock()
		req.disposed = true
	})
}

// Seeks returns every Seek call in order.
func (t *TimeShift) Seeks() []*SeekRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*SeekRequest(nil), t.seeks...)
}

// LastSeek returns the most recent Seek call or nil.
func (t *TimeShift) LastSeek() *SeekRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.seeks) == 0 {
		return nil
	}
	return t.seeks[len(t.seeks)-1]
}

// Play implements sdk.TimeShift.
func (t *TimeShift) Play() { t.count(&t.plays) }

// Pause implements sdk.TimeShift.
func (t *TimeShift) Pause() { t.count(&t.pauses) }

// Stop implements sdk.TimeShift.
func (t *TimeShift) Stop() { t.count(&t.stops) }

// LimitBandwidth implements sdk.TimeShift.
func (t *TimeShift) LimitBandwidth(bps int64) sdk.Disposable { return t.limits.add(bps) }

// ActiveLimits lists limits that have not been disposed.
func (t *TimeShift) ActiveLimits() []int64 { return t.limits.active() }

// Dispose implements sdk.TimeShift.
func (t *TimeShift) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposed = true
}

// Disposed reports whether Dispose was called.
func (t *TimeShift) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// Plays counts Play calls.
func (t *TimeShift) Plays() int { return t.read(&t.plays) }

// Pauses counts Pause calls.
func (t *TimeShift) Pauses() int { return t.read(&t.pauses) }

// Stops counts Stop calls.
func (t *TimeShift) Stops() int { return t.read(&t.stops) }

// Observers counts live observer registrations of every kind.
func (t *TimeShift) Observers() int {
	return t.ready.len() + t.head.len() + t.failure.len() + t.ended.len()
}

// SetReady fires the ready-for-playback observers.
func (t *TimeShift) SetReady(ready bool) { t.ready.emit(ready) }

// SetHead fires the playback head observers with start+offset.
func (t *TimeShift) SetHead(offset time.Duration) { t.head.emit(t.start.Add(offset)) }

// Fail fires the failure observers.
func (t *TimeShift) Fail(status sdk.RequestStatus) { t.failure.emit(status) }

// End fires the ended observers.
func (t *TimeShift) End() { t.ended.emit(true) }

func (t *TimeShift) count(n *int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	*n++
}

func (t *TimeShift) read(n *int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *n
}
