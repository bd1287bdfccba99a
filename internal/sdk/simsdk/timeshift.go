package simsdk

import (
	"sync"
	"time"

	"multiangle-viewer/internal/sdk"
)

type observers[T any] struct {
	mu   sync.Mutex
	next int
	cbs  map[int]func(T)
}

func (o *observers[T]) add(cb func(T)) sdk.Disposable {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cbs == nil {
		o.cbs = make(map[int]func(T))
	}
	id := o.next
	o.next++
	o.cbs[id] = cb
	return sdk.DisposeFunc(func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.cbs, id)
	})
}

func (o *observers[T]) emit(v T) {
	o.mu.Lock()
	cbs := make([]func(T), 0, len(o.cbs))
	for _, cb := range o.cbs {
		cbs = append(cbs, cb)
	}
	o.mu.Unlock()
	for _, cb := range cbs {
		cb(v)
	}
}

func (o *observers[T]) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cbs = nil
}

// timeShift plays a recording of cfg.Length from a position, advancing the
// head every tick while playing.
type timeShift struct {
	r     *renderer
	cfg   Config
	start time.Time

	ready   observers[bool]
	head    observers[time.Time]
	failure observers[sdk.RequestStatus]
	ended   observers[bool]

	mu       sync.Mutex
	pos      time.Duration
	playing  bool
	done     bool
	disposed bool
	ticker   *time.Ticker
	stopTick chan struct{}
	timers   []*time.Timer
}

func newTimeShift(r *renderer, offset time.Duration) *timeShift {
	t := &timeShift{
		r:     r,
		cfg:   r.cfg,
		start: time.Now().Add(-r.cfg.Length),
		pos:   offset,
	}
	t.after(r.cfg.LoadDelay, func() { t.ready.emit(true) })
	return t
}

// after runs fn once d has passed unless the session is disposed by then.
func (t *timeShift) after(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	t.timers = append(t.timers, time.AfterFunc(d, func() {
		t.mu.Lock()
		disposed := t.disposed
		t.mu.Unlock()
		if !disposed {
			fn()
		}
	}))
}

func (t *timeShift) StartTime() time.Time { return t.start }

func (t *timeShift) ObserveReadyForPlayback(cb func(bool)) sdk.Disposable { return t.ready.add(cb) }

func (t *timeShift) ObservePlaybackHead(cb func(time.Time)) sdk.Disposable { return t.head.add(cb) }

func (t *timeShift) ObserveFailure(cb func(sdk.RequestStatus)) sdk.Disposable {
	return t.failure.add(cb)
}

func (t *timeShift) ObserveEnded(cb func(bool)) sdk.Disposable { return t.ended.add(cb) }

func (t *timeShift) Seek(offset time.Duration, cb func(sdk.RequestStatus)) sdk.Disposable {
	var mu sync.Mutex
	canceled := false
	t.after(t.cfg.SeekDelay, func() {
		mu.Lock()
		skip := canceled
		mu.Unlock()
		if skip {
			return
		}
		t.mu.Lock()
		if offset > t.cfg.Length {
			offset = t.cfg.Length
		}
		t.pos = offset
		t.done = false
		t.mu.Unlock()
		cb(sdk.StatusOK)
	})
	return sdk.DisposeFunc(func() {
		mu.Lock()
		defer mu.Unlock()
		canceled = true
	})
}

func (t *timeShift) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed || t.playing {
		return
	}
	t.playing = true
	t.ticker = time.NewTicker(t.cfg.Tick)
	t.stopTick = make(chan struct{})
	go t.run(t.ticker, t.stopTick)
}

func (t *timeShift) run(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !t.advance() {
				return
			}
		}
	}
}

// advance moves the head by one tick. It returns false once playback ended.
func (t *timeShift) advance() bool {
	t.mu.Lock()
	if !t.playing || t.disposed {
		t.mu.Unlock()
		return false
	}
	t.pos += t.cfg.Tick
	pos := t.pos
	ended := pos >= t.cfg.Length && !t.done
	if ended {
		t.done = true
		t.stopLocked()
	}
	t.mu.Unlock()

	t.head.emit(t.start.Add(pos))
	t.r.render(pos)
	if ended {
		t.ended.emit(true)
		return false
	}
	return true
}

func (t *timeShift) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *timeShift) Stop() {
	t.Pause()
}

func (t *timeShift) stopLocked() {
	if !t.playing {
		return
	}
	t.playing = false
	t.ticker.Stop()
	close(t.stopTick)
}

func (t *timeShift) LimitBandwidth(int64) sdk.Disposable { return sdk.DisposeFunc(nil) }

func (t *timeShift) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	t.stopLocked()
	for _, tm := range t.timers {
		tm.Stop()
	}
	t.timers = nil
	t.mu.Unlock()
	t.ready.reset()
	t.head.reset()
	t.failure.reset()
	t.ended.reset()
}
