package viewer

import (
	"log/slog"
	"time"

	"multiangle-viewer/internal/dispatch"
	"multiangle-viewer/internal/sdk"
)

const (
	// DefaultHeadInterval is the minimum gap between playback head deliveries.
	DefaultHeadInterval = 500 * time.Millisecond
	// DefaultReadyDebounce smooths ready-for-playback oscillation.
	DefaultReadyDebounce = 500 * time.Millisecond
)

type workerOptions struct {
	streamID      string
	sched         dispatch.Scheduler
	log           *slog.Logger
	headInterval  time.Duration
	readyDebounce time.Duration
	onState       func(TimeShiftState)
	onHead        func(time.Duration)
}

// TimeShiftWorker owns one SDK time-shift session. Every method must be
// called on the main queue; SDK callbacks are posted there before they
// touch state.
type TimeShiftWorker struct {
	opts      workerOptions
	log       *slog.Logger
	ts        sdk.TimeShift
	throttler *dispatch.Throttler
	debouncer *dispatch.Debouncer

	state TimeShiftState

	statusSubs []sdk.Disposable
	headSub    sdk.Disposable
	seekSub    sdk.Disposable
	limitSub   sdk.Disposable
	seekGen    int
	disposed   bool
}

// NewTimeShiftWorker creates a time-shift session on r starting at act.
// It fails with ErrNotSeekable, creating nothing, if r cannot seek.
func NewTimeShiftWorker(r sdk.Renderer, act Act, opts workerOptions) (*TimeShiftWorker, error) {
	if opts.log == nil {
		opts.log = slog.Default()
	}
	log := opts.log.With(slog.String("component", "timeshift"), slog.String("stream_id", opts.streamID))
	if !r.IsSeekable() {
		log.Debug("renderer is not seekable, time-shift not created")
		return nil, ErrNotSeekable
	}
	if opts.headInterval <= 0 {
		opts.headInterval = DefaultHeadInterval
	}
	if opts.readyDebounce <= 0 {
		opts.readyDebounce = DefaultReadyDebounce
	}
	w := &TimeShiftWorker{
		opts:      opts,
		log:       log,
		throttler: dispatch.NewThrottler(opts.sched, opts.headInterval),
		debouncer: dispatch.NewDebouncer(opts.sched, opts.readyDebounce),
		state:     TimeShiftStarting,
	}
	log.Debug("starting time-shift", slog.String("act", act.Title), slog.Int64("offset_ms", act.OffsetMillis()))
	w.ts = r.Seek(act.Offset)
	return w, nil
}

// State returns the current session state.
func (w *TimeShiftWorker) State() TimeShiftState {
	return w.state
}

// SubscribeStatusEvents starts listening for readiness, failure and end.
func (w *TimeShiftWorker) SubscribeStatusEvents() {
	if w.disposed || len(w.statusSubs) > 0 {
		return
	}
	w.log.Debug("subscribing to time-shift status")
	w.statusSubs = append(w.statusSubs,
		w.ts.ObserveReadyForPlayback(func(ready bool) {
			w.post(func() {
				w.debouncer.Run(func() { w.readinessChanged(ready) })
			})
		}),
		w.ts.ObserveFailure(func(status sdk.RequestStatus) {
			w.post(func() { w.failureReported(status) })
		}),
		w.ts.ObserveEnded(func(ended bool) {
			w.post(func() { w.endedChanged(ended) })
		}),
	)
}

// ObservePlaybackHead starts delivering throttled head offsets.
func (w *TimeShiftWorker) ObservePlaybackHead() {
	if w.disposed || w.headSub != nil {
		return
	}
	w.headSub = w.ts.ObservePlaybackHead(func(head time.Time) {
		w.post(func() { w.headChanged(head) })
	})
}

// StopObservingPlaybackHead stops head deliveries.
func (w *TimeShiftWorker) StopObservingPlaybackHead() {
	if w.headSub != nil {
		w.headSub.Dispose()
		w.headSub = nil
	}
}

// Seek pauses the session and requests playback from offset after the
// beginning of the recording. The state is seeking until the SDK answers.
func (w *TimeShiftWorker) Seek(offset time.Duration) {
	if w.disposed {
		return
	}
	w.setState(TimeShiftSeeking)
	w.debouncer.Cancel()
	w.ts.Pause()
	if w.seekSub != nil {
		w.seekSub.Dispose()
		w.seekSub = nil
	}
	w.seekGen++
	gen := w.seekGen
	w.log.Debug("seeking", slog.Int64("offset_ms", offset.Milliseconds()))
	w.seekSub = w.ts.Seek(offset, func(status sdk.RequestStatus) {
		w.post(func() { w.seekAcknowledged(gen, status) })
	})
}

// Play starts playback. It is a no-op unless the session is ready to play
// or paused.
func (w *TimeShiftWorker) Play() bool {
	if w.disposed || (w.state != TimeShiftReadyToPlay && w.state != TimeShiftPaused) {
		w.log.Debug("time-shift not ready, ignoring play", slog.String("state", w.state.String()))
		return false
	}
	w.setState(TimeShiftPlaying)
	w.ts.Play()
	return true
}

// Pause holds playback. It is a no-op unless the session is playing or
// ready to play.
func (w *TimeShiftWorker) Pause() bool {
	if w.disposed || (w.state != TimeShiftPlaying && w.state != TimeShiftReadyToPlay) {
		w.log.Debug("time-shift not playing, ignoring pause", slog.String("state", w.state.String()))
		return false
	}
	w.setState(TimeShiftPaused)
	w.ts.Pause()
	return true
}

// Stop halts the session. With forceFailure the session is marked failed
// and later readiness signals are ignored. No-op once failed or ended.
func (w *TimeShiftWorker) Stop(forceFailure bool) {
	if w.disposed || w.state.Failed() || w.state == TimeShiftEnded {
		w.log.Debug("time-shift not running, ignoring stop", slog.String("state", w.state.String()))
		return
	}
	w.debouncer.Cancel()
	// stop before publishing: a forced failure may dispose this worker
	w.ts.Stop()
	if forceFailure {
		w.setState(TimeShiftFailedForced)
	} else {
		w.setState(TimeShiftReadyToPlay)
	}
}

// LimitBandwidth caps the session at bps, replacing any earlier cap. Zero
// lifts the cap.
func (w *TimeShiftWorker) LimitBandwidth(bps int64) {
	if w.disposed {
		return
	}
	if w.limitSub != nil {
		w.limitSub.Dispose()
		w.limitSub = nil
	}
	if bps > 0 {
		w.limitSub = w.ts.LimitBandwidth(bps)
	}
}

// Dispose releases every SDK registration and the session. Safe to call
// more than once.
func (w *TimeShiftWorker) Dispose() {
	if w.disposed {
		return
	}
	w.disposed = true
	w.log.Debug("disposing time-shift")
	w.debouncer.Cancel()
	for _, d := range w.statusSubs {
		d.Dispose()
	}
	w.statusSubs = nil
	w.StopObservingPlaybackHead()
	if w.seekSub != nil {
		w.seekSub.Dispose()
		w.seekSub = nil
	}
	if w.limitSub != nil {
		w.limitSub.Dispose()
		w.limitSub = nil
	}
	w.ts.Dispose()
}

func (w *TimeShiftWorker) post(fn func()) {
	w.opts.sched.Post(func() {
		if w.disposed {
			return
		}
		fn()
	})
}

func (w *TimeShiftWorker) setState(s TimeShiftState) {
	if s == w.state {
		return
	}
	w.log.Debug("time-shift state changed", slog.String("from", w.state.String()), slog.String("to", s.String()))
	w.state = s
	if w.opts.onState != nil {
		w.opts.onState(s)
	}
}

func (w *TimeShiftWorker) readinessChanged(ready bool) {
	switch {
	case w.state.Failed():
		// failures stick until the session is re-created
		return
	case w.state == TimeShiftSeeking:
		// the seek acknowledgement decides
		return
	case w.state == TimeShiftEnded:
		return
	case ready && (w.state == TimeShiftPlaying || w.state == TimeShiftPaused):
		return
	}
	if ready {
		w.setState(TimeShiftReadyToPlay)
	} else {
		w.setState(TimeShiftStarting)
	}
}

func (w *TimeShiftWorker) seekAcknowledged(gen int, status sdk.RequestStatus) {
	if gen != w.seekGen || w.state != TimeShiftSeeking {
		return
	}
	w.log.Debug("seek acknowledged", slog.String("status", status.String()))
	if status == sdk.StatusOK {
		w.setState(TimeShiftReadyToPlay)
		return
	}
	w.setState(TimeShiftFailed)
}

func (w *TimeShiftWorker) failureReported(status sdk.RequestStatus) {
	if status == sdk.StatusOK || w.state.Failed() {
		return
	}
	w.log.Warn("time-shift failure reported", slog.String("status", status.String()))
	w.debouncer.Cancel()
	w.setState(TimeShiftFailed)
}

func (w *TimeShiftWorker) endedChanged(ended bool) {
	if !ended {
		return
	}
	w.setState(TimeShiftEnded)
}

func (w *TimeShiftWorker) headChanged(head time.Time) {
	switch w.state {
	case TimeShiftReadyToPlay, TimeShiftPlaying, TimeShiftPaused:
	default:
		return
	}
	w.throttler.Run(func() {
		if w.opts.onHead != nil {
			w.opts.onHead(head.Sub(w.ts.StartTime()))
		}
	})
}
