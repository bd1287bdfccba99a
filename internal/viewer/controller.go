package viewer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"multiangle-viewer/internal/dispatch"
	"multiangle-viewer/internal/sdk"
)

// ControllerHooks receives controller output on the main queue.
type ControllerHooks struct {
	OnState func(PlaybackState)
	OnHead  func(time.Duration)
	OnError func(error)
}

// StreamActController supervises the time-shift worker of one stream. It
// re-creates the worker when the act changes or a session fails, detects
// stalled sessions and exposes a simplified playback state.
type StreamActController struct {
	streamID string
	opts     Options
	log      *slog.Logger
	hooks    ControllerHooks
	renderer sdk.Renderer

	act     Act
	worker  *TimeShiftWorker
	state   PlaybackState
	backoff *backoff.ConstantBackOff

	timeout *dispatch.WorkItem
	retry   *dispatch.WorkItem

	bandwidth     int64
	attempts      int
	exhausted     bool
	subscribed    bool
	observingHead bool
	disposed      bool
}

// NewStreamActController creates the first worker for act right away.
// Must be called on the main queue.
func NewStreamActController(streamID string, r sdk.Renderer, act Act, opts Options, hooks ControllerHooks) *StreamActController {
	opts = opts.withDefaults()
	c := &StreamActController{
		streamID: streamID,
		opts:     opts,
		log:      opts.Logger.With(slog.String("component", "act_controller"), slog.String("stream_id", streamID)),
		hooks:    hooks,
		renderer: r,
		act:      act,
		backoff:  backoff.NewConstantBackOff(opts.RetryBackoff),
	}
	c.setupTimeShift()
	return c
}

// State returns the stream-facing playback state.
func (c *StreamActController) State() PlaybackState { return c.state }

// Act returns the act the current worker was created or seeked for.
func (c *StreamActController) Act() Act { return c.act }

// Attempts is the number of sessions created since the last successful one.
func (c *StreamActController) Attempts() int { return c.attempts }

// Exhausted reports whether the controller gave up on the stream.
func (c *StreamActController) Exhausted() bool { return c.exhausted }

// Subscribe starts listening for worker status events, now and after every
// re-creation.
func (c *StreamActController) Subscribe() {
	c.subscribed = true
	if c.worker != nil {
		c.worker.SubscribeStatusEvents()
	}
}

// Set tears the worker down and rebuilds it at act.
func (c *StreamActController) Set(act Act) {
	if c.disposed {
		return
	}
	c.log.Debug("set act", slog.String("act", act.Title))
	c.act = act
	c.resetRetries()
	c.setupTimeShift()
}

// Seek moves the current session to act. A failed or missing session is
// rebuilt instead, with a fresh retry budget.
func (c *StreamActController) Seek(act Act) {
	if c.disposed {
		return
	}
	c.opts.Metrics.IncSeeks()
	if c.worker == nil || c.state == PlaybackFailure {
		c.Set(act)
		return
	}
	c.act = act
	c.worker.Seek(act.Offset)
}

// Play starts playback if the session is ready.
func (c *StreamActController) Play() bool {
	if c.worker == nil || c.state == PlaybackFailure {
		return false
	}
	return c.worker.Play()
}

// Pause holds playback.
func (c *StreamActController) Pause() bool {
	if c.worker == nil {
		return false
	}
	return c.worker.Pause()
}

// LimitBandwidth caps the time-shift session at bps, now and after every
// re-creation. Zero lifts the cap.
func (c *StreamActController) LimitBandwidth(bps int64) {
	c.bandwidth = bps
	if c.worker != nil {
		c.worker.LimitBandwidth(bps)
	}
}

// StartObservingPlaybackHead delivers head offsets through OnHead, now and
// after every re-creation.
func (c *StreamActController) StartObservingPlaybackHead() {
	c.observingHead = true
	if c.worker != nil && c.state != PlaybackFailure {
		c.worker.ObservePlaybackHead()
	}
}

// StopObservingPlaybackHead stops head deliveries.
func (c *StreamActController) StopObservingPlaybackHead() {
	c.observingHead = false
	if c.worker != nil {
		c.worker.StopObservingPlaybackHead()
	}
}

// Dispose releases the worker and pending timers. Idempotent.
func (c *StreamActController) Dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	c.timeout.Cancel()
	c.retry.Cancel()
	c.disposeWorker()
}

func (c *StreamActController) disposeWorker() {
	if c.worker != nil {
		c.worker.Dispose()
		c.worker = nil
	}
}

func (c *StreamActController) resetRetries() {
	c.retry.Cancel()
	c.attempts = 0
	c.exhausted = false
	c.backoff.Reset()
}

func (c *StreamActController) setupTimeShift() {
	if c.disposed {
		return
	}
	c.retry.Cancel()
	c.disposeWorker()
	c.attempts++
	c.log.Debug("setting up time-shift", slog.String("act", c.act.Title), slog.Int("attempt", c.attempts))
	c.emitHead(0)

	worker, err := NewTimeShiftWorker(c.renderer, c.act, workerOptions{
		streamID:      c.streamID,
		sched:         c.opts.Scheduler,
		log:           c.opts.Logger,
		headInterval:  c.opts.HeadInterval,
		readyDebounce: c.opts.ReadyDebounce,
		onState:       c.workerStateChanged,
		onHead:        c.emitHead,
	})
	if err != nil {
		c.log.Warn("time-shift could not be created", slog.String("error", err.Error()))
		c.timeout.Cancel()
		c.exhausted = true
		c.setState(PlaybackFailure)
		c.emitError(err)
		return
	}
	c.worker = worker
	// the state hook may not fire if the previous state was already loading
	c.setState(PlaybackLoading)
	c.armTimeout()
	if c.bandwidth > 0 {
		worker.LimitBandwidth(c.bandwidth)
	}
	if c.subscribed {
		worker.SubscribeStatusEvents()
	}
	if c.observingHead {
		worker.ObservePlaybackHead()
	}
}

func (c *StreamActController) workerStateChanged(s TimeShiftState) {
	switch {
	case s.Failed():
		c.timeout.Cancel()
		c.handleFailure(s == TimeShiftFailedForced)
		return
	case s == TimeShiftReadyToPlay:
		c.attempts = 0
		c.backoff.Reset()
	}
	c.setState(playbackStateFor(s))
	if c.state == PlaybackLoading {
		c.armTimeout()
	} else {
		c.timeout.Cancel()
	}
}

func (c *StreamActController) handleFailure(forced bool) {
	c.opts.Metrics.IncTimeShiftFailures(forced)
	cause := ErrTimeShiftFailure
	if forced {
		cause = ErrConnectionTimeout
	}
	c.dropHeadObserver()
	c.setState(PlaybackFailure)

	delay := backoff.Stop
	if c.attempts < c.opts.RetryMaxAttempts {
		delay = c.backoff.NextBackOff()
	}
	if delay == backoff.Stop {
		c.exhausted = true
		c.log.Warn("time-shift retries exhausted", slog.Int("attempts", c.attempts), slog.String("error", cause.Error()))
		c.disposeWorker()
		c.emitError(fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.attempts, cause))
		return
	}
	c.log.Warn("time-shift failed, retrying",
		slog.String("error", cause.Error()),
		slog.Int("attempt", c.attempts),
		slog.Duration("backoff", delay),
	)
	c.emitError(cause)
	c.opts.Metrics.IncTimeShiftRetries()
	c.retry = c.opts.Scheduler.After(delay, c.setupTimeShift)
}

// dropHeadObserver stops head updates from a failed worker without
// forgetting that the caller wants them.
func (c *StreamActController) dropHeadObserver() {
	if c.worker != nil {
		c.worker.StopObservingPlaybackHead()
	}
}

func (c *StreamActController) armTimeout() {
	c.timeout.Cancel()
	c.timeout = c.opts.Scheduler.After(c.opts.ConnectionTimeout, func() {
		if c.disposed || c.worker == nil {
			return
		}
		c.log.Debug("connection timeout reached")
		c.worker.Stop(true)
	})
}

func (c *StreamActController) setState(s PlaybackState) {
	if s == c.state {
		return
	}
	c.state = s
	if c.hooks.OnState != nil {
		c.hooks.OnState(s)
	}
}

func (c *StreamActController) emitHead(d time.Duration) {
	if c.hooks.OnHead != nil {
		c.hooks.OnHead(d)
	}
}

func (c *StreamActController) emitError(err error) {
	if c.hooks.OnError != nil {
		c.hooks.OnError(err)
	}
}
