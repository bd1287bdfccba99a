// Package simsdk is a timer-driven stand-in for the real-time media SDK. It
// serves any stream id as a recording of fixed length so the viewer can run
// without the vendor library.
package simsdk

import (
	"errors"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"multiangle-viewer/internal/sdk"
)

// Config tunes the simulated latencies and content.
type Config struct {
	OnlineDelay    time.Duration
	SubscribeDelay time.Duration
	LoadDelay      time.Duration
	SeekDelay      time.Duration
	Length         time.Duration
	Tick           time.Duration
	FrameSize      image.Point
}

// DefaultConfig returns latencies in the range the real backend shows.
func DefaultConfig() Config {
	return Config{
		OnlineDelay:    300 * time.Millisecond,
		SubscribeDelay: 500 * time.Millisecond,
		LoadDelay:      1500 * time.Millisecond,
		SeekDelay:      400 * time.Millisecond,
		Length:         20 * time.Minute,
		Tick:           100 * time.Millisecond,
		FrameSize:      image.Pt(64, 36),
	}
}

// Provider creates simulated sessions.
type Provider struct {
	cfg Config
	log *slog.Logger
}

// New returns a Provider using cfg.
func New(cfg Config, log *slog.Logger) *Provider {
	return &Provider{cfg: cfg, log: log.With(slog.String("component", "simsdk"))}
}

// NewSession implements sdk.Provider.
func (p *Provider) NewSession(opts sdk.Options, onUnrecoverable func(sdk.RequestStatus, string)) (sdk.Session, error) {
	if opts.BackendURL == "" {
		return nil, errors.New("simsdk: backend url required")
	}
	s := &session{cfg: p.cfg, log: p.log}
	s.onlineTimer = time.AfterFunc(p.cfg.OnlineDelay, s.goOnline)
	p.log.Debug("session created", slog.String("backend", opts.BackendURL))
	return s, nil
}

type session struct {
	cfg Config
	log *slog.Logger

	mu          sync.Mutex
	online      bool
	disposed    bool
	waiting     []func()
	onlineTimer *time.Timer
	pending     []*time.Timer
}

func (s *session) goOnline() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.online = true
	cbs := s.waiting
	s.waiting = nil
	s.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func (s *session) WaitForOnline(cb func()) {
	s.mu.Lock()
	if s.online {
		s.mu.Unlock()
		cb()
		return
	}
	s.waiting = append(s.waiting, cb)
	s.mu.Unlock()
}

func (s *session) Subscribe(opts sdk.SubscribeOptions, cb func(sdk.RequestStatus, sdk.Subscriber)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		go cb(sdk.StatusFailed, nil)
		return
	}
	t := time.AfterFunc(s.cfg.SubscribeDelay, func() {
		s.mu.Lock()
		disposed := s.disposed
		s.mu.Unlock()
		if disposed {
			cb(sdk.StatusFailed, nil)
			return
		}
		s.log.Debug("subscribed", slog.String("stream_id", opts.StreamID))
		cb(sdk.StatusOK, &subscriber{cfg: s.cfg, streamID: opts.StreamID})
	})
	s.pending = append(s.pending, t)
}

func (s *session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.onlineTimer.Stop()
	for _, t := range s.pending {
		t.Stop()
	}
	s.pending = nil
}

type subscriber struct {
	cfg      Config
	streamID string
}

func (s *subscriber) CreateRenderer() sdk.Renderer {
	return &renderer{cfg: s.cfg, streamID: s.streamID, muted: true}
}

func (s *subscriber) LimitBandwidth(int64) sdk.Disposable { return sdk.DisposeFunc(nil) }

func (s *subscriber) Dispose() {}

type renderer struct {
	cfg      Config
	streamID string

	mu       sync.Mutex
	muted    bool
	surface  sdk.Surface
	onFrame  func(sdk.Frame)
	onLast   func(sdk.Frame)
	last     *sdk.Frame
	current  *timeShift
	disposed bool
}

func (r *renderer) IsSeekable() bool { return true }

func (r *renderer) StartSuspended(surface sdk.Surface) sdk.RequestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface = surface
	return sdk.StatusOK
}

func (r *renderer) SetSurface(surface sdk.Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface = surface
}

func (r *renderer) MuteAudio() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = true
}

func (r *renderer) UnmuteAudio() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = false
}

func (r *renderer) IsAudioMuted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted
}

func (r *renderer) Seek(offset time.Duration) sdk.TimeShift {
	ts := newTimeShift(r, offset)
	r.mu.Lock()
	r.current = ts
	r.mu.Unlock()
	return ts
}

func (r *renderer) SetFrameReadyCallback(cb func(sdk.Frame)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFrame = cb
}

func (r *renderer) SetLastFrameCallback(cb func(sdk.Frame)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLast = cb
}

func (r *renderer) RequestLastFrame() {
	r.mu.Lock()
	cb, last := r.onLast, r.last
	r.mu.Unlock()
	if cb == nil || last == nil {
		return
	}
	go cb(*last)
}

func (r *renderer) Stop() {
	r.mu.Lock()
	ts := r.current
	r.mu.Unlock()
	if ts != nil {
		ts.Stop()
	}
}

func (r *renderer) Dispose() {
	r.mu.Lock()
	r.disposed = true
	r.onFrame = nil
	r.onLast = nil
	r.mu.Unlock()
}

// render produces a frame for position pos and hands it to the frame callback.
func (r *renderer) render(pos time.Duration) {
	f := sdk.Frame{Image: frameImage(r.cfg.FrameSize, r.streamID, pos), Timestamp: pos}
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.last = &f
	cb := r.onFrame
	r.mu.Unlock()
	if cb != nil {
		cb(f)
	}
}

// frameImage fills a frame with a color derived from the stream and position.
func frameImage(size image.Point, streamID string, pos time.Duration) image.Image {
	img := image.NewRGBA(image.Rectangle{Max: size})
	var seed uint8
	for i := 0; i < len(streamID); i++ {
		seed += streamID[i]
	}
	c := color.RGBA{R: seed, G: uint8(pos / time.Second), B: uint8(pos / (100 * time.Millisecond)), A: 0xff}
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
