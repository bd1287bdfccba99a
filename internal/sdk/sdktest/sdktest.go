// Package sdktest provides an in-memory SDK whose callbacks are fired
// explicitly by tests.
package sdktest

import (
	"sync"
	"time"

	"multiangle-viewer/internal/sdk"
)

// Provider records every session it creates.
type Provider struct {
	mu       sync.Mutex
	Err      error
	sessions []*Session
}

// NewSession implements sdk.Provider.
func (p *Provider) NewSession(opts sdk.Options, onUnrecoverable func(sdk.RequestStatus, string)) (sdk.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	s := &Session{Opts: opts, onUnrecoverable: onUnrecoverable, subscribers: map[string]*Subscriber{}}
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Sessions returns all sessions created so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// Last returns the most recent session or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// SubscribeRequest is a pending Subscribe call.
type SubscribeRequest struct {
	Opts sdk.SubscribeOptions
	cb   func(sdk.RequestStatus, sdk.Subscriber)
	once sync.Once
}

// Succeed completes the request with sub.
func (r *SubscribeRequest) Succeed(sub *Subscriber) {
	r.once.Do(func() { r.cb(sdk.StatusOK, sub) })
}

// Fail completes the request with status.
func (r *SubscribeRequest) Fail(status sdk.RequestStatus) {
	r.once.Do(func() { r.cb(status, nil) })
}

// Session is a fake sdk.Session.
type Session struct {
	mu              sync.Mutex
	Opts            sdk.Options
	onUnrecoverable func(sdk.RequestStatus, string)
	requests        []*SubscribeRequest
	subscribers     map[string]*Subscriber
	onlineCallbacks []func()
	online          bool
	disposed        bool
}

// Subscribe implements sdk.Session.
func (s *Session) Subscribe(opts sdk.SubscribeOptions, cb func(sdk.RequestStatus, sdk.Subscriber)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, &SubscribeRequest{Opts: opts, cb: cb})
}

// WaitForOnline implements sdk.Session.
func (s *Session) WaitForOnline(cb func()) {
	s.mu.Lock()
	if s.online {
		s.mu.Unlock()
		cb()
		return
	}
	s.onlineCallbacks = append(s.onlineCallbacks, cb)
	s.mu.Unlock()
}

// Dispose implements sdk.Session.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
}

// Disposed reports whether Dispose was called.
func (s *Session) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// SetOnline marks the session connected and runs waiting callbacks.
func (s *Session) SetOnline() {
	s.mu.Lock()
	s.online = true
	cbs := s.onlineCallbacks
	s.onlineCallbacks = nil
	s.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// FailUnrecoverable fires the unrecoverable error callback.
func (s *Session) FailUnrecoverable(description string) {
	s.onUnrecoverable(sdk.StatusFailed, description)
}

// Requests returns every Subscribe call in order.
func (s *Session) Requests() []*SubscribeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*SubscribeRequest(nil), s.requests...)
}

// Request returns the latest Subscribe call for streamID or nil.
func (s *Session) Request(streamID string) *SubscribeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Opts.StreamID == streamID {
			return s.requests[i]
		}
	}
	return nil
}

// Accept completes the latest request for streamID with a fresh seekable
// subscriber and returns it.
func (s *Session) Accept(streamID string) *Subscriber {
	sub := NewSubscriber()
	s.mu.Lock()
	s.subscribers[streamID] = sub
	s.mu.Unlock()
	if r := s.Request(streamID); r != nil {
		r.Succeed(sub)
	}
	return sub
}

// Subscriber returns the subscriber handed out by Accept for streamID.
func (s *Session) Subscriber(streamID string) *Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribers[streamID]
}

// Subscriber is a fake sdk.Subscriber.
type Subscriber struct {
	mu       sync.Mutex
	Renderer *Renderer
	limits   *limits
	disposed bool
}

// NewSubscriber returns a subscriber whose CreateRenderer yields a seekable renderer.
func NewSubscriber() *Subscriber {
	return &Subscriber{Renderer: NewRenderer(), limits: &limits{}}
}

// CreateRenderer implements sdk.Subscriber.
func (s *Subscriber) CreateRenderer() sdk.Renderer {
	return s.Renderer
}

// LimitBandwidth implements sdk.Subscriber.
func (s *Subscriber) LimitBandwidth(bps int64) sdk.Disposable {
	return s.limits.add(bps)
}

// ActiveLimits lists limits that have not been disposed.
func (s *Subscriber) ActiveLimits() []int64 {
	return s.limits.active()
}

// Dispose implements sdk.Subscriber.
func (s *Subscriber) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
}

// Disposed reports whether Dispose was called.
func (s *Subscriber) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Surface is a named render target.
type Surface string

// SurfaceID implements sdk.Surface.
func (s Surface) SurfaceID() string { return string(s) }

// Renderer is a fake sdk.Renderer.
type Renderer struct {
	mu          sync.Mutex
	Seekable    bool
	StartStatus sdk.RequestStatus
	// OnUnmute runs before the renderer is unmuted.
	OnUnmute func(*Renderer)

	surface           sdk.Surface
	started           bool
	muted             bool
	stopped           bool
	disposed          bool
	timeShifts        []*TimeShift
	frameCallback     func(sdk.Frame)
	lastFrameCallback func(sdk.Frame)
	lastFrameRequests int
}

// NewRenderer returns a seekable renderer that starts successfully.
func NewRenderer() *Renderer {
	return &Renderer{Seekable: true, StartStatus: sdk.StatusOK}
}

// IsSeekable implements sdk.Renderer.
func (r *Renderer) IsSeekable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Seekable
}

// StartSuspended implements sdk.Renderer.
func (r *Renderer) StartSuspended(surface sdk.Surface) sdk.RequestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface = surface
	r.started = r.StartStatus == sdk.StatusOK
	return r.StartStatus
}

// SetSurface implements sdk.Renderer.
func (r *Renderer) SetSurface(surface sdk.Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface = surface
}

// Surface returns the current render target.
func (r *Renderer) Surface() sdk.Surface {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface
}

// MuteAudio implements sdk.Renderer.
func (r *Renderer) MuteAudio() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = true
}

// UnmuteAudio implements sdk.Renderer.
func (r *Renderer) UnmuteAudio() {
	if r.OnUnmute != nil {
		r.OnUnmute(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = false
}

// IsAudioMuted implements sdk.Renderer.
func (r *Renderer) IsAudioMuted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted
}

// Seek implements sdk.Renderer.
func (r *Renderer) Seek(offset time.Duration) sdk.TimeShift {
	ts := NewTimeShift(offset)
	r.mu.Lock()
	r.timeShifts = append(r.timeShifts, ts)
	r.mu.Unlock()
	return ts
}

// TimeShifts returns every session created by Seek.
func (r *Renderer) TimeShifts() []*TimeShift {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*TimeShift(nil), r.timeShifts...)
}

// TimeShift returns the most recent session or nil.
func (r *Renderer) TimeShift() *TimeShift {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.timeShifts) == 0 {
		return nil
	}
	return r.timeShifts[len(r.timeShifts)-1]
}

// SetFrameReadyCallback implements sdk.Renderer.
func (r *Renderer) SetFrameReadyCallback(cb func(sdk.Frame)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frameCallback = cb
}

// HasFrameCallback reports whether a frame-ready callback is installed.
func (r *Renderer) HasFrameCallback() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameCallback != nil
}

// SetLastFrameCallback implements sdk.Renderer.
func (r *Renderer) SetLastFrameCallback(cb func(sdk.Frame)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFrameCallback = cb
}

// RequestLastFrame implements sdk.Renderer.
func (r *Renderer) RequestLastFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFrameRequests++
}

// LastFrameRequests counts RequestLastFrame calls.
func (r *Renderer) LastFrameRequests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFrameRequests
}

// EmitFrame delivers f to the frame-ready callback, if any.
func (r *Renderer) EmitFrame(f sdk.Frame) {
	r.mu.Lock()
	cb := r.frameCallback
	r.mu.Unlock()
	if cb != nil {
		cb(f)
	}
}

// DeliverLastFrame answers a RequestLastFrame call.
func (r *Renderer) DeliverLastFrame(f sdk.Frame) {
	r.mu.Lock()
	cb := r.lastFrameCallback
	r.mu.Unlock()
	if cb != nil {
		cb(f)
	}
}

// Stop implements sdk.Renderer.
func (r *Renderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
}

// Dispose implements sdk.Renderer.
func (r *Renderer) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed = true
}

// Disposed reports whether Dispose was called.
func (r *Renderer) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}
