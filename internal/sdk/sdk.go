// Package sdk is the narrow capability boundary between the viewer and the
// real-time media SDK. The viewer only ever talks to these interfaces.
//
// Callbacks registered through this package may be invoked on any goroutine.
// Callers marshal them onto their own main context before touching state.
package sdk

import (
	"image"
	"time"
)

// RequestStatus is the SDK's completion code for asynchronous requests.
type RequestStatus int

const (
	StatusOK RequestStatus = iota
	StatusFailed
	StatusNotFound
	StatusTimeout
	StatusUnauthorized
)

var statusNames = [...]string{"ok", "failed", "not-found", "timeout", "unauthorized"}

func (s RequestStatus) String() string {
	if int(s) >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// CapabilityOnDemand requests a seekable (time-shift) subscription.
const CapabilityOnDemand = "on-demand"

// Disposable releases a callback registration or a limiter.
type Disposable interface {
	Dispose()
}

// DisposeFunc adapts a function to Disposable.
type DisposeFunc func()

// Dispose implements Disposable.
func (f DisposeFunc) Dispose() {
	if f != nil {
		f()
	}
}

// Options configures an SDK session.
type Options struct {
	BackendURL string
	PCastURI   string
	AuthToken  string
}

// Provider creates SDK sessions. onUnrecoverable is invoked when the SDK can
// no longer be used and the session must be torn down.
type Provider interface {
	NewSession(opts Options, onUnrecoverable func(status RequestStatus, description string)) (Session, error)
}

// SubscribeOptions selects the stream to subscribe to.
type SubscribeOptions struct {
	StreamID     string
	Capabilities []string
	Token        string
}

// Session is the single SDK connection shared by all streams.
type Session interface {
	// Subscribe requests a stream subscription. cb is invoked exactly once.
	Subscribe(opts SubscribeOptions, cb func(status RequestStatus, sub Subscriber))
	// WaitForOnline invokes cb once the session is connected.
	WaitForOnline(cb func())
	Dispose()
}

// Subscriber is an established stream subscription.
type Subscriber interface {
	CreateRenderer() Renderer
	// LimitBandwidth caps the subscription's video bitrate until the
	// returned Disposable is disposed.
	LimitBandwidth(bitsPerSecond int64) Disposable
	Dispose()
}

// Surface is an opaque render target owned by the UI.
type Surface interface {
	SurfaceID() string
}

// Frame is a decoded video frame.
type Frame struct {
	Image     image.Image
	Timestamp time.Duration
}

// Renderer renders one subscription.
type Renderer interface {
	IsSeekable() bool
	// StartSuspended starts the renderer without playing; playback is driven
	// by a TimeShift.
	StartSuspended(surface Surface) RequestStatus
	// SetSurface moves rendering to surface. A nil surface stops drawing.
	SetSurface(surface Surface)
	MuteAudio()
	UnmuteAudio()
	IsAudioMuted() bool
	// Seek creates a time-shift session starting offset after the beginning
	// of the recording.
	Seek(offset time.Duration) TimeShift
	// SetFrameReadyCallback installs cb for every decoded frame. nil removes it.
	SetFrameReadyCallback(cb func(Frame))
	// SetLastFrameCallback installs cb for RequestLastFrame responses.
	SetLastFrameCallback(cb func(Frame))
	RequestLastFrame()
	Stop()
	Dispose()
}

// TimeShift is a seekable playback session over a recorded stream.
type TimeShift interface {
	StartTime() time.Time
	ObserveReadyForPlayback(cb func(ready bool)) Disposable
	ObservePlaybackHead(cb func(head time.Time)) Disposable
	ObserveFailure(cb func(status RequestStatus)) Disposable
	ObserveEnded(cb func(ended bool)) Disposable
	// Seek moves playback to offset from the beginning. cb is invoked once
	// with the outcome unless the returned Disposable is disposed first.
	Seek(offset time.Duration, cb func(status RequestStatus)) Disposable
	Play()
	Pause()
	Stop()
	LimitBandwidth(bitsPerSecond int64) Disposable
	Dispose()
}
