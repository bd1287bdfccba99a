package viewer

import (
	"fmt"
	"log/slog"
	"time"

	"multiangle-viewer/internal/dispatch"
	"multiangle-viewer/internal/sdk"
)

// StreamEventKind says which part of a stream changed.
type StreamEventKind int

const (
	StreamStateChanged StreamEventKind = iota
	StreamConnectionChanged
	StreamHeadChanged
	StreamFrameChanged
	StreamFailed
)

// StreamEvent is published to stream listeners on the main queue.
type StreamEvent struct {
	StreamID string
	Kind     StreamEventKind
	Err      error
}

// StreamView is a read-only copy of a stream's observable state.
type StreamView struct {
	ID         string          `json:"id"`
	Selected   bool            `json:"selected"`
	Role       string          `json:"role"`
	Connection ConnectionState `json:"connection"`
	State      PlaybackState   `json:"state"`
	HeadMillis int64           `json:"head_ms"`
	Head       string          `json:"head"`
	FrameSeq   uint64          `json:"frame_seq"`
	Frozen     bool            `json:"frozen"`
	Exhausted  bool            `json:"exhausted"`
	Error      string          `json:"error,omitempty"`
}

type surface string

func (s surface) SurfaceID() string { return string(s) }

// Stream owns one subscription, its renderer and its act controller. All
// methods must be called on the main queue.
type Stream struct {
	id      string
	token   string
	opts    Options
	log     *slog.Logger
	session sdk.Session

	heroSurface      surface
	thumbnailSurface surface

	subscriber sdk.Subscriber
	renderer   sdk.Renderer
	controller *StreamActController
	limit      sdk.Disposable

	role       Role
	act        Act
	connection ConnectionState
	state      PlaybackState
	head       time.Duration
	lastErr    error

	frame        *sdk.Frame
	frameSeq     uint64
	pendingFrame *sdk.Frame
	draw         *dispatch.WorkItem
	frozen       bool

	// awaitingLastFrame lets the answer to the freeze request replace the
	// frozen frame once.
	awaitingLastFrame bool

	// gen invalidates callbacks that belong to an earlier subscription.
	gen       int
	listeners listeners[StreamEvent]
	disposed  bool
}

// NewStream returns an offline stream for id. token is the edge-auth token
// sent with the subscribe request.
func NewStream(id, token string, session sdk.Session, opts Options) *Stream {
	opts = opts.withDefaults()
	return &Stream{
		id:               id,
		token:            token,
		opts:             opts,
		log:              opts.Logger.With(slog.String("component", "stream"), slog.String("stream_id", id)),
		session:          session,
		heroSurface:      surface(id + "/hero"),
		thumbnailSurface: surface(id + "/thumbnail"),
		act:              ZeroAct,
	}
}

// ID returns the stream identifier.
func (s *Stream) ID() string { return s.id }

// State returns the playback state.
func (s *Stream) State() PlaybackState { return s.state }

// Connection returns the subscription state.
func (s *Stream) Connection() ConnectionState { return s.connection }

// Role returns the current render role.
func (s *Stream) Role() Role { return s.role }

// Head returns the playback head, zero until the session is ready.
func (s *Stream) Head() time.Duration { return s.head }

// Frame returns the frame currently shown for the stream, if any.
func (s *Stream) Frame() (sdk.Frame, bool) {
	if s.frame == nil {
		return sdk.Frame{}, false
	}
	return *s.frame, true
}

// Exhausted reports whether the stream gave up on its time-shift session.
func (s *Stream) Exhausted() bool {
	return s.controller != nil && s.controller.Exhausted()
}

// Subscribe registers fn for stream events and returns its removal func.
func (s *Stream) Subscribe(fn func(StreamEvent)) func() {
	return s.listeners.add(fn)
}

// View returns a snapshot of the stream.
func (s *Stream) View() StreamView {
	v := StreamView{
		ID:         s.id,
		Selected:   s.role == RoleHero,
		Role:       s.role.String(),
		Connection: s.connection,
		State:      s.state,
		HeadMillis: s.head.Milliseconds(),
		Head:       FormatOffset(s.head),
		FrameSeq:   s.frameSeq,
		Frozen:     s.frozen,
		Exhausted:  s.Exhausted(),
	}
	if s.lastErr != nil {
		v.Error = s.lastErr.Error()
	}
	return v
}

// SubscribeToStream requests the subscription. On success any previous
// subscriber and renderer are released before the new ones are set up.
func (s *Stream) SubscribeToStream() {
	if s.disposed {
		return
	}
	s.gen++
	gen := s.gen
	s.log.Debug("subscribing to stream")
	s.setConnection(ConnectionJoining)
	s.session.Subscribe(sdk.SubscribeOptions{
		StreamID:     s.id,
		Capabilities: []string{sdk.CapabilityOnDemand},
		Token:        s.token,
	}, func(status sdk.RequestStatus, sub sdk.Subscriber) {
		s.opts.Scheduler.Post(func() { s.subscribed(gen, status, sub) })
	})
}

// SetRole switches rendering, audio and bandwidth to role.
func (s *Stream) SetRole(role Role) {
	if s.disposed || role == s.role {
		return
	}
	s.log.Debug("role changed", slog.String("from", s.role.String()), slog.String("to", role.String()))
	s.role = role
	s.applyRole()
	s.emit(StreamStateChanged, nil)
}

// Seek moves playback to act. Before the session exists the act is kept
// and used when the session is created.
func (s *Stream) Seek(act Act) {
	if s.disposed {
		return
	}
	s.act = act
	if s.controller != nil {
		s.controller.Seek(act)
	}
}

// Play resumes playback and live frame updates.
func (s *Stream) Play() bool {
	if s.disposed || s.controller == nil {
		return false
	}
	if !s.controller.Play() {
		return false
	}
	s.unfreeze()
	return true
}

// Pause holds playback and freezes the current frame until Play.
func (s *Stream) Pause() bool {
	if s.disposed || s.controller == nil {
		return false
	}
	if !s.controller.Pause() {
		return false
	}
	s.freeze()
	return true
}

// Dispose releases the subscription. Safe to call more than once.
func (s *Stream) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	s.gen++
	s.log.Debug("disposing stream")
	s.draw.Cancel()
	s.teardown()
	s.listeners.clear()
}

func (s *Stream) subscribed(gen int, status sdk.RequestStatus, sub sdk.Subscriber) {
	if s.disposed || gen != s.gen {
		if sub != nil {
			sub.Dispose()
		}
		return
	}
	if status != sdk.StatusOK || sub == nil {
		s.opts.Metrics.IncSubscribeFailures()
		s.fail(fmt.Errorf("%w: %s", ErrSubscribeFailed, status))
		return
	}

	s.teardown()
	s.subscriber = sub
	r := sub.CreateRenderer()
	s.renderer = r
	if !r.IsSeekable() {
		s.fail(ErrNotSeekable)
		return
	}
	if st := r.StartSuspended(s.surfaceFor(s.role)); st != sdk.StatusOK {
		s.fail(fmt.Errorf("%w: %s", ErrRendererStart, st))
		return
	}
	s.lastErr = nil
	s.setConnection(ConnectionStreaming)

	r.SetLastFrameCallback(func(f sdk.Frame) {
		s.opts.Scheduler.Post(func() { s.lastFrameDelivered(gen, f) })
	})
	s.controller = NewStreamActController(s.id, r, s.act, s.opts, ControllerHooks{
		OnState: s.controllerStateChanged,
		OnHead:  s.headChanged,
		OnError: s.controllerFailed,
	})
	s.controller.Subscribe()
	s.controller.StartObservingPlaybackHead()
	s.applyRole()
	s.log.Debug("stream set up", slog.String("act", s.act.Title))
}

// fail aborts the subscription and releases whatever was set up.
func (s *Stream) fail(err error) {
	s.log.Warn("stream setup failed", slog.String("error", err.Error()))
	s.teardown()
	s.lastErr = err
	s.setConnection(ConnectionOffline)
	s.setState(PlaybackFailure)
	s.emit(StreamFailed, err)
}

func (s *Stream) teardown() {
	if s.controller != nil {
		s.controller.Dispose()
		s.controller = nil
	}
	if s.limit != nil {
		s.limit.Dispose()
		s.limit = nil
	}
	if s.renderer != nil {
		s.renderer.SetFrameReadyCallback(nil)
		s.renderer.Stop()
		s.renderer.Dispose()
		s.renderer = nil
	}
	if s.subscriber != nil {
		s.subscriber.Dispose()
		s.subscriber = nil
	}
	s.draw.Cancel()
	s.pendingFrame = nil
	s.awaitingLastFrame = false
}

func (s *Stream) surfaceFor(role Role) sdk.Surface {
	if role == RoleHero {
		return s.heroSurface
	}
	return s.thumbnailSurface
}

// applyRole releases the previous bandwidth limits before setting the new
// ones. A hero is unmuted only after everything else is in place.
func (s *Stream) applyRole() {
	if s.limit != nil {
		s.limit.Dispose()
		s.limit = nil
	}
	if s.subscriber == nil || s.renderer == nil {
		return
	}
	s.limit = s.subscriber.LimitBandwidth(s.role.Bandwidth())
	if s.controller != nil {
		// only hidden angles cap their time-shift
		var tsLimit int64
		if s.role != RoleHero {
			tsLimit = s.role.Bandwidth()
		}
		s.controller.LimitBandwidth(tsLimit)
	}
	r := s.renderer
	switch s.role {
	case RoleHero:
		r.SetFrameReadyCallback(nil)
		s.draw.Cancel()
		s.pendingFrame = nil
		r.SetSurface(s.heroSurface)
		r.UnmuteAudio()
	case RoleThumbnail:
		r.MuteAudio()
		r.SetSurface(s.thumbnailSurface)
		gen := s.gen
		r.SetFrameReadyCallback(func(f sdk.Frame) {
			s.opts.Scheduler.Post(func() { s.frameReady(gen, f) })
		})
		if s.frame == nil {
			r.RequestLastFrame()
		}
	default:
		r.MuteAudio()
		r.SetFrameReadyCallback(nil)
		s.draw.Cancel()
		s.pendingFrame = nil
	}
}

// frameReady draws the first frame at once and coalesces later ones into
// one draw per frame delay.
func (s *Stream) frameReady(gen int, f sdk.Frame) {
	if gen != s.gen || s.frozen || s.role != RoleThumbnail {
		return
	}
	if s.frame == nil {
		s.setFrame(f)
		return
	}
	s.pendingFrame = &f
	if s.draw.Pending() {
		return
	}
	s.draw = s.opts.Scheduler.After(s.opts.FrameDelay, func() {
		if s.frozen || s.pendingFrame == nil {
			return
		}
		next := *s.pendingFrame
		s.pendingFrame = nil
		s.setFrame(next)
	})
}

func (s *Stream) lastFrameDelivered(gen int, f sdk.Frame) {
	if gen != s.gen {
		return
	}
	if s.frozen && !s.awaitingLastFrame && s.frame != nil {
		return
	}
	s.awaitingLastFrame = false
	s.setFrame(f)
}

func (s *Stream) setFrame(f sdk.Frame) {
	s.frame = &f
	s.frameSeq++
	s.emit(StreamFrameChanged, nil)
}

// freeze stops frame updates and asks the renderer for the frame it last
// drew. A hero draws straight to its surface, so any frame kept from its
// thumbnail days is stale.
func (s *Stream) freeze() {
	s.frozen = true
	s.draw.Cancel()
	s.pendingFrame = nil
	if s.renderer != nil {
		s.awaitingLastFrame = true
		s.renderer.RequestLastFrame()
	}
}

func (s *Stream) unfreeze() {
	s.frozen = false
	s.awaitingLastFrame = false
}

func (s *Stream) controllerStateChanged(state PlaybackState) {
	s.setState(state)
}

func (s *Stream) headChanged(d time.Duration) {
	if d == s.head {
		return
	}
	s.head = d
	s.emit(StreamHeadChanged, nil)
}

func (s *Stream) controllerFailed(err error) {
	s.lastErr = err
	s.emit(StreamFailed, err)
}

func (s *Stream) setConnection(c ConnectionState) {
	if c == s.connection {
		return
	}
	s.connection = c
	s.emit(StreamConnectionChanged, nil)
}

func (s *Stream) setState(state PlaybackState) {
	if state == s.state {
		return
	}
	s.log.Debug("stream state changed", slog.String("from", s.state.String()), slog.String("to", state.String()))
	s.state = state
	if state == PlaybackReadyToPlay {
		s.lastErr = nil
	}
	s.emit(StreamStateChanged, nil)
}

func (s *Stream) emit(kind StreamEventKind, err error) {
	s.listeners.emit(StreamEvent{StreamID: s.id, Kind: kind, Err: err})
}
