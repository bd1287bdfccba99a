package viewer

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"multiangle-viewer/internal/dispatch"
	"multiangle-viewer/internal/prefs"
)

// ActView is an act as shown to clients.
type ActView struct {
	Index        int    `json:"index"`
	Title        string `json:"title"`
	OffsetMillis int64  `json:"offset_ms"`
	Selected     bool   `json:"selected"`
}

// ViewState is the aggregate state of every stream.
type ViewState struct {
	SessionID   string       `json:"session_id,omitempty"`
	Streams     []StreamView `json:"streams"`
	Acts        []ActView    `json:"acts"`
	SelectedAct int          `json:"selected_act"`
	HeroStream  string       `json:"hero_stream,omitempty"`
	HeroHead    string       `json:"hero_head"`
	AllReady    bool         `json:"all_ready"`
	AllEnded    bool         `json:"all_ended"`
	SeekEnabled bool         `json:"seek_enabled"`
	FatalError  string       `json:"fatal_error,omitempty"`
}

// Stream returns the view of the stream with id.
func (v ViewState) Stream(id string) (StreamView, bool) {
	for _, s := range v.Streams {
		if s.ID == id {
			return s, true
		}
	}
	return StreamView{}, false
}

// Coordinator keeps every stream of a session on the same act. Playback
// starts only once no stream is still loading, seeks go to all streams
// together and only one stream is the hero at a time.
//
// Methods run on the main queue, except Snapshot.
type Coordinator struct {
	opts  Options
	log   *slog.Logger
	store prefs.Store

	session   *Session
	streams   []*Stream
	unsubs    []func()
	acts      []Act
	actIndex  int
	hero      *Stream
	readiness *dispatch.Debouncer
	cooldown  *dispatch.WorkItem
	fatal     error
	// paused holds streams that become ready until the next Play or act.
	paused bool

	view    atomic.Pointer[ViewState]
	changes listeners[ViewState]
}

// NewCoordinator returns a coordinator with no streams.
func NewCoordinator(store prefs.Store, opts Options) *Coordinator {
	opts = opts.withDefaults()
	c := &Coordinator{
		opts:      opts,
		log:       opts.Logger.With(slog.String("component", "coordinator")),
		store:     store,
		readiness: dispatch.NewDebouncer(opts.Scheduler, opts.ReadyDebounce),
	}
	c.publish()
	return c
}

// Bind follows the streams of session across rebuilds.
func (c *Coordinator) Bind(session *Session) {
	c.session = session
	session.OnStreamsChanged(c.setStreams)
	session.OnError(c.sessionFailed)
	c.fatal = session.Fatal()
	c.setStreams(session.Streams())
}

// OnChange registers fn to receive every new view state.
func (c *Coordinator) OnChange(fn func(ViewState)) func() {
	return c.changes.add(fn)
}

// Snapshot returns the latest view state. Safe from any goroutine.
func (c *Coordinator) Snapshot() ViewState {
	return *c.view.Load()
}

// SelectedAct returns the act streams are synchronized to.
func (c *Coordinator) SelectedAct() Act {
	if c.actIndex < len(c.acts) {
		return c.acts[c.actIndex]
	}
	return ZeroAct
}

// SelectStream makes the stream with id the hero. The previous hero is
// muted and demoted before the new one is promoted, so two streams are
// never unmuted at once.
func (c *Coordinator) SelectStream(id string) error {
	var next *Stream
	for _, s := range c.streams {
		if s.ID() == id {
			next = s
			break
		}
	}
	if next == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStream, id)
	}
	if next == c.hero {
		return nil
	}
	c.log.Debug("selecting stream", slog.String("stream_id", id))
	if c.hero != nil {
		c.hero.SetRole(RoleThumbnail)
	}
	c.hero = next
	next.SetRole(RoleHero)
	c.publish()
	return nil
}

// SelectAct seeks every stream to the act at index and disables seeking
// until the cooldown passes.
func (c *Coordinator) SelectAct(index int) (Act, error) {
	if c.cooldown.Pending() {
		return Act{}, ErrSeekCoolingDown
	}
	if index < 0 || index >= len(c.acts) {
		return Act{}, fmt.Errorf("%w: index %d", ErrUnknownAct, index)
	}
	act := c.acts[index]
	c.log.Info("selecting act", slog.Int("index", index), slog.String("act", act.Title))
	c.actIndex = index
	c.paused = false
	if err := c.store.Put(PrefSelectedAct, act); err != nil {
		c.log.Warn("could not persist selected act", slog.String("error", err.Error()))
	}
	c.cooldown = c.opts.Scheduler.After(c.opts.SeekCooldown, c.publish)
	for _, s := range c.streams {
		s.Seek(act)
	}
	c.publish()
	return act, nil
}

// Play starts every stream that is ready.
func (c *Coordinator) Play() {
	c.log.Debug("play all")
	c.paused = false
	for _, s := range c.streams {
		s.Play()
	}
	c.publish()
}

// Pause holds every stream and freezes its frame.
func (c *Coordinator) Pause() {
	c.log.Debug("pause all")
	c.paused = true
	for _, s := range c.streams {
		s.Pause()
	}
	c.publish()
}

// AllReady reports whether every stream reached a ready-or-later state.
func (c *Coordinator) AllReady() bool {
	if len(c.streams) == 0 {
		return false
	}
	for _, s := range c.streams {
		if !s.State().ReadyOrLater() {
			return false
		}
	}
	return true
}

// AllEnded reports whether every stream ended.
func (c *Coordinator) AllEnded() bool {
	if len(c.streams) == 0 {
		return false
	}
	for _, s := range c.streams {
		if s.State() != PlaybackEnded {
			return false
		}
	}
	return true
}

func (c *Coordinator) setStreams(streams []*Stream) {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
	c.readiness.Cancel()
	c.hero = nil
	c.paused = false
	c.streams = streams
	if c.session != nil {
		c.acts = c.session.Acts()
	}
	c.actIndex = c.restoreAct()
	if len(streams) > 0 {
		c.fatal = nil
	}

	act := c.SelectedAct()
	for _, s := range streams {
		s.Seek(act)
		c.unsubs = append(c.unsubs, s.Subscribe(c.streamChanged))
	}
	if len(streams) > 0 {
		c.hero = streams[0]
		streams[0].SetRole(RoleHero)
	}
	c.publish()
}

// restoreAct returns the index of the persisted act, or the first act.
func (c *Coordinator) restoreAct() int {
	var saved Act
	ok, err := c.store.Get(PrefSelectedAct, &saved)
	if err != nil {
		c.log.Warn("could not read selected act", slog.String("error", err.Error()))
		return 0
	}
	if !ok {
		return 0
	}
	for i, act := range c.acts {
		if act.Title == saved.Title {
			return i
		}
	}
	return 0
}

func (c *Coordinator) streamChanged(ev StreamEvent) {
	switch ev.Kind {
	case StreamStateChanged, StreamConnectionChanged:
		c.readiness.Run(c.playWhenSettled)
	case StreamFailed:
		c.log.Warn("stream failed",
			slog.String("stream_id", ev.StreamID),
			slog.Any("error", ev.Err),
			slog.Bool("recoverable", Recoverable(ev.Err)))
	}
	c.publish()
}

// playWhenSettled plays every ready stream once none is idle or loading.
// Failed streams do not hold the others back. While the group is paused,
// streams that recover are paused instead.
func (c *Coordinator) playWhenSettled() {
	if c.paused {
		held := 0
		for _, s := range c.streams {
			if s.State() == PlaybackReadyToPlay && s.Pause() {
				held++
			}
		}
		if held > 0 {
			c.log.Debug("group paused, holding ready streams", slog.Int("streams", held))
			c.publish()
		}
		return
	}
	for _, s := range c.streams {
		switch s.State() {
		case PlaybackIdle, PlaybackLoading:
			return
		}
	}
	played := 0
	for _, s := range c.streams {
		if s.State() == PlaybackReadyToPlay && s.Play() {
			played++
		}
	}
	if played > 0 {
		c.log.Debug("streams settled, playing", slog.Int("streams", played))
		c.publish()
	}
}

func (c *Coordinator) sessionFailed(err error) {
	c.fatal = err
	c.publish()
}

func (c *Coordinator) publish() {
	v := ViewState{
		Streams:     make([]StreamView, 0, len(c.streams)),
		Acts:        make([]ActView, 0, len(c.acts)),
		SelectedAct: c.actIndex,
		AllReady:    c.AllReady(),
		AllEnded:    c.AllEnded(),
		SeekEnabled: !c.cooldown.Pending(),
		HeroHead:    FormatOffset(0),
	}
	if c.session != nil {
		v.SessionID = c.session.ID()
	}
	counts := make(map[string]int)
	for _, s := range c.streams {
		sv := s.View()
		v.Streams = append(v.Streams, sv)
		counts[sv.State.String()]++
	}
	for i, act := range c.acts {
		v.Acts = append(v.Acts, ActView{
			Index:        i,
			Title:        act.Title,
			OffsetMillis: act.OffsetMillis(),
			Selected:     i == c.actIndex,
		})
	}
	if c.hero != nil {
		v.HeroStream = c.hero.ID()
		v.HeroHead = FormatOffset(c.hero.Head())
	}
	if c.fatal != nil {
		v.FatalError = c.fatal.Error()
	}
	c.opts.Metrics.SetStreamStates(counts)
	c.view.Store(&v)
	c.changes.emit(v)
}
