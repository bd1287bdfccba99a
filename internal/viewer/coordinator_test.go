package viewer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multiangle-viewer/internal/dispatch"
	"multiangle-viewer/internal/prefs"
	"multiangle-viewer/internal/sdk"
	"multiangle-viewer/internal/sdk/sdktest"
)

var testConfig = Configuration{
	Backend:   "https://backend.test/pcast",
	URI:       "wss://pcast.test",
	EdgeAuth:  "edge-token",
	StreamIDs: []string{"a", "b", "c"},
	Acts:      []string{"0:06", "1:57", "3:45"},
}

type viewerFixture struct {
	sched    *dispatch.Manual
	provider *sdktest.Provider
	store    *prefs.MemoryStore
	session  *Session
	coord    *Coordinator
}

func newViewerFixture(t *testing.T) *viewerFixture {
	t.Helper()
	f := &viewerFixture{
		sched:    dispatch.NewManual(epoch),
		provider: &sdktest.Provider{},
		store:    prefs.NewMemoryStore(),
	}
	opts := testOptions(f.sched)
	f.session = NewSession(f.provider, f.store, testConfig, opts)
	f.coord = NewCoordinator(f.store, opts)
	f.coord.Bind(f.session)
	return f
}

// start applies cfg, brings the SDK session online and accepts every
// subscription.
func (f *viewerFixture) start(t *testing.T, cfg Configuration) *sdktest.Session {
	t.Helper()
	require.NoError(t, f.session.Reconfigure(cfg))
	sess := f.provider.Last()
	require.NotNil(t, sess)
	sess.SetOnline()
	f.sched.Flush()
	for _, id := range cfg.StreamIDs {
		sess.Accept(id)
	}
	f.sched.Flush()
	return sess
}

func (f *viewerFixture) timeShift(sess *sdktest.Session, id string) *sdktest.TimeShift {
	return sess.Subscriber(id).Renderer.TimeShift()
}

// ready signals readiness for ids and lets both debounces run.
func (f *viewerFixture) ready(sess *sdktest.Session, ids ...string) {
	for _, id := range ids {
		f.timeShift(sess, id).SetReady(true)
	}
	f.sched.Advance(DefaultReadyDebounce)
	f.sched.Advance(DefaultReadyDebounce)
}

func TestCoordinator_BindSelectsFirstStream(t *testing.T) {
	f := newViewerFixture(t)
	sess := f.start(t, testConfig)

	view := f.coord.Snapshot()
	require.Len(t, view.Streams, 3)
	assert.Equal(t, "a", view.HeroStream)
	assert.Len(t, view.Acts, 3)
	assert.Equal(t, 0, view.SelectedAct)
	assert.True(t, view.SeekEnabled)
	assert.False(t, view.AllReady)
	assert.NotEmpty(t, view.SessionID)

	assert.False(t, sess.Subscriber("a").Renderer.IsAudioMuted())
	assert.True(t, sess.Subscriber("b").Renderer.IsAudioMuted())
	assert.True(t, sess.Subscriber("c").Renderer.IsAudioMuted())
	for _, id := range testConfig.StreamIDs {
		assert.Equal(t, 6*time.Second, f.timeShift(sess, id).Offset, id)
	}
}

func TestCoordinator_RestoresSavedAct(t *testing.T) {
	f := newViewerFixture(t)
	require.NoError(t, f.store.Put(PrefSelectedAct, mustAct("1:57")))

	sess := f.start(t, testConfig)

	assert.Equal(t, 1, f.coord.Snapshot().SelectedAct)
	for _, id := range testConfig.StreamIDs {
		assert.Equal(t, 117*time.Second, f.timeShift(sess, id).Offset, id)
	}
}

func TestCoordinator_PlaysOnlyWhenAllSettled(t *testing.T) {
	f := newViewerFixture(t)
	sess := f.start(t, testConfig)

	f.ready(sess, "a", "b")
	assert.Equal(t, 0, f.timeShift(sess, "a").Plays())
	assert.Equal(t, 0, f.timeShift(sess, "b").Plays())
	assert.False(t, f.coord.Snapshot().AllReady)

	f.ready(sess, "c")
	for _, id := range testConfig.StreamIDs {
		assert.Equal(t, 1, f.timeShift(sess, id).Plays(), id)
	}
	view := f.coord.Snapshot()
	assert.True(t, view.AllReady)
	for _, s := range view.Streams {
		assert.Equal(t, PlaybackPlaying, s.State, s.ID)
	}
}

func TestCoordinator_FailedStreamDoesNotBlockOthers(t *testing.T) {
	f := newViewerFixture(t)
	require.NoError(t, f.session.Reconfigure(testConfig))
	sess := f.provider.Last()
	sess.SetOnline()
	f.sched.Flush()
	sess.Accept("a")
	sess.Accept("b")
	sess.Request("c").Fail(sdk.StatusNotFound)
	f.sched.Flush()

	f.ready(sess, "a", "b")

	assert.Equal(t, 1, f.timeShift(sess, "a").Plays())
	assert.Equal(t, 1, f.timeShift(sess, "b").Plays())
	view := f.coord.Snapshot()
	c, ok := view.Stream("c")
	require.True(t, ok)
	assert.Equal(t, PlaybackFailure, c.State)
	assert.Equal(t, ConnectionOffline, c.Connection)
	assert.False(t, view.AllReady)
}

func TestCoordinator_SelectActSeeksAllAndCoolsDown(t *testing.T) {
	f := newViewerFixture(t)
	sess := f.start(t, testConfig)
	f.ready(sess, testConfig.StreamIDs...)

	act, err := f.coord.SelectAct(1)
	require.NoError(t, err)
	assert.Equal(t, int64(117000), act.OffsetMillis())

	for _, id := range testConfig.StreamIDs {
		seek := f.timeShift(sess, id).LastSeek()
		require.NotNil(t, seek, id)
		assert.Equal(t, int64(117000), seek.Offset.Milliseconds(), id)
	}
	view := f.coord.Snapshot()
	assert.False(t, view.SeekEnabled)
	assert.Equal(t, 1, view.SelectedAct)

	_, err = f.coord.SelectAct(2)
	assert.ErrorIs(t, err, ErrSeekCoolingDown)

	f.sched.Advance(DefaultSeekCooldown - time.Millisecond)
	assert.False(t, f.coord.Snapshot().SeekEnabled)
	f.sched.Advance(time.Millisecond)
	assert.True(t, f.coord.Snapshot().SeekEnabled)

	var saved Act
	ok, err := f.store.Get(PrefSelectedAct, &saved)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1:57", saved.Title)
}

func TestCoordinator_PlaysAgainAfterSeekSettles(t *testing.T) {
	f := newViewerFixture(t)
	sess := f.start(t, testConfig)
	f.ready(sess, testConfig.StreamIDs...)

	_, err := f.coord.SelectAct(2)
	require.NoError(t, err)
	for _, id := range testConfig.StreamIDs {
		f.timeShift(sess, id).LastSeek().Ack(sdk.StatusOK)
	}
	f.sched.Flush()
	f.sched.Advance(DefaultReadyDebounce)

	for _, id := range testConfig.StreamIDs {
		assert.Equal(t, 2, f.timeShift(sess, id).Plays(), id)
	}
}

func TestCoordinator_SelectActUnknown(t *testing.T) {
	f := newViewerFixture(t)
	f.start(t, testConfig)

	_, err := f.coord.SelectAct(3)
	assert.ErrorIs(t, err, ErrUnknownAct)
	_, err = f.coord.SelectAct(-1)
	assert.ErrorIs(t, err, ErrUnknownAct)
	assert.True(t, f.coord.Snapshot().SeekEnabled)
}

func TestCoordinator_SelectStreamNeverTwoUnmuted(t *testing.T) {
	f := newViewerFixture(t)
	sess := f.start(t, testConfig)

	var renderers []*sdktest.Renderer
	for _, id := range testConfig.StreamIDs {
		renderers = append(renderers, sess.Subscriber(id).Renderer)
	}
	violations := 0
	for _, r := range renderers {
		r.OnUnmute = func(unmuting *sdktest.Renderer) {
			for _, other := range renderers {
				if other != unmuting && !other.IsAudioMuted() {
					violations++
				}
			}
		}
	}

	require.NoError(t, f.coord.SelectStream("b"))
	require.NoError(t, f.coord.SelectStream("c"))
	require.NoError(t, f.coord.SelectStream("c"))

	assert.Zero(t, violations)
	assert.True(t, renderers[0].IsAudioMuted())
	assert.True(t, renderers[1].IsAudioMuted())
	assert.False(t, renderers[2].IsAudioMuted())
	assert.Equal(t, "a/thumbnail", renderers[0].Surface().SurfaceID())
	assert.Equal(t, "b/thumbnail", renderers[1].Surface().SurfaceID())
	assert.Equal(t, "c/hero", renderers[2].Surface().SurfaceID())
	assert.Equal(t, "c", f.coord.Snapshot().HeroStream)

	assert.ErrorIs(t, f.coord.SelectStream("nope"), ErrUnknownStream)
}

func TestCoordinator_PauseAndPlayBroadcast(t *testing.T) {
	f := newViewerFixture(t)
	sess := f.start(t, testConfig)
	f.ready(sess, testConfig.StreamIDs...)

	f.coord.Pause()
	view := f.coord.Snapshot()
	for _, s := range view.Streams {
		assert.Equal(t, PlaybackPaused, s.State, s.ID)
		assert.True(t, s.Frozen, s.ID)
	}
	assert.True(t, view.AllReady)

	f.coord.Play()
	for _, s := range f.coord.Snapshot().Streams {
		assert.Equal(t, PlaybackPlaying, s.State, s.ID)
		assert.False(t, s.Frozen, s.ID)
	}
}

func TestCoordinator_PauseHoldsRecoveredStreams(t *testing.T) {
	f := newViewerFixture(t)
	sess := f.start(t, testConfig)
	f.ready(sess, testConfig.StreamIDs...)
	f.coord.Pause()

	failed := f.timeShift(sess, "b")
	failed.Fail(sdk.StatusFailed)
	f.sched.Advance(DefaultRetryBackoff)
	rebuilt := f.timeShift(sess, "b")
	require.NotSame(t, failed, rebuilt)
	f.ready(sess, "b")

	view := f.coord.Snapshot()
	for _, s := range view.Streams {
		assert.Equal(t, PlaybackPaused, s.State, s.ID)
		assert.True(t, s.Frozen, s.ID)
	}
	assert.Zero(t, rebuilt.Plays())
	assert.Equal(t, 1, rebuilt.Pauses())

	b, ok := view.Stream("b")
	require.True(t, ok)
	r := sess.Subscriber("b").Renderer
	r.EmitFrame(frameAt(time.Second))
	r.EmitFrame(frameAt(2 * time.Second))
	f.sched.Advance(time.Second)
	after, _ := f.coord.Snapshot().Stream("b")
	assert.Equal(t, b.FrameSeq, after.FrameSeq, "a held stream keeps its frame")

	f.coord.Play()
	for _, s := range f.coord.Snapshot().Streams {
		assert.Equal(t, PlaybackPlaying, s.State, s.ID)
	}
	assert.Equal(t, 1, rebuilt.Plays())
}

func TestCoordinator_SelectActEndsGroupPause(t *testing.T) {
	f := newViewerFixture(t)
	sess := f.start(t, testConfig)
	f.ready(sess, testConfig.StreamIDs...)
	f.coord.Pause()

	_, err := f.coord.SelectAct(1)
	require.NoError(t, err)
	for _, id := range testConfig.StreamIDs {
		f.timeShift(sess, id).LastSeek().Ack(sdk.StatusOK)
	}
	f.sched.Flush()
	f.sched.Advance(DefaultReadyDebounce)

	for _, s := range f.coord.Snapshot().Streams {
		assert.Equal(t, PlaybackPlaying, s.State, s.ID)
	}
}

func TestCoordinator_AllEnded(t *testing.T) {
	f := newViewerFixture(t)
	sess := f.start(t, testConfig)
	f.ready(sess, testConfig.StreamIDs...)

	f.timeShift(sess, "a").End()
	f.timeShift(sess, "b").End()
	f.sched.Flush()
	assert.False(t, f.coord.Snapshot().AllEnded)

	f.timeShift(sess, "c").End()
	f.sched.Flush()
	assert.True(t, f.coord.Snapshot().AllEnded)
}

func TestCoordinator_HeroHeadAndChanges(t *testing.T) {
	f := newViewerFixture(t)
	var views []ViewState
	f.coord.OnChange(func(v ViewState) { views = append(views, v) })
	sess := f.start(t, testConfig)
	f.ready(sess, testConfig.StreamIDs...)

	f.timeShift(sess, "a").SetHead(75 * time.Second)
	f.sched.Flush()

	require.NotEmpty(t, views)
	assert.Equal(t, "1:15", views[len(views)-1].HeroHead)
	assert.Equal(t, "1:15", f.coord.Snapshot().HeroHead)
}

func TestCoordinator_EmptyIsNeitherReadyNorEnded(t *testing.T) {
	f := newViewerFixture(t)

	assert.False(t, f.coord.AllReady())
	assert.False(t, f.coord.AllEnded())
	assert.Empty(t, f.coord.Snapshot().Streams)
}
