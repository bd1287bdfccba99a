package viewer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multiangle-viewer/internal/dispatch"
	"multiangle-viewer/internal/sdk"
	"multiangle-viewer/internal/sdk/sdktest"
)

func newFakeSession(t *testing.T) *sdktest.Session {
	t.Helper()
	p := &sdktest.Provider{}
	s, err := p.NewSession(sdk.Options{BackendURL: "https://backend.test"}, func(sdk.RequestStatus, string) {})
	require.NoError(t, err)
	return s.(*sdktest.Session)
}

type streamFixture struct {
	sched  *dispatch.Manual
	sess   *sdktest.Session
	s      *Stream
	events []StreamEvent
}

func newStreamFixture(t *testing.T) *streamFixture {
	t.Helper()
	f := &streamFixture{sched: dispatch.NewManual(epoch), sess: newFakeSession(t)}
	f.s = NewStream("s1", "edge-token", f.sess, testOptions(f.sched))
	f.s.Subscribe(func(ev StreamEvent) { f.events = append(f.events, ev) })
	return f
}

// connect subscribes and accepts with a default subscriber.
func (f *streamFixture) connect() *sdktest.Subscriber {
	f.s.SubscribeToStream()
	sub := f.sess.Accept("s1")
	f.sched.Flush()
	return sub
}

func (f *streamFixture) ready(sub *sdktest.Subscriber) {
	sub.Renderer.TimeShift().SetReady(true)
	f.sched.Advance(DefaultReadyDebounce)
}

func frameAt(d time.Duration) sdk.Frame {
	return sdk.Frame{Timestamp: d}
}

func (f *streamFixture) shownFrame(t *testing.T) time.Duration {
	t.Helper()
	fr, ok := f.s.Frame()
	require.True(t, ok, "no frame shown")
	return fr.Timestamp
}

func TestStream_SubscribeSetsUpThumbnail(t *testing.T) {
	f := newStreamFixture(t)

	f.s.SubscribeToStream()
	assert.Equal(t, ConnectionJoining, f.s.Connection())
	req := f.sess.Request("s1")
	require.NotNil(t, req)
	assert.Equal(t, []string{sdk.CapabilityOnDemand}, req.Opts.Capabilities)
	assert.Equal(t, "edge-token", req.Opts.Token)

	sub := f.sess.Accept("s1")
	f.sched.Flush()

	r := sub.Renderer
	assert.Equal(t, ConnectionStreaming, f.s.Connection())
	assert.Equal(t, PlaybackLoading, f.s.State())
	assert.Equal(t, "s1/thumbnail", r.Surface().SurfaceID())
	assert.True(t, r.IsAudioMuted())
	assert.True(t, r.HasFrameCallback())
	assert.Equal(t, []int64{BandwidthThumbnail}, sub.ActiveLimits())
	require.NotNil(t, r.TimeShift())
	assert.Equal(t, 4, r.TimeShift().Observers())
}

func TestStream_SubscribeFailures(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(f *streamFixture) *sdktest.Subscriber
		wantErr error
	}{
		{
			name: "request failed",
			prepare: func(f *streamFixture) *sdktest.Subscriber {
				f.sess.Request("s1").Fail(sdk.StatusNotFound)
				return nil
			},
			wantErr: ErrSubscribeFailed,
		},
		{
			name: "not seekable",
			prepare: func(f *streamFixture) *sdktest.Subscriber {
				sub := sdktest.NewSubscriber()
				sub.Renderer.Seekable = false
				f.sess.Request("s1").Succeed(sub)
				return sub
			},
			wantErr: ErrNotSeekable,
		},
		{
			name: "renderer does not start",
			prepare: func(f *streamFixture) *sdktest.Subscriber {
				sub := sdktest.NewSubscriber()
				sub.Renderer.StartStatus = sdk.StatusFailed
				f.sess.Request("s1").Succeed(sub)
				return sub
			},
			wantErr: ErrRendererStart,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newStreamFixture(t)
			f.s.SubscribeToStream()
			sub := tc.prepare(f)
			f.sched.Flush()

			assert.Equal(t, ConnectionOffline, f.s.Connection())
			assert.Equal(t, PlaybackFailure, f.s.State())
			assert.NotEmpty(t, f.s.View().Error)
			last := f.events[len(f.events)-1]
			assert.Equal(t, StreamFailed, last.Kind)
			assert.ErrorIs(t, last.Err, tc.wantErr)
			if sub != nil {
				assert.Empty(t, sub.Renderer.TimeShifts(), "setup must abort before the time-shift")
				assert.True(t, sub.Disposed())
				assert.True(t, sub.Renderer.Disposed())
			}
			assert.Equal(t, 0, f.sched.PendingTimers())
		})
	}
}

func TestStream_ResubscribeDisposesPrevious(t *testing.T) {
	f := newStreamFixture(t)
	first := f.connect()
	firstTS := first.Renderer.TimeShift()

	f.s.SubscribeToStream()
	second := f.sess.Accept("s1")
	f.sched.Flush()

	assert.True(t, first.Disposed())
	assert.True(t, first.Renderer.Disposed())
	assert.True(t, firstTS.Disposed())
	assert.Empty(t, first.ActiveLimits())
	assert.Equal(t, []int64{BandwidthThumbnail}, second.ActiveLimits())
	assert.Equal(t, ConnectionStreaming, f.s.Connection())
}

func TestStream_StaleSubscribeCallbackIgnored(t *testing.T) {
	f := newStreamFixture(t)
	f.s.SubscribeToStream()
	f.s.SubscribeToStream()

	stale := sdktest.NewSubscriber()
	f.sess.Requests()[0].Succeed(stale)
	f.sched.Flush()

	assert.True(t, stale.Disposed())
	assert.Empty(t, stale.Renderer.TimeShifts())
	assert.Equal(t, ConnectionJoining, f.s.Connection())
}

func TestStream_Roles(t *testing.T) {
	f := newStreamFixture(t)
	sub := f.connect()
	r := sub.Renderer

	f.s.SetRole(RoleHero)
	assert.False(t, r.IsAudioMuted())
	assert.Equal(t, "s1/hero", r.Surface().SurfaceID())
	assert.False(t, r.HasFrameCallback())
	assert.Equal(t, []int64{BandwidthHero}, sub.ActiveLimits())
	assert.True(t, f.s.View().Selected)

	f.s.SetRole(RoleOffscreen)
	assert.True(t, r.IsAudioMuted())
	assert.False(t, r.HasFrameCallback())
	assert.Equal(t, []int64{BandwidthOffscreen}, sub.ActiveLimits())

	f.s.SetRole(RoleThumbnail)
	assert.True(t, r.IsAudioMuted())
	assert.True(t, r.HasFrameCallback())
	assert.Equal(t, []int64{BandwidthThumbnail}, sub.ActiveLimits())
	assert.False(t, f.s.View().Selected)
}

func TestStream_TimeShiftBandwidthFollowsRole(t *testing.T) {
	f := newStreamFixture(t)
	sub := f.connect()
	ts := sub.Renderer.TimeShift()
	assert.Equal(t, []int64{BandwidthThumbnail}, ts.ActiveLimits())

	f.s.SetRole(RoleHero)
	assert.Empty(t, ts.ActiveLimits(), "the hero time-shift is not capped")

	f.s.SetRole(RoleOffscreen)
	assert.Equal(t, []int64{BandwidthOffscreen}, ts.ActiveLimits())

	ts.Fail(sdk.StatusFailed)
	f.sched.Advance(DefaultRetryBackoff)
	rebuilt := sub.Renderer.TimeShift()
	require.NotSame(t, ts, rebuilt)
	assert.Empty(t, ts.ActiveLimits(), "the failed session releases its cap")
	assert.Equal(t, []int64{BandwidthOffscreen}, rebuilt.ActiveLimits())

	f.s.Dispose()
	assert.Empty(t, rebuilt.ActiveLimits())
}

func TestStream_ThumbnailFramesCoalesced(t *testing.T) {
	f := newStreamFixture(t)
	r := f.connect().Renderer

	r.EmitFrame(frameAt(time.Second))
	f.sched.Flush()
	assert.Equal(t, time.Second, f.shownFrame(t), "first frame is drawn at once")
	seq := f.s.View().FrameSeq

	r.EmitFrame(frameAt(2 * time.Second))
	r.EmitFrame(frameAt(3 * time.Second))
	f.sched.Flush()
	assert.Equal(t, seq, f.s.View().FrameSeq)

	f.sched.Advance(DefaultFrameDelay)
	assert.Equal(t, 3*time.Second, f.shownFrame(t))
	assert.Equal(t, seq+1, f.s.View().FrameSeq)
}

func TestStream_PauseFreezesFrame(t *testing.T) {
	f := newStreamFixture(t)
	sub := f.connect()
	r := sub.Renderer
	f.ready(sub)
	require.True(t, f.s.Play())

	r.EmitFrame(frameAt(time.Second))
	f.sched.Flush()
	requests := r.LastFrameRequests()

	require.True(t, f.s.Pause())
	assert.Equal(t, requests+1, r.LastFrameRequests())

	r.EmitFrame(frameAt(2 * time.Second))
	r.DeliverLastFrame(frameAt(1500 * time.Millisecond))
	f.sched.Advance(time.Second)
	assert.Equal(t, 1500*time.Millisecond, f.shownFrame(t), "the requested frame replaces the shown one")
	seq := f.s.View().FrameSeq

	r.EmitFrame(frameAt(4 * time.Second))
	r.DeliverLastFrame(frameAt(5 * time.Second))
	f.sched.Advance(time.Second)
	assert.Equal(t, 1500*time.Millisecond, f.shownFrame(t))
	assert.Equal(t, seq, f.s.View().FrameSeq)
	assert.True(t, f.s.View().Frozen)

	require.True(t, f.s.Play())
	r.EmitFrame(frameAt(3 * time.Second))
	f.sched.Advance(DefaultFrameDelay)
	assert.Equal(t, 3*time.Second, f.shownFrame(t))
}

func TestStream_PauseWithoutFrameRequestsLastFrame(t *testing.T) {
	f := newStreamFixture(t)
	sub := f.connect()
	r := sub.Renderer
	f.ready(sub)
	requests := r.LastFrameRequests()

	require.True(t, f.s.Pause())
	assert.Equal(t, requests+1, r.LastFrameRequests())

	r.DeliverLastFrame(frameAt(4 * time.Second))
	f.sched.Flush()
	assert.Equal(t, 4*time.Second, f.shownFrame(t))

	r.EmitFrame(frameAt(6 * time.Second))
	f.sched.Advance(time.Second)
	assert.Equal(t, 4*time.Second, f.shownFrame(t))
}

func TestStream_PausedHeroShowsItsLastFrame(t *testing.T) {
	f := newStreamFixture(t)
	sub := f.connect()
	r := sub.Renderer
	f.ready(sub)
	require.True(t, f.s.Play())

	r.EmitFrame(frameAt(time.Second))
	f.sched.Flush()
	require.Equal(t, time.Second, f.shownFrame(t))

	f.s.SetRole(RoleHero)
	f.sched.Advance(time.Minute)
	requests := r.LastFrameRequests()

	require.True(t, f.s.Pause())
	assert.Equal(t, requests+1, r.LastFrameRequests())

	r.DeliverLastFrame(frameAt(61 * time.Second))
	f.sched.Flush()
	assert.Equal(t, 61*time.Second, f.shownFrame(t), "the thumbnail frame is stale")
	assert.True(t, f.s.View().Frozen)
}

func TestStream_HeadResetsOnRebuild(t *testing.T) {
	f := newStreamFixture(t)
	sub := f.connect()
	f.ready(sub)

	sub.Renderer.TimeShift().SetHead(30 * time.Second)
	f.sched.Flush()
	assert.Equal(t, 30*time.Second, f.s.Head())
	assert.Equal(t, "0:30", f.s.View().Head)

	sub.Renderer.TimeShift().Fail(sdk.StatusFailed)
	f.sched.Flush()
	require.Equal(t, PlaybackFailure, f.s.State())

	f.s.Seek(mustAct("1:57"))
	assert.Equal(t, time.Duration(0), f.s.Head())
	assert.Equal(t, 117*time.Second, sub.Renderer.TimeShift().Offset)
}

func TestStream_SeekBeforeSubscribeUsesAct(t *testing.T) {
	f := newStreamFixture(t)
	f.s.Seek(mustAct("3:45"))

	sub := f.connect()

	assert.Equal(t, 225*time.Second, sub.Renderer.TimeShift().Offset)
}

func TestStream_Dispose(t *testing.T) {
	f := newStreamFixture(t)
	sub := f.connect()
	ts := sub.Renderer.TimeShift()
	n := len(f.events)

	f.s.Dispose()
	f.s.Dispose()

	assert.True(t, sub.Disposed())
	assert.True(t, sub.Renderer.Disposed())
	assert.True(t, ts.Disposed())
	assert.Empty(t, sub.ActiveLimits())

	f.s.SubscribeToStream()
	f.sched.Advance(time.Minute)
	assert.Len(t, f.events, n, "no events after dispose")
	assert.Equal(t, 0, f.sched.PendingTimers())
}
