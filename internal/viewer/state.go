package viewer

import "fmt"

// TimeShiftState is the lifecycle of one SDK time-shift session.
type TimeShiftState int

const (
	TimeShiftStarting TimeShiftState = iota
	TimeShiftSeeking
	TimeShiftReadyToPlay
	TimeShiftPlaying
	TimeShiftPaused
	TimeShiftEnded
	// TimeShiftFailed is a failure reported by the SDK.
	TimeShiftFailed
	// TimeShiftFailedForced is a failure imposed locally, e.g. on timeout.
	TimeShiftFailedForced
)

var timeShiftStateNames = [...]string{
	"starting", "seeking", "ready-to-play", "playing",
	"paused", "ended", "failed", "failed-forced",
}

func (s TimeShiftState) String() string {
	if int(s) >= 0 && int(s) < len(timeShiftStateNames) {
		return timeShiftStateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Failed reports whether s is either failure state.
func (s TimeShiftState) Failed() bool {
	return s == TimeShiftFailed || s == TimeShiftFailedForced
}

// PlaybackState is the stream-facing view of a time-shift session.
type PlaybackState int

const (
	// PlaybackIdle means no time-shift session exists yet.
	PlaybackIdle PlaybackState = iota
	PlaybackLoading
	PlaybackReadyToPlay
	PlaybackPlaying
	PlaybackPaused
	PlaybackEnded
	PlaybackFailure
)

var playbackStateNames = [...]string{
	"idle", "loading", "ready-to-play", "playing", "paused", "ended", "failure",
}

func (s PlaybackState) String() string {
	if int(s) >= 0 && int(s) < len(playbackStateNames) {
		return playbackStateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s PlaybackState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *PlaybackState) UnmarshalText(b []byte) error {
	return unmarshalName(b, playbackStateNames[:], (*int)(s))
}

// ReadyOrLater reports whether the session has at least become playable.
func (s PlaybackState) ReadyOrLater() bool {
	switch s {
	case PlaybackReadyToPlay, PlaybackPlaying, PlaybackPaused, PlaybackEnded:
		return true
	}
	return false
}

// playbackStateFor maps worker states 1:1, folding starting and seeking
// into loading.
func playbackStateFor(s TimeShiftState) PlaybackState {
	switch s {
	case TimeShiftStarting, TimeShiftSeeking:
		return PlaybackLoading
	case TimeShiftReadyToPlay:
		return PlaybackReadyToPlay
	case TimeShiftPlaying:
		return PlaybackPlaying
	case TimeShiftPaused:
		return PlaybackPaused
	case TimeShiftEnded:
		return PlaybackEnded
	default:
		return PlaybackFailure
	}
}

// ConnectionState is the subscription status of a stream.
type ConnectionState int

const (
	ConnectionOffline ConnectionState = iota
	ConnectionJoining
	ConnectionStreaming
)

var connectionStateNames = [...]string{"offline", "joining", "streaming"}

func (s ConnectionState) String() string {
	if int(s) >= 0 && int(s) < len(connectionStateNames) {
		return connectionStateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *ConnectionState) UnmarshalText(b []byte) error {
	return unmarshalName(b, connectionStateNames[:], (*int)(s))
}

func unmarshalName(b []byte, names []string, dst *int) error {
	for i, name := range names {
		if name == string(b) {
			*dst = i
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Role decides how a stream is rendered and how much bandwidth it gets.
type Role int

const (
	RoleThumbnail Role = iota
	RoleHero
	RoleOffscreen
)

var roleNames = [...]string{"thumbnail", "hero", "offscreen"}

func (r Role) String() string {
	if int(r) >= 0 && int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("unknown(%d)", int(r))
}

// Bandwidth budgets per role, in bits per second.
const (
	BandwidthHero      int64 = 1_200_000
	BandwidthThumbnail int64 = 735_000
	BandwidthOffscreen int64 = 1_000
)

// Bandwidth returns the budget for r.
func (r Role) Bandwidth() int64 {
	switch r {
	case RoleHero:
		return BandwidthHero
	case RoleOffscreen:
		return BandwidthOffscreen
	default:
		return BandwidthThumbnail
	}
}
