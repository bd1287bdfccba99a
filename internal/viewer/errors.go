package viewer

import "errors"

var (
	// ErrNotSeekable is returned when a stream's renderer cannot time-shift.
	// It is fatal for that stream.
	ErrNotSeekable = errors.New("renderer is not seekable")

	// ErrSubscribeFailed marks a stream offline. The subscribe layer does
	// not retry.
	ErrSubscribeFailed = errors.New("stream subscription failed")

	// ErrRendererStart is returned when a renderer refuses to start.
	ErrRendererStart = errors.New("renderer failed to start")

	// ErrTimeShiftFailure is a failure reported by the SDK for a time-shift
	// session. It is retried with bounded backoff.
	ErrTimeShiftFailure = errors.New("time-shift session failed")

	// ErrConnectionTimeout is a forced failure after a time-shift session
	// made no progress in time.
	ErrConnectionTimeout = errors.New("time-shift connection timed out")

	// ErrRetriesExhausted wraps the last failure once the retry budget is spent.
	ErrRetriesExhausted = errors.New("time-shift retries exhausted")

	// ErrUnrecoverableSDK is fatal to the whole session.
	ErrUnrecoverableSDK = errors.New("unrecoverable SDK error")

	// ErrConfigurationChanged is returned when a deep link arrives with
	// different parameters while a session is running. A restart is required.
	ErrConfigurationChanged = errors.New("configuration changed, restart required")

	// ErrDeepLinkInvalid is returned for missing or unparseable launch parameters.
	ErrDeepLinkInvalid = errors.New("invalid deep link")

	// ErrUnknownStream is returned when a stream id is not configured.
	ErrUnknownStream = errors.New("unknown stream")

	// ErrUnknownAct is returned when no act exists at the requested index.
	ErrUnknownAct = errors.New("unknown act")

	// ErrSeekCoolingDown is returned when a seek is requested before the
	// previous one settled.
	ErrSeekCoolingDown = errors.New("seek is cooling down")
)

// Recoverable reports whether err is retried locally rather than surfaced
// as terminal for the session.
func Recoverable(err error) bool {
	if errors.Is(err, ErrRetriesExhausted) {
		return false
	}
	return errors.Is(err, ErrTimeShiftFailure) || errors.Is(err, ErrConnectionTimeout)
}
