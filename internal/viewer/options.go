package viewer

import (
	"log/slog"
	"time"

	"multiangle-viewer/internal/dispatch"
	"multiangle-viewer/internal/platform/metrics"
)

// Defaults for Options fields left zero.
const (
	DefaultConnectionTimeout     = 20 * time.Second
	DefaultRetryMaxAttempts      = 10
	DefaultRetryBackoff          = 10 * time.Second
	DefaultSeekCooldown          = 2 * time.Second
	DefaultReinitializationDelay = time.Second
	DefaultFrameDelay            = 100 * time.Millisecond
)

// Options carries the collaborators and tunables shared by every viewer
// component. Scheduler is required; everything else has a default.
type Options struct {
	Scheduler dispatch.Scheduler
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	ConnectionTimeout     time.Duration
	RetryMaxAttempts      int
	RetryBackoff          time.Duration
	SeekCooldown          time.Duration
	ReinitializationDelay time.Duration
	ReadyDebounce         time.Duration
	HeadInterval          time.Duration
	FrameDelay            time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.ConnectionTimeout <= 0 {
		o.ConnectionTimeout = DefaultConnectionTimeout
	}
	if o.RetryMaxAttempts <= 0 {
		o.RetryMaxAttempts = DefaultRetryMaxAttempts
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.SeekCooldown <= 0 {
		o.SeekCooldown = DefaultSeekCooldown
	}
	if o.ReinitializationDelay <= 0 {
		o.ReinitializationDelay = DefaultReinitializationDelay
	}
	if o.ReadyDebounce <= 0 {
		o.ReadyDebounce = DefaultReadyDebounce
	}
	if o.HeadInterval <= 0 {
		o.HeadInterval = DefaultHeadInterval
	}
	if o.FrameDelay <= 0 {
		o.FrameDelay = DefaultFrameDelay
	}
	return o
}
