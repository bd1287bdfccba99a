package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"

	"github.com/google/uuid"

	"multiangle-viewer/internal/dispatch"
	"multiangle-viewer/internal/prefs"
	"multiangle-viewer/internal/sdk"
)

// Preference keys.
const (
	PrefSelectedAct   = "stream_act"
	PrefConfiguration = "configuration"
)

// LoadSavedConfiguration returns the configuration persisted by the last
// deep link, if any.
func LoadSavedConfiguration(store prefs.Store) (Configuration, bool, error) {
	var cfg Configuration
	ok, err := store.Get(PrefConfiguration, &cfg)
	if err != nil || !ok {
		return Configuration{}, false, err
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, false, err
	}
	return cfg, true, nil
}

// Session owns the single SDK session and the streams built from the
// applied configuration. Reconfigure tears everything down and rebuilds it.
//
// Methods run on the main queue unless documented otherwise.
type Session struct {
	opts     Options
	log      *slog.Logger
	provider sdk.Provider
	store    prefs.Store
	defaults Configuration

	// read from any goroutine
	config atomic.Pointer[Configuration]
	online atomic.Pointer[chan struct{}]

	sdkSession sdk.Session
	id         string
	gen        int
	streams    []*Stream
	acts       []Act
	rebuild    *dispatch.WorkItem
	fatal      error

	streamsChanged listeners[[]*Stream]
	errs           listeners[error]
}

// NewSession returns an unconfigured session. defaults fill in parameters
// missing from deep links.
func NewSession(provider sdk.Provider, store prefs.Store, defaults Configuration, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		opts:     opts,
		log:      opts.Logger.With(slog.String("component", "session")),
		provider: provider,
		store:    store,
		defaults: defaults,
	}
}

// ID identifies the current SDK session instance, empty when none exists.
func (s *Session) ID() string { return s.id }

// Streams returns the streams of the current configuration.
func (s *Session) Streams() []*Stream { return s.streams }

// Acts returns the acts of the current configuration.
func (s *Session) Acts() []Act { return s.acts }

// Fatal returns the error that ended the session, if any.
func (s *Session) Fatal() error { return s.fatal }

// Configuration returns the applied configuration. Safe from any goroutine.
func (s *Session) Configuration() (Configuration, bool) {
	cfg := s.config.Load()
	if cfg == nil {
		return Configuration{}, false
	}
	return *cfg, true
}

// OnStreamsChanged registers fn to receive the stream list after every
// rebuild and nil on teardown.
func (s *Session) OnStreamsChanged(fn func([]*Stream)) func() {
	return s.streamsChanged.add(fn)
}

// OnError registers fn for errors that end the session.
func (s *Session) OnError(fn func(error)) func() {
	return s.errs.add(fn)
}

// Reconfigure applies cfg. An unchanged configuration is a no-op. A running
// session is torn down first and rebuilt after the re-initialization delay.
func (s *Session) Reconfigure(cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cur := s.config.Load(); cur != nil && cur.Equal(cfg) && s.fatal == nil {
		return nil
	}
	s.log.Info("applying configuration",
		slog.Int("streams", len(cfg.StreamIDs)),
		slog.Int("acts", len(cfg.Acts)),
		slog.String("backend", cfg.Backend),
	)
	s.config.Store(&cfg)
	if err := s.store.Put(PrefConfiguration, cfg); err != nil {
		s.log.Warn("could not persist configuration", slog.String("error", err.Error()))
	}

	s.rebuild.Cancel()
	s.fatal = nil
	if !s.teardown() {
		s.initialize()
		return nil
	}
	s.log.Debug("session disposed, rebuilding", slog.Duration("delay", s.opts.ReinitializationDelay))
	s.rebuild = s.opts.Scheduler.After(s.opts.ReinitializationDelay, s.initialize)
	return nil
}

// HandleDeepLink applies launch parameters received while running. The
// first configuration is applied directly. A different configuration is
// persisted for the next start and ErrConfigurationChanged is returned.
// Safe from any goroutine.
func (s *Session) HandleDeepLink(query url.Values) error {
	cfg, err := ParseDeepLink(query, s.defaults)
	if err != nil {
		return err
	}
	cur := s.config.Load()
	if cur == nil {
		s.opts.Scheduler.Post(func() {
			if err := s.Reconfigure(cfg); err != nil {
				s.log.Warn("deep link configuration rejected", slog.String("error", err.Error()))
			}
		})
		return nil
	}
	if cur.Equal(cfg) {
		return nil
	}
	if err := s.store.Put(PrefConfiguration, cfg); err != nil {
		return fmt.Errorf("persist configuration: %w", err)
	}
	s.log.Warn("deep link changes configuration, restart required")
	return ErrConfigurationChanged
}

// WaitForOnline blocks until the current SDK session is connected or ctx
// is done. Safe from any goroutine.
func (s *Session) WaitForOnline(ctx context.Context) error {
	ch := s.online.Load()
	if ch == nil {
		return errors.New("session not initialized")
	}
	select {
	case <-*ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disposes the streams and the SDK session.
func (s *Session) Close() {
	s.rebuild.Cancel()
	s.teardown()
}

func (s *Session) initialize() {
	cfg := s.config.Load()
	if cfg == nil {
		return
	}
	acts, err := cfg.ParsedActs()
	if err != nil {
		s.setFatal(err)
		return
	}
	s.gen++
	gen := s.gen
	sess, err := s.provider.NewSession(sdk.Options{
		BackendURL: cfg.Backend,
		PCastURI:   cfg.URI,
		AuthToken:  cfg.EdgeAuth,
	}, func(status sdk.RequestStatus, description string) {
		s.opts.Scheduler.Post(func() { s.unrecoverable(gen, status, description) })
	})
	if err != nil {
		s.setFatal(fmt.Errorf("%w: %w", ErrUnrecoverableSDK, err))
		return
	}
	s.sdkSession = sess
	s.id = uuid.NewString()
	s.opts.Metrics.IncSessionRebuilds()

	online := make(chan struct{})
	s.online.Store(&online)

	s.acts = acts
	s.streams = make([]*Stream, 0, len(cfg.StreamIDs))
	for _, id := range cfg.StreamIDs {
		s.streams = append(s.streams, NewStream(id, cfg.EdgeAuth, sess, s.opts))
	}
	s.log.Info("session initialized", slog.String("session_id", s.id), slog.Int("streams", len(s.streams)))
	s.streamsChanged.emit(s.streams)

	sess.WaitForOnline(func() {
		s.opts.Scheduler.Post(func() { s.wentOnline(gen, online) })
	})
}

func (s *Session) wentOnline(gen int, online chan struct{}) {
	if gen != s.gen || s.sdkSession == nil {
		return
	}
	s.log.Info("session online", slog.String("session_id", s.id))
	close(online)
	for _, st := range s.streams {
		st.SubscribeToStream()
	}
}

func (s *Session) unrecoverable(gen int, status sdk.RequestStatus, description string) {
	if gen != s.gen {
		return
	}
	s.log.Error("unrecoverable SDK error", slog.String("status", status.String()), slog.String("description", description))
	s.teardown()
	s.setFatal(fmt.Errorf("%w: %s (%s)", ErrUnrecoverableSDK, description, status))
}

func (s *Session) setFatal(err error) {
	s.fatal = err
	s.errs.emit(err)
}

// teardown disposes streams before the SDK session. It reports whether
// anything was running.
func (s *Session) teardown() bool {
	if s.sdkSession == nil && len(s.streams) == 0 {
		return false
	}
	s.gen++
	for _, st := range s.streams {
		st.Dispose()
	}
	s.streams = nil
	s.acts = nil
	if s.sdkSession != nil {
		s.sdkSession.Dispose()
		s.sdkSession = nil
	}
	s.id = ""
	s.streamsChanged.emit(nil)
	return true
}
