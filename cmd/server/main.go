package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"multiangle-viewer/internal/dispatch"
	"multiangle-viewer/internal/platform/config"
	"multiangle-viewer/internal/platform/logger"
	"multiangle-viewer/internal/platform/metrics"
	"multiangle-viewer/internal/prefs"
	"multiangle-viewer/internal/sdk/simsdk"
	"multiangle-viewer/internal/viewer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	prefsPath := config.GetEnv("PREFS_PATH", "viewer-prefs.json")
	defaultsPath := config.GetEnv("DEFAULTS_FILE", "defaults.yaml")

	log := logger.New(logLevel, logFormat)

	defaults, err := config.LoadDefaults(defaultsPath)
	if err != nil {
		log.Error("load defaults failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defaults = defaults.ApplyEnv()
	launch := viewer.Configuration{
		URI:       defaults.URI,
		Backend:   defaults.Backend,
		EdgeAuth:  defaults.EdgeAuth,
		StreamIDs: defaults.StreamIDs,
		Acts:      defaults.Acts,
	}

	store, err := prefs.OpenFileStore(prefsPath)
	if err != nil {
		log.Error("open preferences failed", slog.String("path", prefsPath), slog.String("error", err.Error()))
		os.Exit(1)
	}

	initial := launch
	if saved, ok, err := viewer.LoadSavedConfiguration(store); err != nil {
		log.Warn("ignoring saved configuration", slog.String("error", err.Error()))
	} else if ok {
		initial = saved
	}

	met := metrics.New()
	queue := dispatch.NewQueue(log)
	opts := viewer.Options{
		Scheduler:             queue,
		Logger:                log,
		Metrics:               met,
		ConnectionTimeout:     config.GetEnvDuration("CONNECTION_TIMEOUT", viewer.DefaultConnectionTimeout),
		RetryMaxAttempts:      config.GetEnvInt("RETRY_MAX_ATTEMPTS", viewer.DefaultRetryMaxAttempts),
		RetryBackoff:          config.GetEnvDuration("RETRY_BACKOFF", viewer.DefaultRetryBackoff),
		SeekCooldown:          config.GetEnvDuration("SEEK_COOLDOWN", viewer.DefaultSeekCooldown),
		ReinitializationDelay: config.GetEnvDuration("REINITIALIZATION_DELAY", viewer.DefaultReinitializationDelay),
		ReadyDebounce:         config.GetEnvDuration("READY_DEBOUNCE", viewer.DefaultReadyDebounce),
		HeadInterval:          config.GetEnvDuration("HEAD_INTERVAL", viewer.DefaultHeadInterval),
		FrameDelay:            config.GetEnvDuration("FRAME_DELAY", viewer.DefaultFrameDelay),
	}

	simCfg := simsdk.DefaultConfig()
	simCfg.Length = config.GetEnvDuration("SIM_RECORDING_LENGTH", simCfg.Length)
	provider := simsdk.New(simCfg, log)

	session := viewer.NewSession(provider, store, launch, opts)
	coord := viewer.NewCoordinator(store, opts)
	hub := viewer.NewHub(log)
	h := viewer.NewHandler(coord, session, hub, queue, log)
	h.SetIntentLimit(config.GetEnvInt("INTENT_RATE_LIMIT", viewer.DefaultIntentLimit))

	queue.Post(func() {
		coord.Bind(session)
		coord.OnChange(hub.Publish)
		if err := session.Reconfigure(initial); err != nil {
			log.Error("initial configuration rejected", slog.String("error", err.Error()))
		}
	})

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", met.Handler(nil).ServeHTTP)
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	// The queue outlives gctx so teardown can still run on it.
	g.Go(func() error { return queue.Run(context.Background()) })
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		log.Info("server starting",
			slog.String("port", port),
			slog.String("backend", initial.Backend),
			slog.Int("streams", len(initial.StreamIDs)),
			slog.Int("acts", len(initial.Acts)),
			slog.String("log_level", logLevel),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections")
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		defer queue.Stop()
		err := srv.Shutdown(shutdownCtx)
		if callErr := dispatch.Call(shutdownCtx, queue, session.Close); callErr != nil {
			log.Warn("session teardown did not finish", slog.String("error", callErr.Error()))
		}
		return err
	})

	err = g.Wait()
	if err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("server stopped")
}
