package viewer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"multiangle-viewer/internal/dispatch"
)

// DefaultIntentLimit is the number of intents a single client may post per
// minute.
const DefaultIntentLimit = 120

// Handler exposes the viewer to UI clients. Intents are validated against
// the latest view state, queued on the main queue and acknowledged with 202;
// clients follow the outcome on /events.
type Handler struct {
	coord   *Coordinator
	session *Session
	hub     *Hub
	sched   dispatch.Scheduler
	log     *slog.Logger

	intentLimit int
}

// NewHandler returns a Handler driving coord and session on sched.
func NewHandler(coord *Coordinator, session *Session, hub *Hub, sched dispatch.Scheduler, log *slog.Logger) *Handler {
	return &Handler{coord: coord, session: session, hub: hub, sched: sched, log: log, intentLimit: DefaultIntentLimit}
}

// SetIntentLimit changes the per-client intent budget. It must be called
// before Routes; n <= 0 restores the default.
func (h *Handler) SetIntentLimit(n int) {
	if n <= 0 {
		n = DefaultIntentLimit
	}
	h.intentLimit = n
}

// Routes registers the viewer endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/state", h.GetState)
	r.Get("/events", h.Events)
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit())
		r.Post("/streams/{stream_id}/select", h.SelectStream)
		r.Post("/acts/{index}/play", h.SelectAct)
		r.Post("/play", h.Play)
		r.Post("/pause", h.Pause)
		r.Post("/deeplink", h.DeepLink)
	})
}

var errRateLimited = errors.New("too many requests")

func (h *Handler) rateLimit() func(http.Handler) http.Handler {
	return httprate.Limit(
		h.intentLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			h.log.Debug("intent rate limited", slog.String("path", r.URL.Path))
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, errRateLimited)
		}),
	)
}

// GetState handles GET /state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.Snapshot())
}

// Events handles GET /events, a websocket of view states.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	h.hub.Serve(w, r, h.coord.Snapshot())
}

// SelectStream handles POST /streams/{stream_id}/select.
func (h *Handler) SelectStream(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "stream_id")
	if streamID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, ok := h.coord.Snapshot().Stream(streamID); !ok {
		writeError(w, http.StatusNotFound, ErrUnknownStream)
		return
	}
	h.sched.Post(func() {
		if err := h.coord.SelectStream(streamID); err != nil {
			h.log.Info("select stream rejected", slog.String("stream_id", streamID), slog.String("error", err.Error()))
		}
	})
	h.log.Debug("stream selection queued", slog.String("stream_id", streamID))
	w.WriteHeader(http.StatusAccepted)
}

// SelectAct handles POST /acts/{index}/play.
func (h *Handler) SelectAct(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	view := h.coord.Snapshot()
	if index < 0 || index >= len(view.Acts) {
		writeError(w, http.StatusNotFound, ErrUnknownAct)
		return
	}
	if !view.SeekEnabled {
		writeError(w, http.StatusTooManyRequests, ErrSeekCoolingDown)
		return
	}
	h.sched.Post(func() {
		if _, err := h.coord.SelectAct(index); err != nil {
			h.log.Info("act selection rejected", slog.Int("index", index), slog.String("error", err.Error()))
		}
	})
	h.log.Debug("act selection queued", slog.Int("index", index))
	w.WriteHeader(http.StatusAccepted)
}

// Play handles POST /play.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	h.sched.Post(h.coord.Play)
	w.WriteHeader(http.StatusAccepted)
}

// Pause handles POST /pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.sched.Post(h.coord.Pause)
	w.WriteHeader(http.StatusAccepted)
}

// DeepLink handles POST /deeplink?uri=&backend=&edgeauth=&streamIDs=&acts=.
func (h *Handler) DeepLink(w http.ResponseWriter, r *http.Request) {
	err := h.session.HandleDeepLink(r.URL.Query())
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, ErrDeepLinkInvalid):
		h.log.Debug("invalid deep link", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ErrConfigurationChanged):
		h.log.Info("deep link requires restart")
		writeError(w, http.StatusConflict, err)
	default:
		h.log.Error("deep link failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
