package playback

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"transcript-sync/internal/platform/logger"
)

// Handler exposes the engine to a host over HTTP using go-chi.
type Handler struct {
	engine *Engine
	log    *slog.Logger
}

// NewHandler returns a Handler driving engine.
func NewHandler(engine *Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{engine: engine, log: log}
}

// Mount registers the handler's routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/segments", func(r chi.Router) {
		r.Get("/", h.ListSegments)
		r.Post("/", h.AppendSegments)
	})
	r.Get("/transcript.vtt", h.GetTranscript)
	r.Post("/keys", h.HandleKey)
	r.Get("/state", h.GetState)
	r.Get("/locate", h.Locate)
}

// AppendSegments handles POST /segments.
// Body: a JSON array of segments continuing the feed.
func (h *Handler) AppendSegments(w http.ResponseWriter, r *http.Request) {
	var page []Segment
	if err := json.NewDecoder(r.Body).Decode(&page); err != nil {
		h.log.Debug("invalid segment body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.engine.Append(page); err != nil {
		if errors.Is(err, ErrInvalidSegments) {
			h.log.Info("segment page rejected",
				slog.Int("segments", len(page)),
				slog.String("error", err.Error()))
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		h.log.Error("append segments failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]int{"segments": h.engine.Feed().Len()})
}

// ListSegments handles GET /segments.
func (h *Handler) ListSegments(w http.ResponseWriter, r *http.Request) {
	segs := h.engine.Feed().Segments()
	if segs == nil {
		segs = []Segment{}
	}
	h.writeJSON(w, http.StatusOK, segs)
}

// GetTranscript handles GET /transcript.vtt. ?translation=1 adds translations.
func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	translation, _ := strconv.ParseBool(r.URL.Query().Get("translation"))
	w.Header().Set("Content-Type", vttContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, BuildWebVTT(h.engine.Feed().Segments(), translation)); err != nil {
		h.log.Debug("write transcript failed", slog.String("error", err.Error()))
	}
}

// HandleKey handles POST /keys.
// Body: { "key": "ArrowRight", "shift": false, "ctrl": false, "meta": false, "alt": false, "editable": false }.
func (h *Handler) HandleKey(w http.ResponseWriter, r *http.Request) {
	var ev KeyEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.Key == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.engine.HandleKey(ev))
}

// GetState handles GET /state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

// Locate handles GET /locate?t=seconds.
func (h *Handler) Locate(w http.ResponseWriter, r *http.Request) {
	t, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.engine.Locate(t))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response failed", slog.String("error", err.Error()))
	}
}
