package recorder

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/events"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/runstore"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store) *Handler {
	return &Handler{
		store:  store,
		logger: slog.Default().With("component", "recorder-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/runs", h.List)
	mux.HandleFunc("GET /api/v1/runs/summary", h.Summary)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.Get)
}

// List serves GET /api/v1/runs?stage=a,b&status=failed&since=RFC3339&limit=N.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := h.store.List(r.Context(), f)
	if err != nil {
		h.logger.Error("listing runs failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "listing runs failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := h.store.Get(r.Context(), id)
	if errors.Is(err, runstore.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("loading run failed", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "loading run failed")
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.Summary(r.Context())
	if err != nil {
		h.logger.Error("summarising runs failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "summarising runs failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"stages": summary})
}

func parseFilter(r *http.Request) (runstore.Filter, error) {
	q := r.URL.Query()
	var f runstore.Filter
	if stages := q.Get("stage"); stages != "" {
		for _, s := range strings.Split(stages, ",") {
			if s = strings.TrimSpace(s); s != "" {
				f.Stages = append(f.Stages, s)
			}
		}
	}
	switch status := events.Status(q.Get("status")); status {
	case "", events.StatusSucceeded, events.StatusFailed:
		f.Status = status
	default:
		return f, errors.New("status must be succeeded or failed")
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return f, errors.New("since must be an RFC 3339 timestamp")
		}
		f.Since = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
