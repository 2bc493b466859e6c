package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dynq/internal/logging"
)

// RouterOptions wires the read-only HTTP surface.
type RouterOptions struct {
	Queue   *QueueService
	Status  func(ctx context.Context) (DaemonStatus, error)
	Ready   func(ctx context.Context) error
	Metrics bool
	Logger  *slog.Logger
}

type handlers struct {
	opts   RouterOptions
	logger *slog.Logger
}

// NewRouter builds the chi router serving health, metrics, and queue reads.
func NewRouter(opts RouterOptions) http.Handler {
	logger := logging.NewComponentLogger(opts.Logger, "api-server")
	h := &handlers{opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger(logger))
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/queue", h.queueList)
		r.Get("/queue/{id}", h.queueItem)
	})
	return r
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ready(ctx); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	if h.opts.Status == nil {
		h.writeError(w, http.StatusServiceUnavailable, "status unavailable")
		return
	}
	status, err := h.opts.Status(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *handlers) queueList(w http.ResponseWriter, r *http.Request) {
	if h.opts.Queue == nil {
		h.writeJSON(w, http.StatusOK, QueueListResponse{})
		return
	}
	query := r.URL.Query()
	resp, err := h.opts.Queue.List(r.Context(), strings.TrimSpace(query.Get("status")), strings.TrimSpace(query.Get("sort")))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) queueItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" || h.opts.Queue == nil {
		h.writeError(w, http.StatusNotFound, "queue item not found")
		return
	}
	item, err := h.opts.Queue.Describe(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if item == nil {
		h.writeError(w, http.StatusNotFound, "queue item not found")
		return
	}
	h.writeJSON(w, http.StatusOK, QueueItemResponse{Item: *item})
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (h *handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
