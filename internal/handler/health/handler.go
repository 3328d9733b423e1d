package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wrenlabs/concierge/backend/internal/store"
	"github.com/wrenlabs/concierge/backend/pkg/utils"
)

const readyTimeout = 2 * time.Second

// Handler exposes liveness and readiness probes.
type Handler struct {
	pinger store.Pinger
}

// New creates the health handler. The pinger is the session store.
func New(pinger store.Pinger) *Handler {
	return &Handler{pinger: pinger}
}

// RegisterRoutes registers the probe endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleLive)
	r.Get("/health/ready", h.handleReady)
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the session store is reachable.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.pinger == nil {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": "unconfigured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
