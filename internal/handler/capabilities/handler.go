package capabilities

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wrenlabs/concierge/backend/internal/service/orchestrator"
)

// Handler lists the routable capabilities so clients can show what the
// concierge can do.
type Handler struct {
	orch *orchestrator.Service
}

// New creates the capabilities handler.
func New(orch *orchestrator.Service) *Handler {
	return &Handler{orch: orch}
}

// RegisterRoutes registers the capabilities endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/capabilities", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.orch.Capabilities())
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
