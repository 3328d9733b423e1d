package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wrenlabs/concierge/backend/internal/model/conversation"
	"github.com/wrenlabs/concierge/backend/internal/service/orchestrator"
)

// Handler exposes the turn engine over plain request/response HTTP.
type Handler struct {
	orch *orchestrator.Service
}

// New creates the chat handler.
func New(orch *orchestrator.Service) *Handler {
	return &Handler{orch: orch}
}

// RegisterRoutes registers the chat endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/{sessionID}", h.handleMessage)
	r.Get("/chat/{sessionID}/history", h.handleHistory)
	r.Delete("/chat/{sessionID}", h.handleReset)
}

type chatResponse struct {
	Response         string `json:"response"`
	SessionID        string `json:"sessionId"`
	Intent           string `json:"intent"`
	RequiresFollowup bool   `json:"requiresFollowup"`
	Persisted        bool   `json:"persisted"`
}

// handleMessage runs one turn to completion and returns the full reply.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle, err := h.orch.SubmitTurn(r.Context(), sessionID, payload.Message)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrEmptyMessage):
			respondError(w, http.StatusBadRequest, "message is required")
		case errors.Is(err, orchestrator.ErrMissingSession):
			respondError(w, http.StatusBadRequest, "session id is required")
		default:
			respondError(w, http.StatusInternalServerError, "failed to start turn")
		}
		return
	}
	defer handle.Cancel()

	// Drain the stream; the settled result carries the concatenated text.
	for {
		if _, err := handle.Recv(r.Context()); err != nil {
			if err == io.EOF {
				break
			}
			// Client went away; the engine commits partial state.
			return
		}
	}

	res := handle.Result()
	respondJSON(w, http.StatusOK, chatResponse{
		Response:         res.Response,
		SessionID:        res.SessionID,
		Intent:           res.Handler,
		RequiresFollowup: res.RequiresFollowup,
		Persisted:        res.Persisted,
	})
}

// handleHistory returns the stored turn list.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	turns, err := h.orch.History(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if turns == nil {
		turns = []conversation.Turn{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": sessionID,
		"turns":     turns,
	})
}

// handleReset drops the stored session state.
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.orch.Reset(r.Context(), sessionID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reset session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
