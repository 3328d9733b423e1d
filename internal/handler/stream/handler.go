package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wrenlabs/concierge/backend/internal/service/orchestrator"
	"github.com/wrenlabs/concierge/backend/pkg/utils"
)

// Handler streams turn replies via Server-Sent Events.
type Handler struct {
	orch *orchestrator.Service
}

// New creates a new stream handler.
func New(orch *orchestrator.Service) *Handler {
	return &Handler{orch: orch}
}

// StreamResponse is one SSE frame.
type StreamResponse struct {
	Event            string  `json:"event"`
	Content          string  `json:"content,omitempty"`
	SessionID        string  `json:"sessionId,omitempty"`
	Handler          string  `json:"handler,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	Continuation     bool    `json:"continuation,omitempty"`
	Finished         bool    `json:"finished,omitempty"`
	RequiresFollowup bool    `json:"requiresFollowup,omitempty"`
	Persisted        *bool   `json:"persisted,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// HandleStreamRequest runs one turn and forwards its chunks as SSE frames:
// a routing frame once the handler is chosen, chunk frames as the reply is
// produced, and an end frame carrying the persistence flag.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	handle, err := h.orch.SubmitTurn(ctx, sessionID, userMessage)
	if err != nil {
		return err
	}
	defer handle.Cancel()

	utils.SetupSSEHeaders(w)

	decision := handle.Decision()
	h.sendSSE(w, flusher, StreamResponse{
		Event:        "routing",
		SessionID:    sessionID,
		Handler:      decision.Handler,
		Confidence:   decision.Confidence,
		Continuation: decision.Continuation,
	})

	for {
		chunk, rerr := handle.Recv(ctx)
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			// Client went away; the engine commits partial state.
			log.Debug().Str("session", sessionID).Err(rerr).Msg("sse consumer gone")
			return nil
		}
		if chunk == "" {
			continue
		}
		h.sendSSE(w, flusher, StreamResponse{
			Event:     "chunk",
			SessionID: sessionID,
			Content:   chunk,
		})
	}

	res := handle.Result()
	if res.Failed {
		h.sendSSEError(w, flusher, sessionID, "reply generation failed")
	}
	h.sendSSE(w, flusher, StreamResponse{
		Event:            "end",
		SessionID:        sessionID,
		Finished:         true,
		RequiresFollowup: res.RequiresFollowup,
		Persisted:        &res.Persisted,
	})

	log.Info().Str("session", sessionID).Str("handler", res.Handler).Bool("persisted", res.Persisted).Msg("sse turn completed")
	return nil
}

// sendSSE writes one Server-Sent Event frame.
func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}

// sendSSEError writes an error frame.
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, sessionID, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{
		Event:     "error",
		SessionID: sessionID,
		Error:     errorMsg,
	})
}
