package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/wrenlabs/concierge/backend/internal/handler/capabilities"
	"github.com/wrenlabs/concierge/backend/internal/handler/chat"
	"github.com/wrenlabs/concierge/backend/internal/handler/health"
	"github.com/wrenlabs/concierge/backend/internal/handler/stream"
	"github.com/wrenlabs/concierge/backend/internal/handler/ws"
	middlewarePkg "github.com/wrenlabs/concierge/backend/internal/middleware"
	"github.com/wrenlabs/concierge/backend/internal/service/orchestrator"
	"github.com/wrenlabs/concierge/backend/internal/store"
	"github.com/wrenlabs/concierge/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the turn engine.
func NewRouter(orch *orchestrator.Service, st store.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(orch)
	streamHandler := stream.New(orch)
	wsHandler := ws.New(orch)

	var pinger store.Pinger
	if p, ok := st.(store.Pinger); ok {
		pinger = p
	}
	health.New(pinger).RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
		capabilities.New(orch).RegisterRoutes(api)

		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			userMessage := r.URL.Query().Get("message")

			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
				log.Warn().Str("session", sessionID).Err(err).Msg("stream request failed")
				switch {
				case errors.Is(err, orchestrator.ErrEmptyMessage), errors.Is(err, orchestrator.ErrMissingSession):
					utils.RespondError(w, http.StatusBadRequest, err.Error())
				default:
					utils.RespondError(w, http.StatusInternalServerError, "streaming failed")
				}
			}
		})
	})

	return r
}
