package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/wrenlabs/concierge/backend/internal/service/orchestrator"
)

const (
	readDeadline = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Handler runs turns over a WebSocket connection. Messages on one
// connection are processed in arrival order.
type Handler struct {
	orch     *orchestrator.Service
	upgrader websocket.Upgrader
}

// New creates the WebSocket handler.
func New(orch *orchestrator.Service) *Handler {
	return &Handler{
		orch: orch,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the WebSocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type userMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn serializes writes; the ping loop and the turn pump share the
// connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log.Info().Str("session", sessionID).Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{conn: conn}

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go h.pingLoop(ctx, c)

	h.send(c, "system", sessionID, map[string]any{
		"event": "connected",
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Warn().Str("session", sessionID).Err(err).Msg("websocket read error")
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(readDeadline))

			if msg.SessionID != "" && msg.SessionID != sessionID {
				h.sendError(c, "session mismatch")
				continue
			}

			h.handleMessage(ctx, c, sessionID, &msg)
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *wsConn, sessionID string, msg *inboundMessage) {
	switch msg.Type {
	case "user_message":
		var um userMessage
		if err := json.Unmarshal(msg.Data, &um); err != nil {
			h.sendError(c, "invalid message payload")
			return
		}
		if um.Text == "" {
			h.sendError(c, "text is required")
			return
		}
		h.runTurn(ctx, c, sessionID, um.Text)
	default:
		h.sendError(c, "unsupported message type: "+msg.Type)
	}
}

// runTurn executes one turn and forwards its chunks as agent_response
// frames, closing with a final frame that carries the persistence flag.
func (h *Handler) runTurn(ctx context.Context, c *wsConn, sessionID, text string) {
	handle, err := h.orch.SubmitTurn(ctx, sessionID, text)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	defer handle.Cancel()

	decision := handle.Decision()
	h.send(c, "system", sessionID, map[string]any{
		"event":        "routing",
		"handler":      decision.Handler,
		"confidence":   decision.Confidence,
		"continuation": decision.Continuation,
	})

	for {
		chunk, rerr := handle.Recv(ctx)
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			// Connection gone; the engine commits partial state.
			return
		}
		if chunk == "" {
			continue
		}
		h.send(c, "agent_response", sessionID, map[string]any{
			"text":    chunk,
			"isFinal": false,
		})
	}

	res := handle.Result()
	if res.Failed {
		h.sendError(c, "reply generation failed")
	}
	h.send(c, "agent_response", sessionID, map[string]any{
		"text":             res.Response,
		"isFinal":          true,
		"handler":          res.Handler,
		"requiresFollowup": res.RequiresFollowup,
		"persisted":        res.Persisted,
	})
}

func (h *Handler) send(c *wsConn, typ, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      typ,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.writeJSON(msg); err != nil {
		log.Debug().Err(err).Msg("websocket write failed")
	}
}

func (h *Handler) sendError(c *wsConn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := c.writeJSON(msg); err != nil {
		log.Debug().Err(err).Msg("websocket write failed")
	}
}

// pingLoop keeps the connection alive while long turns run.
func (h *Handler) pingLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
