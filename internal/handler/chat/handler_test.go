package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wrenlabs/concierge/backend/internal/model/capability"
	"github.com/wrenlabs/concierge/backend/internal/model/conversation"
	"github.com/wrenlabs/concierge/backend/internal/service/intent"
	"github.com/wrenlabs/concierge/backend/internal/service/orchestrator"
	"github.com/wrenlabs/concierge/backend/internal/service/session"
	"github.com/wrenlabs/concierge/backend/internal/store"
)

type echoHandler struct{}

func (e *echoHandler) Descriptor() capability.Descriptor {
	return capability.Descriptor{Name: "booking", Intents: []string{"reservation"}, Description: "Bookings."}
}

func (e *echoHandler) Process(ctx context.Context, query string, _ capability.Context) (*capability.Reply, error) {
	st := capability.NewStream(ctx)
	go func() {
		defer st.Close()
		st.Push("echo: " + query)
	}()
	return &capability.Reply{Stream: st}, nil
}

type fixedRouter struct{}

func (fixedRouter) Classify(context.Context, string, intent.Context) intent.Decision {
	return intent.Decision{Handler: "booking", Confidence: 0.9, Source: intent.SourceModel}
}

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()

	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store err: %v", err)
	}
	registry, err := capability.NewRegistry(&echoHandler{})
	if err != nil {
		t.Fatalf("registry err: %v", err)
	}
	orch := orchestrator.New(session.NewManager(st, time.Hour), fixedRouter{}, registry, 10)

	r := chi.NewRouter()
	New(orch).RegisterRoutes(r)
	return r
}

func postMessage(t *testing.T, r http.Handler, sessionID, message string) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"message": message})

	req := httptest.NewRequest(http.MethodPost, "/chat/"+sessionID, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)
	return resp
}

func TestChatMessageReturnsFullReply(t *testing.T) {
	r := setupRouter(t)

	resp := postMessage(t, r, "s1", "book a table")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Response         string `json:"response"`
		SessionID        string `json:"sessionId"`
		Intent           string `json:"intent"`
		RequiresFollowup bool   `json:"requiresFollowup"`
		Persisted        bool   `json:"persisted"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body.Response != "echo: book a table" {
		t.Fatalf("unexpected response: %q", body.Response)
	}
	if body.SessionID != "s1" || body.Intent != "booking" {
		t.Fatalf("unexpected metadata: %+v", body)
	}
	if !body.Persisted {
		t.Fatal("expected persisted turn")
	}
}

func TestChatMessageRejectsEmptyMessage(t *testing.T) {
	r := setupRouter(t)

	resp := postMessage(t, r, "s1", "   ")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["error"] != "message is required" {
		t.Fatalf("unexpected error: %q", body["error"])
	}
}

func TestChatMessageRejectsBadJSON(t *testing.T) {
	r := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/chat/s1", bytes.NewReader([]byte("{not json")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestChatHistoryAfterTurn(t *testing.T) {
	r := setupRouter(t)
	postMessage(t, r, "s1", "book a table")

	req := httptest.NewRequest(http.MethodGet, "/chat/s1/history", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		SessionID string              `json:"sessionId"`
		Turns     []conversation.Turn `json:"turns"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(body.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(body.Turns))
	}
	if body.Turns[0].Role != conversation.RoleUser || body.Turns[1].Role != conversation.RoleAssistant {
		t.Fatalf("unexpected turn roles: %+v", body.Turns)
	}
}

func TestChatHistoryEmptySessionIsEmptyList(t *testing.T) {
	r := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/chat/fresh/history", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte(`"turns":[]`)) {
		t.Fatalf("expected empty turn list, got %s", resp.Body.String())
	}
}

func TestChatResetClearsSession(t *testing.T) {
	r := setupRouter(t)
	postMessage(t, r, "s1", "book a table")

	req := httptest.NewRequest(http.MethodDelete, "/chat/s1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/chat/s1/history", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var body struct {
		Turns []conversation.Turn `json:"turns"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(body.Turns) != 0 {
		t.Fatalf("expected no turns after reset, got %d", len(body.Turns))
	}
}
