package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/wrenlabs/concierge/backend/internal/model/capability"
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

type frame struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"sessionId"`
	Data      map[string]interface{} `json:"data"`
}

func dialTestServer(t *testing.T) *websocket.Conn {
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
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/s1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame err: %v", err)
	}
	return f
}

func TestWebSocketTurnRoundTrip(t *testing.T) {
	conn := dialTestServer(t)

	if f := readFrame(t, conn); f.Type != "system" || f.Data["event"] != "connected" {
		t.Fatalf("expected connected frame, got %+v", f)
	}

	err := conn.WriteJSON(map[string]interface{}{
		"type":      "user_message",
		"sessionId": "s1",
		"data":      map[string]string{"text": "book a table"},
	})
	if err != nil {
		t.Fatalf("write err: %v", err)
	}

	routing := readFrame(t, conn)
	if routing.Type != "system" || routing.Data["event"] != "routing" {
		t.Fatalf("expected routing frame, got %+v", routing)
	}
	if routing.Data["handler"] != "booking" {
		t.Fatalf("unexpected routed handler: %+v", routing.Data)
	}

	var chunks []string
	for {
		f := readFrame(t, conn)
		if f.Type != "agent_response" {
			t.Fatalf("expected agent_response, got %+v", f)
		}
		if f.Data["isFinal"] == true {
			if f.Data["text"] != "echo: book a table" {
				t.Fatalf("unexpected final text: %+v", f.Data)
			}
			if f.Data["persisted"] != true {
				t.Fatalf("expected persisted final frame: %+v", f.Data)
			}
			break
		}
		chunks = append(chunks, f.Data["text"].(string))
	}
	if len(chunks) != 1 || chunks[0] != "echo: book a table" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
}

func TestWebSocketRejectsUnknownType(t *testing.T) {
	conn := dialTestServer(t)
	readFrame(t, conn)

	if err := conn.WriteJSON(map[string]interface{}{"type": "bogus"}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	f := readFrame(t, conn)
	if f.Type != "error" {
		t.Fatalf("expected error frame, got %+v", f)
	}
	msg, _ := f.Data["message"].(string)
	if !strings.Contains(msg, "unsupported message type") {
		t.Fatalf("unexpected error message: %q", msg)
	}
}

func TestWebSocketSessionMismatch(t *testing.T) {
	conn := dialTestServer(t)
	readFrame(t, conn)

	err := conn.WriteJSON(map[string]interface{}{
		"type":      "user_message",
		"sessionId": "other",
		"data":      map[string]string{"text": "hello"},
	})
	if err != nil {
		t.Fatalf("write err: %v", err)
	}

	f := readFrame(t, conn)
	if f.Type != "error" {
		t.Fatalf("expected error frame, got %+v", f)
	}
	if msg, _ := f.Data["message"].(string); msg != "session mismatch" {
		t.Fatalf("unexpected error message: %q", msg)
	}
}
