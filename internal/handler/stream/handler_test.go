package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wrenlabs/concierge/backend/internal/model/capability"
	"github.com/wrenlabs/concierge/backend/internal/service/intent"
	"github.com/wrenlabs/concierge/backend/internal/service/orchestrator"
	"github.com/wrenlabs/concierge/backend/internal/service/session"
	"github.com/wrenlabs/concierge/backend/internal/store"
)

type scriptedHandler struct {
	chunks []string
	fail   error
}

func (s *scriptedHandler) Descriptor() capability.Descriptor {
	return capability.Descriptor{Name: "booking", Intents: []string{"reservation"}, Description: "Bookings."}
}

func (s *scriptedHandler) Process(ctx context.Context, _ string, _ capability.Context) (*capability.Reply, error) {
	st := capability.NewStream(ctx)
	go func() {
		defer st.Close()
		for _, c := range s.chunks {
			if st.Push(c) != nil {
				return
			}
		}
		if s.fail != nil {
			st.Fail(s.fail)
		}
	}()
	return &capability.Reply{Stream: st}, nil
}

type fixedRouter struct{}

func (fixedRouter) Classify(context.Context, string, intent.Context) intent.Decision {
	return intent.Decision{Handler: "booking", Confidence: 0.9, Source: intent.SourceModel}
}

func setupHandler(t *testing.T, h capability.Handler) *Handler {
	t.Helper()

	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store err: %v", err)
	}
	registry, err := capability.NewRegistry(h)
	if err != nil {
		t.Fatalf("registry err: %v", err)
	}
	return New(orchestrator.New(session.NewManager(st, time.Hour), fixedRouter{}, registry, 10))
}

func parseFrames(t *testing.T, body string) []StreamResponse {
	t.Helper()
	var frames []StreamResponse
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("unexpected sse block: %q", block)
		}
		var frame StreamResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &frame); err != nil {
			t.Fatalf("decode frame %q: %v", block, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestStreamEmitsRoutingChunksAndEnd(t *testing.T) {
	h := setupHandler(t, &scriptedHandler{chunks: []string{"Hello ", "there."}})
	w := httptest.NewRecorder()

	err := h.HandleStreamRequest(context.Background(), w, "s1", "book a table")
	if err != nil {
		t.Fatalf("stream err: %v", err)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	frames := parseFrames(t, w.Body.String())
	if len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %d: %+v", len(frames), frames)
	}
	if frames[0].Event != "routing" || frames[0].Handler != "booking" {
		t.Fatalf("unexpected routing frame: %+v", frames[0])
	}
	if frames[1].Event != "chunk" || frames[1].Content != "Hello " {
		t.Fatalf("unexpected first chunk: %+v", frames[1])
	}
	if frames[2].Content != "there." {
		t.Fatalf("unexpected second chunk: %+v", frames[2])
	}

	end := frames[3]
	if end.Event != "end" || !end.Finished {
		t.Fatalf("unexpected end frame: %+v", end)
	}
	if end.Persisted == nil || !*end.Persisted {
		t.Fatalf("expected persisted end frame: %+v", end)
	}
}

func TestStreamFailedTurnEmitsErrorFrame(t *testing.T) {
	h := setupHandler(t, &scriptedHandler{fail: errors.New("model down")})
	w := httptest.NewRecorder()

	if err := h.HandleStreamRequest(context.Background(), w, "s1", "book a table"); err != nil {
		t.Fatalf("stream err: %v", err)
	}

	frames := parseFrames(t, w.Body.String())
	var sawError, sawEnd bool
	for _, f := range frames {
		switch f.Event {
		case "error":
			sawError = true
			if f.Error == "" {
				t.Fatalf("error frame without message: %+v", f)
			}
		case "end":
			sawEnd = true
		}
	}
	if !sawError || !sawEnd {
		t.Fatalf("expected error and end frames, got %+v", frames)
	}
}

func TestStreamRejectsEmptyMessage(t *testing.T) {
	h := setupHandler(t, &scriptedHandler{chunks: []string{"x"}})
	w := httptest.NewRecorder()

	err := h.HandleStreamRequest(context.Background(), w, "s1", "  ")
	if !errors.Is(err, orchestrator.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("no frames expected before validation, got %s", w.Body.String())
	}
}
