package properties

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/wrenlabs/concierge/backend/internal/model/capability"
)

func drainReply(t *testing.T, r *capability.Reply) string {
	t.Helper()
	var b strings.Builder
	for {
		chunk, err := r.Stream.Recv(context.Background())
		if errors.Is(err, io.EOF) {
			return b.String()
		}
		if err != nil {
			t.Fatalf("recv err: %v", err)
		}
		b.WriteString(chunk)
	}
}

func TestProcessRejectsEmptyQuery(t *testing.T) {
	h := New(nil)

	_, err := h.Process(context.Background(), "", capability.Context{})
	var he *capability.HandlerError
	if !errors.As(err, &he) {
		t.Fatalf("expected HandlerError, got %v", err)
	}
}

func TestTemplatedReplyAsksForLocationFirst(t *testing.T) {
	h := New(nil)

	reply, err := h.Process(context.Background(), "I need a new apartment", capability.Context{})
	if err != nil {
		t.Fatalf("process err: %v", err)
	}
	if text := drainReply(t, reply); !strings.Contains(text, "Which area") {
		t.Fatalf("expected location prompt, got %q", text)
	}
}

func TestTemplatedReplyWalksRemainingSlots(t *testing.T) {
	h := New(nil)
	tc := capability.Context{Slots: map[string]string{SlotLocation: "downtown"}}

	reply, err := h.Process(context.Background(), "what do you have", tc)
	if err != nil {
		t.Fatalf("process err: %v", err)
	}
	if text := drainReply(t, reply); !strings.Contains(text, "maximum budget") {
		t.Fatalf("expected budget prompt, got %q", text)
	}
}

func TestTemplatedReplySummarizesCompleteSearch(t *testing.T) {
	h := New(nil)
	tc := capability.Context{Slots: map[string]string{
		SlotLocation: "downtown",
		SlotMaxPrice: "2500",
	}}

	reply, err := h.Process(context.Background(), "2 bedrooms please", tc)
	if err != nil {
		t.Fatalf("process err: %v", err)
	}
	text := drainReply(t, reply)
	if !strings.Contains(text, "2-bedroom place in downtown under $2500") {
		t.Fatalf("expected search summary, got %q", text)
	}
	if !strings.Contains(text, "viewings") {
		t.Fatalf("expected viewings offer, got %q", text)
	}
	if reply.Slots[SlotBedrooms] != "2" {
		t.Fatalf("expected bedrooms update, got %v", reply.Slots)
	}
}

func TestDescriptorAdvertisesPropertyIntents(t *testing.T) {
	d := New(nil).Descriptor()
	if d.Name != "properties" {
		t.Fatalf("expected properties, got %q", d.Name)
	}
	if len(d.Intents) == 0 || d.Intents[0] != "property_search" {
		t.Fatalf("unexpected intents: %v", d.Intents)
	}
}
