package capability

import (
	"context"
	"strings"
	"testing"
)

type stubHandler struct {
	name string
}

func (s *stubHandler) Descriptor() Descriptor {
	return Descriptor{Name: s.name, Intents: []string{s.name + "_intent"}, Description: s.name + " handler"}
}

func (s *stubHandler) Process(ctx context.Context, query string, tc Context) (*Reply, error) {
	st := NewStream(ctx)
	st.Close()
	return &Reply{Stream: st}, nil
}

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(&stubHandler{name: "booking"}, &stubHandler{name: "properties"})
	if err != nil {
		t.Fatalf("NewRegistry err: %v", err)
	}

	if _, ok := reg.Get("booking"); !ok {
		t.Fatal("expected booking handler")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Fatal("unexpected handler for unregistered name")
	}
}

func TestRegistryDescriptorsKeepRegistrationOrder(t *testing.T) {
	reg, err := NewRegistry(&stubHandler{name: "b"}, &stubHandler{name: "a"}, &stubHandler{name: "c"})
	if err != nil {
		t.Fatalf("NewRegistry err: %v", err)
	}

	descriptors := reg.Descriptors()
	if len(descriptors) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(descriptors))
	}
	got := []string{descriptors[0].Name, descriptors[1].Name, descriptors[2].Name}
	if got[0] != "b" || got[1] != "a" || got[2] != "c" {
		t.Fatalf("descriptors out of registration order: %v", got)
	}
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	_, err := NewRegistry(&stubHandler{name: "booking"}, &stubHandler{name: "booking"})
	if err == nil {
		t.Fatal("expected error for duplicate handler name")
	}
	if !strings.Contains(err.Error(), "booking") {
		t.Fatalf("expected error to name the duplicate, got %v", err)
	}
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	if _, err := NewRegistry(&stubHandler{name: ""}); err == nil {
		t.Fatal("expected error for empty handler name")
	}
}
