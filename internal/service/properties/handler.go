package properties

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wrenlabs/concierge/backend/internal/model/capability"
	"github.com/wrenlabs/concierge/backend/internal/service/reply"
)

const userFacingError = "I ran into a problem while searching for properties. Please try again."

// Handler serves property-search turns: location, budget, and bedroom
// requirements accumulate across the conversation.
type Handler struct {
	replier *reply.Replier
}

func New(replier *reply.Replier) *Handler {
	return &Handler{replier: replier}
}

func (h *Handler) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:        "properties",
		Intents:     []string{"property_search", "listing_inquiry", "viewing"},
		Description: "Property listings, rental and purchase searches, budgets, and viewing arrangements.",
	}
}

func (h *Handler) Process(ctx context.Context, query string, tc capability.Context) (*capability.Reply, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &capability.HandlerError{
			UserMessage: "Please tell me what kind of property you are looking for.",
			Err:         errors.New("empty query"),
		}
	}

	updates := extractSlots(query)
	view := mergedView(tc.Slots, updates)

	st := capability.NewStream(ctx)
	go h.produce(st, query, tc, view)

	return &capability.Reply{Stream: st, Slots: updates}, nil
}

func (h *Handler) produce(st *capability.Stream, query string, tc capability.Context, view map[string]string) {
	defer st.Close()

	if h.replier.Enabled() {
		err := h.replier.StreamTo(st.Context(), st, h.systemPrompt(view), tc.RecentTurns, query)
		if err != nil && st.Context().Err() == nil {
			st.Fail(&capability.HandlerError{UserMessage: userFacingError, Err: err})
		}
		return
	}

	for _, chunk := range h.templatedReply(view) {
		if err := st.Push(chunk); err != nil {
			return
		}
	}
}

func (h *Handler) systemPrompt(view map[string]string) string {
	var b strings.Builder
	b.WriteString("You are a real estate concierge. Help the user narrow down a property search: ")
	b.WriteString("collect the area, maximum budget, and bedroom count, then describe what a matching ")
	b.WriteString("search would surface. Ask for exactly one missing detail at a time and keep replies short.\n\n")

	b.WriteString("Known search criteria:\n")
	for _, name := range []string{SlotLocation, SlotMaxPrice, SlotBedrooms} {
		value := view[name]
		if value == "" {
			value = "not provided yet"
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, value)
	}
	return b.String()
}

func (h *Handler) templatedReply(view map[string]string) []string {
	switch {
	case view[SlotLocation] == "":
		return []string{"Happy to help with your property search. ", "Which area are you interested in?"}
	case view[SlotMaxPrice] == "":
		return []string{"What is your maximum budget?"}
	case view[SlotBedrooms] == "":
		return []string{"How many bedrooms do you need?"}
	}

	return []string{
		fmt.Sprintf(
			"Searching for a %s-bedroom place in %s under $%s. ",
			view[SlotBedrooms], view[SlotLocation], view[SlotMaxPrice],
		),
		"Would you like me to arrange viewings for the best matches?",
	}
}
