package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wrenlabs/concierge/backend/internal/model/capability"
	"github.com/wrenlabs/concierge/backend/internal/service/reply"
)

const userFacingError = "I ran into a problem while working on your reservation. Please try again."

// Handler serves restaurant booking turns: it accumulates reservation slots
// deterministically and streams a reply, LLM-written when a model is
// configured, templated otherwise.
type Handler struct {
	replier *reply.Replier
	catalog *Catalog
}

// New builds the booking handler.
func New(replier *reply.Replier, catalog *Catalog) *Handler {
	if catalog == nil {
		catalog = NewCatalog(Seed())
	}
	return &Handler{replier: replier, catalog: catalog}
}

// Descriptor advertises the booking capability to the classifier.
func (h *Handler) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:        "booking",
		Intents:     []string{"restaurant_booking", "reservation", "availability"},
		Description: "Restaurant reservations, dining recommendations, table bookings, and food-related requests.",
	}
}

// Process extracts booking slots from the query and returns the reply stream.
func (h *Handler) Process(ctx context.Context, query string, tc capability.Context) (*capability.Reply, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &capability.HandlerError{
			UserMessage: "Please tell me what you would like to book.",
			Err:         errors.New("empty query"),
		}
	}

	updates := extractSlots(query)
	if v, ok := h.catalog.Match(query); ok {
		updates[SlotRestaurant] = v.Name
	}
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
	b.WriteString("You are a restaurant booking concierge. Help the user complete a reservation: ")
	b.WriteString("collect the party size, date, and time, suggest matching venues, and confirm once everything is set. ")
	b.WriteString("Ask for exactly one missing detail at a time and keep replies short.\n\n")

	b.WriteString("Known reservation details:\n")
	b.WriteString(formatSlots(view))

	venues := h.catalog.Search(view[SlotCuisine], "")
	if len(venues) == 0 {
		venues = h.catalog.List()
	}
	b.WriteString("\nVenues you can offer:\n")
	for _, v := range venues {
		fmt.Fprintf(&b, "- %s (%s, %s, rated %.1f, %s)\n", v.Name, v.Cuisine, v.Location, v.Rating, v.PriceRange)
	}
	return b.String()
}

// templatedReply drives the slot-filling conversation without a model: it
// asks for the next missing detail, or summarizes and suggests venues once
// the reservation is complete.
func (h *Handler) templatedReply(view map[string]string) []string {
	switch {
	case view[SlotPartySize] == "":
		return []string{"Happy to help with your reservation. ", "How many guests will be dining?"}
	case view[SlotDate] == "":
		return []string{"What date would you like to make the reservation?"}
	case view[SlotTime] == "":
		return []string{"What time would you prefer?"}
	}

	chunks := []string{fmt.Sprintf(
		"Here is what I have: a table for %s on %s at %s. ",
		view[SlotPartySize], view[SlotDate], view[SlotTime],
	)}

	if name := view[SlotRestaurant]; name != "" {
		chunks = append(chunks, fmt.Sprintf("Shall I confirm the booking at %s?", name))
		return chunks
	}

	venues := h.catalog.Search(view[SlotCuisine], "")
	if len(venues) > 0 {
		var names []string
		for i, v := range venues {
			if i == 3 {
				break
			}
			names = append(names, fmt.Sprintf("%s (%s, %s)", v.Name, v.Cuisine, v.PriceRange))
		}
		chunks = append(chunks, "A few venues that would suit: "+strings.Join(names, ", ")+". ")
	}
	chunks = append(chunks, "Shall I confirm the booking?")
	return chunks
}

func formatSlots(view map[string]string) string {
	order := []string{SlotPartySize, SlotDate, SlotTime, SlotCuisine, SlotRestaurant}
	var b strings.Builder
	for _, name := range order {
		value := view[name]
		if value == "" {
			value = "not provided yet"
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, value)
	}
	return b.String()
}
