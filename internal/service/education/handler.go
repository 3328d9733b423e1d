package education

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wrenlabs/concierge/backend/internal/model/capability"
	"github.com/wrenlabs/concierge/backend/internal/service/reply"
)

const userFacingError = "I ran into a problem while looking up schools. Please try again."

// Handler serves school-search turns: grade level and area accumulate
// across the conversation.
type Handler struct {
	replier *reply.Replier
}

func New(replier *reply.Replier) *Handler {
	return &Handler{replier: replier}
}

func (h *Handler) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:        "education",
		Intents:     []string{"school_search", "enrollment", "program_inquiry"},
		Description: "School searches, enrollment questions, academic programs, and education planning.",
	}
}

func (h *Handler) Process(ctx context.Context, query string, tc capability.Context) (*capability.Reply, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &capability.HandlerError{
			UserMessage: "Please tell me what you are looking for in a school.",
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
	b.WriteString("You are an education concierge. Help the user find a school: collect the grade ")
	b.WriteString("level and the area, then outline suitable options and enrollment steps. Ask for ")
	b.WriteString("exactly one missing detail at a time and keep replies short.\n\n")

	b.WriteString("Known search criteria:\n")
	for _, name := range []string{SlotGradeLevel, SlotLocation} {
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
	case view[SlotGradeLevel] == "":
		return []string{"Happy to help with your school search. ", "Which grade level is this for?"}
	case view[SlotLocation] == "":
		return []string{"Which area should I search for schools in?"}
	}

	grade := view[SlotGradeLevel]
	if grade != "kindergarten" {
		grade = "grade " + grade
	}
	return []string{
		fmt.Sprintf("Searching for %s schools near %s. ", grade, view[SlotLocation]),
		"Would you like details on enrollment requirements?",
	}
}
