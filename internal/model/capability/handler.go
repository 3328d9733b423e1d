package capability

import (
	"context"
	"fmt"

	"github.com/wrenlabs/concierge/backend/internal/model/conversation"
)

// Descriptor advertises a handler's routable surface: its registry name, the
// intent labels it claims, and the description shown to the classifier.
// Immutable for the process lifetime.
type Descriptor struct {
	Name        string   `json:"name"`
	Intents     []string `json:"intents"`
	Description string   `json:"description"`
}

// Context carries the per-session state a handler may read for one turn.
type Context struct {
	SessionID   string
	RecentTurns []conversation.Turn
	Slots       map[string]string
}

// Reply bundles a turn's chunk stream with the slot values the handler wants
// folded back into the session when the turn commits.
type Reply struct {
	Stream *Stream
	Slots  map[string]string
}

// Handler is a pluggable capability serving one domain of intents.
type Handler interface {
	Descriptor() Descriptor
	Process(ctx context.Context, query string, tc Context) (*Reply, error)
}

// HandlerError carries a message that is safe to stream to the user when a
// handler fails mid-turn.
type HandlerError struct {
	UserMessage string
	Err         error
}

func (e *HandlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handler failed: %v", e.Err)
	}
	return "handler failed"
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
