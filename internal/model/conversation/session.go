package conversation

import (
	"time"

	"github.com/google/uuid"
)

// CurrentSchemaVersion is stamped into every persisted session blob. Loads of
// any other version are treated as corrupt and start a fresh session.
const CurrentSchemaVersion = 1

// Session captures the conversational state for one opaque session ID: the
// append-only turn history, slot values accumulated per handler, and the
// handler that served the previous turn.
type Session struct {
	SchemaVersion int                          `json:"schemaVersion"`
	ID            string                       `json:"id"`
	Turns         []Turn                       `json:"turns"`
	Slots         map[string]map[string]string `json:"slots,omitempty"`
	LastHandler   string                       `json:"lastHandler,omitempty"`
	CreatedAt     time.Time                    `json:"createdAt"`
	UpdatedAt     time.Time                    `json:"updatedAt"`
}

// New returns an empty session for the given ID.
func New(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		SchemaVersion: CurrentSchemaVersion,
		ID:            id,
		Turns:         make([]Turn, 0, 8),
		Slots:         make(map[string]map[string]string),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AppendTurn adds a turn to the history and returns it. The turn list is
// append-only; existing entries are never rewritten.
func (s *Session) AppendTurn(role Role, content, handler string) Turn {
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Handler:   handler,
		CreatedAt: time.Now().UTC(),
	}
	s.Turns = append(s.Turns, turn)
	return turn
}

// HandlerSlots returns a copy of the slot values accumulated for a handler.
func (s *Session) HandlerSlots(handler string) map[string]string {
	slots := make(map[string]string, len(s.Slots[handler]))
	for k, v := range s.Slots[handler] {
		slots[k] = v
	}
	return slots
}

// MergeSlots overwrites the handler's slot values with the given updates.
// Slots not named in updates keep their previous values.
func (s *Session) MergeSlots(handler string, updates map[string]string) {
	if len(updates) == 0 {
		return
	}
	if s.Slots == nil {
		s.Slots = make(map[string]map[string]string)
	}
	if s.Slots[handler] == nil {
		s.Slots[handler] = make(map[string]string, len(updates))
	}
	for k, v := range updates {
		s.Slots[handler][k] = v
	}
}

// RecentTurns returns up to limit of the newest turns, oldest first.
func (s *Session) RecentTurns(limit int) []Turn {
	if limit <= 0 || len(s.Turns) == 0 {
		return nil
	}
	start := len(s.Turns) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(s.Turns)-start)
	copy(out, s.Turns[start:])
	return out
}

// Clone returns a deep copy. Loads hand out independent copies so concurrent
// turns never share a mutable session object.
func (s *Session) Clone() *Session {
	clone := &Session{
		SchemaVersion: s.SchemaVersion,
		ID:            s.ID,
		Turns:         make([]Turn, len(s.Turns)),
		Slots:         make(map[string]map[string]string, len(s.Slots)),
		LastHandler:   s.LastHandler,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	copy(clone.Turns, s.Turns)
	for handler, slots := range s.Slots {
		inner := make(map[string]string, len(slots))
		for k, v := range slots {
			inner[k] = v
		}
		clone.Slots[handler] = inner
	}
	return clone
}
