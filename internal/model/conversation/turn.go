package conversation

import "time"

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance within a session. Immutable once committed; assistant
// turns hold the concatenation of all streamed chunks.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Handler   string    `json:"handler,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
