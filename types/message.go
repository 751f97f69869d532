package types

import "time"

// Role represents the role of a message participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one the memory gateway accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single role-tagged turn within a conversation round.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// Round pairs a user message with its assistant response.
type Round struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Complete reports whether both sides of the round are present.
// A round with either side empty is discarded, neither buffered nor uploaded.
func (r Round) Complete() bool {
	return r.User != "" && r.Assistant != ""
}

// Messages expands the round into its two ordered messages.
func (r Round) Messages() []Message {
	return []Message{
		NewUserMessage(r.User),
		NewAssistantMessage(r.Assistant),
	}
}
