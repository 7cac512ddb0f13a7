package models

// Role identifies the author of a chat turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single turn within a conversation. Order within a
// conversation's messages sequence is turn order and is semantically
// meaningful.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// StreamEvent is one downstream server-sent event. It is transient and never
// persisted; a Done or Error event is followed by the [DONE] terminal
// sentinel on the wire.
type StreamEvent struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}
