package models

import "time"

// Conversation is a persisted chat transcript owned by exactly one user.
// Messages are stored as a single ordered JSON array; Complete reports
// whether the final assistant turn is a full response or a partial one saved
// after a mid-stream failure.
type Conversation struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"user_id"`
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	Complete  bool          `json:"complete"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
