package models

import "time"

// User is a registered account. PasswordHash is a salted one-way hash and is
// never serialized to clients.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Salt         string    `json:"-"`
	DefaultModel string    `json:"default_model"`
	UpstreamURL  string    `json:"upstream_url"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
