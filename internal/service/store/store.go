// Package store persists users, chat transcripts and prompt
// templates behind a database/sql handle.
package store

import (
	"database/sql"
	"errors"
)

// Service handles persistence for the chat application.
type Service struct {
	db *sql.DB
}

// NewService builds a store over an opened database.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

var (
	// ErrNotFound means the row does not exist or belongs to another user.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials covers both unknown users and bad passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUsernameTaken signals a registration conflict.
	ErrUsernameTaken = errors.New("username already taken")
)
