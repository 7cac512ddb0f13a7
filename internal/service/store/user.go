package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"ollamaweb/internal/models"
)

const (
	defaultModel       = "llama3.2"
	defaultUpstreamURL = "http://localhost:11434"
)

// RegisterUser creates a user with a fresh salt and the default
// model settings.
func (s *Service) RegisterUser(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	salt, err := newSalt()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := models.User{
		Username:     username,
		PasswordHash: hashPassword(password, salt),
		Salt:         salt,
		DefaultModel: defaultModel,
		UpstreamURL:  defaultUpstreamURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, salt, default_model, upstream_url, system_prompt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.PasswordHash, user.Salt, user.DefaultModel, user.UpstreamURL, user.SystemPrompt, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	user.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return &user, nil
}

// Authenticate validates credentials and returns the user profile.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.userByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash != hashPassword(password, user.Salt) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser returns the profile for the given id.
func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, salt, default_model, upstream_url, system_prompt, created_at, updated_at
		 FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// UserUpdate carries the mutable profile fields. Nil pointers leave
// the stored value untouched.
type UserUpdate struct {
	Password     *string
	DefaultModel *string
	UpstreamURL  *string
	SystemPrompt *string
}

// UpdateUser applies the non-nil fields of upd to the user's profile.
func (s *Service) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Password != nil {
		if len(*upd.Password) < 6 {
			return nil, errors.New("password must be at least 6 characters")
		}
		salt, err := newSalt()
		if err != nil {
			return nil, err
		}
		user.Salt = salt
		user.PasswordHash = hashPassword(*upd.Password, salt)
	}
	if upd.DefaultModel != nil {
		user.DefaultModel = strings.TrimSpace(*upd.DefaultModel)
	}
	if upd.UpstreamURL != nil {
		user.UpstreamURL = strings.TrimRight(strings.TrimSpace(*upd.UpstreamURL), "/")
	}
	if upd.SystemPrompt != nil {
		user.SystemPrompt = *upd.SystemPrompt
	}
	user.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, salt = ?, default_model = ?, upstream_url = ?, system_prompt = ?, updated_at = ?
		 WHERE id = ?`,
		user.PasswordHash, user.Salt, user.DefaultModel, user.UpstreamURL, user.SystemPrompt, user.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// EnsureDefaultUser seeds the initial account when the users table is
// empty, so a fresh install is immediately usable.
func (s *Service) EnsureDefaultUser(ctx context.Context, username, password string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	_, err := s.RegisterUser(ctx, username, password)
	return err
}

func (s *Service) userByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, salt, default_model, upstream_url, system_prompt, created_at, updated_at
		 FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Salt,
		&user.DefaultModel, &user.UpstreamURL, &user.SystemPrompt,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

func newSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
