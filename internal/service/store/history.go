package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ollamaweb/internal/models"
)

// Create stores a complete conversation in one shot, as used by the
// explicit save endpoint.
func (s *Service) Create(ctx context.Context, userID int64, model string, messages []models.ChatMessage, complete bool) (*models.Conversation, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	if len(messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("model is required")
	}

	raw, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (user_id, model, messages, complete, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, model, string(raw), complete, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("conversation id: %w", err)
	}
	return &models.Conversation{
		ID: id, UserID: userID, Model: model,
		Messages: messages, Complete: complete,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// Begin records the user turn plus an empty assistant placeholder
// before any upstream byte arrives, so the conversation id exists for
// the whole lifetime of the stream. conversationID zero starts a new
// conversation; otherwise the turn is appended to the existing one.
func (s *Service) Begin(ctx context.Context, userID, conversationID int64, model, prompt string) (int64, error) {
	turn := []models.ChatMessage{
		{Role: models.RoleUser, Content: prompt},
		{Role: models.RoleAssistant, Content: ""},
	}

	if conversationID == 0 {
		conv, err := s.Create(ctx, userID, model, turn, false)
		if err != nil {
			return 0, err
		}
		return conv.ID, nil
	}

	conv, err := s.Get(ctx, userID, conversationID)
	if err != nil {
		return 0, err
	}
	messages := append(conv.Messages, turn...)
	if err := s.replaceMessages(ctx, userID, conversationID, messages, false); err != nil {
		return 0, err
	}
	return conversationID, nil
}

// Finish fills the trailing assistant placeholder with the streamed
// text and records whether the reply made it to the end.
func (s *Service) Finish(ctx context.Context, userID, conversationID int64, content string, complete bool) error {
	conv, err := s.Get(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	messages := conv.Messages
	if n := len(messages); n > 0 && messages[n-1].Role == models.RoleAssistant {
		messages[n-1].Content = content
	} else {
		messages = append(messages, models.ChatMessage{Role: models.RoleAssistant, Content: content})
	}
	return s.replaceMessages(ctx, userID, conversationID, messages, complete)
}

// Get loads one conversation owned by the user.
func (s *Service) Get(ctx context.Context, userID, id int64) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, model, messages, complete, created_at, updated_at
		 FROM chat_history WHERE id = ? AND user_id = ?`, id, userID)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return conv, nil
}

// List returns up to limit conversations for the user, oldest of the
// window first so clients can render top to bottom.
func (s *Service) List(ctx context.Context, userID int64, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, model, messages, complete, created_at, updated_at
		 FROM chat_history WHERE user_id = ?
		 ORDER BY updated_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		conv, err := scanConversationRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	// Query is newest-first for the LIMIT; flip to oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Delete removes one conversation owned by the user.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_history WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll wipes the user's whole history and reports how many
// conversations went away.
func (s *Service) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_history WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete history: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

func (s *Service) replaceMessages(ctx context.Context, userID, id int64, messages []models.ChatMessage, complete bool) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_history SET messages = ?, complete = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		string(raw), complete, time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row *sql.Row) (*models.Conversation, error) {
	return scanConversationRows(row)
}

func scanConversationRows(row rowScanner) (*models.Conversation, error) {
	var (
		conv models.Conversation
		raw  string
	)
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Model, &raw, &conv.Complete,
		&conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &conv.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return &conv, nil
}
