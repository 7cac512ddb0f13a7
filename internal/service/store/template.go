package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ollamaweb/internal/models"
)

// CreateTemplate stores a reusable prompt template for the user.
func (s *Service) CreateTemplate(ctx context.Context, userID int64, title, content, targetModel string) (*models.PromptTemplate, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return nil, errors.New("title and content are required")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO prompt_templates (user_id, title, content, target_model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, title, content, strings.TrimSpace(targetModel), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("template id: %w", err)
	}
	return &models.PromptTemplate{
		ID: id, UserID: userID, Title: title, Content: content,
		TargetModel: strings.TrimSpace(targetModel),
		CreatedAt:   now, UpdatedAt: now,
	}, nil
}

// ListTemplates returns the user's templates, newest first.
func (s *Service) ListTemplates(ctx context.Context, userID int64) ([]models.PromptTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, content, target_model, created_at, updated_at
		 FROM prompt_templates WHERE user_id = ?
		 ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []models.PromptTemplate
	for rows.Next() {
		var t models.PromptTemplate
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Content, &t.TargetModel,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

// GetTemplate loads one template owned by the user.
func (s *Service) GetTemplate(ctx context.Context, userID, id int64) (*models.PromptTemplate, error) {
	var t models.PromptTemplate
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, content, target_model, created_at, updated_at
		 FROM prompt_templates WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&t.ID, &t.UserID, &t.Title, &t.Content, &t.TargetModel, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query template: %w", err)
	}
	return &t, nil
}

// UpdateTemplate rewrites the template's fields in place.
func (s *Service) UpdateTemplate(ctx context.Context, userID, id int64, title, content, targetModel string) (*models.PromptTemplate, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return nil, errors.New("title and content are required")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE prompt_templates SET title = ?, content = ?, target_model = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		title, content, strings.TrimSpace(targetModel), now, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetTemplate(ctx, userID, id)
}

// DeleteTemplate removes one template owned by the user.
func (s *Service) DeleteTemplate(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM prompt_templates WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
