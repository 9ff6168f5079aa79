// Package messages stores the message forest of each conversation.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (*models.Message, error) {
	m := &models.Message{}
	if err := s.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ParentID, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.Message) error {
	if m.CreatedAt.IsZero() {
		query := `INSERT INTO messages (id, conversation_id, role, content, parent_message_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at`
		err := r.db.QueryRowContext(ctx, query, m.ID, m.ConversationID, m.Role, m.Content, m.ParentID).
			Scan(&m.CreatedAt)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	}

	query := `INSERT INTO messages (id, conversation_id, role, content, parent_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, m.ID, m.ConversationID, m.Role, m.Content, m.ParentID, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT id, conversation_id, role, content, parent_message_id, created_at
		FROM messages WHERE id = $1`

	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) List(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	query := `SELECT id, conversation_id, role, content, parent_message_id, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Latest returns the most recently created message, or ErrorNotFound for an
// empty conversation.
func (r *PostgresRepository) Latest(ctx context.Context, conversationID string) (*models.Message, error) {
	query := `SELECT id, conversation_id, role, content, parent_message_id, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	m, err := scanMessage(r.db.QueryRowContext(ctx, query, conversationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
