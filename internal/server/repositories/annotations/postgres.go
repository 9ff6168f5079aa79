// Package annotations stores pins, bookmarks and highlights on messages.
package annotations

import (
	"context"
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

func (r *PostgresRepository) Upsert(ctx context.Context, a *models.Annotation) error {
	query := `INSERT INTO message_annotations (id, message_id, conversation_id, type, label)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO UPDATE SET type = EXCLUDED.type, label = EXCLUDED.label
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, a.ID, a.MessageID, a.ConversationID, a.Type, a.Label).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, messageID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message_annotations WHERE message_id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListByConversation(ctx context.Context, conversationID string) ([]*models.Annotation, error) {
	query := `SELECT id, message_id, conversation_id, type, label, created_at
		FROM message_annotations WHERE conversation_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Annotation
	for rows.Next() {
		a := &models.Annotation{}
		if err := rows.Scan(&a.ID, &a.MessageID, &a.ConversationID, &a.Type, &a.Label, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) ListAnnotatedMessages(ctx context.Context, conversationID string) ([]*models.AnnotatedMessage, error) {
	query := `SELECT a.type, a.label, m.role, m.content
		FROM message_annotations a
		JOIN messages m ON m.id = a.message_id
		WHERE a.conversation_id = $1
		ORDER BY m.created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AnnotatedMessage
	for rows.Next() {
		am := &models.AnnotatedMessage{}
		if err := rows.Scan(&am.Type, &am.Label, &am.Role, &am.Preview); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, am)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message_annotations WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
