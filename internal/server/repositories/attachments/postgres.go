// Package attachments stores metadata for uploaded images and files. The
// bytes live in the blob store under StorageKey.
package attachments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

const columns = `id, kind, message_id, conversation_id, storage_key, media_type, original_name, size_bytes, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttachment(s scanner) (*models.Attachment, error) {
	a := &models.Attachment{}
	err := s.Scan(&a.ID, &a.Kind, &a.MessageID, &a.ConversationID, &a.StorageKey, &a.MediaType,
		&a.OriginalName, &a.SizeBytes, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Attachment) error {
	query := `INSERT INTO attachments (id, kind, conversation_id, storage_key, media_type, original_name, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, a.ID, a.Kind, a.ConversationID, a.StorageKey, a.MediaType,
		a.OriginalName, a.SizeBytes).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Attachment, error) {
	query := `SELECT ` + columns + ` FROM attachments WHERE id = $1`

	a, err := scanAttachment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Link(ctx context.Context, conversationID, messageID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `UPDATE attachments SET message_id = $1
		WHERE conversation_id = $2 AND message_id IS NULL
		AND id IN (` + dbx.Placeholders(3, len(ids)) + `)`

	args := append([]any{messageID, conversationID}, dbx.Args(ids)...)
	return r.exec(ctx, query, args...)
}

func (r *PostgresRepository) Relink(ctx context.Context, conversationID, messageID, id string) (bool, error) {
	query := `UPDATE attachments SET message_id = $1
		WHERE id = $2 AND conversation_id = $3`

	n, err := r.exec(ctx, query, messageID, id, conversationID)
	return n == 1, err
}

func (r *PostgresRepository) ListByMessages(ctx context.Context, messageIDs []string) ([]*models.Attachment, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + columns + ` FROM attachments
		WHERE message_id IN (` + dbx.Placeholders(1, len(messageIDs)) + `)
		ORDER BY created_at ASC, id ASC`

	return r.list(ctx, query, dbx.Args(messageIDs)...)
}

func (r *PostgresRepository) ListByConversation(ctx context.Context, conversationID string) ([]*models.Attachment, error) {
	query := `SELECT ` + columns + ` FROM attachments
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`

	return r.list(ctx, query, conversationID)
}

func (r *PostgresRepository) Detach(ctx context.Context, conversationID string) (int64, error) {
	query := `UPDATE attachments SET message_id = NULL
		WHERE conversation_id = $1 AND message_id IS NOT NULL`
	return r.exec(ctx, query, conversationID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Attachment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
