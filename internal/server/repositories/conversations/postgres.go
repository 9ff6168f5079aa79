// Package conversations stores conversation rows, including the columns the
// archive engine uses as its state machine (archiving_since, archive_key,
// archived_at).
package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

const columns = `id, title, model, temperature, system_prompt, summary, vibes, last_summarized_at,
	handoff_notes, pinned, archived_at, archive_key, archiving_since, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := s.Scan(&c.ID, &c.Title, &c.Model, &c.Temperature, &c.SystemPrompt, &c.Summary, &c.Vibes,
		&c.LastSummarizedAt, &c.HandoffNotes, &c.Pinned, &c.ArchivedAt, &c.ArchiveKey, &c.ArchivingSince,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Conversation) error {
	query := `INSERT INTO conversations (id, title, model, temperature, system_prompt)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, c.ID, c.Title, c.Model, c.Temperature, c.SystemPrompt).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT ` + columns + ` FROM conversations WHERE id = $1`

	c, err := scanConversation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) List(ctx context.Context, includeArchived bool) ([]*models.Conversation, error) {
	query := `SELECT ` + columns + ` FROM conversations
		WHERE ($1 OR archived_at IS NULL)
		ORDER BY pinned DESC, updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, p models.ConversationPatch) error {
	query := `UPDATE conversations SET
			title = COALESCE($2, title),
			model = COALESCE($3, model),
			temperature = COALESCE($4, temperature),
			system_prompt = COALESCE($5, system_prompt),
			updated_at = now()
		WHERE id = $1`

	return r.execOne(ctx, query, id, p.Title, p.Model, p.Temperature, p.SystemPrompt)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM conversations WHERE id = $1`, id)
}

func (r *PostgresRepository) Touch(ctx context.Context, id string) error {
	return r.execOne(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, id)
}

// SetTitleIfDefault replaces the placeholder title. It reports false when the
// user already renamed the conversation.
func (r *PostgresRepository) SetTitleIfDefault(ctx context.Context, id, title string) (bool, error) {
	query := `UPDATE conversations SET title = $2, updated_at = now()
		WHERE id = $1 AND title = $3`

	res, err := r.db.ExecContext(ctx, query, id, title, common.DefaultConversationTitle)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		// title was user-set; still record activity
		return false, r.Touch(ctx, id)
	}
	return true, nil
}

func (r *PostgresRepository) SetPinned(ctx context.Context, id string, pinned bool) error {
	return r.execOne(ctx, `UPDATE conversations SET pinned = $2 WHERE id = $1`, id, pinned)
}

func (r *PostgresRepository) SetSummary(ctx context.Context, id, summary, vibesJSON string) error {
	query := `UPDATE conversations SET summary = $2, vibes = $3, last_summarized_at = now()
		WHERE id = $1`
	return r.execOne(ctx, query, id, summary, vibesJSON)
}

func (r *PostgresRepository) SetHandoffNotes(ctx context.Context, id, notes string) error {
	return r.execOne(ctx, `UPDATE conversations SET handoff_notes = $2, updated_at = now() WHERE id = $1`, id, notes)
}

func (r *PostgresRepository) ClaimArchive(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	query := `UPDATE conversations SET archiving_since = now()
		WHERE id = $1 AND archived_at IS NULL
		AND (archiving_since IS NULL OR archiving_since < $2)`

	res, err := r.db.ExecContext(ctx, query, id, staleBefore)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SetPendingArchiveKey(ctx context.Context, id, key string) error {
	query := `UPDATE conversations SET archive_key = $2
		WHERE id = $1 AND archived_at IS NULL AND archiving_since IS NOT NULL`
	return r.execOne(ctx, query, id, key)
}

func (r *PostgresRepository) ReleaseArchiveClaim(ctx context.Context, id string) error {
	query := `UPDATE conversations SET archiving_since = NULL, archive_key = NULL
		WHERE id = $1 AND archived_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkArchived(ctx context.Context, id, key string) error {
	query := `UPDATE conversations
		SET archived_at = now(), archive_key = $2, archiving_since = NULL, updated_at = now()
		WHERE id = $1 AND archived_at IS NULL`

	err := r.execOne(ctx, query, id, key)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrAlreadyArchived
	}
	return err
}

func (r *PostgresRepository) ClearArchived(ctx context.Context, id string) error {
	query := `UPDATE conversations
		SET archived_at = NULL, archive_key = NULL, archiving_since = NULL, updated_at = now()
		WHERE id = $1 AND archived_at IS NOT NULL`

	err := r.execOne(ctx, query, id)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrNotArchived
	}
	return err
}

func (r *PostgresRepository) ListNeedingSummary(ctx context.Context, minMessages, limit int) ([]string, error) {
	query := `SELECT c.id FROM conversations c
		WHERE c.archived_at IS NULL
		AND EXISTS (
			SELECT 1 FROM messages m
			WHERE m.conversation_id = c.id
			AND (c.last_summarized_at IS NULL OR m.created_at > c.last_summarized_at)
		)
		AND (SELECT COUNT(*) FROM messages m2 WHERE m2.conversation_id = c.id) >= $1
		LIMIT $2`

	return r.selectIDs(ctx, query, minMessages, limit)
}

func (r *PostgresRepository) ListArchivable(ctx context.Context, idleSince time.Time, limit int) ([]string, error) {
	query := `SELECT c.id FROM conversations c
		WHERE c.pinned = FALSE AND c.archived_at IS NULL
		AND EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id)
		AND NOT EXISTS (
			SELECT 1 FROM messages m
			WHERE m.conversation_id = c.id AND m.created_at > $1
		)
		LIMIT $2`

	return r.selectIDs(ctx, query, idleSince, limit)
}

func (r *PostgresRepository) Stats(ctx context.Context, since time.Time) (*models.ConversationStats, error) {
	query := `SELECT
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM messages WHERE created_at > $1),
			(SELECT COUNT(*) FROM conversations WHERE vibes IS NOT NULL)`

	s := &models.ConversationStats{}
	err := r.db.QueryRowContext(ctx, query, since).
		Scan(&s.TotalConversations, &s.TotalMessages, &s.MessagesToday, &s.VibedConversations)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) selectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

// execOne runs a statement that must touch exactly one row.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
