// Package search maintains the message_index table and queries it with
// Postgres full-text search.
package search

import (
	"context"
	"fmt"

	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type PostgresIndex struct {
	db dbx.DBTX
}

func NewPostgresIndex(db dbx.DBTX) *PostgresIndex {
	return &PostgresIndex{db: db}
}

func (r *PostgresIndex) Upsert(ctx context.Context, e models.IndexEntry) error {
	query := `INSERT INTO message_index (message_id, conversation_id, role, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id) DO UPDATE
		SET conversation_id = EXCLUDED.conversation_id, role = EXCLUDED.role, content = EXCLUDED.content`

	if _, err := r.db.ExecContext(ctx, query, e.MessageID, e.ConversationID, e.Role, e.Content); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresIndex) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message_index WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresIndex) Search(ctx context.Context, q, conversationID string, limit int) ([]*models.SearchHit, error) {
	query := `SELECT i.message_id, i.conversation_id, c.title, i.role,
			ts_headline('english', i.content, websearch_to_tsquery('english', $1),
				'StartSel=<mark>, StopSel=</mark>, MaxWords=30, MinWords=10'),
			ts_rank(i.search, websearch_to_tsquery('english', $1))
		FROM message_index i
		JOIN conversations c ON c.id = i.conversation_id
		WHERE i.search @@ websearch_to_tsquery('english', $1)
		AND ($2 = '' OR i.conversation_id = $2)
		ORDER BY 6 DESC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, q, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var hits []*models.SearchHit
	for rows.Next() {
		h := &models.SearchHit{}
		if err := rows.Scan(&h.MessageID, &h.ConversationID, &h.ConversationTitle, &h.Role, &h.Snippet, &h.Rank); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return hits, nil
}
