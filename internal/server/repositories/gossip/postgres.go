// Package gossip stores the persona event feed.
package gossip

import (
	"context"
	"fmt"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, g *models.GossipMessage) error {
	query := `INSERT INTO gossip_messages (id, worker_name, worker_emoji, message, event_type, conversation_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, g.ID, g.WorkerName, g.WorkerEmoji, g.Message, g.EventType, g.ConversationID).
		Scan(&g.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]*models.GossipMessage, error) {
	query := `SELECT id, worker_name, worker_emoji, message, event_type, conversation_id, created_at
		FROM gossip_messages
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.GossipMessage
	for rows.Next() {
		g := &models.GossipMessage{}
		if err := rows.Scan(&g.ID, &g.WorkerName, &g.WorkerEmoji, &g.Message, &g.EventType, &g.ConversationID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gossip_messages WHERE created_at > $1`, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
