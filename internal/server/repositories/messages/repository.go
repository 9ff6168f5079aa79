package messages

import (
	"context"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type Repository interface {
	// Create inserts m. When m.CreatedAt is zero the database clock is used;
	// restore passes the original timestamp.
	Create(ctx context.Context, m *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	// List returns messages of a conversation oldest first. limit <= 0 means all.
	List(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
	Latest(ctx context.Context, conversationID string) (*models.Message, error)
	DeleteByConversation(ctx context.Context, conversationID string) (int64, error)
}
