package search

import (
	"context"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

// Index is the full-text message index. It is keyed by message id, so
// Upsert is idempotent.
type Index interface {
	Upsert(ctx context.Context, e models.IndexEntry) error
	DeleteByConversation(ctx context.Context, conversationID string) (int64, error)
	// Search ranks matches for q. An empty conversationID searches everything.
	Search(ctx context.Context, q, conversationID string, limit int) ([]*models.SearchHit, error)
}
