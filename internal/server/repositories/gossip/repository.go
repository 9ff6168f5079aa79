package gossip

import (
	"context"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, g *models.GossipMessage) error
	// Recent returns the newest messages first.
	Recent(ctx context.Context, limit int) ([]*models.GossipMessage, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}
