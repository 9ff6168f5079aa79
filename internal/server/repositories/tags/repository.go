package tags

import (
	"context"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type Repository interface {
	ListForConversation(ctx context.Context, conversationID string) ([]models.Tag, error)
}
