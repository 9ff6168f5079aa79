package attachments

import (
	"context"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, a *models.Attachment) error
	Get(ctx context.Context, id string) (*models.Attachment, error)
	// Link attaches unlinked uploads of the conversation to a message and
	// returns how many rows were linked. Ids of other conversations and
	// already linked uploads are ignored.
	Link(ctx context.Context, conversationID, messageID string, ids []string) (int64, error)
	// Relink restores a link dropped by Detach.
	Relink(ctx context.Context, conversationID, messageID, id string) (bool, error)
	ListByMessages(ctx context.Context, messageIDs []string) ([]*models.Attachment, error)
	ListByConversation(ctx context.Context, conversationID string) ([]*models.Attachment, error)
	// Detach clears message_id on every attachment of the conversation so that
	// deleting its messages does not cascade into the uploads.
	Detach(ctx context.Context, conversationID string) (int64, error)
}
