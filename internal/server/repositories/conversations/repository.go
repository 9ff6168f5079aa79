package conversations

import (
	"context"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

// Repository persists conversations and their archive lifecycle columns.
type Repository interface {
	Create(ctx context.Context, c *models.Conversation) error
	Get(ctx context.Context, id string) (*models.Conversation, error)
	List(ctx context.Context, includeArchived bool) ([]*models.Conversation, error)
	Update(ctx context.Context, id string, patch models.ConversationPatch) error
	Delete(ctx context.Context, id string) error

	Touch(ctx context.Context, id string) error
	SetTitleIfDefault(ctx context.Context, id, title string) (bool, error)
	SetPinned(ctx context.Context, id string, pinned bool) error
	SetSummary(ctx context.Context, id, summary, vibesJSON string) error
	SetHandoffNotes(ctx context.Context, id, notes string) error

	// ClaimArchive marks the conversation as being archived unless it is
	// archived already or another claim newer than staleBefore exists.
	ClaimArchive(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	SetPendingArchiveKey(ctx context.Context, id, key string) error
	ReleaseArchiveClaim(ctx context.Context, id string) error
	MarkArchived(ctx context.Context, id, key string) error
	ClearArchived(ctx context.Context, id string) error

	ListNeedingSummary(ctx context.Context, minMessages, limit int) ([]string, error)
	ListArchivable(ctx context.Context, idleSince time.Time, limit int) ([]string, error)
	Stats(ctx context.Context, since time.Time) (*models.ConversationStats, error)
}
