package wiki

import (
	"context"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

// Repository is a read-mostly view of wiki pages plus their version log.
type Repository interface {
	Get(ctx context.Context, id string) (*models.WikiPage, error)
	Pinned(ctx context.Context, conversationID string) ([]*models.WikiPage, error)
	// FindByTitleOrSlug matches the title case-insensitively or the slug exactly.
	FindByTitleOrSlug(ctx context.Context, title, slug string) (*models.WikiPage, error)
	Search(ctx context.Context, q string, excludeIDs []string, limit int) ([]*models.WikiPage, error)

	NextVersion(ctx context.Context, pageID string) (int, error)
	AddVersion(ctx context.Context, v *models.WikiVersion) error
	// PruneVersions keeps the newest keep versions and returns the storage
	// keys of the removed ones.
	PruneVersions(ctx context.Context, pageID string, keep int) ([]string, error)
}
