package annotations

import (
	"context"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type Repository interface {
	// Upsert creates the annotation of a message or replaces its type and
	// label. a.ID is kept only when a new row is created.
	Upsert(ctx context.Context, a *models.Annotation) error
	Delete(ctx context.Context, messageID string) error
	ListByConversation(ctx context.Context, conversationID string) ([]*models.Annotation, error)
	// ListAnnotatedMessages joins annotations with their messages, oldest
	// message first. Preview carries the full message content.
	ListAnnotatedMessages(ctx context.Context, conversationID string) ([]*models.AnnotatedMessage, error)
	DeleteByConversation(ctx context.Context, conversationID string) (int64, error)
}
