package jobs

import (
	"context"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

// Repository is the durable storage behind the job queue.
type Repository interface {
	Enqueue(ctx context.Context, id, kind string, payload []byte, delay time.Duration) error
	// Receive leases up to batch ready jobs for visibility. A leased job that
	// is neither acked nor retried becomes visible again after the lease.
	Receive(ctx context.Context, batch int, visibility time.Duration) ([]*models.QueuedJob, error)
	Ack(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, delay time.Duration, lastErr string) error
	DeadLetter(ctx context.Context, id, reason string) error
	ListDead(ctx context.Context, limit int) ([]*models.DeadJob, error)
	Pending(ctx context.Context) (int, error)
}
