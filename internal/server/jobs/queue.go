package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

// Queue accepts jobs for asynchronous processing.
type Queue interface {
	Send(ctx context.Context, j Job) error
	SendBatch(ctx context.Context, js []Job) error
}

// StoreQueue persists jobs in the jobs table of the repository manager.
type StoreQueue struct {
	rm repomanager.RepositoryManager
}

func NewStoreQueue(rm repomanager.RepositoryManager) *StoreQueue {
	return &StoreQueue{rm: rm}
}

func (q *StoreQueue) Send(ctx context.Context, j Job) error {
	return q.enqueue(ctx, q.rm.Transactor().Conn(), j)
}

// SendBatch enqueues all jobs or none.
func (q *StoreQueue) SendBatch(ctx context.Context, js []Job) error {
	if len(js) == 0 {
		return nil
	}
	return q.rm.Transactor().InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, j := range js {
			if err := q.enqueue(ctx, tx, j); err != nil {
				return err
			}
		}
		return nil
	})
}

func (q *StoreQueue) enqueue(ctx context.Context, db dbx.DBTX, j Job) error {
	payload, err := Encode(j)
	if err != nil {
		return err
	}
	if err := q.rm.Jobs(db).Enqueue(ctx, uuid.NewString(), j.Kind(), payload, 0); err != nil {
		return fmt.Errorf("enqueue %s: %w", j.Kind(), err)
	}
	return nil
}
