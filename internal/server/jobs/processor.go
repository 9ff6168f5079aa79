package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

// ProcessorConfig tunes the consumer loop.
type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Visibility   time.Duration
	MaxAttempts  int
}

// Processor leases jobs from the store and dispatches them to a Handler.
type Processor struct {
	rm      repomanager.RepositoryManager
	handler Handler
	log     logging.Logger
	cfg     ProcessorConfig
	backoff func(attempt int) time.Duration
}

func NewProcessor(rm repomanager.RepositoryManager, h Handler, log logging.Logger, cfg ProcessorConfig) *Processor {
	return &Processor{
		rm:      rm,
		handler: h,
		log:     log.With("module", "jobs"),
		cfg:     cfg,
		backoff: Backoff,
	}
}

// Run polls until ctx is cancelled. A batch in progress is finished first.
func (p *Processor) Run(ctx context.Context) {
	p.log.Info(ctx, "job consumer started", "batch", p.cfg.BatchSize, "poll", p.cfg.PollInterval)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for {
			n, err := p.ProcessBatch(context.WithoutCancel(ctx))
			if err != nil {
				p.log.Error(ctx, "receive jobs", "error", err)
			}
			if n < p.cfg.BatchSize || ctx.Err() != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			p.log.Info(context.Background(), "job consumer stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessBatch leases one batch and handles every job in it independently.
// It returns the number of jobs leased.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	repo := p.rm.Jobs(p.rm.Transactor().Conn())
	batch, err := repo.Receive(ctx, p.cfg.BatchSize, p.cfg.Visibility)
	if err != nil {
		return 0, err
	}
	for _, qj := range batch {
		p.handle(ctx, qj)
	}
	return len(batch), nil
}

func (p *Processor) handle(ctx context.Context, qj *models.QueuedJob) {
	repo := p.rm.Jobs(p.rm.Transactor().Conn())
	log := p.log.With("job_id", qj.ID, "kind", qj.Kind, "attempt", qj.Attempts)

	j, err := Decode(qj.Payload)
	if err != nil {
		// Undecodable envelopes never succeed on redelivery.
		log.Error(ctx, "dropping undecodable job", "error", err, "unknown_kind", errors.Is(err, ErrUnknownKind))
		if err := repo.Ack(ctx, qj.ID); err != nil {
			log.Error(ctx, "ack job", "error", err)
		}
		return
	}

	start := time.Now()
	if herr := p.dispatch(ctx, j); herr != nil {
		perr := &common.JobProcessingError{Kind: qj.Kind, Attempt: qj.Attempts, Err: herr}
		if qj.Attempts >= p.cfg.MaxAttempts {
			log.Error(ctx, "job exhausted its attempts", "error", perr)
			if err := repo.DeadLetter(ctx, qj.ID, perr.Error()); err != nil {
				log.Error(ctx, "dead-letter job", "error", err)
			}
			return
		}
		delay := p.backoff(qj.Attempts)
		log.Warn(ctx, "job failed, will retry", "error", perr, "retry_in", delay)
		if err := repo.Retry(ctx, qj.ID, delay, perr.Error()); err != nil {
			log.Error(ctx, "retry job", "error", err)
		}
		return
	}

	if err := repo.Ack(ctx, qj.ID); err != nil {
		log.Error(ctx, "ack job", "error", err)
		return
	}
	log.Debug(ctx, "job done", "took", time.Since(start))
}

// ErrHandlerPanic marks a handler that panicked instead of returning.
var ErrHandlerPanic = errors.New("handler panicked")

// dispatch runs the handler for j, turning a panic into an error so it goes
// through retry and dead-lettering like any other failure.
func (p *Processor) dispatch(ctx context.Context, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return j.Accept(ctx, p.handler)
}
