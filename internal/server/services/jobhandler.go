package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/archive"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

// ArchiveBatchLimit caps how many conversations one archive batch fans out.
const ArchiveBatchLimit = 20

// Archiver is the part of the archive engine the queue needs.
type Archiver interface {
	Archive(ctx context.Context, id string) (*archive.Result, error)
}

// JobHandler executes queued jobs.
type JobHandler struct {
	rm          repomanager.RepositoryManager
	queue       jobs.Queue
	gossip      *GossipService
	summarizer  *Summarizer
	waterCooler *WaterCooler
	exporter    *Exporter
	wiki        *WikiVersioner
	backup      *BackupService
	archiver    Archiver
	idleDays    int
	log         logging.Logger
	now         func() time.Time
}

// JobDeps bundles the services a JobHandler dispatches to.
type JobDeps struct {
	Gossip      *GossipService
	Summarizer  *Summarizer
	WaterCooler *WaterCooler
	Exporter    *Exporter
	Wiki        *WikiVersioner
	Backup      *BackupService
	Archiver    Archiver
}

func NewJobHandler(rm repomanager.RepositoryManager, queue jobs.Queue, deps JobDeps, idleDays int, log logging.Logger) *JobHandler {
	return &JobHandler{
		rm:          rm,
		queue:       queue,
		gossip:      deps.Gossip,
		summarizer:  deps.Summarizer,
		waterCooler: deps.WaterCooler,
		exporter:    deps.Exporter,
		wiki:        deps.Wiki,
		backup:      deps.Backup,
		archiver:    deps.Archiver,
		idleDays:    idleDays,
		log:         log.With("module", "jobs"),
		now:         time.Now,
	}
}

var _ jobs.Handler = (*JobHandler)(nil)

func (h *JobHandler) HandleGossip(ctx context.Context, j jobs.Gossip) error {
	if _, ok := models.Personas[j.Persona]; !ok {
		h.log.Warn(ctx, "dropping gossip from unknown persona", "persona", j.Persona)
		return nil
	}
	return h.gossip.Post(ctx, j)
}

func (h *JobHandler) HandleSummarizeConversation(ctx context.Context, j jobs.SummarizeConversation) error {
	_, err := h.summarizer.Summarize(ctx, j.ConversationID)
	return err
}

func (h *JobHandler) HandleSummarizeBatch(ctx context.Context, _ jobs.SummarizeBatch) error {
	ids, err := h.rm.Conversations(h.rm.Transactor().Conn()).ListNeedingSummary(ctx, SummaryMinMessages, SummaryBatchLimit)
	if err != nil {
		return err
	}
	batch := make([]jobs.Job, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, jobs.SummarizeConversation{ConversationID: id})
	}
	h.log.Info(ctx, "summarize batch", "conversations", len(ids))
	return h.queue.SendBatch(ctx, batch)
}

func (h *JobHandler) HandleWaterCooler(ctx context.Context, _ jobs.WaterCooler) error {
	n, err := h.waterCooler.Chat(ctx)
	if err != nil {
		return err
	}
	h.log.Debug(ctx, "water cooler chat", "lines", n)
	return nil
}

func (h *JobHandler) HandleExportConversation(ctx context.Context, j jobs.ExportConversation) error {
	_, err := h.exporter.Export(ctx, j.ConversationID, j.Format)
	if errors.Is(err, common.ErrorNotFound) {
		h.log.Warn(ctx, "export of missing conversation", "conversation_id", j.ConversationID)
		return nil
	}
	return err
}

func (h *JobHandler) HandleWikiSnapshot(ctx context.Context, j jobs.WikiSnapshot) error {
	_, err := h.wiki.Snapshot(ctx, j)
	return err
}

func (h *JobHandler) HandleDatabaseBackup(ctx context.Context, _ jobs.DatabaseBackup) error {
	_, err := h.backup.Run(ctx)
	return err
}

func (h *JobHandler) HandleArchiveBatch(ctx context.Context, _ jobs.ArchiveBatch) error {
	idleSince := h.now().AddDate(0, 0, -h.idleDays)
	ids, err := h.rm.Conversations(h.rm.Transactor().Conn()).ListArchivable(ctx, idleSince, ArchiveBatchLimit)
	if err != nil {
		return err
	}
	batch := make([]jobs.Job, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, jobs.ArchiveConversation{ConversationID: id})
	}
	h.log.Info(ctx, "archive batch", "conversations", len(ids), "idle_since", idleSince)
	return h.queue.SendBatch(ctx, batch)
}

// HandleArchiveConversation fails a delivery for a conversation that is
// already archived, so a redelivered job is recorded as a failed attempt. A
// deleted conversation is dropped.
func (h *JobHandler) HandleArchiveConversation(ctx context.Context, j jobs.ArchiveConversation) error {
	_, err := h.archiver.Archive(ctx, j.ConversationID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrAlreadyArchived):
		return fmt.Errorf("archive conversation %s: %w", j.ConversationID, err)
	case errors.Is(err, common.ErrorNotFound):
		h.log.Warn(ctx, "archive of missing conversation", "conversation_id", j.ConversationID)
		return nil
	}
	return err
}
