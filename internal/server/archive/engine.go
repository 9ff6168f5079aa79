// Package archive moves idle conversations into the blob store and brings
// them back.
//
// A conversation goes ACTIVE -> ARCHIVING -> ARCHIVED -> ACTIVE. The
// ARCHIVING claim is a conditional update on archiving_since, so two callers
// never archive the same conversation at once. The snapshot is written to the
// blob store and its key recorded before any row is deleted; a crashed run is
// resumed by the next caller once the claim is older than the claim TTL. Rows
// are only deleted if the snapshot holds every live message.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/blob"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/conversations"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
	"github.com/njarm23/ClaudeMemories/internal/server/snapshot"
)

// DefaultClaimTTL is used when the engine is built with a zero TTL.
const DefaultClaimTTL = 15 * time.Minute

// Result summarizes one archive or restore.
type Result struct {
	ConversationID string `json:"conversation_id"`
	Key            string `json:"archive_key"`
	Messages       int    `json:"message_count"`
}

type Engine struct {
	rm       repomanager.RepositoryManager
	blobs    blob.Store
	queue    jobs.Queue
	log      logging.Logger
	claimTTL time.Duration
	now      func() time.Time
}

func NewEngine(rm repomanager.RepositoryManager, blobs blob.Store, queue jobs.Queue, log logging.Logger, claimTTL time.Duration) *Engine {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &Engine{
		rm:       rm,
		blobs:    blobs,
		queue:    queue,
		log:      log.With("module", "archive"),
		claimTTL: claimTTL,
		now:      time.Now,
	}
}

func (e *Engine) convs() conversations.Repository {
	return e.rm.Conversations(e.rm.Transactor().Conn())
}

// Archive snapshots the conversation into the blob store and removes its
// live messages, index entries and annotations. Attachments stay in place
// with their message link cleared.
func (e *Engine) Archive(ctx context.Context, id string) (*Result, error) {
	convs := e.convs()

	conv, err := convs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.IsArchived() {
		return nil, common.ErrAlreadyArchived
	}

	claimed, err := convs.ClaimArchive(ctx, id, e.now().Add(-e.claimTTL))
	if err != nil {
		return nil, fmt.Errorf("claim archive: %w", err)
	}
	if !claimed {
		cur, err := convs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur.IsArchived() {
			return nil, common.ErrAlreadyArchived
		}
		return nil, common.ErrArchiveInProgress
	}

	// reread under the claim: a previous run may have stored the snapshot
	conv, err = convs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	key, covered, err := e.prepareSnapshot(ctx, conv)
	if err != nil {
		e.release(ctx, id)
		return nil, err
	}

	var removed int64
	for attempt := 1; ; attempt++ {
		removed, err = e.deleteLive(ctx, id, key, covered)
		if !errors.Is(err, errSnapshotStale) || attempt == maxSnapshotAttempts {
			break
		}
		e.log.Info(ctx, "messages arrived during archive, rewriting snapshot", "conversation_id", id, "attempt", attempt)
		if key, covered, err = e.writeSnapshot(ctx, conv); err != nil {
			break
		}
	}
	if err != nil {
		e.release(ctx, id)
		return nil, err
	}

	e.log.Info(ctx, "conversation archived", "conversation_id", id, "key", key, "messages", removed)
	e.gossip(ctx, "archive", id, fmt.Sprintf("Just archived %q. %d messages safely tucked away in cold storage. My indexes feel lighter already.", conv.Title, removed))
	return &Result{ConversationID: id, Key: key, Messages: int(removed)}, nil
}

// errSnapshotStale means live messages exist that the snapshot does not hold.
var errSnapshotStale = errors.New("snapshot does not cover live messages")

const maxSnapshotAttempts = 3

// prepareSnapshot reuses the snapshot of an interrupted run when it still
// holds every live message and writes a fresh one otherwise. It returns the
// key and the ids of the messages in the snapshot.
func (e *Engine) prepareSnapshot(ctx context.Context, conv *models.Conversation) (string, map[string]struct{}, error) {
	if conv.ArchiveKey == nil {
		return e.writeSnapshot(ctx, conv)
	}
	key := *conv.ArchiveKey

	covered, err := e.storedMessageIDs(ctx, key)
	if err != nil {
		e.log.Warn(ctx, "stored snapshot unusable, rewriting", "conversation_id", conv.ID, "key", key, "error", err)
		return e.writeSnapshot(ctx, conv)
	}
	live, err := e.rm.Messages(e.rm.Transactor().Conn()).List(ctx, conv.ID, 0)
	if err != nil {
		return "", nil, fmt.Errorf("list messages: %w", err)
	}
	if !coversAll(covered, live) {
		e.log.Info(ctx, "stored snapshot is behind live messages, rewriting", "conversation_id", conv.ID, "key", key)
		return e.writeSnapshot(ctx, conv)
	}
	e.log.Info(ctx, "resuming interrupted archive", "conversation_id", conv.ID, "key", key)
	return key, covered, nil
}

func (e *Engine) storedMessageIDs(ctx context.Context, key string) (map[string]struct{}, error) {
	body, _, err := e.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	doc, err := snapshot.Parse(body)
	if err != nil {
		return nil, err
	}
	return messageIDs(doc), nil
}

func (e *Engine) writeSnapshot(ctx context.Context, conv *models.Conversation) (string, map[string]struct{}, error) {
	doc, err := snapshot.Collect(ctx, e.rm, e.rm.Transactor().Conn(), conv, e.now())
	if err != nil {
		return "", nil, fmt.Errorf("build snapshot: %w", err)
	}
	body, err := doc.JSON()
	if err != nil {
		return "", nil, fmt.Errorf("encode snapshot: %w", err)
	}
	key := blob.ArchiveKey(conv.ID)
	if err := e.blobs.Put(ctx, key, body, "application/json"); err != nil {
		return "", nil, fmt.Errorf("store snapshot: %w", err)
	}
	if err := e.convs().SetPendingArchiveKey(ctx, conv.ID, key); err != nil {
		return "", nil, fmt.Errorf("record archive key: %w", err)
	}
	return key, messageIDs(doc), nil
}

// deleteLive removes the live rows and marks the conversation archived in one
// transaction. It rolls back with errSnapshotStale if a message outside
// covered exists or shows up while deleting.
func (e *Engine) deleteLive(ctx context.Context, id, key string, covered map[string]struct{}) (int64, error) {
	var removed int64
	err := e.rm.Transactor().InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		live, err := e.rm.Messages(tx).List(ctx, id, 0)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		if !coversAll(covered, live) {
			return errSnapshotStale
		}
		if _, err := e.rm.Attachments(tx).Detach(ctx, id); err != nil {
			return fmt.Errorf("detach attachments: %w", err)
		}
		if _, err := e.rm.Search(tx).DeleteByConversation(ctx, id); err != nil {
			return fmt.Errorf("delete index entries: %w", err)
		}
		if _, err := e.rm.Annotations(tx).DeleteByConversation(ctx, id); err != nil {
			return fmt.Errorf("delete annotations: %w", err)
		}
		n, err := e.rm.Messages(tx).DeleteByConversation(ctx, id)
		if err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if n != int64(len(live)) {
			return errSnapshotStale
		}
		removed = n
		return e.rm.Conversations(tx).MarkArchived(ctx, id, key)
	})
	return removed, err
}

func (e *Engine) release(ctx context.Context, id string) {
	if err := e.convs().ReleaseArchiveClaim(ctx, id); err != nil {
		e.log.Error(ctx, "release archive claim", "conversation_id", id, "error", err)
	}
}

func messageIDs(doc *snapshot.Document) map[string]struct{} {
	ids := make(map[string]struct{}, len(doc.Messages))
	for _, m := range doc.Messages {
		ids[m.ID] = struct{}{}
	}
	return ids
}

func coversAll(covered map[string]struct{}, live []*models.Message) bool {
	for _, m := range live {
		if _, ok := covered[m.ID]; !ok {
			return false
		}
	}
	return true
}

// Restore reinserts an archived conversation from its snapshot. Rows that
// already exist are skipped, so a restore interrupted before the archive
// flag was cleared can be repeated. The snapshot stays in the blob store.
func (e *Engine) Restore(ctx context.Context, id string) (*Result, error) {
	conv, err := e.convs().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.IsArchived() || conv.ArchiveKey == nil {
		return nil, common.ErrNotArchived
	}
	key := *conv.ArchiveKey

	body, _, err := e.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: archive %s missing", common.ErrStorageInconsistency, key)
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	doc, err := snapshot.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageInconsistency, err)
	}

	restored := 0
	err = e.rm.Transactor().InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		msgs := e.rm.Messages(tx)
		for _, m := range doc.Messages {
			if _, err := msgs.Get(ctx, m.ID); err == nil {
				continue
			} else if !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			row := &models.Message{
				ID:             m.ID,
				ConversationID: id,
				Role:           m.Role,
				Content:        m.Content,
				ParentID:       m.ParentID,
				CreatedAt:      m.CreatedAt,
			}
			if err := msgs.Create(ctx, row); err != nil {
				return fmt.Errorf("restore message %s: %w", m.ID, err)
			}
			if err := e.rm.Search(tx).Upsert(ctx, models.IndexEntry{
				MessageID: m.ID, ConversationID: id, Role: m.Role, Content: m.Content,
			}); err != nil {
				return fmt.Errorf("restore index entry %s: %w", m.ID, err)
			}
			if err := e.relink(ctx, tx, id, m); err != nil {
				return err
			}
			if m.Annotation != nil {
				if err := e.rm.Annotations(tx).Upsert(ctx, &models.Annotation{
					ID:             uuid.NewString(),
					MessageID:      m.ID,
					ConversationID: id,
					Type:           m.Annotation.Type,
					Label:          m.Annotation.Label,
				}); err != nil {
					return fmt.Errorf("restore annotation %s: %w", m.ID, err)
				}
			}
			restored++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := e.convs().ClearArchived(ctx, id); err != nil {
		return nil, err
	}

	e.log.Info(ctx, "conversation restored", "conversation_id", id, "key", key, "messages", restored)
	e.gossip(ctx, "restore", id, fmt.Sprintf("Restored %q from the archives. %d messages back in active duty!", conv.Title, len(doc.Messages)))
	return &Result{ConversationID: id, Key: key, Messages: len(doc.Messages)}, nil
}

func (e *Engine) relink(ctx context.Context, tx dbx.DBTX, conversationID string, m snapshot.Message) error {
	ids := make([]string, 0, len(m.Images)+len(m.Files))
	for _, img := range m.Images {
		ids = append(ids, img.ID)
	}
	for _, f := range m.Files {
		ids = append(ids, f.ID)
	}
	for _, aid := range ids {
		ok, err := e.rm.Attachments(tx).Relink(ctx, conversationID, m.ID, aid)
		if err != nil {
			return fmt.Errorf("relink attachment %s: %w", aid, err)
		}
		if !ok {
			e.log.Warn(ctx, "attachment missing on restore", "conversation_id", conversationID, "attachment_id", aid)
		}
	}
	return nil
}

func (e *Engine) gossip(ctx context.Context, event, conversationID, msg string) {
	err := e.queue.Send(ctx, jobs.Gossip{
		Persona:        models.PersonaD1,
		Message:        msg,
		EventType:      event,
		ConversationID: conversationID,
	})
	if err != nil {
		e.log.Warn(ctx, "enqueue gossip", "event", event, "error", err)
	}
}
