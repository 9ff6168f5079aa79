package services

import (
	"context"
	"fmt"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/blob"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

// WikiVersionsKept is how many versions of a page are retained.
const WikiVersionsKept = 50

// WikiVersioner stores snapshots of wiki pages taken before an edit.
type WikiVersioner struct {
	rm    repomanager.RepositoryManager
	blobs blob.Store
	log   logging.Logger
	now   func() time.Time
}

func NewWikiVersioner(rm repomanager.RepositoryManager, blobs blob.Store, log logging.Logger) *WikiVersioner {
	return &WikiVersioner{rm: rm, blobs: blobs, log: log.With("module", "wiki_versions"), now: time.Now}
}

// Snapshot writes the page content to the blob store, records the next
// version number and prunes versions beyond WikiVersionsKept.
func (w *WikiVersioner) Snapshot(ctx context.Context, s jobs.WikiSnapshot) (*models.WikiVersion, error) {
	editedAt, err := time.Parse(time.RFC3339, s.EditedAt)
	if err != nil {
		w.log.Warn(ctx, "bad wiki snapshot timestamp", "page_id", s.PageID, "edited_at", s.EditedAt)
		editedAt = w.now()
	}

	key := blob.WikiVersionKey(s.PageID, editedAt)
	if err := w.blobs.Put(ctx, key, []byte(s.Content), "text/markdown"); err != nil {
		return nil, fmt.Errorf("store wiki version: %w", err)
	}

	v := &models.WikiVersion{
		PageID:     s.PageID,
		Title:      s.Title,
		StorageKey: key,
		SizeBytes:  int64(len(s.Content)),
	}
	var pruned []string
	err = w.rm.Transactor().InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := w.rm.Wiki(tx)
		n, err := repo.NextVersion(ctx, s.PageID)
		if err != nil {
			return err
		}
		v.Version = n
		if err := repo.AddVersion(ctx, v); err != nil {
			return err
		}
		removed, err := repo.PruneVersions(ctx, s.PageID, WikiVersionsKept)
		for _, k := range removed {
			if k != key {
				pruned = append(pruned, k)
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(pruned) > 0 {
		if err := w.blobs.Delete(ctx, pruned...); err != nil {
			w.log.Warn(ctx, "delete pruned wiki versions", "page_id", s.PageID, "count", len(pruned), "error", err)
		}
	}
	w.log.Debug(ctx, "wiki version stored", "page_id", s.PageID, "version", v.Version)
	return v, nil
}
