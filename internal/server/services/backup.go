package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/cryptox"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/blob"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

// BackupsKept is how many database backups survive pruning.
const BackupsKept = 10

const backupPrefix = "backups/db-"

type BackupService struct {
	rm         repomanager.RepositoryManager
	blobs      blob.Store
	log        logging.Logger
	keep       int
	passphrase []byte
	now        func() time.Time
}

func NewBackupService(rm repomanager.RepositoryManager, blobs blob.Store, log logging.Logger) *BackupService {
	return &BackupService{rm: rm, blobs: blobs, log: log.With("module", "backup"), keep: BackupsKept, now: time.Now}
}

// WithPassphrase makes Run seal backups and Fetch open them. An empty
// passphrase stores plain JSON.
func (b *BackupService) WithPassphrase(p string) *BackupService {
	if p != "" {
		b.passphrase = []byte(p)
	}
	return b
}

// Run dumps the backed-up tables to the blob store and prunes old backups.
// It returns the key of the new backup.
func (b *BackupService) Run(ctx context.Context) (string, error) {
	dump, err := b.rm.Backup(b.rm.Transactor().Conn()).Dump(ctx)
	if err != nil {
		return "", fmt.Errorf("dump tables: %w", err)
	}
	body, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}

	contentType := "application/json"
	if b.passphrase != nil {
		if body, err = cryptox.Seal(body, b.passphrase); err != nil {
			return "", fmt.Errorf("seal backup: %w", err)
		}
		contentType = "application/octet-stream"
	}

	key := blob.BackupKey(b.now())
	if err := b.blobs.Put(ctx, key, body, contentType); err != nil {
		return "", fmt.Errorf("store backup: %w", err)
	}
	b.log.Info(ctx, "database backup stored", "key", key, "bytes", len(body), "tables", len(dump))

	if err := b.prune(ctx); err != nil {
		b.log.Warn(ctx, "prune backups", "error", err)
	}
	return key, nil
}

// Fetch returns the JSON dump stored under key, opening it when a
// passphrase is set.
func (b *BackupService) Fetch(ctx context.Context, key string) ([]byte, error) {
	if !strings.HasPrefix(key, backupPrefix) {
		return nil, common.NewValidationError("key", "not a backup key")
	}
	body, _, err := b.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if b.passphrase == nil {
		return body, nil
	}
	plain, err := cryptox.Open(body, b.passphrase)
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	return plain, nil
}

// prune deletes all but the newest keep backups. Keys sort chronologically.
func (b *BackupService) prune(ctx context.Context) error {
	objs, err := b.blobs.List(ctx, backupPrefix)
	if err != nil {
		return err
	}
	if len(objs) <= b.keep {
		return nil
	}
	stale := make([]string, 0, len(objs)-b.keep)
	for _, o := range objs[:len(objs)-b.keep] {
		stale = append(stale, o.Key)
	}
	return b.blobs.Delete(ctx, stale...)
}
