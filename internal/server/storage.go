package server

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/blob"
	"github.com/njarm23/ClaudeMemories/internal/server/config"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/memory"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Storage bundles the relational store and the blob store.
type Storage struct {
	Repos repomanager.RepositoryManager
	Blobs blob.Store
	db    *sql.DB
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// OpenStorage connects the backends selected by c. The "memory" DSN and the
// "memory" blob backend keep everything in process.
func OpenStorage(ctx context.Context, c *config.Config, log logging.Logger) (*Storage, error) {
	s := &Storage{}

	if c.UsesMemoryStore() {
		log.Warn(ctx, "using in-memory store, data is lost on exit")
		s.Repos = memory.NewManager()
	} else {
		db, err := openDB(c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db open error: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db ping error: %w", err)
		}
		rm, err := repomanager.NewPostgresRepositoryManager(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db init error: %w", err)
		}
		s.Repos, s.db = rm, db
	}

	switch c.BlobBackend {
	case config.BlobBackendMemory:
		s.Blobs = blob.NewMemoryStore()
	default:
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("blob store init error: %w", err)
		}
		s.Blobs = store
	}

	return s, nil
}

// Close releases the database pool, if any.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
