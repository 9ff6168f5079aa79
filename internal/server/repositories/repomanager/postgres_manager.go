// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/server/migrations"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/annotations"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/attachments"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/backup"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/conversations"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/gossip"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/messages"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/modelstats"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/search"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/tags"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/wiki"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct {
	db *sql.DB
	tx *dbx.SQLTransactor
}

func (m *PostgresRepositoryManager) Transactor() dbx.Transactor {
	return m.tx
}

func (m *PostgresRepositoryManager) Conversations(db dbx.DBTX) conversations.Repository {
	return conversations.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Messages(db dbx.DBTX) messages.Repository {
	return messages.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Attachments(db dbx.DBTX) attachments.Repository {
	return attachments.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Annotations(db dbx.DBTX) annotations.Repository {
	return annotations.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Search(db dbx.DBTX) search.Index {
	return search.NewPostgresIndex(db)
}

func (m *PostgresRepositoryManager) Wiki(db dbx.DBTX) wiki.Repository {
	return wiki.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Tags(db dbx.DBTX) tags.Repository {
	return tags.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Gossip(db dbx.DBTX) gossip.Repository {
	return gossip.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Jobs(db dbx.DBTX) jobs.Repository {
	return jobs.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) ModelStats(db dbx.DBTX) modelstats.Repository {
	return modelstats.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Backup(db dbx.DBTX) backup.Dumper {
	return backup.NewPostgresDumper(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the manager's database.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, m.db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	return &PostgresRepositoryManager{db: db, tx: dbx.NewSQLTransactor(db)}, nil
}
