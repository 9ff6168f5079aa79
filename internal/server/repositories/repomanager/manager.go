package repomanager

import (
	"context"

	"github.com/njarm23/ClaudeMemories/internal/dbx"
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
)

// RepositoryManager vends repositories bound to a handle obtained from its
// Transactor: either Transactor().Conn() or the tx passed to InTx.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Transactor() dbx.Transactor

	Conversations(db dbx.DBTX) conversations.Repository
	Messages(db dbx.DBTX) messages.Repository
	Attachments(db dbx.DBTX) attachments.Repository
	Annotations(db dbx.DBTX) annotations.Repository
	Search(db dbx.DBTX) search.Index
	Wiki(db dbx.DBTX) wiki.Repository
	Tags(db dbx.DBTX) tags.Repository
	Gossip(db dbx.DBTX) gossip.Repository
	Jobs(db dbx.DBTX) jobs.Repository
	ModelStats(db dbx.DBTX) modelstats.Repository
	Backup(db dbx.DBTX) backup.Dumper
}
