package memory

import (
	"context"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/annotations"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/attachments"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/backup"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/conversations"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/gossip"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/messages"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/modelstats"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/search"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/tags"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/wiki"
)

// Manager is an in-memory repomanager.RepositoryManager. The DBTX arguments
// of the factory methods are ignored.
type Manager struct {
	store *Store
}

func NewManager() *Manager {
	return &Manager{store: NewStore()}
}

var _ repomanager.RepositoryManager = (*Manager)(nil)

// Store exposes the backing store, mainly for SetClock in tests.
func (m *Manager) Store() *Store { return m.store }

func (m *Manager) RunMigrations(context.Context) error { return nil }

func (m *Manager) Transactor() dbx.Transactor { return m.store }

func (m *Manager) Conversations(dbx.DBTX) conversations.Repository {
	return conversationRepo{m.store}
}

func (m *Manager) Messages(dbx.DBTX) messages.Repository { return messageRepo{m.store} }

func (m *Manager) Attachments(dbx.DBTX) attachments.Repository {
	return attachmentRepo{m.store}
}

func (m *Manager) Annotations(dbx.DBTX) annotations.Repository {
	return annotationRepo{m.store}
}

func (m *Manager) Search(dbx.DBTX) search.Index { return searchIndex{m.store} }

func (m *Manager) Wiki(dbx.DBTX) wiki.Repository { return wikiRepo{m.store} }

func (m *Manager) Tags(dbx.DBTX) tags.Repository { return tagRepo{m.store} }

func (m *Manager) Gossip(dbx.DBTX) gossip.Repository { return gossipRepo{m.store} }

func (m *Manager) Jobs(dbx.DBTX) jobs.Repository { return jobRepo{m.store} }

func (m *Manager) ModelStats(dbx.DBTX) modelstats.Repository { return modelStatsRepo{m.store} }

func (m *Manager) Backup(dbx.DBTX) backup.Dumper { return dumper{m.store} }

// PutWikiPage inserts or replaces a wiki page. Wiki pages have no write path
// in the server, so dev mode and tests seed them here.
func (m *Manager) PutWikiPage(p models.WikiPage) {
	m.store.read(func(st *state, _ time.Time) {
		st.wiki[p.ID] = p
	})
}

// PinWikiPage pins a page to a conversation.
func (m *Manager) PinWikiPage(conversationID, pageID string) {
	m.store.read(func(st *state, _ time.Time) {
		st.wikiPins[conversationID] = append(st.wikiPins[conversationID], pageID)
	})
}

// TagConversation labels a conversation.
func (m *Manager) TagConversation(conversationID string, t models.Tag) {
	m.store.read(func(st *state, _ time.Time) {
		st.tags[conversationID] = append(st.tags[conversationID], t)
	})
}
