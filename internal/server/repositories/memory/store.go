// Package memory implements every repository in process memory. It backs
// the "memory" DSN used for local development and the service tests.
//
// Transactions snapshot the whole state and restore it when the unit of work
// fails. Transactions are serialized; writes made outside a transaction while
// one is running are lost if that transaction rolls back.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type messageRow struct {
	models.Message
	seq int64
}

type jobRow struct {
	models.QueuedJob
	availableAt time.Time
	lockedUntil *time.Time
	lastError   *string
	seq         int64
}

type state struct {
	conversations map[string]models.Conversation
	messages      map[string]messageRow
	attachments   map[string]models.Attachment
	annotations   map[string]models.Annotation // by message id
	index         map[string]models.IndexEntry
	wiki          map[string]models.WikiPage
	wikiPins      map[string][]string // conversation id -> page ids
	versions      map[string][]models.WikiVersion
	tags          map[string][]models.Tag
	gossip        []models.GossipMessage
	jobs          map[string]jobRow
	dead          []models.DeadJob
	current       *models.ModelObservation
	counts        map[string]models.FamilyCount
	changes       []models.ModelChange
	seq           int64
}

func newState() *state {
	return &state{
		conversations: map[string]models.Conversation{},
		messages:      map[string]messageRow{},
		attachments:   map[string]models.Attachment{},
		annotations:   map[string]models.Annotation{},
		index:         map[string]models.IndexEntry{},
		wiki:          map[string]models.WikiPage{},
		wikiPins:      map[string][]string{},
		versions:      map[string][]models.WikiVersion{},
		tags:          map[string][]models.Tag{},
		jobs:          map[string]jobRow{},
		counts:        map[string]models.FamilyCount{},
	}
}

func (s *state) clone() *state {
	c := &state{
		conversations: maps.Clone(s.conversations),
		messages:      maps.Clone(s.messages),
		attachments:   maps.Clone(s.attachments),
		annotations:   maps.Clone(s.annotations),
		index:         maps.Clone(s.index),
		wiki:          maps.Clone(s.wiki),
		wikiPins:      make(map[string][]string, len(s.wikiPins)),
		versions:      make(map[string][]models.WikiVersion, len(s.versions)),
		tags:          make(map[string][]models.Tag, len(s.tags)),
		gossip:        slices.Clone(s.gossip),
		jobs:          maps.Clone(s.jobs),
		dead:          slices.Clone(s.dead),
		counts:        maps.Clone(s.counts),
		changes:       slices.Clone(s.changes),
		seq:           s.seq,
	}
	for k, v := range s.wikiPins {
		c.wikiPins[k] = slices.Clone(v)
	}
	for k, v := range s.versions {
		c.versions[k] = slices.Clone(v)
	}
	for k, v := range s.tags {
		c.tags[k] = slices.Clone(v)
	}
	if s.current != nil {
		cur := *s.current
		c.current = &cur
	}
	return c
}

func (s *state) nextSeq() int64 {
	s.seq++
	return s.seq
}

// Store holds the shared state behind every repository of a Manager.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   *state
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{st: newState(), now: time.Now}
}

// SetClock replaces the time source. Tests use it to age data.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// read runs fn under the state lock.
func (s *Store) read(fn func(st *state, now time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st, s.now())
}

// InTx implements dbx.Transactor. Repositories obtained from the Manager
// ignore the handle, so fn receives nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	rollback := func() {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
		if err != nil {
			rollback()
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, nil)
}

func (s *Store) Conn() dbx.DBTX {
	return nil
}

var _ dbx.Transactor = (*Store)(nil)

func errDuplicate(table, id string) error {
	return fmt.Errorf("db error: duplicate key %s.%s", table, id)
}

func errForeignKey(table, column, id string) error {
	return fmt.Errorf("db error: %s.%s references missing row %s", table, column, id)
}
