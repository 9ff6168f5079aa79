package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/blob"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/llm"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/memory"
	"github.com/stretchr/testify/require"
)

// scriptedGenerator answers with a fixed reply and records requests.
type scriptedGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []llm.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	return g.reply, g.err
}

type recordingQueue struct {
	mu   sync.Mutex
	sent []jobs.Job
}

func (q *recordingQueue) Send(_ context.Context, j jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, j)
	return nil
}

func (q *recordingQueue) SendBatch(ctx context.Context, js []jobs.Job) error {
	for _, j := range js {
		_ = q.Send(ctx, j)
	}
	return nil
}

func (q *recordingQueue) gossip() []jobs.Gossip {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []jobs.Gossip
	for _, j := range q.sent {
		if g, ok := j.(jobs.Gossip); ok {
			out = append(out, g)
		}
	}
	return out
}

type env struct {
	rm    *memory.Manager
	blobs *blob.MemoryStore
	queue *recordingQueue
	gen   *scriptedGenerator
	log   logging.Logger
	clock time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		rm:    memory.NewManager(),
		blobs: blob.NewMemoryStore(),
		queue: &recordingQueue{},
		gen:   &scriptedGenerator{},
		log:   logging.Nop(),
		clock: time.Date(2025, 6, 10, 18, 30, 0, 0, time.UTC),
	}
	e.rm.Store().SetClock(e.now)
	return e
}

func (e *env) now() time.Time { return e.clock }

func (e *env) advance(d time.Duration) { e.clock = e.clock.Add(d) }

func (e *env) conversation(t *testing.T, id, title string) *models.Conversation {
	t.Helper()
	c := &models.Conversation{ID: id, Title: title, Model: "claude-sonnet-4-20250514", Temperature: 1}
	require.NoError(t, e.rm.Conversations(nil).Create(context.Background(), c))
	return c
}

// chat appends alternating user/assistant messages, one second apart.
func (e *env) chat(t *testing.T, conversationID string, contents ...string) []*models.Message {
	t.Helper()
	ctx := context.Background()
	var out []*models.Message
	var parent *string
	for i, text := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		m := &models.Message{
			ID:             conversationID + "-" + string(rune('a'+i)),
			ConversationID: conversationID,
			Role:           role,
			Content:        text,
			ParentID:       parent,
		}
		require.NoError(t, e.rm.Messages(nil).Create(ctx, m))
		require.NoError(t, e.rm.Search(nil).Upsert(ctx, models.IndexEntry{
			MessageID: m.ID, ConversationID: conversationID, Role: role, Content: text,
		}))
		id := m.ID
		parent = &id
		out = append(out, m)
		e.advance(time.Second)
	}
	return out
}
