package chat

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/blob"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/provider"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/memory"
	"github.com/njarm23/ClaudeMemories/internal/server/supervisor"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	chunks []provider.Chunk
	err    error
	i      int
	closed bool
}

func (s *fakeStream) Next() (provider.Chunk, error) {
	if s.i < len(s.chunks) {
		s.i++
		return s.chunks[s.i-1], nil
	}
	if s.err != nil {
		return provider.Chunk{}, s.err
	}
	return provider.Chunk{}, io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeClient hands out one scripted stream per call.
type fakeClient struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	reqs    []provider.Request
}

func (c *fakeClient) Stream(_ context.Context, req provider.Request) (provider.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	if c.err != nil {
		return nil, c.err
	}
	s := c.streams[0]
	c.streams = c.streams[1:]
	return s, nil
}

func (c *fakeClient) push(text string, model string) *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &fakeStream{chunks: []provider.Chunk{{Kind: provider.ChunkModel, Model: model}}}
	for _, word := range splitKeep(text) {
		s.chunks = append(s.chunks, provider.Chunk{Kind: provider.ChunkText, Text: word})
	}
	c.streams = append(c.streams, s)
	return s
}

// splitKeep cuts text into pieces of at most four bytes.
func splitKeep(text string) []string {
	var out []string
	for len(text) > 4 {
		out = append(out, text[:4])
		text = text[4:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
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

func (q *recordingQueue) gossipEvents() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, j := range q.sent {
		if g, ok := j.(jobs.Gossip); ok {
			out = append(out, g.EventType)
		}
	}
	return out
}

type fakeRecorder struct {
	mu     sync.Mutex
	models []string
}

func (r *fakeRecorder) Record(_ context.Context, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, model)
	return nil
}

type testEnv struct {
	rm       *memory.Manager
	blobs    *blob.MemoryStore
	client   *fakeClient
	queue    *recordingQueue
	recorder *fakeRecorder
	sup      *supervisor.Supervisor
	svc      *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		rm:       memory.NewManager(),
		blobs:    blob.NewMemoryStore(),
		client:   &fakeClient{},
		queue:    &recordingQueue{},
		recorder: &fakeRecorder{},
		sup:      supervisor.New(logging.Nop()),
	}
	log := logging.Nop()
	relay := NewRelay(e.rm, e.client, e.queue, e.recorder, e.sup, log)
	e.svc = NewService(e.rm, NewResolver(e.rm, e.blobs, log), NewPreambleBuilder(e.rm, log), relay, log)
	t.Cleanup(func() { e.sup.Wait(time.Second) })
	return e
}

func (e *testEnv) conversation(t *testing.T, id string) *models.Conversation {
	t.Helper()
	c := &models.Conversation{ID: id, Title: "New Chat", Model: "claude-sonnet-4-20250514", Temperature: 1}
	require.NoError(t, e.rm.Conversations(nil).Create(context.Background(), c))
	return c
}

func (e *testEnv) message(t *testing.T, id, conv, role, content string, parent *string) *models.Message {
	t.Helper()
	m := &models.Message{ID: id, ConversationID: conv, Role: role, Content: content, ParentID: parent}
	require.NoError(t, e.rm.Messages(nil).Create(context.Background(), m))
	return m
}

// drain reads every event of a session and waits for its bookkeeping.
func drain(t *testing.T, s *Session) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				select {
				case <-s.Done():
				case <-timeout:
					t.Fatal("session bookkeeping did not finish")
				}
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("session did not finish")
		}
	}
}

func ptr(s string) *string { return &s }
