package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler records handled jobs and fails kinds listed in failures.
type fakeHandler struct {
	mu       sync.Mutex
	handled  []Job
	failures map[string]error
}

func (h *fakeHandler) handle(j Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, j)
	return h.failures[j.Kind()]
}

func (h *fakeHandler) HandleGossip(_ context.Context, j Gossip) error { return h.handle(j) }
func (h *fakeHandler) HandleSummarizeConversation(_ context.Context, j SummarizeConversation) error {
	return h.handle(j)
}
func (h *fakeHandler) HandleSummarizeBatch(_ context.Context, j SummarizeBatch) error {
	return h.handle(j)
}
func (h *fakeHandler) HandleWaterCooler(_ context.Context, j WaterCooler) error { return h.handle(j) }
func (h *fakeHandler) HandleExportConversation(_ context.Context, j ExportConversation) error {
	return h.handle(j)
}
func (h *fakeHandler) HandleWikiSnapshot(_ context.Context, j WikiSnapshot) error { return h.handle(j) }
func (h *fakeHandler) HandleDatabaseBackup(_ context.Context, j DatabaseBackup) error {
	return h.handle(j)
}
func (h *fakeHandler) HandleArchiveBatch(_ context.Context, j ArchiveBatch) error { return h.handle(j) }
func (h *fakeHandler) HandleArchiveConversation(_ context.Context, j ArchiveConversation) error {
	return h.handle(j)
}

func newProcessor(t *testing.T, h Handler, maxAttempts int) (*Processor, *memory.Manager, *StoreQueue) {
	t.Helper()
	rm := memory.NewManager()
	p := NewProcessor(rm, h, logging.Nop(), ProcessorConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		Visibility:   time.Minute,
		MaxAttempts:  maxAttempts,
	})
	p.backoff = func(int) time.Duration { return 0 }
	return p, rm, NewStoreQueue(rm)
}

func pending(t *testing.T, rm *memory.Manager) int {
	t.Helper()
	n, err := rm.Jobs(nil).Pending(context.Background())
	require.NoError(t, err)
	return n
}

func TestProcessor_AcksSuccessfulJobs(t *testing.T) {
	h := &fakeHandler{}
	p, rm, q := newProcessor(t, h, 5)
	ctx := context.Background()

	require.NoError(t, q.SendBatch(ctx, []Job{
		Gossip{Persona: "cron", Message: "hello"},
		ArchiveConversation{ConversationID: "c1"},
	}))

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []Job{Gossip{Persona: "cron", Message: "hello"}, ArchiveConversation{ConversationID: "c1"}}, h.handled)
	assert.Zero(t, pending(t, rm))
}

func TestProcessor_RetriesThenDeadLetters(t *testing.T) {
	h := &fakeHandler{failures: map[string]error{KindWaterCooler: errors.New("llm down")}}
	p, rm, q := newProcessor(t, h, 3)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, WaterCooler{}))
	require.NoError(t, q.Send(ctx, SummarizeBatch{}))

	// first delivery: one success, one retry
	_, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending(t, rm))

	for i := 0; i < 2; i++ {
		n, err := p.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	assert.Zero(t, pending(t, rm))

	dead, err := rm.Jobs(nil).ListDead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, KindWaterCooler, dead[0].Kind)
	assert.Equal(t, 3, dead[0].Attempts)
	require.NotNil(t, dead[0].LastError)
	assert.Contains(t, *dead[0].LastError, "job water_cooler failed on attempt 3: llm down")
}

type panickingHandler struct {
	*fakeHandler
}

func (panickingHandler) HandleGossip(context.Context, Gossip) error {
	var m map[string]int
	m["boom"]++
	return nil
}

func TestProcessor_PanicIsContainedPerJob(t *testing.T) {
	h := panickingHandler{&fakeHandler{}}
	p, rm, q := newProcessor(t, h, 2)
	ctx := context.Background()

	require.NoError(t, q.SendBatch(ctx, []Job{Gossip{Persona: "cron", Message: "hi"}, SummarizeBatch{}}))

	var n int
	var err error
	require.NotPanics(t, func() { n, err = p.ProcessBatch(ctx) })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []Job{SummarizeBatch{}}, h.handled, "sibling still handled")
	assert.Equal(t, 1, pending(t, rm), "panicked job is retried")

	require.NotPanics(t, func() { _, err = p.ProcessBatch(ctx) })
	require.NoError(t, err)
	assert.Zero(t, pending(t, rm))

	dead, err := rm.Jobs(nil).ListDead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, KindGossip, dead[0].Kind)
	require.NotNil(t, dead[0].LastError)
	assert.Contains(t, *dead[0].LastError, ErrHandlerPanic.Error())
}

func TestProcessor_UnknownKindIsAcked(t *testing.T) {
	h := &fakeHandler{}
	p, rm, _ := newProcessor(t, h, 5)
	ctx := context.Background()

	require.NoError(t, rm.Jobs(nil).Enqueue(ctx, "j1", "teleport", []byte(`{"type":"teleport"}`), 0))
	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, h.handled)
	assert.Zero(t, pending(t, rm))
}

func TestProcessor_RunDrainsAndStops(t *testing.T) {
	h := &fakeHandler{}
	p, rm, q := newProcessor(t, h, 5)
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 25; i++ {
		require.NoError(t, q.Send(context.Background(), Gossip{Persona: "d1", Message: "x"}))
	}

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		n, err := rm.Jobs(nil).Pending(context.Background())
		return err == nil && n == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Len(t, h.handled, 25)
}

func TestBackoff(t *testing.T) {
	assert.Zero(t, Backoff(0))
	for attempt, base := range map[int]time.Duration{1: 10 * time.Second, 2: 20 * time.Second, 4: 80 * time.Second, 9: 5 * time.Minute, 40: 5 * time.Minute} {
		d := Backoff(attempt)
		assert.GreaterOrEqual(t, d, base-base/4, "attempt %d", attempt)
		assert.LessOrEqual(t, d, base+base/4, "attempt %d", attempt)
	}
}
