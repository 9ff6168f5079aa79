package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/archive"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubArchiver struct {
	err   error
	calls []string
}

func (a *stubArchiver) Archive(_ context.Context, id string) (*archive.Result, error) {
	a.calls = append(a.calls, id)
	if a.err != nil {
		return nil, a.err
	}
	return &archive.Result{ConversationID: id}, nil
}

func newHandler(e *env, arch Archiver) *JobHandler {
	h := NewJobHandler(e.rm, e.queue, JobDeps{
		Gossip:     NewGossipService(e.rm),
		Summarizer: NewSummarizer(e.rm, e.gen, e.queue, e.log, "claude-3-5-haiku-latest"),
		Exporter:   NewExporter(e.rm, e.blobs, e.log),
		Archiver:   arch,
	}, 90, e.log)
	h.now = e.now
	return h
}

func sentOfKind[T jobs.Job](q *recordingQueue) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []T
	for _, j := range q.sent {
		if v, ok := j.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func TestJobHandler_GossipDropsUnknownPersona(t *testing.T) {
	e := newEnv(t)
	h := newHandler(e, &stubArchiver{})
	ctx := context.Background()

	require.NoError(t, h.HandleGossip(ctx, jobs.Gossip{Persona: "ghost", Message: "boo"}))
	require.NoError(t, h.HandleGossip(ctx, jobs.Gossip{Persona: "cron", Message: "tick", EventType: "heartbeat"}))

	feed, err := NewGossipService(e.rm).Feed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "Cron", feed[0].WorkerName)
	assert.Equal(t, "tick", feed[0].Message)
}

func TestJobHandler_SummarizeBatchFansOut(t *testing.T) {
	e := newEnv(t)
	e.conversation(t, "long", "Long")
	e.chat(t, "long", "a", "b", "c", "d")
	e.conversation(t, "short", "Short")
	e.chat(t, "short", "a", "b")

	h := newHandler(e, &stubArchiver{})
	require.NoError(t, h.HandleSummarizeBatch(context.Background(), jobs.SummarizeBatch{}))

	got := sentOfKind[jobs.SummarizeConversation](e.queue)
	assert.Equal(t, []jobs.SummarizeConversation{{ConversationID: "long"}}, got)
}

func TestJobHandler_ArchiveBatchPicksIdleUnpinned(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.conversation(t, "idle", "Idle")
	e.chat(t, "idle", "old news")
	e.conversation(t, "pinned", "Pinned")
	e.chat(t, "pinned", "old but loved")
	require.NoError(t, e.rm.Conversations(nil).SetPinned(ctx, "pinned", true))

	e.advance(100 * 24 * time.Hour)
	e.conversation(t, "fresh", "Fresh")
	e.chat(t, "fresh", "hot off the press")

	h := newHandler(e, &stubArchiver{})
	require.NoError(t, h.HandleArchiveBatch(ctx, jobs.ArchiveBatch{}))

	got := sentOfKind[jobs.ArchiveConversation](e.queue)
	assert.Equal(t, []jobs.ArchiveConversation{{ConversationID: "idle"}}, got)
}

func TestJobHandler_ArchiveConversationOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "archived", err: nil},
		{name: "already archived", err: common.ErrAlreadyArchived, wantErr: true},
		{name: "deleted", err: common.ErrorNotFound},
		{name: "claimed elsewhere", err: common.ErrArchiveInProgress, wantErr: true},
		{name: "storage down", err: errors.New("s3 unavailable"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			arch := &stubArchiver{err: tt.err}
			err := newHandler(e, arch).HandleArchiveConversation(context.Background(), jobs.ArchiveConversation{ConversationID: "c1"})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, []string{"c1"}, arch.calls)
		})
	}
}

func TestJobHandler_ArchiveRedeliveryFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.conversation(t, "c1", "Twice")
	e.chat(t, "c1", "one", "two")
	h := newHandler(e, archive.NewEngine(e.rm, e.blobs, e.queue, e.log, 0))

	require.NoError(t, h.HandleArchiveConversation(ctx, jobs.ArchiveConversation{ConversationID: "c1"}))
	err := h.HandleArchiveConversation(ctx, jobs.ArchiveConversation{ConversationID: "c1"})
	require.ErrorIs(t, err, common.ErrAlreadyArchived)
	assert.Equal(t, 1, e.blobs.Len())
}

func TestJobHandler_ExportOfMissingConversationIsDropped(t *testing.T) {
	e := newEnv(t)
	h := newHandler(e, &stubArchiver{})
	require.NoError(t, h.HandleExportConversation(context.Background(), jobs.ExportConversation{ConversationID: "gone", Format: "json"}))
	assert.Zero(t, e.blobs.Len())
}

func TestJobHandler_DispatchThroughEnvelope(t *testing.T) {
	e := newEnv(t)
	e.conversation(t, "c1", "Dispatch")
	e.chat(t, "c1", "one", "two")
	h := newHandler(e, &stubArchiver{})

	payload, err := jobs.Encode(jobs.ExportConversation{ConversationID: "c1", Format: "markdown"})
	require.NoError(t, err)
	j, err := jobs.Decode(payload)
	require.NoError(t, err)
	require.NoError(t, j.Accept(context.Background(), h))

	objs, err := e.blobs.List(context.Background(), "exports/c1/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
}
