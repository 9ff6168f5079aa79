package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizer_SkipsShortConversations(t *testing.T) {
	e := newEnv(t)
	e.conversation(t, "c1", "Short")
	e.chat(t, "c1", "hi", "hello", "bye")

	s := NewSummarizer(e.rm, e.gen, e.queue, e.log, "claude-sonnet-4-20250514")
	sum, err := s.Summarize(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, sum)
	assert.Empty(t, e.gen.reqs)
}

func TestSummarizer_StoresSummaryAndVibes(t *testing.T) {
	e := newEnv(t)
	e.conversation(t, "c1", "Debugging")
	long := strings.Repeat("x", 800)
	e.chat(t, "c1", long, "answer", "follow up", "done")
	e.gen.reply = "```json\n{\"summary\":\"Fixed a flaky test.\",\"vibes\":[\"technical\",\"chaotic\"]}\n```"

	s := NewSummarizer(e.rm, e.gen, e.queue, e.log, "claude-sonnet-4-20250514")
	sum, err := s.Summarize(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, "Fixed a flaky test.", sum.Summary)

	require.Len(t, e.gen.reqs, 1)
	req := e.gen.reqs[0]
	assert.Equal(t, 0.3, req.Temperature)
	assert.Equal(t, 300, req.MaxTokens)
	require.Len(t, req.Turns, 4)
	assert.Equal(t, strings.Repeat("x", 500)+"...", req.Turns[0].Text)
	assert.Equal(t, models.RoleAssistant, req.Turns[1].Role)

	conv, err := e.rm.Conversations(nil).Get(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, conv.Summary)
	assert.Equal(t, "Fixed a flaky test.", *conv.Summary)
	vibes, err := conv.ParsedVibes()
	require.NoError(t, err)
	assert.Equal(t, []string{"technical", "chaotic"}, vibes)
	assert.NotNil(t, conv.LastSummarizedAt)

	g := e.queue.gossip()
	require.Len(t, g, 1)
	assert.Equal(t, models.PersonaCron, g[0].Persona)
	assert.Equal(t, "vibes_tagged", g[0].EventType)
	assert.Contains(t, g[0].Message, "[technical, chaotic]")
	assert.Contains(t, g[0].Message, "What a wild ride")
}

func TestSummarizer_UnparseableAnswerIsSkipped(t *testing.T) {
	e := newEnv(t)
	e.conversation(t, "c1", "Chat")
	e.chat(t, "c1", "a", "b", "c", "d")
	e.gen.reply = "Sure! Here is a summary of the conversation."

	s := NewSummarizer(e.rm, e.gen, e.queue, e.log, "m")
	sum, err := s.Summarize(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, sum)

	conv, err := e.rm.Conversations(nil).Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, conv.Summary)
	assert.Empty(t, e.queue.sent)
}

func TestSummarizer_GeneratorErrorIsReturned(t *testing.T) {
	e := newEnv(t)
	e.conversation(t, "c1", "Chat")
	e.chat(t, "c1", "a", "b", "c", "d")
	e.gen.err = errors.New("overloaded")

	s := NewSummarizer(e.rm, e.gen, e.queue, e.log, "m")
	_, err := s.Summarize(context.Background(), "c1")
	require.ErrorContains(t, err, "overloaded")
}
