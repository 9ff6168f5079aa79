package services

import (
	"context"
	"strings"
	"testing"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandoffWriter_Generate(t *testing.T) {
	e := newEnv(t)
	e.conversation(t, "c1", "Refactor")
	e.chat(t, "c1", strings.Repeat("y", 1500), "ok")
	e.gen.reply = "## Session Handoff Notes\n\n### What We Accomplished\n- Split the parser"

	h := NewHandoffWriter(e.rm, e.gen, e.queue, e.log, "m")
	h.now = e.now
	res, err := h.Generate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, e.gen.reply, res.Notes)
	assert.Equal(t, e.clock, res.GeneratedAt)

	req := e.gen.reqs[0]
	assert.Equal(t, 1500, req.MaxTokens)
	assert.Equal(t, 1003, len(req.Turns[0].Text))

	conv, err := e.rm.Conversations(nil).Get(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, conv.HandoffNotes)
	assert.Equal(t, e.gen.reply, *conv.HandoffNotes)

	g := e.queue.gossip()
	require.Len(t, g, 1)
	assert.Equal(t, models.PersonaD1, g[0].Persona)
	assert.Equal(t, "handoff_generated", g[0].EventType)
}

func TestHandoffWriter_Guards(t *testing.T) {
	e := newEnv(t)
	h := NewHandoffWriter(e.rm, e.gen, e.queue, e.log, "m")

	_, err := h.Generate(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)

	e.conversation(t, "c1", "Lonely")
	e.chat(t, "c1", "just one")
	_, err = h.Generate(context.Background(), "c1")
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, e.gen.reqs)
}
