package services

import (
	"context"
	"fmt"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/llm"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

const (
	handoffMinMessages = 2
	handoffMaxMessages = 200
	handoffMaxChars    = 1000
	handoffMaxTokens   = 1500
	handoffTemperature = 0.3
)

// Handoff is the briefing stored for the next context window.
type Handoff struct {
	Notes       string    `json:"handoff_notes"`
	GeneratedAt time.Time `json:"handoff_generated_at"`
}

type HandoffWriter struct {
	rm    repomanager.RepositoryManager
	gen   llm.Generator
	model string
	log   logging.Logger
	now   func() time.Time
	announcer
}

func NewHandoffWriter(rm repomanager.RepositoryManager, gen llm.Generator, queue jobs.Queue, log logging.Logger, model string) *HandoffWriter {
	log = log.With("module", "handoff")
	return &HandoffWriter{rm: rm, gen: gen, model: model, log: log, now: time.Now, announcer: announcer{queue: queue, log: log}}
}

// Generate writes handoff notes from the conversation so far and stores them
// on the conversation, replacing earlier notes.
func (h *HandoffWriter) Generate(ctx context.Context, conversationID string) (*Handoff, error) {
	conn := h.rm.Transactor().Conn()
	if _, err := h.rm.Conversations(conn).Get(ctx, conversationID); err != nil {
		return nil, err
	}
	msgs, err := h.rm.Messages(conn).List(ctx, conversationID, handoffMaxMessages)
	if err != nil {
		return nil, err
	}
	if len(msgs) < handoffMinMessages {
		return nil, common.NewValidationError("", "Need at least a couple messages to generate handoff notes")
	}

	notes, err := h.gen.Generate(ctx, llm.Request{
		Model:       h.model,
		System:      handoffPrompt,
		Turns:       turns(msgs, handoffMaxChars),
		Temperature: handoffTemperature,
		MaxTokens:   handoffMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate handoff notes: %w", err)
	}

	if err := h.rm.Conversations(conn).SetHandoffNotes(ctx, conversationID, notes); err != nil {
		return nil, err
	}
	h.log.Info(ctx, "handoff notes generated", "conversation_id", conversationID, "messages", len(msgs), "chars", len(notes))

	h.announce(ctx, models.PersonaD1, "handoff_generated", conversationID,
		"Someone just generated handoff notes. Shift change incoming. Hope the next instance appreciates my indexes as much as this one did 📋")
	return &Handoff{Notes: notes, GeneratedAt: h.now().UTC()}, nil
}
