package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/llm"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

// Summarization tuning.
const (
	SummaryMinMessages = 4
	summaryMaxMessages = 50
	summaryMaxChars    = 500
	summaryMaxTokens   = 300
	summaryTemperature = 0.3
	SummaryBatchLimit  = 20
)

// Summary is the model's verdict on a conversation.
type Summary struct {
	Summary string   `json:"summary"`
	Vibes   []string `json:"vibes"`
}

type Summarizer struct {
	rm    repomanager.RepositoryManager
	gen   llm.Generator
	model string
	log   logging.Logger
	announcer
}

func NewSummarizer(rm repomanager.RepositoryManager, gen llm.Generator, queue jobs.Queue, log logging.Logger, model string) *Summarizer {
	log = log.With("module", "summarizer")
	return &Summarizer{rm: rm, gen: gen, model: model, log: log, announcer: announcer{queue: queue, log: log}}
}

// Summarize stores a summary and vibe tags for the conversation. Short
// conversations and unparseable answers are skipped and yield nil.
func (s *Summarizer) Summarize(ctx context.Context, conversationID string) (*Summary, error) {
	conn := s.rm.Transactor().Conn()
	msgs, err := s.rm.Messages(conn).List(ctx, conversationID, summaryMaxMessages)
	if err != nil {
		return nil, err
	}
	if len(msgs) < SummaryMinMessages {
		return nil, nil
	}

	text, err := s.gen.Generate(ctx, llm.Request{
		Model:       s.model,
		System:      summaryPrompt,
		Turns:       turns(msgs, summaryMaxChars),
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", conversationID, err)
	}

	var sum Summary
	if err := json.Unmarshal([]byte(stripFences(text)), &sum); err != nil {
		s.log.Warn(ctx, "unparseable summary", "conversation_id", conversationID, "response", clip(text, 200))
		return nil, nil
	}
	if sum.Summary == "" || sum.Vibes == nil {
		s.log.Warn(ctx, "invalid summary structure", "conversation_id", conversationID)
		return nil, nil
	}

	vibes, err := json.Marshal(sum.Vibes)
	if err != nil {
		return nil, err
	}
	if err := s.rm.Conversations(conn).SetSummary(ctx, conversationID, sum.Summary, string(vibes)); err != nil {
		return nil, err
	}

	reaction := "Interesting combo 🤔"
	switch {
	case slices.Contains(sum.Vibes, "chaotic"):
		reaction = "What a wild ride 🎢"
	case slices.Contains(sum.Vibes, "wholesome"):
		reaction = "My heart 🥺"
	}
	s.announce(ctx, models.PersonaCron, "vibes_tagged", conversationID,
		fmt.Sprintf("Just finished reading a conversation and tagged it [%s]. %s", strings.Join(sum.Vibes, ", "), reaction))
	return &sum, nil
}
