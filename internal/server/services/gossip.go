package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

// Gossip limits for the feed endpoint.
const (
	DefaultGossipLimit = 50
	MaxGossipLimit     = 100
)

// announcer enqueues gossip jobs. Failures are logged, never returned: the
// feed is best effort.
type announcer struct {
	queue jobs.Queue
	log   logging.Logger
}

func (a announcer) announce(ctx context.Context, persona, event, conversationID, msg string) {
	err := a.queue.Send(ctx, jobs.Gossip{
		Persona:        persona,
		Message:        msg,
		EventType:      event,
		ConversationID: conversationID,
	})
	if err != nil {
		a.log.Warn(ctx, "enqueue gossip", "event", event, "error", err)
	}
}

// GossipService reads and writes the worker gossip feed.
type GossipService struct {
	rm repomanager.RepositoryManager
}

func NewGossipService(rm repomanager.RepositoryManager) *GossipService {
	return &GossipService{rm: rm}
}

// Post stores a gossip line. Unknown personas are rejected.
func (s *GossipService) Post(ctx context.Context, g jobs.Gossip) error {
	p, ok := models.Personas[g.Persona]
	if !ok {
		return fmt.Errorf("unknown persona %q", g.Persona)
	}
	row := &models.GossipMessage{
		ID:          uuid.NewString(),
		WorkerName:  p.Name,
		WorkerEmoji: p.Emoji,
		Message:     g.Message,
	}
	if g.EventType != "" {
		row.EventType = &g.EventType
	}
	if g.ConversationID != "" {
		row.ConversationID = &g.ConversationID
	}
	return s.rm.Gossip(s.rm.Transactor().Conn()).Create(ctx, row)
}

// Feed returns up to limit lines, oldest first.
func (s *GossipService) Feed(ctx context.Context, limit int) ([]*models.GossipMessage, error) {
	if limit <= 0 {
		limit = DefaultGossipLimit
	}
	limit = min(limit, MaxGossipLimit)
	rows, err := s.rm.Gossip(s.rm.Transactor().Conn()).Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(rows)
	if rows == nil {
		rows = []*models.GossipMessage{}
	}
	return rows, nil
}
