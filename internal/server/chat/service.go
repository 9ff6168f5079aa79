package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

// SendInput is a new user message. ParentID defaults to the latest message
// of the conversation.
type SendInput struct {
	ConversationID string
	Content        string
	ParentID       string
	ImageIDs       []string
	FileIDs        []string
}

// Service orchestrates sending and regenerating messages.
type Service struct {
	rm       repomanager.RepositoryManager
	resolver *Resolver
	preamble *PreambleBuilder
	relay    *Relay
	log      logging.Logger
	newID    func() string
}

func NewService(rm repomanager.RepositoryManager, resolver *Resolver, preamble *PreambleBuilder, relay *Relay, log logging.Logger) *Service {
	return &Service{
		rm:       rm,
		resolver: resolver,
		preamble: preamble,
		relay:    relay,
		log:      log.With("module", "chat"),
		newID:    uuid.NewString,
	}
}

// Send stores the user message and starts streaming the reply.
func (s *Service) Send(ctx context.Context, in SendInput) (*Session, *models.Message, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, nil, common.NewValidationError("content", "Message content is required")
	}
	conv, err := s.conversation(ctx, in.ConversationID)
	if err != nil {
		return nil, nil, err
	}

	user := &models.Message{
		ID:             s.newID(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        in.Content,
	}
	err = s.rm.Transactor().InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		parent := in.ParentID
		if parent == "" {
			latest, err := s.rm.Messages(tx).Latest(ctx, conv.ID)
			switch {
			case err == nil:
				parent = latest.ID
			case !errors.Is(err, common.ErrorNotFound):
				return err
			}
		}
		if parent != "" {
			user.ParentID = &parent
		}

		if err := s.rm.Messages(tx).Create(ctx, user); err != nil {
			return err
		}
		if err := s.rm.Search(tx).Upsert(ctx, models.IndexEntry{
			MessageID: user.ID, ConversationID: conv.ID, Role: user.Role, Content: user.Content,
		}); err != nil {
			return err
		}
		if ids := slices.Concat(in.ImageIDs, in.FileIDs); len(ids) > 0 {
			n, err := s.rm.Attachments(tx).Link(ctx, conv.ID, user.ID, ids)
			if err != nil {
				return err
			}
			if int(n) != len(ids) {
				s.log.Warn(ctx, "some attachments were not linked", "requested", len(ids), "linked", n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("store user message: %w", err)
	}

	sess, err := s.stream(ctx, conv, user, true)
	if err != nil {
		return nil, user, err
	}
	return sess, user, nil
}

// Regenerate streams a new sibling of messageID, answering the same user
// message. Auto-titling is not applied.
func (s *Service) Regenerate(ctx context.Context, conversationID, messageID string) (*Session, error) {
	if messageID == "" {
		return nil, common.NewValidationError("message_id", "message_id is required")
	}
	msgs := s.rm.Messages(s.rm.Transactor().Conn())

	target, err := msgs.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if target.ConversationID != conversationID {
		return nil, common.ErrorNotFound
	}
	if target.ParentID == nil {
		return nil, common.NewValidationError("message_id", "Cannot regenerate root message")
	}
	user, err := msgs.Get(ctx, *target.ParentID)
	if err != nil {
		return nil, err
	}
	if user.ConversationID != conversationID {
		return nil, common.ErrorNotFound
	}
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.stream(ctx, conv, user, false)
}

func (s *Service) conversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := s.rm.Conversations(s.rm.Transactor().Conn()).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.IsArchived() {
		return nil, common.ErrAlreadyArchived
	}
	return conv, nil
}

func (s *Service) stream(ctx context.Context, conv *models.Conversation, trigger *models.Message, autoTitle bool) (*Session, error) {
	chain, err := AncestorChain(ctx, s.rm, conv.ID, trigger.ID, DefaultMaxDepth)
	if err != nil {
		return nil, err
	}
	req := StreamRequest{
		Conversation:  conv,
		ParentID:      trigger.ID,
		Messages:      s.resolver.Resolve(ctx, chain),
		System:        s.preamble.Build(ctx, conv, trigger.Content),
		ContextLength: len(chain),
	}
	if autoTitle {
		req.AutoTitle = trigger.Content
	}
	return s.relay.Start(ctx, req)
}
