package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/blob"
	"github.com/njarm23/ClaudeMemories/internal/server/chat"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

// Search limits.
const (
	MinQueryLength      = 2
	searchMessageLimit  = 20
	searchTitleLimit    = 5
	searchWikiPageLimit = 10
)

// ConversationView is a conversation as listed by the API.
type ConversationView struct {
	*models.Conversation
	Vibes []string     `json:"vibes"`
	Tags  []models.Tag `json:"tags"`
}

// AttachmentView is attachment metadata shown next to a message.
type AttachmentView struct {
	ID           string `json:"id"`
	MediaType    string `json:"media_type"`
	OriginalName string `json:"original_filename"`
	SizeBytes    int64  `json:"size_bytes"`
}

// MessageView is a message with its attachments and annotation.
type MessageView struct {
	*models.Message
	Images     []AttachmentView   `json:"images"`
	Files      []AttachmentView   `json:"files"`
	Annotation *models.Annotation `json:"annotation"`
}

// SearchResults groups title, message and wiki matches.
type SearchResults struct {
	Conversations []*models.Conversation `json:"conversations"`
	Messages      []*models.SearchHit    `json:"messages"`
	WikiPages     []*models.WikiPage     `json:"wiki_pages"`
}

// ConversationUpdate is a patch plus the handoff notes, which users may edit.
type ConversationUpdate struct {
	models.ConversationPatch
	HandoffNotes *string `json:"handoff_notes"`
}

// ConversationService covers conversation CRUD, uploads, annotations and
// search. Streaming lives in the chat package.
type ConversationService struct {
	rm    repomanager.RepositoryManager
	blobs blob.Store
	log   logging.Logger
	announcer
}

func NewConversationService(rm repomanager.RepositoryManager, blobs blob.Store, queue jobs.Queue, log logging.Logger) *ConversationService {
	log = log.With("module", "conversations")
	return &ConversationService{
		rm:        rm,
		blobs:     blobs,
		log:       log,
		announcer: announcer{queue: queue, log: log},
	}
}

func (s *ConversationService) conn() dbx.DBTX { return s.rm.Transactor().Conn() }

func validateTemperature(t *float64) error {
	if t != nil && (math.IsNaN(*t) || *t < 0 || *t > 1) {
		return common.NewValidationError("temperature", "must be between 0 and 1")
	}
	return nil
}

// Create starts a conversation, filling defaults for unset fields.
func (s *ConversationService) Create(ctx context.Context, in models.ConversationPatch) (*models.Conversation, error) {
	if err := validateTemperature(in.Temperature); err != nil {
		return nil, err
	}
	c := &models.Conversation{
		ID:          uuid.NewString(),
		Title:       common.DefaultConversationTitle,
		Model:       common.DefaultModel,
		Temperature: 1,
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) != "" {
		c.Title = strings.TrimSpace(*in.Title)
	}
	if in.Model != nil && *in.Model != "" {
		c.Model = *in.Model
	}
	if in.Temperature != nil {
		c.Temperature = *in.Temperature
	}
	if in.SystemPrompt != nil {
		c.SystemPrompt = *in.SystemPrompt
	}
	if err := s.rm.Conversations(s.conn()).Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	family, _, _ := strings.Cut(strings.TrimPrefix(c.Model, "claude-"), "-")
	s.announce(ctx, models.PersonaGateway, "new_conversation", c.ID,
		fmt.Sprintf("New conversation just walked in! %q on %s. Let's see where this goes 👀", c.Title, family))
	return c, nil
}

// List returns conversations with their tags, pinned first, then most
// recently updated.
func (s *ConversationService) List(ctx context.Context, includeArchived bool) ([]ConversationView, error) {
	convs, err := s.rm.Conversations(s.conn()).List(ctx, includeArchived)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		v, err := s.view(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *ConversationService) Get(ctx context.Context, id string) (ConversationView, error) {
	c, err := s.rm.Conversations(s.conn()).Get(ctx, id)
	if err != nil {
		return ConversationView{}, err
	}
	return s.view(ctx, c)
}

func (s *ConversationService) view(ctx context.Context, c *models.Conversation) (ConversationView, error) {
	tags, err := s.rm.Tags(s.conn()).ListForConversation(ctx, c.ID)
	if err != nil {
		return ConversationView{}, err
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	vibes, err := c.ParsedVibes()
	if err != nil {
		s.log.Warn(ctx, "malformed vibes", "conversation_id", c.ID, "error", err)
	}
	if vibes == nil {
		vibes = []string{}
	}
	return ConversationView{Conversation: c, Vibes: vibes, Tags: tags}, nil
}

// Update applies a partial update. An empty update is a validation error.
func (s *ConversationService) Update(ctx context.Context, id string, in ConversationUpdate) error {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		in.Title = nil
	}
	if in.Model != nil && *in.Model == "" {
		in.Model = nil
	}
	if in.Title == nil && in.Model == nil && in.Temperature == nil && in.SystemPrompt == nil && in.HandoffNotes == nil {
		return common.NewValidationError("", "Nothing to update")
	}
	if err := validateTemperature(in.Temperature); err != nil {
		return err
	}
	return s.rm.Transactor().InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Conversations(tx)
		if err := repo.Update(ctx, id, in.ConversationPatch); err != nil {
			return err
		}
		if in.HandoffNotes != nil {
			return repo.SetHandoffNotes(ctx, id, *in.HandoffNotes)
		}
		return nil
	})
}

// Delete removes the conversation with every row and blob that belongs to
// it, including uploads that were never sent.
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	atts, err := s.rm.Attachments(s.conn()).ListByConversation(ctx, id)
	if err != nil {
		return err
	}
	err = s.rm.Transactor().InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.rm.Search(tx).DeleteByConversation(ctx, id); err != nil {
			return fmt.Errorf("delete index entries: %w", err)
		}
		return s.rm.Conversations(tx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	if len(atts) > 0 {
		keys := make([]string, 0, len(atts))
		for _, a := range atts {
			keys = append(keys, a.StorageKey)
		}
		if err := s.blobs.Delete(ctx, keys...); err != nil {
			s.log.Warn(ctx, "delete attachment blobs", "conversation_id", id, "count", len(keys), "error", err)
		}
	}

	s.announce(ctx, models.PersonaD1, "conversation_deleted", "",
		"Another conversation just got wiped. All those carefully indexed rows... gone. I'm fine. 🥲")
	return nil
}

// SetPinned pins or unpins. Pinned conversations are never auto-archived.
func (s *ConversationService) SetPinned(ctx context.Context, id string, pinned bool) error {
	return s.rm.Conversations(s.conn()).SetPinned(ctx, id, pinned)
}

// Messages lists the conversation's messages oldest first with their linked
// attachments and annotation.
func (s *ConversationService) Messages(ctx context.Context, conversationID string) ([]MessageView, error) {
	if _, err := s.rm.Conversations(s.conn()).Get(ctx, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.rm.Messages(s.conn()).List(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}
	atts, err := s.rm.Attachments(s.conn()).ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	anns, err := s.rm.Annotations(s.conn()).ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	out := make([]MessageView, 0, len(msgs))
	index := make(map[string]int, len(msgs))
	for _, m := range msgs {
		index[m.ID] = len(out)
		out = append(out, MessageView{Message: m, Images: []AttachmentView{}, Files: []AttachmentView{}})
	}
	for _, a := range atts {
		if a.MessageID == nil {
			continue
		}
		i, ok := index[*a.MessageID]
		if !ok {
			continue
		}
		v := AttachmentView{ID: a.ID, MediaType: a.MediaType, OriginalName: a.OriginalName, SizeBytes: a.SizeBytes}
		if a.Kind == models.AttachmentImage {
			out[i].Images = append(out[i].Images, v)
		} else {
			out[i].Files = append(out[i].Files, v)
		}
	}
	for _, a := range anns {
		if i, ok := index[a.MessageID]; ok {
			out[i].Annotation = a
		}
	}
	return out, nil
}

// Annotate sets the single annotation of a message.
func (s *ConversationService) Annotate(ctx context.Context, messageID, typ string, label *string) (*models.Annotation, error) {
	if !models.ValidAnnotationType(typ) {
		return nil, common.NewValidationError("type", "must be one of pin, bookmark, highlight")
	}
	if label != nil && strings.TrimSpace(*label) == "" {
		label = nil
	}
	msg, err := s.rm.Messages(s.conn()).Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	a := &models.Annotation{
		ID:             uuid.NewString(),
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Type:           typ,
		Label:          label,
	}
	if err := s.rm.Annotations(s.conn()).Upsert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *ConversationService) Unannotate(ctx context.Context, messageID string) error {
	return s.rm.Annotations(s.conn()).Delete(ctx, messageID)
}

// UploadImage stores an image upload. It stays unlinked until sent with a
// message.
func (s *ConversationService) UploadImage(ctx context.Context, conversationID, name, mediaType string, body []byte) (*models.Attachment, error) {
	if !chat.IsImageType(mediaType) {
		return nil, common.NewValidationError("file", fmt.Sprintf("Unsupported image type: %s. Use PNG, JPEG, GIF, or WebP.", mediaType))
	}
	if len(body) > chat.MaxImageSize {
		return nil, common.NewValidationError("file", fmt.Sprintf("Image too large (%.1fMB). Max 5MB.", megabytes(int64(len(body)))))
	}
	a, err := s.upload(ctx, models.AttachmentImage, conversationID, name, mediaType, body)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, models.PersonaGateway, "image_uploaded", conversationID,
		fmt.Sprintf("Someone just uploaded a %.0fKB image! Stream, time to flex those vision muscles 👁️🖼️", float64(len(body))/1024))
	return a, nil
}

// UploadFile stores a document upload after checking its size limit.
func (s *ConversationService) UploadFile(ctx context.Context, conversationID, name, mediaType string, body []byte) (*models.Attachment, chat.FileSupport, error) {
	if chat.IsImageType(mediaType) {
		return nil, "", common.NewValidationError("file", "Use the images endpoint for image files")
	}
	ft := chat.ClassifyFile(mediaType, name)
	if int64(len(body)) > ft.MaxSize {
		return nil, "", common.NewValidationError("file", fmt.Sprintf("File too large (%.1fMB). Max %.0fMB for this type.", megabytes(int64(len(body))), megabytes(ft.MaxSize)))
	}
	a, err := s.upload(ctx, models.AttachmentFile, conversationID, name, mediaType, body)
	if err != nil {
		return nil, "", err
	}
	note := "Stored for safekeeping 📦"
	if ft.Support != chat.SupportNone {
		note = "Claude can read this one 📄"
	}
	display := name
	if display == "" {
		display = "unnamed"
	}
	s.announce(ctx, models.PersonaGateway, "file_uploaded", conversationID,
		fmt.Sprintf("File incoming! %s (%.0fKB). %s", display, float64(len(body))/1024, note))
	return a, ft.Support, nil
}

func (s *ConversationService) upload(ctx context.Context, kind, conversationID, name, mediaType string, body []byte) (*models.Attachment, error) {
	conv, err := s.rm.Conversations(s.conn()).Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.IsArchived() {
		return nil, common.ErrAlreadyArchived
	}
	if len(body) == 0 {
		return nil, common.NewValidationError("file", "No file provided")
	}

	id := uuid.NewString()
	a := &models.Attachment{
		ID:             id,
		Kind:           kind,
		ConversationID: conversationID,
		StorageKey:     blob.AttachmentKey(kind, id),
		MediaType:      mediaType,
		OriginalName:   name,
		SizeBytes:      int64(len(body)),
	}
	if err := s.blobs.Put(ctx, a.StorageKey, body, mediaType); err != nil {
		return nil, fmt.Errorf("store %s: %w", kind, err)
	}
	if err := s.rm.Attachments(s.conn()).Create(ctx, a); err != nil {
		if derr := s.blobs.Delete(ctx, a.StorageKey); derr != nil {
			s.log.Warn(ctx, "delete orphaned upload", "key", a.StorageKey, "error", derr)
		}
		return nil, fmt.Errorf("record %s: %w", kind, err)
	}
	return a, nil
}

// Attachment returns an upload and its bytes. kind guards against serving a
// file through the image route and the other way around.
func (s *ConversationService) Attachment(ctx context.Context, kind, id string) (*models.Attachment, []byte, error) {
	a, err := s.rm.Attachments(s.conn()).Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if a.Kind != kind {
		return nil, nil, common.ErrorNotFound
	}
	body, _, err := s.blobs.Get(ctx, a.StorageKey)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, fmt.Errorf("%w: %s missing from storage", common.ErrorNotFound, kind)
		}
		return nil, nil, err
	}
	return a, body, nil
}

// Search matches conversation titles, messages and wiki pages.
func (s *ConversationService) Search(ctx context.Context, q, conversationID string) (*SearchResults, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < MinQueryLength {
		return nil, common.NewValidationError("q", "Query must be at least 2 characters")
	}

	convs, err := s.rm.Conversations(s.conn()).List(ctx, true)
	if err != nil {
		return nil, err
	}
	res := &SearchResults{Conversations: []*models.Conversation{}, WikiPages: []*models.WikiPage{}}
	needle := strings.ToLower(q)
	for _, c := range convs {
		if len(res.Conversations) == searchTitleLimit {
			break
		}
		if strings.Contains(strings.ToLower(c.Title), needle) {
			res.Conversations = append(res.Conversations, c)
		}
	}

	res.Messages, err = s.rm.Search(s.conn()).Search(ctx, q, conversationID, searchMessageLimit)
	if err != nil {
		return nil, err
	}
	if res.Messages == nil {
		res.Messages = []*models.SearchHit{}
	}

	pages, err := s.rm.Wiki(s.conn()).Search(ctx, q, nil, searchWikiPageLimit)
	if err != nil {
		s.log.Warn(ctx, "wiki search", "error", err)
	} else if pages != nil {
		res.WikiPages = pages
	}
	return res, nil
}

func megabytes(n int64) float64 {
	return float64(n) / (1 << 20)
}
