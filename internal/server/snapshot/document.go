// Package snapshot builds the portable JSON document of a conversation used
// both for archives and for exports, and renders it as markdown.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

// Version of the document layout.
const Version = 1

type Document struct {
	Version      int          `json:"version"`
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
	ExportedAt   time.Time    `json:"exported_at"`
}

type Conversation struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Model        string       `json:"model"`
	Temperature  float64      `json:"temperature"`
	SystemPrompt string       `json:"system_prompt"`
	Summary      *string      `json:"summary"`
	Vibes        []string     `json:"vibes"`
	HandoffNotes *string      `json:"handoff_notes,omitempty"`
	Pinned       bool         `json:"pinned"`
	CreatedAt    time.Time    `json:"created_at"`
	Tags         []models.Tag `json:"tags"`
}

type Message struct {
	ID         string      `json:"id"`
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	CreatedAt  time.Time   `json:"created_at"`
	ParentID   *string     `json:"parent_message_id"`
	Images     []Image     `json:"images"`
	Files      []File      `json:"files"`
	Annotation *Annotation `json:"annotation"`
}

type Image struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type File struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	SizeBytes int64  `json:"size_bytes"`
	URL       string `json:"url"`
}

type Annotation struct {
	Type  string  `json:"type"`
	Label *string `json:"label"`
}

// Collect reads every row that belongs to conv through db.
func Collect(ctx context.Context, rm repomanager.RepositoryManager, db dbx.DBTX, conv *models.Conversation, now time.Time) (*Document, error) {
	msgs, err := rm.Messages(db).List(ctx, conv.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	atts, err := rm.Attachments(db).ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	anns, err := rm.Annotations(db).ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	tags, err := rm.Tags(db).ListForConversation(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	vibes, _ := conv.ParsedVibes()
	if vibes == nil {
		vibes = []string{}
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	doc := &Document{
		Version: Version,
		Conversation: Conversation{
			ID:           conv.ID,
			Title:        conv.Title,
			Model:        conv.Model,
			Temperature:  conv.Temperature,
			SystemPrompt: conv.SystemPrompt,
			Summary:      conv.Summary,
			Vibes:        vibes,
			HandoffNotes: conv.HandoffNotes,
			Pinned:       conv.Pinned,
			CreatedAt:    conv.CreatedAt.UTC(),
			Tags:         tags,
		},
		Messages:   make([]Message, 0, len(msgs)),
		ExportedAt: now.UTC(),
	}

	byMessage := map[string]int{}
	for _, m := range msgs {
		byMessage[m.ID] = len(doc.Messages)
		doc.Messages = append(doc.Messages, Message{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC(),
			ParentID:  m.ParentID,
			Images:    []Image{},
			Files:     []File{},
		})
	}
	for _, a := range atts {
		if a.MessageID == nil {
			continue
		}
		i, ok := byMessage[*a.MessageID]
		if !ok {
			continue
		}
		if a.Kind == models.AttachmentImage {
			doc.Messages[i].Images = append(doc.Messages[i].Images, Image{
				ID: a.ID, Filename: a.OriginalName, URL: "/api/images/" + a.ID,
			})
			continue
		}
		doc.Messages[i].Files = append(doc.Messages[i].Files, File{
			ID: a.ID, Filename: a.OriginalName, MediaType: a.MediaType, SizeBytes: a.SizeBytes, URL: "/api/files/" + a.ID,
		})
	}
	for _, a := range anns {
		if i, ok := byMessage[a.MessageID]; ok {
			doc.Messages[i].Annotation = &Annotation{Type: a.Type, Label: a.Label}
		}
	}
	return doc, nil
}

// JSON renders doc indented.
func (d *Document) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Parse decodes a document and checks its version.
func Parse(b []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if d.Version != Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", d.Version)
	}
	return &d, nil
}
