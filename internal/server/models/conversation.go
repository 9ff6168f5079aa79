// Package models holds the persisted domain types shared by repositories,
// services and the HTTP API.
package models

import (
	"encoding/json"
	"time"
)

// Conversation is a chat thread. Vibes is stored as the raw JSON text the
// summarizer wrote; use ParsedVibes to read it.
type Conversation struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Model            string     `json:"model"`
	Temperature      float64    `json:"temperature"`
	SystemPrompt     string     `json:"system_prompt"`
	Summary          *string    `json:"summary"`
	Vibes            *string    `json:"-"`
	LastSummarizedAt *time.Time `json:"last_summarized_at"`
	HandoffNotes     *string    `json:"handoff_notes"`
	Pinned           bool       `json:"pinned"`
	ArchivedAt       *time.Time `json:"archived_at"`
	ArchiveKey       *string    `json:"archive_key"`
	ArchivingSince   *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsArchived reports whether the live rows have been moved to cold storage.
func (c *Conversation) IsArchived() bool {
	return c.ArchivedAt != nil
}

// ParsedVibes decodes the stored vibe tags. Malformed data yields an error
// so callers can decide whether to skip it.
func (c *Conversation) ParsedVibes() ([]string, error) {
	if c.Vibes == nil || *c.Vibes == "" {
		return nil, nil
	}
	var vibes []string
	if err := json.Unmarshal([]byte(*c.Vibes), &vibes); err != nil {
		return nil, err
	}
	return vibes, nil
}

// ConversationPatch carries the user-editable fields of a conversation.
// Nil fields are left unchanged.
type ConversationPatch struct {
	Title        *string  `json:"title"`
	Model        *string  `json:"model"`
	Temperature  *float64 `json:"temperature"`
	SystemPrompt *string  `json:"system_prompt"`
}

// ConversationStats feeds the water cooler prompt.
type ConversationStats struct {
	TotalConversations int `json:"total_convos"`
	TotalMessages      int `json:"total_messages"`
	MessagesToday      int `json:"messages_today"`
	VibedConversations int `json:"vibed_convos"`
}
