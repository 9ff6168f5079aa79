package models

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a node in a conversation's message forest. A nil ParentID marks
// a root. The store does not guarantee parent pointers are acyclic or stay
// inside the conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ParentID       *string   `json:"parent_message_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// IndexEntry is one row of the full-text message index.
type IndexEntry struct {
	MessageID      string
	ConversationID string
	Role           string
	Content        string
}

// SearchHit is a ranked full-text match.
type SearchHit struct {
	MessageID         string  `json:"message_id"`
	ConversationID    string  `json:"conversation_id"`
	ConversationTitle string  `json:"conversation_title"`
	Role              string  `json:"role"`
	Snippet           string  `json:"snippet"`
	Rank              float64 `json:"rank"`
}
