package models

import "time"

// Attachment kinds.
const (
	AttachmentImage = "image"
	AttachmentFile  = "file"
)

// Attachment is an uploaded image or file. MessageID stays nil until the
// upload is sent with a message; after that the row is immutable except for
// archive detaching and restore relinking it.
type Attachment struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	MessageID      *string   `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	StorageKey     string    `json:"storage_key"`
	MediaType      string    `json:"media_type"`
	OriginalName   string    `json:"original_name"`
	SizeBytes      int64     `json:"size_bytes"`
	CreatedAt      time.Time `json:"created_at"`
}
