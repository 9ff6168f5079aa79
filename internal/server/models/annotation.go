package models

import "time"

// Annotation types.
const (
	AnnotationPin       = "pin"
	AnnotationBookmark  = "bookmark"
	AnnotationHighlight = "highlight"
)

// ValidAnnotationType reports whether t is one of the known types.
func ValidAnnotationType(t string) bool {
	switch t {
	case AnnotationPin, AnnotationBookmark, AnnotationHighlight:
		return true
	}
	return false
}

// Annotation marks a message. There is at most one per message.
type Annotation struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Type           string    `json:"type"`
	Label          *string   `json:"label"`
	CreatedAt      time.Time `json:"created_at"`
}

// AnnotatedMessage is an annotation joined with its message, used for the
// preamble digest.
type AnnotatedMessage struct {
	Type    string
	Label   *string
	Role    string
	Preview string
}
