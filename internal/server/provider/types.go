// Package provider talks to the Anthropic Messages API in streaming mode and
// decodes its server-sent events.
package provider

import (
	"context"
	"encoding/json"
)

// Content part types.
const (
	PartText     = "text"
	PartImage    = "image"
	PartDocument = "document"
)

// Source is inline base64 data for image and document parts.
type Source struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentPart is one block of a multimodal message.
type ContentPart struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Source *Source `json:"source,omitempty"`
}

// Message is a chat turn. When Parts is empty the message is sent as plain
// text, otherwise as a content-part list.
type Message struct {
	Role  string
	Text  string
	Parts []ContentPart
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) == 0 {
		return json.Marshal(struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{m.Role, m.Text})
	}
	return json.Marshal(struct {
		Role    string        `json:"role"`
		Content []ContentPart `json:"content"`
	}{m.Role, m.Parts})
}

// Request is a streaming completion request.
type Request struct {
	Model       string
	System      string
	Temperature float64
	MaxTokens   int
	Messages    []Message
}

// Chunk kinds.
const (
	ChunkText  = "text"
	ChunkModel = "model"
)

// Chunk is one decoded piece of a completion stream.
type Chunk struct {
	Kind  string
	Text  string
	Model string
}

// Stream yields chunks until io.EOF. Close must be called.
type Stream interface {
	Next() (Chunk, error)
	Close() error
}

// Client opens completion streams. A non-2xx handshake is reported as
// *common.UpstreamError before any chunk is produced.
type Client interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}
