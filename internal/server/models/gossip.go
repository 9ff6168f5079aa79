package models

import "time"

// GossipMessage is a narrative event posted by one of the worker personas.
type GossipMessage struct {
	ID             string    `json:"id"`
	WorkerName     string    `json:"worker_name"`
	WorkerEmoji    string    `json:"worker_emoji"`
	Message        string    `json:"message"`
	EventType      *string   `json:"event_type"`
	ConversationID *string   `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Worker personas that post gossip.
const (
	PersonaStream  = "stream"
	PersonaCron    = "cron"
	PersonaD1      = "d1"
	PersonaGateway = "gateway"
)

// Persona is the display identity of a worker.
type Persona struct {
	Name  string
	Emoji string
}

// Personas maps persona keys to their display identity.
var Personas = map[string]Persona{
	PersonaStream:  {Name: "Stream", Emoji: "⚡"},
	PersonaCron:    {Name: "Cron", Emoji: "⏰"},
	PersonaD1:      {Name: "D1", Emoji: "🗄️"},
	PersonaGateway: {Name: "Gateway", Emoji: "🚪"},
}
