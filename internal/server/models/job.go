package models

import "time"

// QueuedJob is a job envelope as stored by the queue. Attempts counts
// deliveries including the current one.
type QueuedJob struct {
	ID        string
	Kind      string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// DeadJob is a job that exhausted its attempts.
type DeadJob struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	Attempts  int       `json:"attempts"`
	LastError *string   `json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
	DiedAt    time.Time `json:"died_at"`
}
