package models

import "time"

// ModelObservation is the model that actually answered a request.
type ModelObservation struct {
	Model    string    `json:"model"`
	Family   string    `json:"family"`
	Provider string    `json:"provider"`
	SeenAt   time.Time `json:"seen_at"`
}

// ModelChange records a switch between two observed models.
type ModelChange struct {
	From         string    `json:"from"`
	FromFamily   string    `json:"from_family"`
	FromProvider string    `json:"from_provider"`
	To           string    `json:"to"`
	ToFamily     string    `json:"to_family"`
	ToProvider   string    `json:"to_provider"`
	ChangedAt    time.Time `json:"changed_at"`
}

// FamilyCount tallies responses per model family.
type FamilyCount struct {
	Family   string    `json:"family"`
	Provider string    `json:"provider"`
	Requests int64     `json:"requests"`
	LastSeen time.Time `json:"last_seen"`
}

// ModelStatus is the aggregate exposed by the API.
type ModelStatus struct {
	Current *ModelObservation `json:"current"`
	Counts  []FamilyCount     `json:"counts"`
	Changes []ModelChange     `json:"changes"`
}
