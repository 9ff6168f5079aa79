package models

import "time"

// WikiPage is a reference page that can be injected into the preamble.
type WikiPage struct {
	ID      string
	Title   string
	Slug    string
	Content string
	Summary *string
}

// WikiVersion records a stored snapshot of a page.
type WikiVersion struct {
	PageID     string
	Version    int
	Title      string
	StorageKey string
	SizeBytes  int64
	CreatedAt  time.Time
}

// Tag is a conversation label.
type Tag struct {
	Name  string  `json:"name"`
	Color *string `json:"color"`
}
