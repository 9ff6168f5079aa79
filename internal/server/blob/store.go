// Package blob stores archive snapshots, exports, backups, wiki versions and
// uploaded attachments in an object store.
package blob

import (
	"context"
	"time"
)

// Object describes a stored blob.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is a flat key/value object store. Get returns common.ErrorNotFound
// for a missing key. Delete ignores missing keys.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, keys ...string) error
	// List returns objects under prefix sorted by key.
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Key layout.
func ArchiveKey(conversationID string) string {
	return "archives/" + conversationID + ".json"
}

func BackupKey(at time.Time) string {
	return "backups/db-" + Timestamp(at) + ".json"
}

func ExportKey(conversationID string, at time.Time, ext string) string {
	return "exports/" + conversationID + "/" + Timestamp(at) + "." + ext
}

func WikiVersionKey(pageID string, editedAt time.Time) string {
	return "wiki-versions/" + pageID + "/" + Timestamp(editedAt) + ".md"
}

func AttachmentKey(kind, id string) string {
	return kind + "s/" + id
}

// Timestamp formats t for use inside keys. Keys of the same prefix sort
// chronologically.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15-04-05.000Z")
}
