package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/blob"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
	"github.com/njarm23/ClaudeMemories/internal/server/snapshot"
	"github.com/njarm23/ClaudeMemories/internal/timex"
)

// Export formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

const exportPrefix = "exports/"

// NormalizeFormat maps a requested format to a supported one. Anything but
// "json" exports markdown.
func NormalizeFormat(f string) string {
	if strings.EqualFold(f, FormatJSON) {
		return FormatJSON
	}
	return FormatMarkdown
}

// Rendered is an export ready to be stored or downloaded.
type Rendered struct {
	Body        []byte
	ContentType string
	Filename    string
}

// StoredExport describes an export written to the blob store.
type StoredExport struct {
	Key         string `json:"key"`
	DownloadURL string `json:"download_url"`
	Format      string `json:"format"`
	Size        int    `json:"size"`
}

type Exporter struct {
	rm    repomanager.RepositoryManager
	blobs blob.Store
	log   logging.Logger
	loc   *time.Location
	now   func() time.Time
}

func NewExporter(rm repomanager.RepositoryManager, blobs blob.Store, log logging.Logger) *Exporter {
	return &Exporter{rm: rm, blobs: blobs, log: log.With("module", "export"), loc: timex.Pacific(), now: time.Now}
}

// Render builds the export of a conversation. Archived conversations are
// rendered from their snapshot.
func (e *Exporter) Render(ctx context.Context, conversationID, format string) (*Rendered, error) {
	format = NormalizeFormat(format)
	conv, err := e.rm.Conversations(e.rm.Transactor().Conn()).Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	doc, err := e.document(ctx, conv)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if format == FormatJSON {
		body, err := doc.JSON()
		if err != nil {
			return nil, err
		}
		return &Rendered{Body: body, ContentType: "application/json", Filename: blob.Timestamp(now) + ".json"}, nil
	}
	body, err := doc.Markdown(e.loc)
	if err != nil {
		return nil, err
	}
	return &Rendered{Body: body, ContentType: "text/markdown", Filename: blob.Timestamp(now) + ".md"}, nil
}

func (e *Exporter) document(ctx context.Context, conv *models.Conversation) (*snapshot.Document, error) {
	if !conv.IsArchived() || conv.ArchiveKey == nil {
		return snapshot.Collect(ctx, e.rm, e.rm.Transactor().Conn(), conv, e.now())
	}
	body, _, err := e.blobs.Get(ctx, *conv.ArchiveKey)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: archive %s missing", common.ErrStorageInconsistency, *conv.ArchiveKey)
		}
		return nil, err
	}
	doc, err := snapshot.Parse(body)
	if err != nil {
		return nil, err
	}
	doc.ExportedAt = e.now().UTC()
	return doc, nil
}

// Export renders the conversation and stores it under exports/.
func (e *Exporter) Export(ctx context.Context, conversationID, format string) (*StoredExport, error) {
	format = NormalizeFormat(format)
	r, err := e.Render(ctx, conversationID, format)
	if err != nil {
		return nil, err
	}
	key := blob.ExportKey(conversationID, e.now(), path.Ext(r.Filename)[1:])
	if err := e.blobs.Put(ctx, key, r.Body, r.ContentType); err != nil {
		return nil, fmt.Errorf("store export: %w", err)
	}
	e.log.Info(ctx, "conversation exported", "conversation_id", conversationID, "key", key, "bytes", len(r.Body))
	return &StoredExport{
		Key:         key,
		DownloadURL: "/api/exports/" + key,
		Format:      format,
		Size:        len(r.Body),
	}, nil
}

// Download fetches a stored export by key.
func (e *Exporter) Download(ctx context.Context, key string) (*Rendered, error) {
	if !strings.HasPrefix(key, exportPrefix) || strings.Contains(key, "..") {
		return nil, common.NewValidationError("key", "Invalid export path")
	}
	body, _, err := e.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	ct := "text/markdown"
	if strings.HasSuffix(key, ".json") {
		ct = "application/json"
	}
	return &Rendered{Body: body, ContentType: ct, Filename: path.Base(key)}, nil
}
