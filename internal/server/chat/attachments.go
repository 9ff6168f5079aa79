package chat

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/blob"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/provider"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
	"golang.org/x/sync/errgroup"
)

const (
	attachmentWindow = 5
	fetchConcurrency = 4
)

// Resolver turns context messages into provider messages, inlining the
// attachments of the most recent user messages.
type Resolver struct {
	rm    repomanager.RepositoryManager
	blobs blob.Store
	log   logging.Logger
}

func NewResolver(rm repomanager.RepositoryManager, blobs blob.Store, log logging.Logger) *Resolver {
	return &Resolver{rm: rm, blobs: blobs, log: log.With("module", "attachments")}
}

// Resolve never fails on a missing or unreadable attachment; such
// attachments are logged and left out.
func (r *Resolver) Resolve(ctx context.Context, msgs []*models.Message) []provider.Message {
	byMessage := r.load(ctx, recentUserIDs(msgs))

	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		atts, ok := byMessage[m.ID]
		if !ok {
			out = append(out, provider.Message{Role: m.Role, Text: m.Content})
			continue
		}
		parts := make([]provider.ContentPart, 0, len(atts)+1)
		for _, p := range atts {
			if p != nil {
				parts = append(parts, *p)
			}
		}
		parts = append(parts, provider.ContentPart{Type: provider.PartText, Text: m.Content})
		out = append(out, provider.Message{Role: m.Role, Parts: parts})
	}
	return out
}

func recentUserIDs(msgs []*models.Message) []string {
	var ids []string
	for i := len(msgs) - 1; i >= 0 && len(ids) < attachmentWindow; i-- {
		if msgs[i].Role == models.RoleUser {
			ids = append(ids, msgs[i].ID)
		}
	}
	return ids
}

// load fetches the attachments of the given messages concurrently. The
// result keeps, per message, images before files in stored order; dropped
// attachments leave a nil slot.
func (r *Resolver) load(ctx context.Context, messageIDs []string) map[string][]*provider.ContentPart {
	if len(messageIDs) == 0 {
		return nil
	}
	atts, err := r.rm.Attachments(r.rm.Transactor().Conn()).ListByMessages(ctx, messageIDs)
	if err != nil {
		r.log.Warn(ctx, "list attachments failed, sending text only", "error", err)
		return nil
	}

	ordered := make([]*models.Attachment, 0, len(atts))
	for _, kind := range []string{models.AttachmentImage, models.AttachmentFile} {
		for _, a := range atts {
			if a.Kind == kind && a.MessageID != nil {
				ordered = append(ordered, a)
			}
		}
	}

	parts := make([]*provider.ContentPart, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, a := range ordered {
		g.Go(func() error {
			p, err := r.part(gctx, a)
			if err != nil {
				r.log.Warn(gctx, "attachment skipped", "attachment_id", a.ID, "error", err)
				return nil
			}
			parts[i] = p
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string][]*provider.ContentPart)
	for i, a := range ordered {
		out[*a.MessageID] = append(out[*a.MessageID], parts[i])
	}
	return out
}

// part returns nil without error for types the model cannot read.
func (r *Resolver) part(ctx context.Context, a *models.Attachment) (*provider.ContentPart, error) {
	if a.Kind == models.AttachmentImage {
		if !IsImageType(a.MediaType) {
			return nil, nil
		}
		if a.SizeBytes > MaxImageSize {
			return nil, fmt.Errorf("image of %d bytes over limit", a.SizeBytes)
		}
		data, err := r.fetch(ctx, a.StorageKey, MaxImageSize)
		if err != nil {
			return nil, err
		}
		return &provider.ContentPart{Type: provider.PartImage, Source: &provider.Source{
			Type: "base64", MediaType: a.MediaType, Data: base64.StdEncoding.EncodeToString(data),
		}}, nil
	}

	ft := ClassifyFile(a.MediaType, a.OriginalName)
	if ft.Support == SupportNone {
		return nil, nil
	}
	if a.SizeBytes > ft.MaxSize {
		return nil, fmt.Errorf("file of %d bytes over limit %d", a.SizeBytes, ft.MaxSize)
	}
	data, err := r.fetch(ctx, a.StorageKey, ft.MaxSize)
	if err != nil {
		return nil, err
	}

	if ft.Support == SupportNative {
		if a.MediaType != "application/pdf" {
			return nil, nil
		}
		return &provider.ContentPart{Type: provider.PartDocument, Source: &provider.Source{
			Type: "base64", MediaType: "application/pdf", Data: base64.StdEncoding.EncodeToString(data),
		}}, nil
	}

	name := a.OriginalName
	if name == "" {
		name = "file"
	}
	return &provider.ContentPart{
		Type: provider.PartText,
		Text: fmt.Sprintf("--- File: %s ---\n%s\n--- End of %s ---", name, data, name),
	}, nil
}

func (r *Resolver) fetch(ctx context.Context, key string, limit int64) ([]byte, error) {
	data, _, err := r.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("blob %s of %d bytes over limit", key, len(data))
	}
	return data, nil
}
