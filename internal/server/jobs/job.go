// Package jobs defines the background job variants, their wire envelope, the
// durable queue, the consumer loop and the periodic scheduler.
package jobs

import "context"

// Job kinds as they appear in the envelope "type" field.
const (
	KindGossip                = "gossip"
	KindSummarizeConversation = "summarize_conversation"
	KindSummarizeBatch        = "summarize_batch"
	KindWaterCooler           = "water_cooler"
	KindExportConversation    = "export_conversation"
	KindWikiSnapshot          = "wiki_snapshot"
	KindDatabaseBackup        = "database_backup"
	KindArchiveBatch          = "archive_batch"
	KindArchiveConversation   = "archive_conversation"
)

// Job is one of the variants declared in this package.
type Job interface {
	Kind() string
	// Accept dispatches the job to the matching Handler method.
	Accept(ctx context.Context, h Handler) error
	sealed()
}

// Handler has one method per job kind, so a new kind does not compile until
// every handler covers it.
type Handler interface {
	HandleGossip(ctx context.Context, j Gossip) error
	HandleSummarizeConversation(ctx context.Context, j SummarizeConversation) error
	HandleSummarizeBatch(ctx context.Context, j SummarizeBatch) error
	HandleWaterCooler(ctx context.Context, j WaterCooler) error
	HandleExportConversation(ctx context.Context, j ExportConversation) error
	HandleWikiSnapshot(ctx context.Context, j WikiSnapshot) error
	HandleDatabaseBackup(ctx context.Context, j DatabaseBackup) error
	HandleArchiveBatch(ctx context.Context, j ArchiveBatch) error
	HandleArchiveConversation(ctx context.Context, j ArchiveConversation) error
}

// Gossip posts a narrative event on behalf of a worker persona.
type Gossip struct {
	Persona        string `json:"persona"`
	Message        string `json:"message"`
	EventType      string `json:"eventType,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

type SummarizeConversation struct {
	ConversationID string `json:"conversationId"`
}

type SummarizeBatch struct{}

type WaterCooler struct{}

// ExportConversation renders a conversation into blob storage. Format is
// "markdown" or "json".
type ExportConversation struct {
	ConversationID string `json:"conversationId"`
	Format         string `json:"format"`
}

// WikiSnapshot stores one version of a wiki page. EditedAt is RFC 3339.
type WikiSnapshot struct {
	PageID   string `json:"pageId"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	EditedAt string `json:"editedAt"`
}

type DatabaseBackup struct{}

type ArchiveBatch struct{}

type ArchiveConversation struct {
	ConversationID string `json:"conversationId"`
}

func (Gossip) Kind() string                { return KindGossip }
func (SummarizeConversation) Kind() string { return KindSummarizeConversation }
func (SummarizeBatch) Kind() string        { return KindSummarizeBatch }
func (WaterCooler) Kind() string           { return KindWaterCooler }
func (ExportConversation) Kind() string    { return KindExportConversation }
func (WikiSnapshot) Kind() string          { return KindWikiSnapshot }
func (DatabaseBackup) Kind() string        { return KindDatabaseBackup }
func (ArchiveBatch) Kind() string          { return KindArchiveBatch }
func (ArchiveConversation) Kind() string   { return KindArchiveConversation }

func (j Gossip) Accept(ctx context.Context, h Handler) error { return h.HandleGossip(ctx, j) }
func (j SummarizeConversation) Accept(ctx context.Context, h Handler) error {
	return h.HandleSummarizeConversation(ctx, j)
}
func (j SummarizeBatch) Accept(ctx context.Context, h Handler) error {
	return h.HandleSummarizeBatch(ctx, j)
}
func (j WaterCooler) Accept(ctx context.Context, h Handler) error { return h.HandleWaterCooler(ctx, j) }
func (j ExportConversation) Accept(ctx context.Context, h Handler) error {
	return h.HandleExportConversation(ctx, j)
}
func (j WikiSnapshot) Accept(ctx context.Context, h Handler) error { return h.HandleWikiSnapshot(ctx, j) }
func (j DatabaseBackup) Accept(ctx context.Context, h Handler) error {
	return h.HandleDatabaseBackup(ctx, j)
}
func (j ArchiveBatch) Accept(ctx context.Context, h Handler) error { return h.HandleArchiveBatch(ctx, j) }
func (j ArchiveConversation) Accept(ctx context.Context, h Handler) error {
	return h.HandleArchiveConversation(ctx, j)
}

func (Gossip) sealed()                {}
func (SummarizeConversation) sealed() {}
func (SummarizeBatch) sealed()        {}
func (WaterCooler) sealed()           {}
func (ExportConversation) sealed()    {}
func (WikiSnapshot) sealed()          {}
func (DatabaseBackup) sealed()        {}
func (ArchiveBatch) sealed()          {}
func (ArchiveConversation) sealed()   {}
