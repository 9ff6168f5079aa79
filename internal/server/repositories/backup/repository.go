package backup

import (
	"context"
	"encoding/json"
)

// Tables lists the tables included in a database backup, in restore order.
var Tables = []string{
	"conversations",
	"messages",
	"attachments",
	"message_annotations",
	"tags",
	"conversation_tags",
	"wiki_pages",
	"conversation_wiki_pins",
	"wiki_versions",
	"gossip_messages",
}

// Dumper exports table contents as JSON arrays keyed by table name.
type Dumper interface {
	Dump(ctx context.Context) (map[string]json.RawMessage, error)
}
