package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/backup"
)

type dumper struct{ s *Store }

type pinRow struct {
	ConversationID string `json:"conversation_id"`
	PageID         string `json:"page_id"`
}

type tagRow struct {
	ConversationID string `json:"conversation_id"`
	models.Tag
}

// Dump renders the same table set as the Postgres dumper. Rows are plain
// model values rather than row_to_json output, so column names follow the
// models' JSON tags.
func (d dumper) Dump(_ context.Context) (map[string]json.RawMessage, error) {
	tables := map[string]any{}
	d.s.read(func(st *state, _ time.Time) {
		var msgs []models.Message
		for _, id := range sortedKeys(st.messages) {
			msgs = append(msgs, st.messages[id].Message)
		}
		var pins []pinRow
		for _, cid := range sortedKeys(st.wikiPins) {
			for _, pid := range st.wikiPins[cid] {
				pins = append(pins, pinRow{ConversationID: cid, PageID: pid})
			}
		}
		var convTags []tagRow
		var allTags []models.Tag
		for _, cid := range sortedKeys(st.tags) {
			for _, t := range st.tags[cid] {
				convTags = append(convTags, tagRow{ConversationID: cid, Tag: t})
				allTags = append(allTags, t)
			}
		}
		var versions []models.WikiVersion
		for _, pid := range sortedKeys(st.versions) {
			versions = append(versions, st.versions[pid]...)
		}

		tables["conversations"] = values(st.conversations)
		tables["messages"] = msgs
		tables["attachments"] = values(st.attachments)
		tables["message_annotations"] = values(st.annotations)
		tables["tags"] = allTags
		tables["conversation_tags"] = convTags
		tables["wiki_pages"] = values(st.wiki)
		tables["conversation_wiki_pins"] = pins
		tables["wiki_versions"] = versions
		tables["gossip_messages"] = slices.Clone(st.gossip)
	})

	out := make(map[string]json.RawMessage, len(backup.Tables))
	for _, table := range backup.Tables {
		rows := tables[table]
		b, err := json.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("dump %s: %w", table, err)
		}
		if string(b) == "null" {
			b = []byte("[]")
		}
		out[table] = b
	}
	return out, nil
}

func values[V any](m map[string]V) []V {
	out := make([]V, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, m[k])
	}
	return out
}
