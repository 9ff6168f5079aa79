package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_FlatEnvelope(t *testing.T) {
	b, err := Encode(Gossip{Persona: "stream", Message: "hi", ConversationID: "c1"})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, map[string]any{
		"type":           "gossip",
		"persona":        "stream",
		"message":        "hi",
		"conversationId": "c1",
	}, m)

	b, err = Encode(DatabaseBackup{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"database_backup"}`, string(b))
}

func TestDecode_EveryKind(t *testing.T) {
	all := []Job{
		Gossip{Persona: "d1", Message: "m", EventType: "archived"},
		SummarizeConversation{ConversationID: "c"},
		SummarizeBatch{},
		WaterCooler{},
		ExportConversation{ConversationID: "c", Format: "markdown"},
		WikiSnapshot{PageID: "p", Title: "T", Content: "body", EditedAt: "2026-01-02T03:04:05Z"},
		DatabaseBackup{},
		ArchiveBatch{},
		ArchiveConversation{ConversationID: "c"},
	}
	for _, j := range all {
		t.Run(j.Kind(), func(t *testing.T) {
			b, err := Encode(j)
			require.NoError(t, err)
			got, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, j, got)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport"}`))
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode([]byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownKind)

	_, err = Decode([]byte(`{"type":"gossip","persona":7}`))
	require.Error(t, err)
}
