package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/njarm23/ClaudeMemories/internal/common"
)

// ErrUnknownKind is returned by Decode for an envelope type this build does
// not know. Such jobs are terminal.
var ErrUnknownKind = common.ErrUnknownJobKind

// Encode renders j as a flat envelope: {"type": kind, ...fields}.
func Encode(j Job) ([]byte, error) {
	body, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", j.Kind(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", j.Kind(), err)
	}
	kind, _ := json.Marshal(j.Kind())
	fields["type"] = kind
	return json.Marshal(fields)
}

// Decode parses an envelope produced by Encode.
func Decode(payload []byte) (Job, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch head.Type {
	case KindGossip:
		return decodeAs[Gossip](payload)
	case KindSummarizeConversation:
		return decodeAs[SummarizeConversation](payload)
	case KindSummarizeBatch:
		return SummarizeBatch{}, nil
	case KindWaterCooler:
		return WaterCooler{}, nil
	case KindExportConversation:
		return decodeAs[ExportConversation](payload)
	case KindWikiSnapshot:
		return decodeAs[WikiSnapshot](payload)
	case KindDatabaseBackup:
		return DatabaseBackup{}, nil
	case KindArchiveBatch:
		return ArchiveBatch{}, nil
	case KindArchiveConversation:
		return decodeAs[ArchiveConversation](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, head.Type)
	}
}

func decodeAs[T Job](payload []byte) (Job, error) {
	var j T
	if err := json.Unmarshal(payload, &j); err != nil {
		return nil, fmt.Errorf("decode %s: %w", j.Kind(), err)
	}
	return j, nil
}
