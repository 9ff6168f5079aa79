package blob

import (
	"context"
	"testing"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "exports/c1/b.md", []byte("b"), "text/markdown"))
	require.NoError(t, m.Put(ctx, "exports/c1/a.md", []byte("aa"), "text/markdown"))
	require.NoError(t, m.Put(ctx, "backups/x.json", []byte("{}"), "application/json"))

	objs, err := m.List(ctx, "exports/c1/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "exports/c1/a.md", objs[0].Key)
	assert.Equal(t, int64(2), objs[0].Size)

	body, ct, err := m.Get(ctx, "backups/x.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
	assert.Equal(t, "application/json", ct)

	require.NoError(t, m.Delete(ctx, "backups/x.json", "never-existed"))
	_, _, err = m.Get(ctx, "backups/x.json")
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, 2, m.Len())
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, NewMemoryStore().Put(ctx, "k", nil, ""), context.Canceled)
}

func TestKeys(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	assert.Equal(t, "archives/c1.json", ArchiveKey("c1"))
	assert.Equal(t, "backups/db-2025-03-04T05-06-07.008Z.json", BackupKey(at))
	assert.Equal(t, "exports/c1/2025-03-04T05-06-07.008Z.md", ExportKey("c1", at, "md"))
	assert.Equal(t, "wiki-versions/w1/2025-03-04T05-06-07.008Z.md", WikiVersionKey("w1", at))
	assert.Equal(t, "images/a1", AttachmentKey("image", "a1"))
}
