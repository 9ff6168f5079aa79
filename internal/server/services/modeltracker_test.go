package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelFamilyAndProvider(t *testing.T) {
	tests := []struct {
		model, family, provider string
	}{
		{"claude-sonnet-4-20250514", "sonnet", "anthropic"},
		{"claude-opus-4-6", "opus", "anthropic"},
		{"claude-3-5-haiku-latest", "haiku", "anthropic"},
		{"gpt-4o-2024-08-06", "gpt-4o", "openai"},
		{"o3-mini", "o3-mini", "openai"},
		{"gemini-2.0-flash", "gemini-2.0-flash", "google"},
		{"deepseek-chat", "deepseek-chat", "deepseek"},
		{"mystery", "mystery", "unknown"},
		{"", "unknown", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.family, ModelFamily(tt.model))
			assert.Equal(t, tt.provider, ModelProvider(tt.model))
		})
	}
}

func TestModelTracker_RecordAndStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := NewModelTracker(e.rm, e.log)
	tr.now = e.now

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Current)
	assert.Empty(t, st.Changes)

	for _, m := range []string{"claude-sonnet-4-20250514", "claude-sonnet-4-20250514", "claude-opus-4-6"} {
		require.NoError(t, tr.Record(ctx, m))
		e.advance(time.Minute)
	}

	st, err = tr.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Current)
	assert.Equal(t, "claude-opus-4-6", st.Current.Model)
	assert.Equal(t, "opus", st.Current.Family)

	counts := map[string]int64{}
	for _, c := range st.Counts {
		counts[c.Family] = c.Requests
	}
	assert.Equal(t, map[string]int64{"sonnet": 2, "opus": 1}, counts)

	require.Len(t, st.Changes, 1)
	assert.Equal(t, "sonnet", st.Changes[0].FromFamily)
	assert.Equal(t, "opus", st.Changes[0].ToFamily)
}
