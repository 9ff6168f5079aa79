package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4-20250514"}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}

event: content_block_delta
data: not json

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}

event: message_stop
data: {"type":"message_stop"}

`

func TestStream_DecodesChunks(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sampleStream)
	}))
	defer srv.Close()

	c := NewAnthropicClient("key", srv.URL, srv.Client())
	s, err := c.Stream(context.Background(), Request{
		Model:       "claude-sonnet-4-20250514",
		System:      "be brief",
		Temperature: 0.5,
		Messages: []Message{
			{Role: "user", Text: "hi"},
			{Role: "user", Parts: []ContentPart{{Type: PartText, Text: "look"}}},
		},
	})
	require.NoError(t, err)
	defer s.Close()

	var chunks []Chunk
	for {
		ch, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, ch)
	}

	assert.Equal(t, []Chunk{
		{Kind: ChunkModel, Model: "claude-sonnet-4-20250514"},
		{Kind: ChunkText, Text: "Hel"},
		{Kind: ChunkText, Text: "lo"},
	}, chunks)

	assert.Equal(t, true, gotBody["stream"])
	assert.Equal(t, float64(DefaultMaxTokens), gotBody["max_tokens"])
	assert.Equal(t, "be brief", gotBody["system"])
	msgs := gotBody["messages"].([]any)
	assert.Equal(t, "hi", msgs[0].(map[string]any)["content"])
	assert.IsType(t, []any{}, msgs[1].(map[string]any)["content"])
}

func TestStream_OmitsEmptySystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.NotContains(t, string(b), `"system"`)
	}))
	defer srv.Close()

	s, err := NewAnthropicClient("k", srv.URL, nil).Stream(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	_ = s.Close()
}

func TestStream_Non2xxIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	_, err := NewAnthropicClient("k", srv.URL, nil).Stream(context.Background(), Request{Model: "m"})
	var ue *common.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusTooManyRequests, ue.Status)
	assert.Contains(t, ue.Body, "rate_limit_error")
}

func TestStream_MidStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "event: content_block_delta\ndata: {\"delta\":{\"text\":\"a\"}}\n\n"+
			"event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	s, err := NewAnthropicClient("k", srv.URL, nil).Stream(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	defer s.Close()

	ch, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", ch.Text)

	_, err = s.Next()
	require.ErrorIs(t, err, ErrStreamFailed)
	assert.True(t, strings.Contains(err.Error(), "Overloaded"))
}
