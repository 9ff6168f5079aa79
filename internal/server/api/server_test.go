package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthAndAuth(t *testing.T) {
	h := newHarness(t)

	resp, err := h.srv.Client().Get(h.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = h.srv.Client().Get(h.srv.URL + "/api/conversations")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp, err = h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	bad := h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	good := h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"password": testPassword})
	require.Equal(t, http.StatusOK, good.StatusCode)
	body := decode[map[string]string](t, good)
	assert.NotEmpty(t, body["token"])

	missing := h.do(t, http.MethodGet, "/api/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestConversationCRUD(t *testing.T) {
	h := newHarness(t)
	id := h.createConversation(t, "Gardening")

	resp := h.do(t, http.MethodPatch, "/api/conversations/"+id, map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Nothing to update", decode[map[string]string](t, resp)["error"])

	resp = h.do(t, http.MethodPatch, "/api/conversations/"+id, map[string]any{"title": "Tomatoes", "temperature": 0.4})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/conversations/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[map[string]any](t, resp)
	assert.Equal(t, "Tomatoes", view["title"])
	assert.Equal(t, 0.4, view["temperature"])
	assert.Equal(t, []any{}, view["tags"])
	assert.Equal(t, []any{}, view["vibes"])

	resp = h.do(t, http.MethodPost, "/api/conversations/"+id+"/pin", map[string]bool{"pinned": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/conversations", nil)
	list := decode[[]map[string]any](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, true, list[0]["pinned"])

	resp = h.do(t, http.MethodDelete, "/api/conversations/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = h.do(t, http.MethodGet, "/api/conversations/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSendMessageStreamsAndPersists(t *testing.T) {
	h := newHarness(t)
	id := h.createConversation(t, "")

	resp := h.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]string{"content": "Say hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp)
	require.Len(t, events, 3)
	assert.Equal(t, "delta", events[0].Name)
	assert.JSONEq(t, `{"text":"Hello"}`, events[0].Data)
	assert.Equal(t, "delta", events[1].Name)
	assert.Equal(t, "done", events[2].Name)

	var done struct {
		ID             string `json:"id"`
		ConversationID string `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[2].Data), &done))
	assert.Equal(t, id, done.ConversationID)

	h.settle(t)

	resp = h.do(t, http.MethodGet, "/api/conversations/"+id+"/messages", nil)
	msgs := decode[[]map[string]any](t, resp)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0]["role"])
	assert.Equal(t, "Hello there", msgs[1]["content"])
	assert.Equal(t, done.ID, msgs[1]["id"])
	assert.Equal(t, msgs[0]["id"], msgs[1]["parent_message_id"])

	resp = h.do(t, http.MethodGet, "/api/conversations/"+id, nil)
	assert.Equal(t, "Say hello", decode[map[string]any](t, resp)["title"])

	resp = h.do(t, http.MethodGet, "/api/model", nil)
	st := decode[models.ModelStatus](t, resp)
	require.NotNil(t, st.Current)
	assert.Equal(t, "sonnet", st.Current.Family)
}

func TestSendMessageValidationAndUpstreamErrors(t *testing.T) {
	h := newHarness(t)
	id := h.createConversation(t, "Errors")

	resp := h.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]string{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/conversations/missing/messages", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	h.upstream.mu.Lock()
	h.upstream.status = 529
	h.upstream.mu.Unlock()
	resp = h.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]string{"content": "hi"})
	assert.Equal(t, 529, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "Overloaded")
}

func TestRegenerate(t *testing.T) {
	h := newHarness(t)
	id := h.createConversation(t, "Regen")

	resp := h.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]string{"content": "first"})
	events := readEvents(t, resp)
	var done struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].Data), &done))
	h.settle(t)

	resp = h.do(t, http.MethodPost, "/api/conversations/"+id+"/regenerate", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/conversations/"+id+"/regenerate", map[string]string{"message_id": done.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events = readEvents(t, resp)
	assert.Equal(t, "done", events[len(events)-1].Name)
	h.settle(t)

	resp = h.do(t, http.MethodGet, "/api/conversations/"+id+"/messages", nil)
	msgs := decode[[]map[string]any](t, resp)
	require.Len(t, msgs, 3)
	assert.Equal(t, msgs[1]["parent_message_id"], msgs[2]["parent_message_id"])
}

func TestArchiveRestoreAndConflicts(t *testing.T) {
	h := newHarness(t)
	id := h.createConversation(t, "Old times")
	readEvents(t, h.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]string{"content": "remember"}))
	h.settle(t)

	resp := h.do(t, http.MethodPost, "/api/conversations/"+id+"/restore", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/conversations/"+id+"/archive", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[map[string]any](t, resp)
	assert.Equal(t, true, res["ok"])
	assert.EqualValues(t, 2, res["message_count"])

	resp = h.do(t, http.MethodPost, "/api/conversations/"+id+"/archive", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]string{"content": "still there?"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/conversations/"+id+"/export?format=json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp = h.do(t, http.MethodPost, "/api/conversations/"+id+"/restore", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/conversations/"+id+"/messages", nil)
	assert.Len(t, decode[[]map[string]any](t, resp), 2)
}

func TestUploadsAndServing(t *testing.T) {
	h := newHarness(t)
	id := h.createConversation(t, "Files")

	resp := h.upload(t, "/api/conversations/"+id+"/images", "cat.png", "image/png", []byte("\x89PNG fake"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	img := decode[map[string]any](t, resp)
	assert.Equal(t, "cat.png", img["original_filename"])
	assert.Nil(t, img["claude_support"])

	resp = h.upload(t, "/api/conversations/"+id+"/files", "notes.txt", "text/plain", []byte("plain notes"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	file := decode[map[string]any](t, resp)
	assert.Equal(t, "text", file["claude_support"])

	resp = h.upload(t, "/api/conversations/"+id+"/images", "doc.pdf", "application/pdf", []byte("%PDF"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// served without a token
	get, err := h.srv.Client().Get(h.srv.URL + "/api/images/" + img["id"].(string))
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "image/png", get.Header.Get("Content-Type"))
	b, _ := io.ReadAll(get.Body)
	assert.Equal(t, "\x89PNG fake", string(b))

	get, err = h.srv.Client().Get(h.srv.URL + "/api/files/" + img["id"].(string))
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusNotFound, get.StatusCode)
}

func TestExportStoreAndDownload(t *testing.T) {
	h := newHarness(t)
	id := h.createConversation(t, "Export me")
	readEvents(t, h.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]string{"content": "hello"}))
	h.settle(t)

	resp := h.do(t, http.MethodPost, "/api/conversations/"+id+"/export", map[string]string{"format": "markdown"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stored := decode[services.StoredExport](t, resp)
	assert.Equal(t, "markdown", stored.Format)
	require.True(t, strings.HasPrefix(stored.DownloadURL, "/api/exports/exports/"+id+"/"))

	resp = h.do(t, http.MethodGet, stored.DownloadURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/markdown", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), "# Export me")

	resp = h.do(t, http.MethodGet, "/api/exports/backups/db-x.json", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnnotationsSearchGossipAndTriggers(t *testing.T) {
	h := newHarness(t)
	id := h.createConversation(t, "Birdwatching")
	events := readEvents(t, h.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]string{"content": "saw a heron today"}))
	h.settle(t)
	var done struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].Data), &done))

	resp := h.do(t, http.MethodPut, "/api/messages/"+done.ID+"/annotation", map[string]any{"type": "bookmark", "label": "nice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = h.do(t, http.MethodPut, "/api/messages/"+done.ID+"/annotation", map[string]any{"type": "glitter"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = h.do(t, http.MethodDelete, "/api/messages/"+done.ID+"/annotation", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/search?q=heron", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[services.SearchResults](t, resp)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "Birdwatching", res.Messages[0].ConversationTitle)

	resp = h.do(t, http.MethodGet, "/api/search?q=h", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.NoError(t, services.NewGossipService(h.rm).Post(context.Background(), gossipLine("cron", "tick")))
	resp = h.do(t, http.MethodGet, "/api/gossip?limit=5", nil)
	feed := decode[[]models.GossipMessage](t, resp)
	require.Len(t, feed, 1)
	assert.Equal(t, "tick", feed[0].Message)

	resp = h.do(t, http.MethodPost, "/api/gossip/water-cooler", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/api/summarize", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Subset(t, h.queue.kinds(), []string{"water_cooler", "summarize_batch"})
}

func TestHandoffAndSpeech(t *testing.T) {
	h := newHarness(t)
	id := h.createConversation(t, "Handoff")

	resp := h.do(t, http.MethodPost, "/api/conversations/"+id+"/handoff", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	readEvents(t, h.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]string{"content": "plan the trip"}))
	h.settle(t)

	resp = h.do(t, http.MethodPost, "/api/conversations/"+id+"/handoff", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, "Where we left off: step 3.", out["handoff_notes"])

	resp = h.do(t, http.MethodPost, "/api/tts", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{common.NewValidationError("q", "too short"), http.StatusBadRequest},
		{common.ErrorNotFound, http.StatusNotFound},
		{common.ErrTokenExpired, http.StatusUnauthorized},
		{common.ErrAlreadyArchived, http.StatusConflict},
		{common.ErrArchiveInProgress, http.StatusConflict},
		{&common.UpstreamError{Status: 429, Body: "slow"}, 429},
		{common.ErrStorageInconsistency, http.StatusInternalServerError},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, msg := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			if status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", msg)
			}
		})
	}
}
