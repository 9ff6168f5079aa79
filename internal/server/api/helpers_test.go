package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/archive"
	"github.com/njarm23/ClaudeMemories/internal/server/blob"
	"github.com/njarm23/ClaudeMemories/internal/server/chat"
	"github.com/njarm23/ClaudeMemories/internal/server/config"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/llm"
	"github.com/njarm23/ClaudeMemories/internal/server/provider"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/memory"
	"github.com/njarm23/ClaudeMemories/internal/server/services"
	"github.com/njarm23/ClaudeMemories/internal/server/supervisor"
	"github.com/stretchr/testify/require"
)

const testPassword = "hunter2"

type recordingQueue struct {
	mu   sync.Mutex
	sent []jobs.Job
}

func (q *recordingQueue) Send(_ context.Context, j jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, j)
	return nil
}

func (q *recordingQueue) SendBatch(ctx context.Context, js []jobs.Job) error {
	for _, j := range js {
		_ = q.Send(ctx, j)
	}
	return nil
}

func (q *recordingQueue) kinds() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, j := range q.sent {
		out = append(out, j.Kind())
	}
	return out
}

type cannedGenerator struct{ reply string }

func (g cannedGenerator) Generate(context.Context, llm.Request) (string, error) {
	return g.reply, nil
}

// fakeAnthropic answers /v1/messages with a scripted event stream, or with
// status when it is set.
type fakeAnthropic struct {
	mu     sync.Mutex
	words  []string
	status int
}

func (f *fakeAnthropic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	words, status := f.words, f.status
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"model\":\"claude-sonnet-4-20250514\"}}\n\n")
	for _, word := range words {
		b, _ := json.Marshal(map[string]any{
			"type":  "content_block_delta",
			"delta": map[string]string{"type": "text_delta", "text": word},
		})
		fmt.Fprintf(w, "event: content_block_delta\ndata: %s\n\n", b)
	}
	fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
}

type harness struct {
	rm       *memory.Manager
	blobs    *blob.MemoryStore
	queue    *recordingQueue
	upstream *fakeAnthropic
	sup      *supervisor.Supervisor
	srv      *httptest.Server
	token    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rm:       memory.NewManager(),
		blobs:    blob.NewMemoryStore(),
		queue:    &recordingQueue{},
		upstream: &fakeAnthropic{words: []string{"Hello", " there"}},
		sup:      supervisor.New(logging.Nop()),
	}
	log := logging.Nop()

	anthropic := httptest.NewServer(h.upstream)
	t.Cleanup(anthropic.Close)

	cfg := &config.Config{SecretKey: "test-secret", AuthPassword: testPassword, TokenValidity: time.Hour}
	authSvc := services.NewAuthService(cfg, log)
	tracker := services.NewModelTracker(h.rm, log)
	relay := chat.NewRelay(h.rm, provider.NewAnthropicClient("key", anthropic.URL, anthropic.Client()), h.queue, tracker, h.sup, log)
	chatSvc := chat.NewService(h.rm, chat.NewResolver(h.rm, h.blobs, log), chat.NewPreambleBuilder(h.rm, log), relay, log)

	s := NewServer("127.0.0.1:0", Deps{
		Auth:          authSvc,
		Conversations: services.NewConversationService(h.rm, h.blobs, h.queue, log),
		Chat:          chatSvc,
		Archive:       archive.NewEngine(h.rm, h.blobs, h.queue, log, 0),
		Exporter:      services.NewExporter(h.rm, h.blobs, log),
		Handoff:       services.NewHandoffWriter(h.rm, cannedGenerator{reply: "Where we left off: step 3."}, h.queue, log, "claude-3-5-haiku-latest"),
		Gossip:        services.NewGossipService(h.rm),
		Speech:        services.NewSpeechService(nil),
		Models:        tracker,
		Queue:         h.queue,
	}, log, time.Second)

	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		h.srv.Close()
		h.sup.Wait(2 * time.Second)
	})

	token, err := authSvc.Login(context.Background(), testPassword)
	require.NoError(t, err)
	h.token = token
	return h
}

// settle waits for stream finalizations to finish. The supervisor stays open
// for later requests.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return h.sup.Active() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) upload(t *testing.T, path, filename, mediaType string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", mediaType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+h.token)
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type sseEvent struct {
	Name string
	Data string
}

// readEvents parses a complete event stream body.
func readEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(string(b)), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				ev.Name = v
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				ev.Data = v
			}
		}
		out = append(out, ev)
	}
	return out
}

func (h *harness) createConversation(t *testing.T, title string) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/conversations", map[string]any{"title": title})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[struct {
		ID string `json:"id"`
	}](t, resp).ID
}

func gossipLine(persona, msg string) jobs.Gossip {
	return jobs.Gossip{Persona: persona, Message: msg}
}
