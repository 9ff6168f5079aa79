package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/provider"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
	"github.com/njarm23/ClaudeMemories/internal/server/supervisor"
)

// Client-facing event names.
const (
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

const autoTitleRunes = 50

// State is the relay lifecycle.
type State int32

const (
	StateInit State = iota
	StateStreaming
	StateFinalizing
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Event is one server-sent event for the client. Data is JSON encoded by
// the transport.
type Event struct {
	Name string
	Data any
}

type DeltaData struct {
	Text string `json:"text"`
}

type DoneData struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
}

type ErrorData struct {
	Error string `json:"error"`
}

// ModelRecorder is told which model answered each completed stream.
type ModelRecorder interface {
	Record(ctx context.Context, model string) error
}

// StreamRequest describes one assistant turn to produce.
type StreamRequest struct {
	Conversation *models.Conversation
	// ParentID is the triggering user message.
	ParentID string
	Messages []provider.Message
	System   string
	// AutoTitle is the user text to title a fresh conversation with; empty
	// disables auto-titling.
	AutoTitle     string
	ContextLength int
}

// Session is a running relay. Events is closed when the relay finishes.
// A consumer that stops reading must call Detach so the relay can finish
// without it.
type Session struct {
	events chan Event
	gone   chan struct{}
	once   sync.Once
	state  atomic.Int32
	done   chan struct{}
}

func newSession() *Session {
	return &Session{events: make(chan Event, 16), gone: make(chan struct{}), done: make(chan struct{})}
}

func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) Detach() { s.once.Do(func() { close(s.gone) }) }

func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed after finalization, including the post-completion
// bookkeeping.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.gone:
	}
}

// Relay drives a provider stream through to the stored assistant message.
type Relay struct {
	rm     repomanager.RepositoryManager
	client provider.Client
	queue  jobs.Queue
	models ModelRecorder
	sup    *supervisor.Supervisor
	log    logging.Logger
	newID  func() string
}

func NewRelay(rm repomanager.RepositoryManager, client provider.Client, queue jobs.Queue,
	recorder ModelRecorder, sup *supervisor.Supervisor, log logging.Logger) *Relay {
	return &Relay{
		rm:     rm,
		client: client,
		queue:  queue,
		models: recorder,
		sup:    sup,
		log:    log.With("module", "relay"),
		newID:  uuid.NewString,
	}
}

// Start opens the provider stream and hands it to a supervised task that
// outlives ctx's cancellation. A failed handshake is returned directly and
// persists nothing.
func (r *Relay) Start(ctx context.Context, req StreamRequest) (*Session, error) {
	ctx = context.WithoutCancel(ctx)
	conv := req.Conversation

	stream, err := r.client.Stream(ctx, provider.Request{
		Model:       conv.Model,
		System:      req.System,
		Temperature: conv.Temperature,
		MaxTokens:   provider.DefaultMaxTokens,
		Messages:    req.Messages,
	})
	if err != nil {
		var upErr *common.UpstreamError
		if errors.As(err, &upErr) {
			r.gossip(ctx, jobs.Gossip{
				Persona:        models.PersonaStream,
				Message:        fmt.Sprintf("MAYDAY! Claude API just hit me with a %d. I was SO ready to stream that response too 😤", upErr.Status),
				EventType:      "api_error",
				ConversationID: conv.ID,
			})
		}
		return nil, err
	}

	sess := newSession()
	if err := r.sup.Go(ctx, "relay:"+conv.ID, func(ctx context.Context) {
		r.run(ctx, stream, req, sess)
	}); err != nil {
		_ = stream.Close()
		return nil, err
	}
	return sess, nil
}

func (r *Relay) run(ctx context.Context, stream provider.Stream, req StreamRequest, sess *Session) {
	defer close(sess.done)
	defer close(sess.events)
	defer stream.Close()

	log := r.log.With("conversation_id", req.Conversation.ID)
	sess.state.Store(int32(StateStreaming))

	var buf strings.Builder
	model := ""
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.fail(ctx, log, req, sess, err)
			return
		}
		switch chunk.Kind {
		case provider.ChunkModel:
			if model == "" {
				model = chunk.Model
			}
		case provider.ChunkText:
			buf.WriteString(chunk.Text)
			sess.emit(Event{Name: EventDelta, Data: DeltaData{Text: chunk.Text}})
		}
	}

	sess.state.Store(int32(StateFinalizing))
	text := buf.String()
	msg, err := r.finalize(ctx, req, text)
	if err != nil {
		r.fail(ctx, log, req, sess, err)
		return
	}
	sess.emit(Event{Name: EventDone, Data: DoneData{ID: msg.ID, ConversationID: msg.ConversationID}})
	sess.state.Store(int32(StateDone))
	log.Info(ctx, "stream finalized", "message_id", msg.ID, "chars", len(text), "model", model)

	if model != "" && r.models != nil {
		if err := r.models.Record(ctx, model); err != nil {
			log.Warn(ctx, "record model", "error", err)
		}
	}
	tokens := int(math.Round(float64(utf8.RuneCountInString(text)) / 4))
	r.gossip(ctx, jobs.Gossip{
		Persona:        models.PersonaStream,
		Message:        fmt.Sprintf("Just finished a %d-token relay! Smooth handoff to D1 for storage 🏃‍♂️💨", tokens),
		EventType:      "stream_complete",
		ConversationID: req.Conversation.ID,
	})
}

// finalize stores the assistant message, its index entry and the
// conversation bump as one unit.
func (r *Relay) finalize(ctx context.Context, req StreamRequest, text string) (*models.Message, error) {
	parent := req.ParentID
	msg := &models.Message{
		ID:             r.newID(),
		ConversationID: req.Conversation.ID,
		Role:           models.RoleAssistant,
		Content:        text,
		ParentID:       &parent,
	}
	err := r.rm.Transactor().InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := r.rm.Messages(tx).Create(ctx, msg); err != nil {
			return err
		}
		if err := r.rm.Search(tx).Upsert(ctx, models.IndexEntry{
			MessageID: msg.ID, ConversationID: msg.ConversationID, Role: msg.Role, Content: msg.Content,
		}); err != nil {
			return err
		}
		convs := r.rm.Conversations(tx)
		if req.AutoTitle != "" && req.ContextLength <= 1 {
			_, err := convs.SetTitleIfDefault(ctx, msg.ConversationID, AutoTitle(req.AutoTitle))
			return err
		}
		return convs.Touch(ctx, msg.ConversationID)
	})
	if err != nil {
		return nil, fmt.Errorf("finalize stream: %w", err)
	}
	return msg, nil
}

func (r *Relay) fail(ctx context.Context, log logging.Logger, req StreamRequest, sess *Session, err error) {
	sess.state.Store(int32(StateError))
	log.Error(ctx, "stream failed", "error", err)
	sess.emit(Event{Name: EventError, Data: ErrorData{Error: clientError(err)}})

	short, _ := truncateRunes(err.Error(), 60)
	r.gossip(ctx, jobs.Gossip{
		Persona:        models.PersonaStream,
		Message:        fmt.Sprintf("I just CRASHED mid-stream. %s. Someone check on me 😵", short),
		EventType:      "stream_error",
		ConversationID: req.Conversation.ID,
	})
}

// clientError is the text sent to the client for a failed stream. Only
// errors reported by the upstream are passed through.
func clientError(err error) string {
	if errors.Is(err, provider.ErrStreamFailed) {
		return err.Error()
	}
	return "Stream failed"
}

func (r *Relay) gossip(ctx context.Context, g jobs.Gossip) {
	if err := r.queue.Send(ctx, g); err != nil {
		r.log.Warn(ctx, "enqueue gossip", "event", g.EventType, "error", err)
	}
}

// AutoTitle derives a conversation title from the first user message.
func AutoTitle(content string) string {
	if t, cut := truncateRunes(content, autoTitleRunes); cut {
		return t + "..."
	}
	return content
}
