package memory

import (
	"context"
	"slices"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type messageRepo struct{ s *Store }

func (r messageRepo) Create(_ context.Context, m *models.Message) (err error) {
	r.s.read(func(st *state, now time.Time) {
		if _, ok := st.messages[m.ID]; ok {
			err = errDuplicate("messages", m.ID)
			return
		}
		if _, ok := st.conversations[m.ConversationID]; !ok {
			err = errForeignKey("messages", "conversation_id", m.ConversationID)
			return
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		st.messages[m.ID] = messageRow{Message: *m, seq: st.nextSeq()}
	})
	return err
}

func (r messageRepo) Get(_ context.Context, id string) (m *models.Message, err error) {
	r.s.read(func(st *state, _ time.Time) {
		row, ok := st.messages[id]
		if !ok {
			err = common.ErrorNotFound
			return
		}
		m = &row.Message
	})
	return m, err
}

func (r messageRepo) sorted(st *state, conversationID string) []messageRow {
	var rows []messageRow
	for _, m := range st.messages {
		if m.ConversationID == conversationID {
			rows = append(rows, m)
		}
	}
	slices.SortFunc(rows, func(a, b messageRow) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.seq - b.seq)
	})
	return rows
}

func (r messageRepo) List(_ context.Context, conversationID string, limit int) (out []*models.Message, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for _, row := range r.sorted(st, conversationID) {
			if limit > 0 && len(out) == limit {
				break
			}
			out = append(out, &row.Message)
		}
	})
	return out, nil
}

func (r messageRepo) Latest(_ context.Context, conversationID string) (m *models.Message, err error) {
	r.s.read(func(st *state, _ time.Time) {
		rows := r.sorted(st, conversationID)
		if len(rows) == 0 {
			err = common.ErrorNotFound
			return
		}
		m = &rows[len(rows)-1].Message
	})
	return m, err
}

func (r messageRepo) DeleteByConversation(_ context.Context, conversationID string) (n int64, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for id, m := range st.messages {
			if m.ConversationID != conversationID {
				continue
			}
			delete(st.messages, id)
			delete(st.annotations, id)
			// attachments still linked to the message go with it
			for aid, a := range st.attachments {
				if a.MessageID != nil && *a.MessageID == id {
					delete(st.attachments, aid)
				}
			}
			n++
		}
	})
	return n, nil
}
