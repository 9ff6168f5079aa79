package memory

import (
	"context"
	"slices"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type annotationRepo struct{ s *Store }

func (r annotationRepo) Upsert(_ context.Context, a *models.Annotation) (err error) {
	r.s.read(func(st *state, now time.Time) {
		if _, ok := st.messages[a.MessageID]; !ok {
			err = errForeignKey("message_annotations", "message_id", a.MessageID)
			return
		}
		if existing, ok := st.annotations[a.MessageID]; ok {
			existing.Type, existing.Label = a.Type, a.Label
			st.annotations[a.MessageID] = existing
			a.ID, a.CreatedAt = existing.ID, existing.CreatedAt
			return
		}
		a.CreatedAt = now
		st.annotations[a.MessageID] = *a
	})
	return err
}

func (r annotationRepo) Delete(_ context.Context, messageID string) (err error) {
	r.s.read(func(st *state, _ time.Time) {
		if _, ok := st.annotations[messageID]; !ok {
			err = common.ErrorNotFound
			return
		}
		delete(st.annotations, messageID)
	})
	return err
}

func (r annotationRepo) ListByConversation(_ context.Context, conversationID string) (out []*models.Annotation, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for _, a := range st.annotations {
			if a.ConversationID == conversationID {
				out = append(out, &a)
			}
		}
	})
	slices.SortFunc(out, func(a, b *models.Annotation) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r annotationRepo) ListAnnotatedMessages(_ context.Context, conversationID string) ([]*models.AnnotatedMessage, error) {
	type joined struct {
		am  *models.AnnotatedMessage
		msg messageRow
	}
	var rows []joined
	r.s.read(func(st *state, _ time.Time) {
		for mid, a := range st.annotations {
			m, ok := st.messages[mid]
			if !ok || a.ConversationID != conversationID {
				continue
			}
			rows = append(rows, joined{
				am:  &models.AnnotatedMessage{Type: a.Type, Label: a.Label, Role: m.Role, Preview: m.Content},
				msg: m,
			})
		}
	})
	slices.SortFunc(rows, func(a, b joined) int {
		if c := a.msg.CreatedAt.Compare(b.msg.CreatedAt); c != 0 {
			return c
		}
		return int(a.msg.seq - b.msg.seq)
	})

	out := make([]*models.AnnotatedMessage, 0, len(rows))
	for _, j := range rows {
		out = append(out, j.am)
	}
	return out, nil
}

func (r annotationRepo) DeleteByConversation(_ context.Context, conversationID string) (n int64, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for mid, a := range st.annotations {
			if a.ConversationID == conversationID {
				delete(st.annotations, mid)
				n++
			}
		}
	})
	return n, nil
}
