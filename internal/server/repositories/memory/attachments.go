package memory

import (
	"context"
	"slices"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type attachmentRepo struct{ s *Store }

func (r attachmentRepo) Create(_ context.Context, a *models.Attachment) (err error) {
	r.s.read(func(st *state, now time.Time) {
		if _, ok := st.attachments[a.ID]; ok {
			err = errDuplicate("attachments", a.ID)
			return
		}
		if _, ok := st.conversations[a.ConversationID]; !ok {
			err = errForeignKey("attachments", "conversation_id", a.ConversationID)
			return
		}
		a.CreatedAt = now
		st.attachments[a.ID] = *a
	})
	return err
}

func (r attachmentRepo) Get(_ context.Context, id string) (a *models.Attachment, err error) {
	r.s.read(func(st *state, _ time.Time) {
		row, ok := st.attachments[id]
		if !ok {
			err = common.ErrorNotFound
			return
		}
		a = &row
	})
	return a, err
}

func (r attachmentRepo) Link(_ context.Context, conversationID, messageID string, ids []string) (n int64, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for _, id := range ids {
			a, ok := st.attachments[id]
			if !ok || a.ConversationID != conversationID || a.MessageID != nil {
				continue
			}
			mid := messageID
			a.MessageID = &mid
			st.attachments[id] = a
			n++
		}
	})
	return n, nil
}

func (r attachmentRepo) Relink(_ context.Context, conversationID, messageID, id string) (ok bool, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		a, found := st.attachments[id]
		if !found || a.ConversationID != conversationID {
			return
		}
		mid := messageID
		a.MessageID = &mid
		st.attachments[id] = a
		ok = true
	})
	return ok, nil
}

func (r attachmentRepo) ListByMessages(_ context.Context, messageIDs []string) ([]*models.Attachment, error) {
	return r.filter(func(a models.Attachment) bool {
		return a.MessageID != nil && slices.Contains(messageIDs, *a.MessageID)
	}), nil
}

func (r attachmentRepo) ListByConversation(_ context.Context, conversationID string) ([]*models.Attachment, error) {
	return r.filter(func(a models.Attachment) bool {
		return a.ConversationID == conversationID
	}), nil
}

func (r attachmentRepo) Detach(_ context.Context, conversationID string) (n int64, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for id, a := range st.attachments {
			if a.ConversationID == conversationID && a.MessageID != nil {
				a.MessageID = nil
				st.attachments[id] = a
				n++
			}
		}
	})
	return n, nil
}

func (r attachmentRepo) filter(keep func(models.Attachment) bool) (out []*models.Attachment) {
	r.s.read(func(st *state, _ time.Time) {
		for _, a := range st.attachments {
			if keep(a) {
				out = append(out, &a)
			}
		}
	})
	slices.SortFunc(out, func(a, b *models.Attachment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareStrings(a.ID, b.ID)
	})
	return out
}
