package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type conversationRepo struct{ s *Store }

func (r conversationRepo) Create(_ context.Context, c *models.Conversation) (err error) {
	r.s.read(func(st *state, now time.Time) {
		if _, ok := st.conversations[c.ID]; ok {
			err = errDuplicate("conversations", c.ID)
			return
		}
		c.CreatedAt, c.UpdatedAt = now, now
		st.conversations[c.ID] = *c
	})
	return err
}

func (r conversationRepo) Get(_ context.Context, id string) (c *models.Conversation, err error) {
	r.s.read(func(st *state, _ time.Time) {
		row, ok := st.conversations[id]
		if !ok {
			err = common.ErrorNotFound
			return
		}
		c = &row
	})
	return c, err
}

func (r conversationRepo) List(_ context.Context, includeArchived bool) (out []*models.Conversation, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for _, c := range st.conversations {
			if !includeArchived && c.ArchivedAt != nil {
				continue
			}
			out = append(out, &c)
		}
	})
	slices.SortFunc(out, func(a, b *models.Conversation) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out, nil
}

func (r conversationRepo) update(id string, fn func(c *models.Conversation, now time.Time) error) (err error) {
	r.s.read(func(st *state, now time.Time) {
		c, ok := st.conversations[id]
		if !ok {
			err = common.ErrorNotFound
			return
		}
		if err = fn(&c, now); err != nil {
			return
		}
		st.conversations[id] = c
	})
	return err
}

func (r conversationRepo) Update(_ context.Context, id string, p models.ConversationPatch) error {
	return r.update(id, func(c *models.Conversation, now time.Time) error {
		if p.Title != nil {
			c.Title = *p.Title
		}
		if p.Model != nil {
			c.Model = *p.Model
		}
		if p.Temperature != nil {
			c.Temperature = *p.Temperature
		}
		if p.SystemPrompt != nil {
			c.SystemPrompt = *p.SystemPrompt
		}
		c.UpdatedAt = now
		return nil
	})
}

func (r conversationRepo) Delete(_ context.Context, id string) (err error) {
	r.s.read(func(st *state, _ time.Time) {
		if _, ok := st.conversations[id]; !ok {
			err = common.ErrorNotFound
			return
		}
		delete(st.conversations, id)
		// cascade like the foreign keys do
		for mid, m := range st.messages {
			if m.ConversationID == id {
				delete(st.messages, mid)
			}
		}
		for aid, a := range st.attachments {
			if a.ConversationID == id {
				delete(st.attachments, aid)
			}
		}
		for mid, a := range st.annotations {
			if a.ConversationID == id {
				delete(st.annotations, mid)
			}
		}
		delete(st.wikiPins, id)
		delete(st.tags, id)
	})
	return err
}

func (r conversationRepo) Touch(_ context.Context, id string) error {
	return r.update(id, func(c *models.Conversation, now time.Time) error {
		c.UpdatedAt = now
		return nil
	})
}

func (r conversationRepo) SetTitleIfDefault(_ context.Context, id, title string) (set bool, err error) {
	err = r.update(id, func(c *models.Conversation, now time.Time) error {
		if c.Title == common.DefaultConversationTitle {
			c.Title = title
			set = true
		}
		c.UpdatedAt = now
		return nil
	})
	return set, err
}

func (r conversationRepo) SetPinned(_ context.Context, id string, pinned bool) error {
	return r.update(id, func(c *models.Conversation, _ time.Time) error {
		c.Pinned = pinned
		return nil
	})
}

func (r conversationRepo) SetSummary(_ context.Context, id, summary, vibesJSON string) error {
	return r.update(id, func(c *models.Conversation, now time.Time) error {
		c.Summary, c.Vibes = &summary, &vibesJSON
		c.LastSummarizedAt = &now
		return nil
	})
}

func (r conversationRepo) SetHandoffNotes(_ context.Context, id, notes string) error {
	return r.update(id, func(c *models.Conversation, now time.Time) error {
		c.HandoffNotes = &notes
		c.UpdatedAt = now
		return nil
	})
}

func (r conversationRepo) ClaimArchive(_ context.Context, id string, staleBefore time.Time) (claimed bool, _ error) {
	r.s.read(func(st *state, now time.Time) {
		c, ok := st.conversations[id]
		if !ok || c.ArchivedAt != nil {
			return
		}
		if c.ArchivingSince != nil && !c.ArchivingSince.Before(staleBefore) {
			return
		}
		c.ArchivingSince = &now
		st.conversations[id] = c
		claimed = true
	})
	return claimed, nil
}

func (r conversationRepo) SetPendingArchiveKey(_ context.Context, id, key string) error {
	return r.update(id, func(c *models.Conversation, _ time.Time) error {
		if c.ArchivedAt != nil || c.ArchivingSince == nil {
			return common.ErrorNotFound
		}
		c.ArchiveKey = &key
		return nil
	})
}

func (r conversationRepo) ReleaseArchiveClaim(_ context.Context, id string) error {
	err := r.update(id, func(c *models.Conversation, _ time.Time) error {
		if c.ArchivedAt == nil {
			c.ArchivingSince, c.ArchiveKey = nil, nil
		}
		return nil
	})
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	return err
}

func (r conversationRepo) MarkArchived(_ context.Context, id, key string) error {
	err := r.update(id, func(c *models.Conversation, now time.Time) error {
		if c.ArchivedAt != nil {
			return common.ErrAlreadyArchived
		}
		c.ArchivedAt, c.ArchiveKey, c.ArchivingSince = &now, &key, nil
		c.UpdatedAt = now
		return nil
	})
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrAlreadyArchived
	}
	return err
}

func (r conversationRepo) ClearArchived(_ context.Context, id string) error {
	err := r.update(id, func(c *models.Conversation, now time.Time) error {
		if c.ArchivedAt == nil {
			return common.ErrNotArchived
		}
		c.ArchivedAt, c.ArchiveKey, c.ArchivingSince = nil, nil, nil
		c.UpdatedAt = now
		return nil
	})
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrNotArchived
	}
	return err
}

func (r conversationRepo) ListNeedingSummary(_ context.Context, minMessages, limit int) (ids []string, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		count := map[string]int{}
		fresh := map[string]bool{}
		for _, m := range st.messages {
			c, ok := st.conversations[m.ConversationID]
			if !ok {
				continue
			}
			count[c.ID]++
			if c.LastSummarizedAt == nil || m.CreatedAt.After(*c.LastSummarizedAt) {
				fresh[c.ID] = true
			}
		}
		for id := range fresh {
			if st.conversations[id].ArchivedAt == nil && count[id] >= minMessages {
				ids = append(ids, id)
			}
		}
	})
	return limitIDs(ids, limit), nil
}

func (r conversationRepo) ListArchivable(_ context.Context, idleSince time.Time, limit int) (ids []string, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		has := map[string]bool{}
		active := map[string]bool{}
		for _, m := range st.messages {
			has[m.ConversationID] = true
			if m.CreatedAt.After(idleSince) {
				active[m.ConversationID] = true
			}
		}
		for id, c := range st.conversations {
			if !c.Pinned && c.ArchivedAt == nil && has[id] && !active[id] {
				ids = append(ids, id)
			}
		}
	})
	return limitIDs(ids, limit), nil
}

func (r conversationRepo) Stats(_ context.Context, since time.Time) (s *models.ConversationStats, _ error) {
	s = &models.ConversationStats{}
	r.s.read(func(st *state, _ time.Time) {
		s.TotalConversations = len(st.conversations)
		s.TotalMessages = len(st.messages)
		for _, m := range st.messages {
			if m.CreatedAt.After(since) {
				s.MessagesToday++
			}
		}
		for _, c := range st.conversations {
			if c.Vibes != nil {
				s.VibedConversations++
			}
		}
	})
	return s, nil
}

func limitIDs(ids []string, limit int) []string {
	slices.SortFunc(ids, strings.Compare)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}
