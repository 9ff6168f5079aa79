package memory

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type searchIndex struct{ s *Store }

func (r searchIndex) Upsert(_ context.Context, e models.IndexEntry) error {
	r.s.read(func(st *state, _ time.Time) {
		st.index[e.MessageID] = e
	})
	return nil
}

func (r searchIndex) DeleteByConversation(_ context.Context, conversationID string) (n int64, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for id, e := range st.index {
			if e.ConversationID == conversationID {
				delete(st.index, id)
				n++
			}
		}
	})
	return n, nil
}

// Search matches entries containing every query term, ranked by the number
// of term occurrences.
func (r searchIndex) Search(_ context.Context, q, conversationID string, limit int) (hits []*models.SearchHit, _ error) {
	terms := tokenize(q)
	if len(terms) == 0 {
		return nil, nil
	}
	r.s.read(func(st *state, _ time.Time) {
		for _, e := range st.index {
			if conversationID != "" && e.ConversationID != conversationID {
				continue
			}
			rank := matchRank(terms, e.Content)
			if rank == 0 {
				continue
			}
			hits = append(hits, &models.SearchHit{
				MessageID:         e.MessageID,
				ConversationID:    e.ConversationID,
				ConversationTitle: st.conversations[e.ConversationID].Title,
				Role:              e.Role,
				Snippet:           snippet(e.Content, 200),
				Rank:              float64(rank),
			})
		}
	})
	slices.SortFunc(hits, func(a, b *models.SearchHit) int {
		if a.Rank != b.Rank {
			if a.Rank > b.Rank {
				return -1
			}
			return 1
		}
		return compareStrings(a.MessageID, b.MessageID)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchRank returns 0 unless every term occurs in text.
func matchRank(terms []string, text string) int {
	lower := strings.ToLower(text)
	total := 0
	for _, t := range terms {
		n := strings.Count(lower, t)
		if n == 0 {
			return 0
		}
		total += n
	}
	return total
}

func snippet(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func compareStrings(a, b string) int {
	return strings.Compare(a, b)
}
