package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type wikiRepo struct{ s *Store }

func (r wikiRepo) Get(_ context.Context, id string) (p *models.WikiPage, err error) {
	r.s.read(func(st *state, _ time.Time) {
		page, ok := st.wiki[id]
		if !ok {
			err = common.ErrorNotFound
			return
		}
		p = &page
	})
	return p, err
}

func (r wikiRepo) Pinned(_ context.Context, conversationID string) (out []*models.WikiPage, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for _, id := range st.wikiPins[conversationID] {
			if page, ok := st.wiki[id]; ok {
				out = append(out, &page)
			}
		}
	})
	return out, nil
}

func (r wikiRepo) FindByTitleOrSlug(_ context.Context, title, slug string) (p *models.WikiPage, err error) {
	r.s.read(func(st *state, _ time.Time) {
		for _, id := range sortedKeys(st.wiki) {
			page := st.wiki[id]
			if strings.EqualFold(page.Title, title) || page.Slug == slug {
				p = &page
				return
			}
		}
		err = common.ErrorNotFound
	})
	return p, err
}

func (r wikiRepo) Search(_ context.Context, q string, excludeIDs []string, limit int) ([]*models.WikiPage, error) {
	terms := tokenize(q)
	type ranked struct {
		page *models.WikiPage
		rank int
	}
	var found []ranked
	r.s.read(func(st *state, _ time.Time) {
		for _, id := range sortedKeys(st.wiki) {
			if slices.Contains(excludeIDs, id) {
				continue
			}
			page := st.wiki[id]
			text := strings.ToLower(page.Title + " " + page.Content)
			rank := 0
			for _, t := range terms {
				rank += strings.Count(text, t)
			}
			if rank > 0 {
				found = append(found, ranked{page: &page, rank: rank})
			}
		}
	})
	slices.SortStableFunc(found, func(a, b ranked) int { return b.rank - a.rank })

	var out []*models.WikiPage
	for _, f := range found {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, f.page)
	}
	return out, nil
}

func (r wikiRepo) NextVersion(_ context.Context, pageID string) (v int, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for _, ver := range st.versions[pageID] {
			v = max(v, ver.Version)
		}
	})
	return v + 1, nil
}

func (r wikiRepo) AddVersion(_ context.Context, v *models.WikiVersion) (err error) {
	r.s.read(func(st *state, now time.Time) {
		for _, existing := range st.versions[v.PageID] {
			if existing.Version == v.Version {
				err = errDuplicate("wiki_versions", v.PageID)
				return
			}
		}
		v.CreatedAt = now
		st.versions[v.PageID] = append(st.versions[v.PageID], *v)
	})
	return err
}

func (r wikiRepo) PruneVersions(_ context.Context, pageID string, keep int) (removed []string, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		versions := st.versions[pageID]
		slices.SortFunc(versions, func(a, b models.WikiVersion) int { return b.Version - a.Version })
		if len(versions) <= keep {
			return
		}
		for _, v := range versions[keep:] {
			removed = append(removed, v.StorageKey)
		}
		st.versions[pageID] = slices.Clone(versions[:keep])
	})
	return removed, nil
}

type tagRepo struct{ s *Store }

func (r tagRepo) ListForConversation(_ context.Context, conversationID string) (out []models.Tag, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		out = slices.Clone(st.tags[conversationID])
	})
	slices.SortFunc(out, func(a, b models.Tag) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

type gossipRepo struct{ s *Store }

func (r gossipRepo) Create(_ context.Context, g *models.GossipMessage) error {
	r.s.read(func(st *state, now time.Time) {
		g.CreatedAt = now
		st.gossip = append(st.gossip, *g)
	})
	return nil
}

func (r gossipRepo) Recent(_ context.Context, limit int) (out []*models.GossipMessage, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for i := len(st.gossip) - 1; i >= 0; i-- {
			if limit > 0 && len(out) == limit {
				break
			}
			g := st.gossip[i]
			out = append(out, &g)
		}
	})
	return out, nil
}

func (r gossipRepo) CountSince(_ context.Context, since time.Time) (n int, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for _, g := range st.gossip {
			if g.CreatedAt.After(since) {
				n++
			}
		}
	})
	return n, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
