package memory

import (
	"context"
	"slices"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type modelStatsRepo struct{ s *Store }

func (r modelStatsRepo) Current(_ context.Context) (o *models.ModelObservation, err error) {
	r.s.read(func(st *state, _ time.Time) {
		if st.current == nil {
			err = common.ErrorNotFound
			return
		}
		cur := *st.current
		o = &cur
	})
	return o, err
}

func (r modelStatsRepo) SetCurrent(_ context.Context, o models.ModelObservation) error {
	r.s.read(func(st *state, _ time.Time) {
		st.current = &o
	})
	return nil
}

func (r modelStatsRepo) IncrementFamily(_ context.Context, o models.ModelObservation) error {
	r.s.read(func(st *state, _ time.Time) {
		fc := st.counts[o.Family]
		fc.Family, fc.Provider, fc.LastSeen = o.Family, o.Provider, o.SeenAt
		fc.Requests++
		st.counts[o.Family] = fc
	})
	return nil
}

func (r modelStatsRepo) AddChange(_ context.Context, c models.ModelChange, keep int) error {
	r.s.read(func(st *state, _ time.Time) {
		st.changes = append(st.changes, c)
		if len(st.changes) > keep {
			st.changes = slices.Clone(st.changes[len(st.changes)-keep:])
		}
	})
	return nil
}

func (r modelStatsRepo) Counts(_ context.Context) (out []models.FamilyCount, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for _, fc := range st.counts {
			out = append(out, fc)
		}
	})
	slices.SortFunc(out, func(a, b models.FamilyCount) int {
		if a.Requests != b.Requests {
			if a.Requests > b.Requests {
				return -1
			}
			return 1
		}
		return compareStrings(a.Family, b.Family)
	})
	return out, nil
}

func (r modelStatsRepo) Changes(_ context.Context, limit int) (out []models.ModelChange, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for i := len(st.changes) - 1; i >= 0; i-- {
			if limit > 0 && len(out) == limit {
				break
			}
			out = append(out, st.changes[i])
		}
	})
	return out, nil
}
