package memory

import (
	"context"
	"slices"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type jobRepo struct{ s *Store }

func (r jobRepo) Enqueue(_ context.Context, id, kind string, payload []byte, delay time.Duration) (err error) {
	r.s.read(func(st *state, now time.Time) {
		if _, ok := st.jobs[id]; ok {
			err = errDuplicate("jobs", id)
			return
		}
		st.jobs[id] = jobRow{
			QueuedJob:   models.QueuedJob{ID: id, Kind: kind, Payload: slices.Clone(payload), CreatedAt: now},
			availableAt: now.Add(delay),
			seq:         st.nextSeq(),
		}
	})
	return err
}

func (r jobRepo) Receive(_ context.Context, batch int, visibility time.Duration) (out []*models.QueuedJob, _ error) {
	r.s.read(func(st *state, now time.Time) {
		var ready []jobRow
		for _, j := range st.jobs {
			if j.availableAt.After(now) {
				continue
			}
			if j.lockedUntil != nil && !j.lockedUntil.Before(now) {
				continue
			}
			ready = append(ready, j)
		}
		slices.SortFunc(ready, func(a, b jobRow) int {
			if c := a.availableAt.Compare(b.availableAt); c != 0 {
				return c
			}
			return int(a.seq - b.seq)
		})
		if len(ready) > batch {
			ready = ready[:batch]
		}
		lease := now.Add(visibility)
		for _, j := range ready {
			j.Attempts++
			j.lockedUntil = &lease
			st.jobs[j.ID] = j
			q := j.QueuedJob
			out = append(out, &q)
		}
	})
	return out, nil
}

func (r jobRepo) Ack(_ context.Context, id string) (err error) {
	r.s.read(func(st *state, _ time.Time) {
		if _, ok := st.jobs[id]; !ok {
			err = common.ErrorNotFound
			return
		}
		delete(st.jobs, id)
	})
	return err
}

func (r jobRepo) Retry(_ context.Context, id string, delay time.Duration, lastErr string) (err error) {
	r.s.read(func(st *state, now time.Time) {
		j, ok := st.jobs[id]
		if !ok {
			err = common.ErrorNotFound
			return
		}
		j.lockedUntil = nil
		j.availableAt = now.Add(delay)
		j.lastError = &lastErr
		st.jobs[id] = j
	})
	return err
}

func (r jobRepo) DeadLetter(_ context.Context, id, reason string) (err error) {
	r.s.read(func(st *state, now time.Time) {
		j, ok := st.jobs[id]
		if !ok {
			err = common.ErrorNotFound
			return
		}
		delete(st.jobs, id)
		st.dead = append(st.dead, models.DeadJob{
			ID: j.ID, Kind: j.Kind, Payload: string(j.Payload), Attempts: j.Attempts,
			LastError: &reason, CreatedAt: j.CreatedAt, DiedAt: now,
		})
	})
	return err
}

func (r jobRepo) ListDead(_ context.Context, limit int) (out []*models.DeadJob, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		for i := len(st.dead) - 1; i >= 0; i-- {
			if limit > 0 && len(out) == limit {
				break
			}
			d := st.dead[i]
			out = append(out, &d)
		}
	})
	return out, nil
}

func (r jobRepo) Pending(_ context.Context) (n int, _ error) {
	r.s.read(func(st *state, _ time.Time) {
		n = len(st.jobs)
	})
	return n, nil
}
