package jobs

import (
	"context"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/logging"
)

const (
	periodicInterval = 6 * time.Hour
	dailyHourUTC     = 3
)

// Scheduler sends the periodic jobs: summarize_batch and water_cooler every
// six hours (00, 06, 12, 18 UTC) and database_backup and archive_batch daily
// at 03:00 UTC.
type Scheduler struct {
	queue Queue
	log   logging.Logger
	now   func() time.Time
}

func NewScheduler(q Queue, log logging.Logger) *Scheduler {
	return &Scheduler{queue: q, log: log.With("module", "scheduler"), now: time.Now}
}

// Next returns the first schedule instant strictly after t.
func Next(t time.Time) time.Time {
	t = t.UTC()
	periodic := t.Truncate(periodicInterval).Add(periodicInterval)

	day := time.Date(t.Year(), t.Month(), t.Day(), dailyHourUTC, 0, 0, 0, time.UTC)
	if !day.After(t) {
		day = day.AddDate(0, 0, 1)
	}

	if day.Before(periodic) {
		return day
	}
	return periodic
}

// JobsAt returns the jobs due at schedule instant at.
func JobsAt(at time.Time) []Job {
	at = at.UTC()
	if at.Minute() != 0 || at.Second() != 0 {
		return nil
	}
	var js []Job
	if at.Hour()%6 == 0 {
		js = append(js, SummarizeBatch{}, WaterCooler{})
	}
	if at.Hour() == dailyHourUTC {
		js = append(js, DatabaseBackup{}, ArchiveBatch{})
	}
	return js
}

// Run fires scheduled jobs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := Next(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.Fire(ctx, next)
	}
}

// Fire sends the jobs due at the given instant.
func (s *Scheduler) Fire(ctx context.Context, at time.Time) {
	js := JobsAt(at)
	if len(js) == 0 {
		return
	}
	if err := s.queue.SendBatch(ctx, js); err != nil {
		s.log.Error(ctx, "send scheduled jobs", "at", at, "error", err)
		return
	}
	s.log.Info(ctx, "scheduled jobs sent", "at", at, "count", len(js))
}
