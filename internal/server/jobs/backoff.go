package jobs

import (
	"math/rand/v2"
	"time"
)

const (
	baseRetryDelay = 10 * time.Second
	maxRetryDelay  = 5 * time.Minute
)

// Backoff returns the delay before redelivering a job that failed on the
// given attempt: 10s doubled per attempt, capped at 5m, with +/-25% jitter.
func Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := baseRetryDelay * time.Duration(1<<uint(attempt-1))
	if d > maxRetryDelay || d <= 0 {
		d = maxRetryDelay
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2)) - d/4
	return d + jitter
}
