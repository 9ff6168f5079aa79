// Package supervisor owns background tasks that must outlive the request
// that started them, such as finalizing a response stream after the client
// went away.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/logging"
)

// ErrClosed is returned by Go after Wait has been called.
var ErrClosed = errors.New("supervisor closed")

type Supervisor struct {
	log    logging.Logger
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	active int
}

func New(log logging.Logger) *Supervisor {
	return &Supervisor{log: log.With("module", "supervisor")}
}

// Go runs fn in a new goroutine with a context detached from ctx's
// cancellation but carrying its values. Panics are recovered and logged.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(ctx context.Context)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.active++
	s.wg.Add(1)
	s.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				s.log.Error(detached, "task panicked", "task", name, "panic", p)
			}
			s.mu.Lock()
			s.active--
			s.mu.Unlock()
			s.wg.Done()
		}()
		fn(detached)
	}()
	return nil
}

// Active reports the number of running tasks.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Wait stops accepting tasks and blocks until running ones finish or
// timeout elapses. It reports whether all tasks finished.
func (s *Supervisor) Wait(timeout time.Duration) bool {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		s.log.Warn(context.Background(), "shutdown timed out with tasks running", "active", s.Active())
		return false
	}
}
