// Package api serves the HTTP API: JSON resources, multipart uploads and the
// server-sent event streams of assistant replies.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/archive"
	"github.com/njarm23/ClaudeMemories/internal/server/chat"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/services"
)

// Deps are the services behind the routes.
type Deps struct {
	Auth          *services.AuthService
	Conversations *services.ConversationService
	Chat          *chat.Service
	Archive       *archive.Engine
	Exporter      *services.Exporter
	Handoff       *services.HandoffWriter
	Gossip        *services.GossipService
	Speech        *services.SpeechService
	Models        *services.ModelTracker
	Queue         jobs.Queue
}

type Server struct {
	address         string
	deps            Deps
	logger          logging.Logger
	shutdownTimeout time.Duration
	handler         http.Handler
}

func NewServer(address string, deps Deps, l logging.Logger, shutdownTimeout time.Duration) *Server {
	s := &Server{
		address:         address,
		deps:            deps,
		logger:          l.With("module", "http_server"),
		shutdownTimeout: shutdownTimeout,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler with logging and auth applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
