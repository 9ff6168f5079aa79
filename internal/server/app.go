// Package server wires the chat backend together: storage, the completion
// provider, background jobs and the HTTP API. It runs them until a signal
// arrives and then drains in-flight streams before exiting.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/api"
	"github.com/njarm23/ClaudeMemories/internal/server/archive"
	"github.com/njarm23/ClaudeMemories/internal/server/chat"
	"github.com/njarm23/ClaudeMemories/internal/server/config"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/llm"
	"github.com/njarm23/ClaudeMemories/internal/server/provider"
	"github.com/njarm23/ClaudeMemories/internal/server/services"
	"github.com/njarm23/ClaudeMemories/internal/server/supervisor"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	storage   *Storage
	server    *api.Server
	processor *jobs.Processor
	scheduler *jobs.Scheduler
	sup       *supervisor.Supervisor
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, logCloser, err := logging.Setup(c.LogLevel, c.LogFile)
	if err != nil {
		return nil, err
	}

	app, err := build(ctx, c, logger)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}
	app.logCloser = logCloser
	return app, nil
}

// build constructs every component on top of freshly opened storage and
// applies pending migrations.
func build(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	st, err := OpenStorage(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Repos.RunMigrations(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	gen, err := llm.NewAnthropicModel(c.AnthropicAPIKey, c.UtilityModel, c.AnthropicBaseURL)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	rm, blobs := st.Repos, st.Blobs
	queue := jobs.NewStoreQueue(rm)
	sup := supervisor.New(logger)

	authSvc := services.NewAuthService(c, logger)
	tracker := services.NewModelTracker(rm, logger)
	gossip := services.NewGossipService(rm)
	exporter := services.NewExporter(rm, blobs, logger)
	engine := archive.NewEngine(rm, blobs, queue, logger, c.ArchiveClaimTTL)

	var speaker services.Speaker
	if c.OpenAIAPIKey != "" {
		speaker = services.NewOpenAISpeaker(c.OpenAIAPIKey, "")
	} else {
		logger.Info(ctx, "OPENAI_API_KEY not set, text-to-speech disabled")
	}

	relay := chat.NewRelay(rm, provider.NewAnthropicClient(c.AnthropicAPIKey, c.AnthropicBaseURL, nil), queue, tracker, sup, logger)
	chatSvc := chat.NewService(rm, chat.NewResolver(rm, blobs, logger), chat.NewPreambleBuilder(rm, logger), relay, logger)

	handler := services.NewJobHandler(rm, queue, services.JobDeps{
		Gossip:      gossip,
		Summarizer:  services.NewSummarizer(rm, gen, queue, logger, c.UtilityModel),
		WaterCooler: services.NewWaterCooler(rm, gen, gossip, logger, c.UtilityModel),
		Exporter:    exporter,
		Wiki:        services.NewWikiVersioner(rm, blobs, logger),
		Backup:      services.NewBackupService(rm, blobs, logger).WithPassphrase(c.BackupPassphrase),
		Archiver:    engine,
	}, c.ArchiveIdleDays, logger)

	srv := api.NewServer(c.ListenAddr, api.Deps{
		Auth:          authSvc,
		Conversations: services.NewConversationService(rm, blobs, queue, logger),
		Chat:          chatSvc,
		Archive:       engine,
		Exporter:      exporter,
		Handoff:       services.NewHandoffWriter(rm, gen, queue, logger, c.UtilityModel),
		Gossip:        gossip,
		Speech:        services.NewSpeechService(speaker),
		Models:        tracker,
		Queue:         queue,
	}, logger, c.ShutdownTimeout)

	return &App{
		config:  c,
		logger:  logger,
		storage: st,
		server:  srv,
		processor: jobs.NewProcessor(rm, handler, logger, jobs.ProcessorConfig{
			PollInterval: c.QueuePollInterval,
			BatchSize:    c.QueueBatchSize,
			Visibility:   c.QueueVisibilityTimeout,
			MaxAttempts:  c.QueueMaxAttempts,
		}),
		scheduler: jobs.NewScheduler(queue, logger),
		sup:       sup,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled or a termination signal arrives. The HTTP
// server, job consumer and scheduler stop first, then in-flight stream
// finalizations get up to ShutdownTimeout to finish.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.processor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		app.scheduler.Run(ctx)
	}()

	wg.Wait()

	bg := context.Background()
	if !app.sup.Wait(app.config.ShutdownTimeout) {
		app.logger.Warn(bg, "shutdown timeout reached with streams still finalizing", "active", app.sup.Active())
	}
	if err := app.storage.Close(); err != nil {
		app.logger.Error(bg, "close storage", "error", err)
	}
	app.logger.Info(bg, "app stopped")
	if app.logCloser != nil {
		_ = app.logCloser.Close()
	}
}
