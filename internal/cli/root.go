// Package cli implements chatctl, the admin command line for the chat
// backend. Every command opens the configured storage directly, so it works
// while the server is down.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server"
	"github.com/njarm23/ClaudeMemories/internal/server/config"
	"github.com/spf13/cobra"
)

type openFunc func(ctx context.Context, c *config.Config, log logging.Logger) (*server.Storage, error)

// App carries the global flags and the seams commands run against.
type App struct {
	configPath  string
	dsn         string
	blobBackend string
	logLevel    string

	out  io.Writer
	open openFunc
}

func New() *App {
	return &App{out: os.Stdout, open: server.OpenStorage}
}

// Execute runs chatctl with os.Args.
func Execute(ctx context.Context) error {
	return New().RootCmd().ExecuteContext(ctx)
}

// RootCmd builds the command tree.
func (a *App) RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chatctl",
		Short: "Administer the chat backend",
		Long: `chatctl runs maintenance operations against the chat backend's
database and blob store: archiving and restoring conversations, exports,
backups, queueing background jobs, issuing API tokens and migrations.

Settings come from the same JSON file and environment variables the server
reads (DATABASE_URL, S3_*, JWT_SECRET, AUTH_PASSWORD, ...).`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to JSON config file")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "database DSN (overrides DATABASE_URL)")
	root.PersistentFlags().StringVar(&a.blobBackend, "blob", "", `blob backend, "s3" or "memory"`)
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		a.archiveCmd(),
		a.restoreCmd(),
		a.exportCmd(),
		a.backupCmd(),
		a.enqueueCmd(),
		a.tokenCmd(),
		a.migrateCmd(),
	)
	root.SetOut(a.out)
	return root
}

func (a *App) config() *config.Config {
	c := config.LoadFile(a.configPath)
	if a.dsn != "" {
		c.DatabaseDSN = a.dsn
	}
	if a.blobBackend != "" {
		c.BlobBackend = a.blobBackend
	}
	return c
}

// env is what a command body gets: loaded config, a logger and open storage.
type env struct {
	cfg *config.Config
	log logging.Logger
	st  *server.Storage
}

func (a *App) run(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c := a.config()
	log, closer, err := logging.Setup(a.logLevel, c.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	st, err := a.open(ctx, c, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.Close()

	return fn(ctx, &env{cfg: c, log: log, st: st})
}
