package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/cryptox"
	"github.com/njarm23/ClaudeMemories/internal/filex"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/archive"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/services"
	"github.com/spf13/cobra"
)

func (e *env) engine() *archive.Engine {
	return archive.NewEngine(e.st.Repos, e.st.Blobs, jobs.NewStoreQueue(e.st.Repos), e.log, e.cfg.ArchiveClaimTTL)
}

func (a *App) archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <conversation-id>",
		Short: "Move a conversation to cold storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, e *env) error {
				res, err := e.engine().Archive(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "archived %s: %d messages -> %s\n", res.ConversationID, res.Messages, res.Key)
				return nil
			})
		},
	}
}

func (a *App) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <conversation-id>",
		Short: "Bring an archived conversation back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, e *env) error {
				res, err := e.engine().Restore(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "restored %s: %d messages\n", res.ConversationID, res.Messages)
				return nil
			})
		},
	}
}

func (a *App) exportCmd() *cobra.Command {
	var (
		format string
		output string
		store  bool
	)
	cmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Render a conversation as markdown or JSON",
		Long: `Render a conversation as markdown or JSON.

By default the document is written to stdout, or to --output. With --store
it is saved under exports/ in the blob store instead and the key is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, e *env) error {
				exp := services.NewExporter(e.st.Repos, e.st.Blobs, e.log)
				if store {
					res, err := exp.Export(ctx, args[0], format)
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "%s (%d bytes)\n", res.Key, res.Size)
					return nil
				}

				r, err := exp.Render(ctx, args[0], format)
				if err != nil {
					return err
				}
				return a.emit(r.Body, output)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", `"markdown" or "json"`)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&store, "store", false, "save to the blob store")
	return cmd
}

// emit writes body to a.out, or to path when one is given.
func (a *App) emit(body []byte, path string) error {
	if path == "" {
		_, err := a.out.Write(body)
		return err
	}
	if err := filex.WriteFile(path, body); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s\n", path)
	return nil
}

func (a *App) backupCmd() *cobra.Command {
	var fetch, output string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Dump the database to the blob store now",
		Long: `Dump the database to the blob store now and print the new key.

With --fetch, download an existing backup instead. Backups sealed with
BACKUP_PASSPHRASE are opened with the same passphrase.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, e *env) error {
				svc := services.NewBackupService(e.st.Repos, e.st.Blobs, e.log).WithPassphrase(e.cfg.BackupPassphrase)
				if fetch != "" {
					body, err := svc.Fetch(ctx, fetch)
					if err != nil {
						return err
					}
					return a.emit(body, output)
				}
				key, err := svc.Run(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fetch, "fetch", "", "download the backup with this key")
	cmd.Flags().StringVarP(&output, "output", "o", "", "with --fetch, write to file instead of stdout")
	return cmd
}

// enqueueable are the kinds an operator may queue by hand.
var enqueueable = []string{
	jobs.KindSummarizeBatch,
	jobs.KindSummarizeConversation,
	jobs.KindWaterCooler,
	jobs.KindExportConversation,
	jobs.KindDatabaseBackup,
	jobs.KindArchiveBatch,
	jobs.KindArchiveConversation,
}

func jobFor(kind, conversationID, format string) (jobs.Job, error) {
	needsConversation := func() error {
		if conversationID == "" {
			return common.NewValidationError("conversation", kind+" needs --conversation")
		}
		return nil
	}

	switch kind {
	case jobs.KindSummarizeBatch:
		return jobs.SummarizeBatch{}, nil
	case jobs.KindWaterCooler:
		return jobs.WaterCooler{}, nil
	case jobs.KindDatabaseBackup:
		return jobs.DatabaseBackup{}, nil
	case jobs.KindArchiveBatch:
		return jobs.ArchiveBatch{}, nil
	case jobs.KindSummarizeConversation:
		if err := needsConversation(); err != nil {
			return nil, err
		}
		return jobs.SummarizeConversation{ConversationID: conversationID}, nil
	case jobs.KindArchiveConversation:
		if err := needsConversation(); err != nil {
			return nil, err
		}
		return jobs.ArchiveConversation{ConversationID: conversationID}, nil
	case jobs.KindExportConversation:
		if err := needsConversation(); err != nil {
			return nil, err
		}
		return jobs.ExportConversation{ConversationID: conversationID, Format: services.NormalizeFormat(format)}, nil
	}
	return nil, common.NewValidationError("kind", fmt.Sprintf("unknown job kind %q (one of %s)", kind, strings.Join(enqueueable, ", ")))
}

func (a *App) enqueueCmd() *cobra.Command {
	var conversationID, format string
	cmd := &cobra.Command{
		Use:       "enqueue <kind>",
		Short:     "Queue a background job for the server's consumer",
		Long:      "Queue a background job. Kinds: " + strings.Join(enqueueable, ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: slices.Clone(enqueueable),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := jobFor(args[0], conversationID, format)
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, e *env) error {
				if err := jobs.NewStoreQueue(e.st.Repos).Send(ctx, j); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "queued %s\n", j.Kind())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id for per-conversation kinds")
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "export format")
	return cmd
}

func (a *App) tokenCmd() *cobra.Command {
	var validity time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		Long: `Prompt for the login password and print a bearer token. --validity
overrides the configured token lifetime.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.config()
			pw, err := getPassword(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			auth := services.NewAuthService(c, logging.Nop())
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			tok, err := auth.Login(ctx, string(pw))
			cryptox.Wipe(pw)
			if err != nil {
				return err
			}
			if validity > 0 {
				if tok, err = auth.IssueToken(validity); err != nil {
					return err
				}
			}
			fmt.Fprintln(a.out, tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&validity, "validity", 0, "token lifetime, e.g. 24h")
	return cmd
}

func (a *App) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, e *env) error {
				if err := e.st.Repos.RunMigrations(ctx); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "migrations applied")
				return nil
			})
		},
	}
}
