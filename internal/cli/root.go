// Package cli implements the pocketmoney operator commands.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/pocketmoney/internal/config"
	"github.com/dukerupert/pocketmoney/internal/database"
	"github.com/dukerupert/pocketmoney/internal/logging"
	"github.com/dukerupert/pocketmoney/internal/telemetry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath string
	Format string // "json" | "text"
}

var validFormats = []string{"text", "json"}

// app is the per-invocation environment shared by subcommands.
type app struct {
	opts     *RootOptions
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	shutdown func(context.Context) error
}

// database opens the store on first use. Opening also applies migrations.
func (a *app) database() (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := database.Open(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.cfg.DBPath, err)
	}
	a.db = db
	return db, nil
}

func (a *app) close(ctx context.Context) {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil && a.logger != nil {
			a.logger.Warn("telemetry shutdown", "error", err)
		}
	}
}

func (a *app) output(cmd *cobra.Command) *output {
	return &output{format: a.opts.Format, w: cmd.OutOrStdout()}
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{opts: &RootOptions{}})
}

// Run executes the command line args and returns the process exit code.
// Errors are rendered to stderr in the selected format.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{opts: &RootOptions{}}
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	a.close(ctx)
	if err != nil {
		WriteError(stderr, a.opts.Format, err)
	}
	return ExitCode(err)
}

func newRootCommand(a *app) *cobra.Command {
	opts := a.opts

	cmd := &cobra.Command{
		Use:           "pocketmoney",
		Short:         "Operate the pocketmoney points engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if opts.DBPath != "" {
				cfg.DBPath = opts.DBPath
			}
			a.cfg = cfg
			a.logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)

			a.shutdown, err = telemetry.Setup(cmd.Context(), "pocketmoney", cfg.OTelEndpoint)
			if err != nil {
				return fmt.Errorf("setup telemetry: %w", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database path (overrides POCKETMONEY_DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newMigrateCommand(a))
	cmd.AddCommand(newAllowanceCommand(a))
	cmd.AddCommand(newQuoteCommand(a))
	cmd.AddCommand(newLedgerCommand(a))
	cmd.AddCommand(newStatusCommand(a))
	cmd.AddCommand(newChoresCommand(a))
	cmd.AddCommand(newBackupCommand(a))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}
