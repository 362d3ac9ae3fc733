package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/pocketmoney/internal/apperr"
	"github.com/dukerupert/pocketmoney/internal/backup"
)

func newBackupCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create and restore encrypted database snapshots",
	}

	var out string
	create := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the database to --out and/or the configured S3 bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.BackupPassphrase == "" {
				return apperr.Validation("POCKETMONEY_BACKUP_PASSPHRASE is not set")
			}
			db, err := a.database()
			if err != nil {
				return err
			}
			opts := backup.Options{Passphrase: a.cfg.BackupPassphrase, OutPath: out}
			if a.cfg.S3.Enabled() {
				opts.Uploader = backup.NewS3Uploader(a.cfg.S3)
			}
			if opts.OutPath == "" && opts.Uploader == nil {
				return apperr.Validation("pass --out or configure POCKETMONEY_S3_*")
			}
			res, err := backup.Create(cmd.Context(), db, opts, a.logger)
			if err != nil {
				return err
			}
			return a.output(cmd).success(res, func(w io.Writer) {
				fmt.Fprintf(w, "backup %s (%d bytes)", res.Key, res.Size)
				if res.Path != "" {
					fmt.Fprintf(w, " written to %s", res.Path)
				}
				if res.Uploaded {
					fmt.Fprintf(w, " uploaded to s3://%s", a.cfg.S3.Bucket)
				}
				fmt.Fprintln(w)
			})
		},
	}
	create.Flags().StringVar(&out, "out", "", "write the sealed snapshot to this file")

	var in, to string
	restore := &cobra.Command{
		Use:   "restore",
		Short: "Decrypt a snapshot into a new database file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.BackupPassphrase == "" {
				return apperr.Validation("POCKETMONEY_BACKUP_PASSPHRASE is not set")
			}
			version, err := backup.Restore(in, to, a.cfg.BackupPassphrase)
			if err != nil {
				return err
			}
			return a.output(cmd).success(map[string]any{"path": to, "version": version}, func(w io.Writer) {
				fmt.Fprintf(w, "restored %s at version %d\n", to, version)
			})
		},
	}
	restore.Flags().StringVar(&in, "in", "", "sealed snapshot file")
	restore.Flags().StringVar(&to, "to", "", "new database path")
	restore.MarkFlagRequired("in")
	restore.MarkFlagRequired("to")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Show recent backup attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			history, err := backup.History(cmd.Context(), db, limit)
			if err != nil {
				return err
			}
			return a.output(cmd).success(history, func(w io.Writer) {
				if len(history) == 0 {
					fmt.Fprintln(w, "no backups recorded")
					return
				}
				for _, b := range history {
					fmt.Fprintf(w, "%s  %-9s %8d bytes  %s", b.StartedAt.Format(time.RFC3339), b.Status, b.SizeBytes, b.Key)
					if b.ErrorMessage != "" {
						fmt.Fprintf(w, "  (%s)", b.ErrorMessage)
					}
					fmt.Fprintln(w)
				}
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum attempts to show (0 for all)")

	cmd.AddCommand(create, restore, list)
	return cmd
}
