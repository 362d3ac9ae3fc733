// Package backup takes encrypted snapshots of the engine database and
// optionally ships them to S3-compatible storage.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dukerupert/pocketmoney/internal/database"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/store"
)

// Uploader stores a sealed snapshot under key.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) error
}

type Options struct {
	Passphrase string
	// OutPath, when set, receives the sealed snapshot.
	OutPath string
	// Uploader, when set, receives the sealed snapshot as well.
	Uploader Uploader
}

type Result struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Path      string    `json:"path,omitempty"`
	Uploaded  bool      `json:"uploaded"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// snapshot writes a consistent copy of db to path. VACUUM INTO reads inside
// one transaction, so concurrent ledger writes never tear the copy.
func snapshot(ctx context.Context, db *sql.DB, path string) error {
	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}

// Create snapshots db, seals it with opts.Passphrase and delivers it to the
// configured destinations. Every attempt that gets past option checks is
// recorded in the backups table, successful or not.
func Create(ctx context.Context, db *sql.DB, opts Options, logger *slog.Logger) (res *Result, err error) {
	if opts.OutPath == "" && opts.Uploader == nil {
		return nil, fmt.Errorf("backup needs an output path or an uploader")
	}

	started := time.Now().UTC()
	rec := model.Backup{
		Key:       fmt.Sprintf("pocketmoney-%s.db.enc", started.Format("2006-01-02T150405Z")),
		StartedAt: started,
	}
	defer func() {
		rec.Status, rec.CompletedAt = model.BackupCompleted, time.Now().UTC()
		if err != nil {
			rec.Status, rec.ErrorMessage = model.BackupFailed, err.Error()
		}
		saved, rerr := store.NewBackupStore(db).Record(ctx, rec)
		if rerr != nil {
			logger.Warn("backup history not recorded", "key", rec.Key, "error", rerr)
			return
		}
		if res != nil {
			res.ID = saved.ID
		}
	}()

	tmpDir, err := os.MkdirTemp("", "pocketmoney-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	plainPath := filepath.Join(tmpDir, "snapshot.db")
	if err = snapshot(ctx, db, plainPath); err != nil {
		return nil, err
	}
	plain, err := os.ReadFile(plainPath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	sealed, err := Seal(plain, opts.Passphrase)
	if err != nil {
		return nil, err
	}
	rec.SizeBytes = int64(len(sealed))

	if opts.OutPath != "" {
		if err = os.WriteFile(opts.OutPath, sealed, 0o600); err != nil {
			return nil, fmt.Errorf("write backup: %w", err)
		}
		rec.Path = opts.OutPath
	}
	if opts.Uploader != nil {
		if err = opts.Uploader.Upload(ctx, rec.Key, sealed); err != nil {
			return nil, fmt.Errorf("upload backup: %w", err)
		}
		rec.Uploaded = true
	}

	logger.Info("backup created", "key", rec.Key, "size", rec.SizeBytes, "uploaded", rec.Uploaded)
	return &Result{
		Key:       rec.Key,
		Path:      rec.Path,
		Uploaded:  rec.Uploaded,
		Size:      rec.SizeBytes,
		CreatedAt: started,
	}, nil
}

// History lists recorded attempts, newest first.
func History(ctx context.Context, db *sql.DB, limit int) ([]model.Backup, error) {
	return store.NewBackupStore(db).List(ctx, limit)
}

// Restore decrypts the backup at srcPath into dstPath and checks that the
// result opens as an engine database. dstPath must not exist.
func Restore(srcPath, dstPath, passphrase string) (version int64, err error) {
	if _, err := os.Stat(dstPath); err == nil {
		return 0, fmt.Errorf("restore target %s already exists", dstPath)
	}
	sealed, err := os.ReadFile(srcPath)
	if err != nil {
		return 0, fmt.Errorf("read backup: %w", err)
	}
	plain, err := Open(sealed, passphrase)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(dstPath, plain, 0o600); err != nil {
		return 0, fmt.Errorf("write restored database: %w", err)
	}

	db, err := database.Open(dstPath)
	if err != nil {
		os.Remove(dstPath)
		return 0, fmt.Errorf("validate restored database: %w", err)
	}
	defer db.Close()
	return database.Version(db)
}
