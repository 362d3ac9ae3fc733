package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/pocketmoney/internal/model"
)

// BackupStore keeps the history of snapshot attempts.
type BackupStore struct {
	db DBTX
}

func NewBackupStore(db DBTX) *BackupStore {
	return &BackupStore{db: db}
}

const backupCols = `id, object_key, path, uploaded, size_bytes, status, error_message, started_at, completed_at`

func scanBackup(sc scanner) (*model.Backup, error) {
	var b model.Backup
	var uploaded int
	var errMsg sql.NullString
	var started, completed int64
	err := sc.Scan(&b.ID, &b.Key, &b.Path, &uploaded, &b.SizeBytes, &b.Status, &errMsg, &started, &completed)
	if err != nil {
		return nil, err
	}
	b.Uploaded = uploaded != 0
	b.ErrorMessage = errMsg.String
	b.StartedAt = fromMillis(started)
	b.CompletedAt = fromMillis(completed)
	return &b, nil
}

// Record saves a finished attempt.
func (s *BackupStore) Record(ctx context.Context, b model.Backup) (*model.Backup, error) {
	if b.ID == "" {
		b.ID = newID()
	}
	var errMsg sql.NullString
	if b.ErrorMessage != "" {
		errMsg = sql.NullString{String: b.ErrorMessage, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (`+backupCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Key, b.Path, boolInt(b.Uploaded), b.SizeBytes, b.Status, errMsg,
		toMillis(b.StartedAt), toMillis(b.CompletedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("record backup: %w", err)
	}
	return &b, nil
}

// List returns attempts newest first. A limit <= 0 returns all.
func (s *BackupStore) List(ctx context.Context, limit int) ([]model.Backup, error) {
	query := `SELECT ` + backupCols + ` FROM backups ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

// LatestCompleted returns the newest successful attempt, or nil.
func (s *BackupStore) LatestCompleted(ctx context.Context) (*model.Backup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+backupCols+` FROM backups WHERE status = ? ORDER BY completed_at DESC, rowid DESC LIMIT 1`,
		model.BackupCompleted,
	)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed backup: %w", err)
	}
	return b, nil
}
