package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/pocketmoney/internal/model"
)

// LedgerStore persists the append-only points ledger and the materialized
// per-kid balance. Append and Debit issue more than one statement and must be
// called on a store bound to a transaction (see InTx).
type LedgerStore struct {
	db DBTX
}

func NewLedgerStore(db DBTX) *LedgerStore {
	return &LedgerStore{db: db}
}

func scanEntry(sc scanner) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var refID, key sql.NullString
	var created int64
	if err := sc.Scan(&e.ID, &e.KidID, &e.FamilyID, &e.Delta, &e.Reason, &refID, &key, &created); err != nil {
		return nil, err
	}
	e.RefID = stringPtr(refID)
	e.IdempotencyKey = stringPtr(key)
	e.CreatedAt = fromMillis(created)
	return &e, nil
}

const entryCols = `id, kid_user_id, family_id, delta_points, reason, ref_id, idempotency_key, created_at`

// Append writes e and adds its delta to the kid's balance. When e carries an
// idempotency key that was already used, nothing is written and applied is
// false.
func (s *LedgerStore) Append(ctx context.Context, e *model.LedgerEntry) (applied bool, err error) {
	if e.ID == "" {
		e.ID = newID()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (`+entryCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(idempotency_key) DO NOTHING`,
		e.ID, e.KidID, e.FamilyID, e.Delta, e.Reason, nullString(e.RefID), nullString(e.IdempotencyKey), toMillis(e.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := s.addToBalance(ctx, e.KidID, e.FamilyID, e.Delta, e.CreatedAt); err != nil {
		return false, err
	}
	return true, nil
}

// addToBalance increments the balance in a single statement so concurrent
// writers never lose an update.
func (s *LedgerStore) addToBalance(ctx context.Context, kidID, familyID string, delta int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kid_balances (kid_user_id, family_id, balance, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(kid_user_id) DO UPDATE SET balance = balance + excluded.balance, updated_at = excluded.updated_at`,
		kidID, familyID, delta, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

// Debit withdraws points only if the balance covers them, then records the
// negative entry. It reports false when the balance is insufficient.
func (s *LedgerStore) Debit(ctx context.Context, e *model.LedgerEntry) (bool, error) {
	if e.Delta >= 0 {
		return false, fmt.Errorf("debit requires a negative delta, got %d", e.Delta)
	}
	if e.ID == "" {
		e.ID = newID()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE kid_balances SET balance = balance + ?, updated_at = ?
		 WHERE kid_user_id = ? AND balance + ? >= 0`,
		e.Delta, toMillis(e.CreatedAt), e.KidID, e.Delta,
	)
	if err != nil {
		return false, fmt.Errorf("debit balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (`+entryCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.KidID, e.FamilyID, e.Delta, e.Reason, nullString(e.RefID), nullString(e.IdempotencyKey), toMillis(e.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	return true, nil
}

// Balance returns the materialized balance, 0 for a kid with no entries.
func (s *LedgerStore) Balance(ctx context.Context, kidID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM kid_balances WHERE kid_user_id = ?`, kidID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// SumDeltas recomputes the balance from the log.
func (s *LedgerStore) SumDeltas(ctx context.Context, kidID string) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta_points), 0) FROM ledger_entries WHERE kid_user_id = ?`, kidID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger deltas: %w", err)
	}
	return sum, nil
}

// SumPositiveSince totals the kid's earnings (positive deltas) at or after since.
func (s *LedgerStore) SumPositiveSince(ctx context.Context, kidID string, since time.Time) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta_points), 0) FROM ledger_entries
		 WHERE kid_user_id = ? AND delta_points > 0 AND created_at >= ?`,
		kidID, toMillis(since),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum positive deltas: %w", err)
	}
	return sum, nil
}

// ListByKid returns the kid's entries, newest first. A limit <= 0 returns all.
func (s *LedgerStore) ListByKid(ctx context.Context, kidID string, limit int) ([]model.LedgerEntry, error) {
	query := `SELECT ` + entryCols + ` FROM ledger_entries WHERE kid_user_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []any{kidID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
