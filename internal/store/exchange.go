package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/pocketmoney/internal/model"
)

type ExchangeStore struct {
	db DBTX
}

func NewExchangeStore(db DBTX) *ExchangeStore {
	return &ExchangeStore{db: db}
}

const ruleCols = `family_id, points_per_unit, currency, rounding, weekly_allowance_points, required_task_min_pct, updated_at`

func scanRule(sc scanner) (*model.ExchangeRule, error) {
	var r model.ExchangeRule
	var ppu string
	var updated int64
	if err := sc.Scan(&r.FamilyID, &ppu, &r.Currency, &r.Rounding, &r.WeeklyAllowancePoints, &r.RequiredTaskMinPct, &updated); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(ppu)
	if err != nil {
		return nil, fmt.Errorf("parse points_per_unit %q: %w", ppu, err)
	}
	r.PointsPerUnit = d
	r.UpdatedAt = fromMillis(updated)
	return &r, nil
}

// Upsert replaces the family's exchange rule.
func (s *ExchangeStore) Upsert(ctx context.Context, r model.ExchangeRule) (*model.ExchangeRule, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchange_rules (`+ruleCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(family_id) DO UPDATE SET
		   points_per_unit = excluded.points_per_unit,
		   currency = excluded.currency,
		   rounding = excluded.rounding,
		   weekly_allowance_points = excluded.weekly_allowance_points,
		   required_task_min_pct = excluded.required_task_min_pct,
		   updated_at = excluded.updated_at`,
		r.FamilyID, r.PointsPerUnit.String(), r.Currency, r.Rounding,
		r.WeeklyAllowancePoints, r.RequiredTaskMinPct, toMillis(r.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert exchange rule: %w", err)
	}
	return s.Get(ctx, r.FamilyID)
}

// Get returns nil when the family has no rule configured.
func (s *ExchangeStore) Get(ctx context.Context, familyID string) (*model.ExchangeRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleCols+` FROM exchange_rules WHERE family_id = ?`, familyID)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get exchange rule: %w", err)
	}
	return r, nil
}

// ListWithAllowance returns the rules of families with a positive weekly allowance.
func (s *ExchangeStore) ListWithAllowance(ctx context.Context) ([]model.ExchangeRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleCols+` FROM exchange_rules WHERE weekly_allowance_points > 0 ORDER BY family_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list allowance rules: %w", err)
	}
	defer rows.Close()

	var rules []model.ExchangeRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exchange rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}
