package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/pocketmoney/internal/model"
)

type GoalStore struct {
	db DBTX
}

func NewGoalStore(db DBTX) *GoalStore {
	return &GoalStore{db: db}
}

const goalCols = `id, kid_user_id, family_id, title, target_amount_cents, target_points, points_per_unit, status, created_at, updated_at`

func scanGoal(sc scanner) (*model.Goal, error) {
	var g model.Goal
	var ppu string
	var created, updated int64
	err := sc.Scan(&g.ID, &g.KidID, &g.FamilyID, &g.Title, &g.TargetAmountCents, &g.TargetPoints,
		&ppu, &g.Status, &created, &updated)
	if err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(ppu)
	if err != nil {
		return nil, fmt.Errorf("parse points_per_unit %q: %w", ppu, err)
	}
	g.PointsPerUnit = d
	g.CreatedAt = fromMillis(created)
	g.UpdatedAt = fromMillis(updated)
	return &g, nil
}

func (s *GoalStore) Create(ctx context.Context, g model.Goal) (*model.Goal, error) {
	if g.ID == "" {
		g.ID = newID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (`+goalCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.KidID, g.FamilyID, g.Title, g.TargetAmountCents, g.TargetPoints,
		g.PointsPerUnit.String(), model.GoalActive, toMillis(g.CreatedAt), toMillis(g.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert goal: %w", err)
	}
	return s.GetByID(ctx, g.ID)
}

func (s *GoalStore) GetByID(ctx context.Context, id string) (*model.Goal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+goalCols+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (s *GoalStore) ListByKid(ctx context.Context, kidID string) ([]model.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+goalCols+` FROM goals WHERE kid_user_id = ? ORDER BY created_at DESC, id ASC`, kidID,
	)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

// Cancel moves an active goal to cancelled. It reports false when the goal
// was no longer active.
func (s *GoalStore) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE goals SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		model.GoalCancelled, toMillis(at), id, model.GoalActive,
	)
	if err != nil {
		return false, fmt.Errorf("cancel goal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
