package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/pocketmoney/internal/model"
)

type AchievementStore struct {
	db DBTX
}

func NewAchievementStore(db DBTX) *AchievementStore {
	return &AchievementStore{db: db}
}

// GetStats returns nil for a kid with no approvals yet.
func (s *AchievementStore) GetStats(ctx context.Context, kidID string) (*model.KidStats, error) {
	var st model.KidStats
	var lastDay sql.NullInt64
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT kid_user_id, total_approved, total_points_earned, last_approved_day, current_streak, updated_at
		 FROM kid_stats WHERE kid_user_id = ?`, kidID,
	).Scan(&st.KidID, &st.TotalApproved, &st.TotalPointsEarned, &lastDay, &st.CurrentStreak, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get kid stats: %w", err)
	}
	if lastDay.Valid {
		d := lastDay.Int64
		st.LastApprovedDay = &d
	}
	st.UpdatedAt = fromMillis(updated)
	return &st, nil
}

// PutStats writes the full stats row.
func (s *AchievementStore) PutStats(ctx context.Context, st model.KidStats) error {
	var lastDay sql.NullInt64
	if st.LastApprovedDay != nil {
		lastDay = sql.NullInt64{Int64: *st.LastApprovedDay, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kid_stats (kid_user_id, total_approved, total_points_earned, last_approved_day, current_streak, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(kid_user_id) DO UPDATE SET
		   total_approved = excluded.total_approved,
		   total_points_earned = excluded.total_points_earned,
		   last_approved_day = excluded.last_approved_day,
		   current_streak = excluded.current_streak,
		   updated_at = excluded.updated_at`,
		st.KidID, st.TotalApproved, st.TotalPointsEarned, lastDay, st.CurrentStreak, toMillis(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put kid stats: %w", err)
	}
	return nil
}

// Award inserts the badge unless (kid, key) was already awarded; the unique
// constraint decides, so concurrent awarders cannot both succeed. It reports
// whether this call created the award.
func (s *AchievementStore) Award(ctx context.Context, a *model.BadgeAward) (bool, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	meta := a.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return false, fmt.Errorf("marshal badge metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO badge_awards (id, kid_user_id, achievement_key, awarded_at, metadata) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(kid_user_id, achievement_key) DO NOTHING`,
		a.ID, a.KidID, a.AchievementKey, toMillis(a.AwardedAt), string(metaJSON),
	)
	if err != nil {
		return false, fmt.Errorf("insert badge award: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *AchievementStore) ListAwards(ctx context.Context, kidID string) ([]model.BadgeAward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kid_user_id, achievement_key, awarded_at, metadata
		 FROM badge_awards WHERE kid_user_id = ? ORDER BY awarded_at ASC, rowid ASC`, kidID,
	)
	if err != nil {
		return nil, fmt.Errorf("list badge awards: %w", err)
	}
	defer rows.Close()

	var awards []model.BadgeAward
	for rows.Next() {
		var a model.BadgeAward
		var awarded int64
		var meta string
		if err := rows.Scan(&a.ID, &a.KidID, &a.AchievementKey, &awarded, &meta); err != nil {
			return nil, fmt.Errorf("scan badge award: %w", err)
		}
		a.AwardedAt = fromMillis(awarded)
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
				return nil, fmt.Errorf("decode badge metadata: %w", err)
			}
		}
		awards = append(awards, a)
	}
	return awards, rows.Err()
}
