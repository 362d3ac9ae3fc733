package model

import "time"

type KidStats struct {
	KidID             string    `json:"kid_user_id"`
	TotalApproved     int64     `json:"total_approved"`
	TotalPointsEarned int64     `json:"total_points_earned"`
	LastApprovedDay   *int64    `json:"last_approved_day"`
	CurrentStreak     int64     `json:"current_streak"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type BadgeAward struct {
	ID             string            `json:"id"`
	KidID          string            `json:"kid_user_id"`
	AchievementKey string            `json:"achievement_key"`
	AwardedAt      time.Time         `json:"awarded_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
