package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCancelled GoalStatus = "cancelled"
)

type Goal struct {
	ID                string          `json:"id"`
	KidID             string          `json:"kid_user_id"`
	FamilyID          string          `json:"family_id"`
	Title             string          `json:"title"`
	TargetAmountCents int64           `json:"target_amount_cents"`
	TargetPoints      int64           `json:"target_points"`
	PointsPerUnit     decimal.Decimal `json:"points_per_unit"`
	Status            GoalStatus      `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// GoalProgress is the goals read model with computed fields.
type GoalProgress struct {
	Goal
	CurrentBalance int64  `json:"current_balance"`
	Remaining      int64  `json:"remaining"`
	AvgPtsPerDay   int64  `json:"avg_pts_per_day"`
	ETADays        *int64 `json:"eta_days"`
}
