package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Rounding string

const (
	RoundingFloor   Rounding = "floor"
	RoundingNearest Rounding = "nearest"
	RoundingUp      Rounding = "up"
)

type ExchangeRule struct {
	FamilyID              string          `json:"family_id"`
	PointsPerUnit         decimal.Decimal `json:"points_per_unit"`
	Currency              string          `json:"currency"`
	Rounding              Rounding        `json:"rounding"`
	WeeklyAllowancePoints int64           `json:"weekly_allowance_points"`
	RequiredTaskMinPct    int             `json:"required_task_min_pct"`
	UpdatedAt             time.Time       `json:"updated_at"`
}
