package model

import "time"

type LedgerReason string

const (
	ReasonChoreApproved   LedgerReason = "chore_approved"
	ReasonBadgeBonus      LedgerReason = "badge_bonus"
	ReasonWeeklyAllowance LedgerReason = "weekly_allowance"
	ReasonPayout          LedgerReason = "payout"
	ReasonAdjustment      LedgerReason = "adjustment"
)

type LedgerEntry struct {
	ID             string       `json:"id"`
	KidID          string       `json:"kid_user_id"`
	FamilyID       string       `json:"family_id"`
	Delta          int64        `json:"delta_points"`
	Reason         LedgerReason `json:"reason"`
	RefID          *string      `json:"ref_id"`
	IdempotencyKey *string      `json:"-"`
	CreatedAt      time.Time    `json:"created_at"`
}
