// Package eligibility scores how much of a kid's recent approved work was
// required chores. It only reads.
package eligibility

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/pocketmoney/internal/apperr"
	"github.com/dukerupert/pocketmoney/internal/chore"
	"github.com/dukerupert/pocketmoney/internal/exchange"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/store"
	"github.com/dukerupert/pocketmoney/internal/telemetry"
)

// Window is the trailing period approvals are counted over.
const Window = 7 * 24 * time.Hour

type Report struct {
	KidID         string        `json:"kid_user_id"`
	WindowStart   time.Time     `json:"window_start"`
	RequiredCount int64         `json:"required_count"`
	TotalCount    int64         `json:"total_count"`
	Pct           int64         `json:"pct"`
	MinPct        int           `json:"required_task_min_pct"`
	Eligible      bool          `json:"eligible"`
	Outstanding   []Outstanding `json:"outstanding_required"`
}

// Outstanding is a required chore not yet approved, with where it stands
// against its due date.
type Outstanding struct {
	model.Chore
	DueState chore.DueState `json:"due_state"`
}

type Calculator struct {
	chores  *store.ChoreStore
	members *store.FamilyStore
	rules   *store.ExchangeStore
	now     func() time.Time
}

func NewCalculator(db *sql.DB) *Calculator {
	return &Calculator{
		chores:  store.NewChoreStore(db),
		members: store.NewFamilyStore(db),
		rules:   store.NewExchangeStore(db),
		now:     time.Now,
	}
}

func (c *Calculator) SetClock(now func() time.Time) {
	c.now = now
}

// Pct is round(required / total * 100), or 0 with no approvals.
func Pct(required, total int64) int64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromInt(required).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(total)).
		Round(0).
		IntPart()
}

// Compute scores kidID over the trailing window by approval time.
func (c *Calculator) Compute(ctx context.Context, kidID string) (r *Report, err error) {
	ctx, span := telemetry.Start(ctx, "eligibility.compute")
	defer func() { telemetry.End(span, err) }()

	if kidID == "" {
		return nil, apperr.New(apperr.CodeKidRequired, "kid id is required")
	}
	kid, err := c.members.GetMember(ctx, kidID)
	if err != nil {
		return nil, err
	}
	if kid == nil || kid.Role != model.RoleKid {
		return nil, apperr.NotFound("kid", kidID)
	}
	rule, err := exchange.LoadRule(ctx, c.rules, kid.FamilyID)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	since := now.Add(-Window)
	counts, err := c.chores.CountApprovalsSince(ctx, kidID, since)
	if err != nil {
		return nil, err
	}
	open, err := c.chores.ListOutstandingRequired(ctx, kidID)
	if err != nil {
		return nil, err
	}
	outstanding := make([]Outstanding, len(open))
	for i, oc := range open {
		outstanding[i] = Outstanding{Chore: oc, DueState: chore.ComputeDueState(oc, now)}
	}

	pct := Pct(counts.Required, counts.Total)
	return &Report{
		KidID:         kidID,
		WindowStart:   since,
		RequiredCount: counts.Required,
		TotalCount:    counts.Total,
		Pct:           pct,
		MinPct:        rule.RequiredTaskMinPct,
		Eligible:      pct >= int64(rule.RequiredTaskMinPct),
		Outstanding:   outstanding,
	}, nil
}
