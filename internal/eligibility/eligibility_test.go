package eligibility

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/pocketmoney/internal/apperr"
	"github.com/dukerupert/pocketmoney/internal/chore"
	"github.com/dukerupert/pocketmoney/internal/database"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/store"
)

func TestPct(t *testing.T) {
	tests := []struct {
		required, total, want int64
	}{
		{0, 0, 0},
		{0, 4, 0},
		{4, 4, 100},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
	}
	for _, tt := range tests {
		if got := Pct(tt.required, tt.total); got != tt.want {
			t.Errorf("Pct(%d, %d) = %d, want %d", tt.required, tt.total, got, tt.want)
		}
	}
	for total := int64(1); total <= 30; total++ {
		for req := int64(0); req <= total; req++ {
			if p := Pct(req, total); p < 0 || p > 100 {
				t.Fatalf("Pct(%d, %d) = %d out of range", req, total, p)
			}
		}
	}
}

type fixture struct {
	db   *sql.DB
	calc *Calculator
	kid  *model.Member
	now  time.Time
}

func setup(t *testing.T, minPct int) fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	fs := store.NewFamilyStore(db)
	fam, err := fs.Create(ctx, "Kowalski")
	require.NoError(t, err)
	kid, err := fs.AddMember(ctx, fam.ID, "Ola", model.RoleKid)
	require.NoError(t, err)
	_, err = store.NewExchangeStore(db).Upsert(ctx, model.ExchangeRule{
		FamilyID: fam.ID, PointsPerUnit: decimal.NewFromInt(10), Currency: "PLN",
		Rounding: model.RoundingFloor, RequiredTaskMinPct: minPct,
	})
	require.NoError(t, err)

	now := time.Date(2026, 9, 14, 18, 0, 0, 0, time.UTC)
	calc := NewCalculator(db)
	calc.SetClock(func() time.Time { return now })
	return fixture{db: db, calc: calc, kid: kid, now: now}
}

// chore adds a chore for the kid; a non-zero approvedAt also records its approval.
func (f fixture) chore(t *testing.T, required bool, status model.ChoreStatus, approvedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	cs := store.NewChoreStore(f.db)
	c, err := cs.Create(ctx, model.Chore{
		FamilyID: f.kid.FamilyID, KidID: &f.kid.ID, Title: "c", IsRequired: required, Points: 5,
		CreatedAt: f.now.AddDate(0, 0, -30),
	})
	require.NoError(t, err)
	if status != model.ChoreOpen {
		_, err = f.db.ExecContext(ctx, `UPDATE chores SET status = ? WHERE id = ?`, status, c.ID)
		require.NoError(t, err)
	}
	if !approvedAt.IsZero() {
		_, err = cs.AppendEvent(ctx, model.ChoreEvent{
			ChoreID: c.ID, FamilyID: c.FamilyID, KidID: c.KidID, Kind: model.EventApproved, ActorID: "p", CreatedAt: approvedAt,
		})
		require.NoError(t, err)
	}
}

func TestComputeCountsByApprovalTime(t *testing.T) {
	f := setup(t, 50)
	ctx := context.Background()

	f.chore(t, true, model.ChoreApproved, f.now.Add(-24*time.Hour))
	f.chore(t, true, model.ChoreApproved, f.now.Add(-6*24*time.Hour))
	f.chore(t, false, model.ChoreApproved, f.now.Add(-2*time.Hour))
	// outside the window
	f.chore(t, false, model.ChoreApproved, f.now.Add(-8*24*time.Hour))
	// outstanding required
	f.chore(t, true, model.ChoreClaimed, time.Time{})
	f.chore(t, true, model.ChoreDenied, time.Time{})

	r, err := f.calc.Compute(ctx, f.kid.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.RequiredCount)
	assert.Equal(t, int64(3), r.TotalCount)
	assert.Equal(t, int64(67), r.Pct)
	assert.True(t, r.Eligible)
	require.Len(t, r.Outstanding, 1)
	assert.Equal(t, model.ChoreClaimed, r.Outstanding[0].Status)
	assert.Equal(t, chore.DueNone, r.Outstanding[0].DueState)
}

func TestOutstandingDueState(t *testing.T) {
	f := setup(t, 50)
	ctx := context.Background()
	cs := store.NewChoreStore(f.db)
	for _, due := range []time.Time{f.now.AddDate(0, 0, -1), f.now.Add(2 * time.Hour), f.now.AddDate(0, 0, 3)} {
		_, err := cs.Create(ctx, model.Chore{
			FamilyID: f.kid.FamilyID, KidID: &f.kid.ID, Title: "c", IsRequired: true, Points: 5,
			DueAt: &due, CreatedAt: f.now.AddDate(0, 0, -2),
		})
		require.NoError(t, err)
	}

	r, err := f.calc.Compute(ctx, f.kid.ID)
	require.NoError(t, err)
	require.Len(t, r.Outstanding, 3)
	states := map[chore.DueState]int{}
	for _, o := range r.Outstanding {
		states[o.DueState]++
	}
	assert.Equal(t, map[chore.DueState]int{chore.DueOverdue: 1, chore.DueToday: 1, chore.DuePending: 1}, states)
}

func TestComputeIneligible(t *testing.T) {
	f := setup(t, 80)
	f.chore(t, true, model.ChoreApproved, f.now.Add(-time.Hour))
	f.chore(t, false, model.ChoreApproved, f.now.Add(-time.Hour))

	r, err := f.calc.Compute(context.Background(), f.kid.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), r.Pct)
	assert.False(t, r.Eligible)
}

func TestComputeNoApprovals(t *testing.T) {
	f := setup(t, 0)

	r, err := f.calc.Compute(context.Background(), f.kid.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.Pct)
	assert.True(t, r.Eligible, "0 >= 0")
}

func TestComputeRuleMissing(t *testing.T) {
	f := setup(t, 50)
	ctx := context.Background()
	other, err := store.NewFamilyStore(f.db).Create(ctx, "NoRule")
	require.NoError(t, err)
	kid, err := store.NewFamilyStore(f.db).AddMember(ctx, other.ID, "Kim", model.RoleKid)
	require.NoError(t, err)

	_, err = f.calc.Compute(ctx, kid.ID)
	assert.True(t, apperr.HasCode(err, apperr.CodeExchangeRuleMissing))

	_, err = f.calc.Compute(ctx, "")
	assert.True(t, apperr.HasCode(err, apperr.CodeKidRequired))
}
