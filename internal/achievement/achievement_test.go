package achievement

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/pocketmoney/internal/database"
	"github.com/dukerupert/pocketmoney/internal/ledger"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/store"
)

type fixture struct {
	db     *sql.DB
	engine *Engine
	ledger *ledger.Ledger
	kid    *model.Member
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	fs := store.NewFamilyStore(db)
	fam, err := fs.Create(ctx, "Haddad")
	require.NoError(t, err)
	kid, err := fs.AddMember(ctx, fam.ID, "Sami", model.RoleKid)
	require.NoError(t, err)

	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	l := ledger.New(db, nil, slog.Default())
	return fixture{db: db, engine: NewEngine(db, catalog, l, slog.Default()), ledger: l, kid: kid}
}

// approve records an approved chore for the kid at the given time and runs
// evaluation, the way the chore machine does.
func (f fixture) approve(t *testing.T, at time.Time, delta int64) Result {
	t.Helper()
	ctx := context.Background()
	f.engine.SetClock(func() time.Time { return at })

	var res Result
	err := store.InTx(ctx, f.db, func(tx *sql.Tx) error {
		chores := store.NewChoreStore(tx)
		c, err := chores.Create(ctx, model.Chore{FamilyID: f.kid.FamilyID, KidID: &f.kid.ID, Title: "chore", Points: delta, CreatedAt: at})
		if err != nil {
			return err
		}
		if _, err := chores.AppendEvent(ctx, model.ChoreEvent{
			ChoreID: c.ID, FamilyID: c.FamilyID, KidID: c.KidID, Kind: model.EventApproved, ActorID: "parent", CreatedAt: at,
		}); err != nil {
			return err
		}
		res, err = f.engine.EvaluateTx(ctx, tx, Approval{KidID: f.kid.ID, FamilyID: f.kid.FamilyID, ChoreID: c.ID, Delta: delta})
		return err
	})
	require.NoError(t, err)
	return res
}

func keys(awards []model.BadgeAward) []string {
	out := make([]string, len(awards))
	for i, a := range awards {
		out[i] = a.AchievementKey
	}
	return out
}

func TestStreakByDayBucket(t *testing.T) {
	f := setup(t)
	day := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		at   time.Time
		want int64
	}{
		{day, 1},
		{day.Add(5 * time.Hour), 1},
		{day.AddDate(0, 0, 1), 2},
		{day.AddDate(0, 0, 2).Add(14 * time.Hour), 3},
		{day.AddDate(0, 0, 4), 1},
	}
	for i, tt := range tests {
		res := f.approve(t, tt.at, 0)
		if res.Stats.CurrentStreak != tt.want {
			t.Errorf("approval %d: streak = %d, want %d", i, res.Stats.CurrentStreak, tt.want)
		}
	}

	res := f.approve(t, day.AddDate(0, 0, 4).Add(time.Hour), 7)
	assert.Equal(t, int64(6), res.Stats.TotalApproved)
	assert.Equal(t, int64(7), res.Stats.TotalPointsEarned)
}

func TestFiveChoresWeekAwardedOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	start := time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC)

	var awarded []string
	for i := 0; i < 6; i++ {
		res := f.approve(t, start.Add(time.Duration(i)*20*time.Hour), 5)
		awarded = append(awarded, keys(res.Awarded)...)
	}

	assert.Equal(t, 1, countOf(awarded, "five_chores_week"))
	assert.Equal(t, 1, countOf(awarded, "first_chore"))
	assert.Equal(t, 1, countOf(awarded, "streak_3"))

	assert.Equal(t, 1, countOf(f.storedAwards(t), "five_chores_week"))

	// Only the five_chores_week bonus reaches the ledger; chore points are
	// credited by the caller.
	bal, err := f.ledger.Balance(ctx, f.kid.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)
}

func TestWeekWindowExcludesOldApprovals(t *testing.T) {
	f := setup(t)
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		f.approve(t, start.Add(time.Duration(i)*time.Hour), 1)
	}
	res := f.approve(t, start.AddDate(0, 0, 8), 1)
	assert.NotContains(t, keys(res.Awarded), "five_chores_week")
}

func TestBonusCreditCarriesAwardRef(t *testing.T) {
	f := setup(t)
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	var res Result
	for i := 0; i < 5; i++ {
		res = f.approve(t, start.Add(time.Duration(i)*time.Minute), 1)
	}
	require.Len(t, res.Bonuses, 1)
	bonus := res.Bonuses[0]
	assert.Equal(t, model.ReasonBadgeBonus, bonus.Reason)
	assert.Equal(t, int64(10), bonus.Delta)

	require.Len(t, res.Awarded, 1)
	require.NotNil(t, bonus.RefID)
	assert.Equal(t, res.Awarded[0].ID, *bonus.RefID)
	// bonus points do not count as earned points
	assert.Equal(t, int64(5), res.Stats.TotalPointsEarned)
}

func TestConcurrentEvaluationAwardsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	at := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	f.engine.SetClock(func() time.Time { return at })

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			return store.InTx(ctx, f.db, func(tx *sql.Tx) error {
				_, err := f.engine.EvaluateTx(ctx, tx, Approval{KidID: f.kid.ID, FamilyID: f.kid.FamilyID, Delta: 1})
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	stored := f.storedAwards(t)
	for _, key := range []string{"first_chore", "ten_chores"} {
		assert.Equal(t, 1, countOf(stored, key), key)
	}

	stats, err := store.NewAchievementStore(f.db).GetStats(ctx, f.kid.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalApproved)

	// ten_chores bonus exactly once
	bal, err := f.ledger.Balance(ctx, f.kid.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)
}

func TestSummary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	empty, err := f.engine.Summary(ctx, f.kid.ID)
	require.NoError(t, err)
	assert.Zero(t, empty.Stats.TotalApproved)
	assert.Empty(t, empty.Awards)
	assert.NotEmpty(t, empty.Catalog)

	f.approve(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), 3)
	s, err := f.engine.Summary(ctx, f.kid.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Stats.TotalApproved)
	assert.Equal(t, []string{"first_chore"}, keys(s.Awards))
}

// storedAwards returns the achievement keys persisted for the kid.
func (f fixture) storedAwards(t *testing.T) []string {
	t.Helper()
	awards, err := store.NewAchievementStore(f.db).ListAwards(context.Background(), f.kid.ID)
	require.NoError(t, err)
	out := make([]string, len(awards))
	for i, a := range awards {
		out[i] = a.AchievementKey
	}
	return out
}

func countOf(list []string, key string) int {
	n := 0
	for _, k := range list {
		if k == key {
			n++
		}
	}
	return n
}
