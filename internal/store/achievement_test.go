package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/pocketmoney/internal/model"
)

func TestStatsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	_, _, kid := seedFamily(t, db)
	as := NewAchievementStore(db)
	ctx := context.Background()

	got, err := as.GetStats(ctx, kid.ID)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil stats before first approval")
	}

	day := int64(20500)
	err = as.PutStats(ctx, model.KidStats{
		KidID: kid.ID, TotalApproved: 3, TotalPointsEarned: 45,
		LastApprovedDay: &day, CurrentStreak: 2, UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("put stats: %v", err)
	}

	got, err = as.GetStats(ctx, kid.ID)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if got.TotalApproved != 3 || got.TotalPointsEarned != 45 || got.CurrentStreak != 2 {
		t.Errorf("stats = %+v", got)
	}
	if got.LastApprovedDay == nil || *got.LastApprovedDay != day {
		t.Errorf("last_approved_day = %v, want %d", got.LastApprovedDay, day)
	}
}

func TestAwardIsUniquePerKidAndKey(t *testing.T) {
	db := setupTestDB(t)
	_, _, kid := seedFamily(t, db)
	as := NewAchievementStore(db)
	ctx := context.Background()

	first, err := as.Award(ctx, &model.BadgeAward{
		KidID: kid.ID, AchievementKey: "first_chore", AwardedAt: time.Now(),
		Metadata: map[string]string{"chore_id": "c1"},
	})
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	second, err := as.Award(ctx, &model.BadgeAward{KidID: kid.ID, AchievementKey: "first_chore", AwardedAt: time.Now()})
	if err != nil {
		t.Fatalf("second award: %v", err)
	}
	if !first || second {
		t.Errorf("first = %v, second = %v; want true, false", first, second)
	}

	awards, err := as.ListAwards(ctx, kid.ID)
	if err != nil {
		t.Fatalf("list awards: %v", err)
	}
	if len(awards) != 1 || awards[0].Metadata["chore_id"] != "c1" {
		t.Errorf("awards = %+v", awards)
	}
}

func TestAwardConcurrent(t *testing.T) {
	db := setupTestDB(t)
	_, _, kid := seedFamily(t, db)
	as := NewAchievementStore(db)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := as.Award(context.Background(), &model.BadgeAward{
				KidID: kid.ID, AchievementKey: "five_chores_week", AwardedAt: time.Now(),
			})
			if err != nil {
				t.Errorf("award: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM badge_awards WHERE kid_user_id = ? AND achievement_key = ?`, kid.ID, "five_chores_week"); n != 1 {
		t.Errorf("stored awards = %d, want 1", n)
	}
}
