// Package achievement keeps per-kid rolling stats and awards badges from the
// catalog. Evaluation runs inside the approval transaction.
package achievement

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukerupert/pocketmoney/internal/apperr"
	"github.com/dukerupert/pocketmoney/internal/ledger"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/store"
	"github.com/dukerupert/pocketmoney/internal/telemetry"
)

const window = 7 * 24 * time.Hour

type Engine struct {
	db      *sql.DB
	catalog Catalog
	ledger  *ledger.Ledger
	logger  *slog.Logger
	now     func() time.Time
}

func NewEngine(db *sql.DB, catalog Catalog, l *ledger.Ledger, logger *slog.Logger) *Engine {
	return &Engine{
		db:      db,
		catalog: catalog,
		ledger:  l,
		logger:  logger.With("component", "achievement"),
		now:     time.Now,
	}
}

func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *Engine) Catalog() Catalog {
	return e.catalog
}

// Approval is what the engine needs to know about one approved chore.
type Approval struct {
	KidID    string
	FamilyID string
	ChoreID  string
	// Delta is the points credited for the chore, 0 for required chores.
	Delta int64
}

type Result struct {
	Stats   model.KidStats
	Awarded []model.BadgeAward
	// Bonuses are the badge_bonus credits issued for Awarded.
	Bonuses []*model.LedgerEntry
}

// DayBucket is the UTC day index of t.
func DayBucket(t time.Time) int64 {
	return t.UTC().Unix() / 86400
}

// nextStreak advances a streak given the last approval day and today.
func nextStreak(prev *model.KidStats, today int64) int64 {
	if prev == nil || prev.LastApprovedDay == nil {
		return 1
	}
	switch *prev.LastApprovedDay {
	case today:
		if prev.CurrentStreak < 1 {
			return 1
		}
		return prev.CurrentStreak
	case today - 1:
		return prev.CurrentStreak + 1
	default:
		return 1
	}
}

// EvaluateTx updates the kid's stats for one approval, awards any newly
// reached badges and credits their bonuses, all through tx. The approval's
// chore event must already be written to tx. Bonus credits are not fed back
// into evaluation.
func (e *Engine) EvaluateTx(ctx context.Context, tx store.DBTX, a Approval) (Result, error) {
	ctx, span := telemetry.Start(ctx, "achievement.evaluate", trace.WithAttributes(
		attribute.String("kid_id", a.KidID),
		attribute.String("chore_id", a.ChoreID),
	))
	var err error
	defer func() { telemetry.End(span, err) }()

	now := e.now().UTC()
	today := DayBucket(now)
	achievements := store.NewAchievementStore(tx)

	prev, err := achievements.GetStats(ctx, a.KidID)
	if err != nil {
		return Result{}, err
	}
	stats := model.KidStats{KidID: a.KidID}
	if prev != nil {
		stats = *prev
	}
	stats.TotalApproved++
	stats.TotalPointsEarned += a.Delta
	stats.CurrentStreak = nextStreak(prev, today)
	stats.LastApprovedDay = &today
	stats.UpdatedAt = now
	if err = achievements.PutStats(ctx, stats); err != nil {
		return Result{}, err
	}

	week, err := store.NewChoreStore(tx).CountApprovalsSince(ctx, a.KidID, now.Add(-window))
	if err != nil {
		return Result{}, err
	}

	metrics := Metrics{
		MetricTotalApproved:     stats.TotalApproved,
		MetricTotalPointsEarned: stats.TotalPointsEarned,
		MetricCurrentStreak:     stats.CurrentStreak,
		MetricApprovedLast7Days: week.Total,
	}

	res := Result{Stats: stats}
	for _, ach := range e.catalog.Candidates(metrics) {
		award := &model.BadgeAward{
			KidID:          a.KidID,
			AchievementKey: ach.Key,
			AwardedAt:      now,
			Metadata: map[string]string{
				"chore_id": a.ChoreID,
				"metric":   string(ach.Metric),
				"value":    strconv.FormatInt(metrics[ach.Metric], 10),
			},
		}
		var created bool
		if created, err = achievements.Award(ctx, award); err != nil {
			return Result{}, err
		}
		if !created {
			continue
		}
		res.Awarded = append(res.Awarded, *award)

		if ach.BonusPoints == 0 {
			continue
		}
		var credit ledger.CreditResult
		credit, err = e.ledger.CreditTx(ctx, tx, ledger.CreditInput{
			KidID:          a.KidID,
			FamilyID:       a.FamilyID,
			Delta:          ach.BonusPoints,
			Reason:         model.ReasonBadgeBonus,
			RefID:          award.ID,
			IdempotencyKey: fmt.Sprintf("badge:%s:%s", a.KidID, ach.Key),
		})
		if err != nil {
			err = fmt.Errorf("credit badge bonus %s: %w", ach.Key, err)
			return Result{}, err
		}
		if credit.Applied {
			res.Bonuses = append(res.Bonuses, credit.Entry)
		}
	}

	span.SetAttributes(attribute.Int("awarded", len(res.Awarded)))
	return res, nil
}

// Summary is the achievements read model for one kid.
type Summary struct {
	Stats   model.KidStats     `json:"stats"`
	Awards  []model.BadgeAward `json:"awards"`
	Catalog Catalog            `json:"catalog"`
}

func (e *Engine) Summary(ctx context.Context, kidID string) (*Summary, error) {
	if kidID == "" {
		return nil, apperr.New(apperr.CodeKidRequired, "kid id is required")
	}
	achievements := store.NewAchievementStore(e.db)

	stats, err := achievements.GetStats(ctx, kidID)
	if err != nil {
		return nil, err
	}
	awards, err := achievements.ListAwards(ctx, kidID)
	if err != nil {
		return nil, err
	}

	s := &Summary{Stats: model.KidStats{KidID: kidID}, Awards: awards, Catalog: e.catalog}
	if stats != nil {
		s.Stats = *stats
	}
	return s, nil
}
