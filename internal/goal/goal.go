// Package goal tracks kids' savings goals. A goal's point target is fixed by
// the exchange rate in force when it was created.
package goal

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/pocketmoney/internal/apperr"
	"github.com/dukerupert/pocketmoney/internal/audit"
	"github.com/dukerupert/pocketmoney/internal/exchange"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/store"
	"github.com/dukerupert/pocketmoney/internal/telemetry"
)

// EarningWindow is how far back earnings are averaged for the ETA.
const EarningWindow = 14

type Tracker struct {
	goals   *store.GoalStore
	members *store.FamilyStore
	rules   *store.ExchangeStore
	ledger  *store.LedgerStore
	audit   audit.Sink
	logger  *slog.Logger
	now     func() time.Time
}

func NewTracker(db *sql.DB, sink audit.Sink, logger *slog.Logger) *Tracker {
	return &Tracker{
		goals:   store.NewGoalStore(db),
		members: store.NewFamilyStore(db),
		rules:   store.NewExchangeStore(db),
		ledger:  store.NewLedgerStore(db),
		audit:   sink,
		logger:  logger.With("component", "goal"),
		now:     time.Now,
	}
}

func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

type Input struct {
	KidID             string
	Title             string
	TargetAmountCents int64
}

// Create opens a goal for a kid. Kids create their own goals; parents and
// helpers may create them for any kid in their family.
func (t *Tracker) Create(ctx context.Context, actorID string, in Input) (*model.Goal, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperr.Validation("title is required")
	}
	if in.TargetAmountCents <= 0 {
		return nil, apperr.Validation("target amount must be > 0")
	}

	kid, err := t.kid(ctx, in.KidID)
	if err != nil {
		return nil, err
	}
	if err := t.authorize(ctx, actorID, kid); err != nil {
		return nil, err
	}

	rule, err := exchange.LoadRule(ctx, t.rules, kid.FamilyID)
	if err != nil {
		return nil, err
	}
	rate, err := exchange.NewRate(rule.PointsPerUnit)
	if err != nil {
		return nil, err
	}

	g, err := t.goals.Create(ctx, model.Goal{
		KidID:             kid.ID,
		FamilyID:          kid.FamilyID,
		Title:             in.Title,
		TargetAmountCents: in.TargetAmountCents,
		TargetPoints:      rate.CentsToPoints(in.TargetAmountCents),
		PointsPerUnit:     rule.PointsPerUnit,
		CreatedAt:         t.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	audit.Record(ctx, t.audit, t.logger, audit.Event{
		Action: "goal.created", ActorID: actorID, TargetID: g.ID,
		Meta: map[string]any{"kid_id": g.KidID, "target_points": g.TargetPoints},
	})
	return g, nil
}

// List returns the kid's goals with progress against the current balance.
func (t *Tracker) List(ctx context.Context, kidID string) (out []model.GoalProgress, err error) {
	ctx, span := telemetry.Start(ctx, "goal.list")
	defer func() { telemetry.End(span, err) }()

	if kidID == "" {
		return nil, apperr.New(apperr.CodeKidRequired, "kid id is required")
	}
	goals, err := t.goals.ListByKid(ctx, kidID)
	if err != nil {
		return nil, err
	}
	balance, err := t.ledger.Balance(ctx, kidID)
	if err != nil {
		return nil, err
	}
	since := t.now().UTC().AddDate(0, 0, -EarningWindow)
	earned, err := t.ledger.SumPositiveSince(ctx, kidID, since)
	if err != nil {
		return nil, err
	}

	avg := AvgPerDay(earned)
	out = make([]model.GoalProgress, 0, len(goals))
	for _, g := range goals {
		out = append(out, Progress(g, balance, avg))
	}
	return out, nil
}

// AvgPerDay is max(1, round(earned / EarningWindow)).
func AvgPerDay(earned int64) int64 {
	avg := decimal.NewFromInt(earned).Div(decimal.NewFromInt(EarningWindow)).Round(0).IntPart()
	if avg < 1 {
		return 1
	}
	return avg
}

// Progress computes the read model for one goal. Only active goals get an ETA.
// Goals never auto-complete, so an active goal already covered by the balance
// stays active and reports an ETA of 0 days.
func Progress(g model.Goal, balance, avgPerDay int64) model.GoalProgress {
	p := model.GoalProgress{
		Goal:           g,
		CurrentBalance: balance,
		Remaining:      max(0, g.TargetPoints-balance),
		AvgPtsPerDay:   avgPerDay,
	}
	if g.Status == model.GoalActive {
		eta := (p.Remaining + avgPerDay - 1) / avgPerDay
		p.ETADays = &eta
	}
	return p
}

// Cancel ends an active goal. The owning kid or a guardian of the family may
// cancel; cancelled is terminal.
func (t *Tracker) Cancel(ctx context.Context, actorID, goalID string) (*model.Goal, error) {
	g, err := t.goals.GetByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apperr.NotFound("goal", goalID)
	}
	kid, err := t.kid(ctx, g.KidID)
	if err != nil {
		return nil, err
	}
	if err := t.authorize(ctx, actorID, kid); err != nil {
		return nil, err
	}
	if g.Status != model.GoalActive {
		return nil, apperr.Errorf(apperr.CodeBadStatus, "goal %s is %s", g.ID, g.Status)
	}

	at := t.now().UTC()
	ok, err := t.goals.Cancel(ctx, g.ID, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Errorf(apperr.CodeConflict, "goal %s changed concurrently", g.ID)
	}
	g.Status = model.GoalCancelled
	g.UpdatedAt = at

	audit.Record(ctx, t.audit, t.logger, audit.Event{Action: "goal.cancelled", ActorID: actorID, TargetID: g.ID})
	return g, nil
}

func (t *Tracker) kid(ctx context.Context, kidID string) (*model.Member, error) {
	if kidID == "" {
		return nil, apperr.New(apperr.CodeKidRequired, "kid id is required")
	}
	m, err := t.members.GetMember(ctx, kidID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.Role != model.RoleKid {
		return nil, apperr.NotFound("kid", kidID)
	}
	return m, nil
}

// authorize allows the kid themself or a guardian of the kid's family.
func (t *Tracker) authorize(ctx context.Context, actorID string, kid *model.Member) error {
	if actorID == kid.ID {
		return nil
	}
	actor, err := t.members.GetMember(ctx, actorID)
	if err != nil {
		return err
	}
	if actor == nil {
		return apperr.NotFound("member", actorID)
	}
	if actor.FamilyID != kid.FamilyID {
		return apperr.New(apperr.CodeWrongFamily, "goal belongs to another family")
	}
	if !actor.Role.IsGuardian() {
		return apperr.New(apperr.CodeForbidden, "only the kid or a parent can manage this goal")
	}
	return nil
}
