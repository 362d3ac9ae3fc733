// Package allowance credits each kid their family's weekly allowance. Credits
// carry a per-(family, kid, ISO week) idempotency key, so a period can be run
// any number of times.
package allowance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/pocketmoney/internal/apperr"
	"github.com/dukerupert/pocketmoney/internal/auth"
	"github.com/dukerupert/pocketmoney/internal/ledger"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/store"
	"github.com/dukerupert/pocketmoney/internal/telemetry"
)

var periodFormat = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// Period returns the ISO week label of t, e.g. "2026-W42".
func Period(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// ParsePeriod validates an ISO week label.
func ParsePeriod(s string) (string, error) {
	m := periodFormat.FindStringSubmatch(s)
	if m == nil {
		return "", apperr.Validation(fmt.Sprintf("period %q is not an ISO week like 2026-W42", s))
	}
	week, _ := strconv.Atoi(m[2])
	if week < 1 || week > 53 {
		return "", apperr.Validation(fmt.Sprintf("period %q has no week %d", s, week))
	}
	return s, nil
}

// Key is the idempotency key of one kid's allowance for a period.
func Key(familyID, kidID, period string) string {
	return "allowance:" + familyID + ":" + kidID + ":" + period
}

type Runner struct {
	rules       *store.ExchangeStore
	members     *store.FamilyStore
	ledger      *ledger.Ledger
	concurrency int
	logger      *slog.Logger
}

func NewRunner(db *sql.DB, l *ledger.Ledger, concurrency int, logger *slog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		rules:       store.NewExchangeStore(db),
		members:     store.NewFamilyStore(db),
		ledger:      l,
		concurrency: concurrency,
		logger:      logger.With("component", "allowance"),
	}
}

// Report summarizes one run.
type Report struct {
	Period   string `json:"period"`
	Families int    `json:"families"`
	Credited int64  `json:"credited"`
	Skipped  int64  `json:"skipped"`
}

// RunPeriod credits every kid of every family with a positive weekly
// allowance. Kids already credited for period are skipped.
func (r *Runner) RunPeriod(ctx context.Context, period string) (rep Report, err error) {
	ctx, span := telemetry.Start(ctx, "allowance.run")
	defer func() { telemetry.End(span, err) }()

	if _, err = ParsePeriod(period); err != nil {
		return Report{}, err
	}
	rules, err := r.rules.ListWithAllowance(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list allowance rules: %w", err)
	}

	var credited, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, rule := range rules {
		g.Go(func() error {
			c, s, err := r.runFamily(gctx, rule, period)
			credited.Add(c)
			skipped.Add(s)
			return err
		})
	}
	err = g.Wait()

	rep = Report{Period: period, Families: len(rules), Credited: credited.Load(), Skipped: skipped.Load()}
	if err != nil {
		return rep, err
	}
	r.logger.Info("allowance run complete", "period", period, "families", rep.Families, "credited", rep.Credited, "skipped", rep.Skipped)
	return rep, nil
}

func (r *Runner) runFamily(ctx context.Context, rule model.ExchangeRule, period string) (credited, skipped int64, err error) {
	kids, err := r.members.ListKids(ctx, rule.FamilyID)
	if err != nil {
		return 0, 0, fmt.Errorf("list kids of %s: %w", rule.FamilyID, err)
	}
	ctx = auth.WithAuth(ctx, auth.AuthContext{UserID: auth.SystemUserID, FamilyID: rule.FamilyID})
	for _, kid := range kids {
		res, err := r.ledger.Credit(ctx, ledger.CreditInput{
			KidID:          kid.ID,
			FamilyID:       rule.FamilyID,
			Delta:          rule.WeeklyAllowancePoints,
			Reason:         model.ReasonWeeklyAllowance,
			RefID:          period,
			IdempotencyKey: Key(rule.FamilyID, kid.ID, period),
		})
		if err != nil {
			return credited, skipped, fmt.Errorf("credit allowance to %s: %w", kid.ID, err)
		}
		if res.Applied {
			credited++
		} else {
			skipped++
		}
	}
	return credited, skipped, nil
}
