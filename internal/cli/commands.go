package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/pocketmoney/internal/achievement"
	"github.com/dukerupert/pocketmoney/internal/allowance"
	"github.com/dukerupert/pocketmoney/internal/apperr"
	"github.com/dukerupert/pocketmoney/internal/audit"
	"github.com/dukerupert/pocketmoney/internal/database"
	"github.com/dukerupert/pocketmoney/internal/eligibility"
	"github.com/dukerupert/pocketmoney/internal/exchange"
	"github.com/dukerupert/pocketmoney/internal/goal"
	"github.com/dukerupert/pocketmoney/internal/ledger"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/store"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			version, err := database.Version(db)
			if err != nil {
				return err
			}
			return a.output(cmd).success(map[string]any{"version": version}, func(w io.Writer) {
				fmt.Fprintf(w, "database at version %d\n", version)
			})
		},
	}
}

func newAllowanceCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allowance",
		Short: "Grant weekly allowances",
	}

	var period string
	run := &cobra.Command{
		Use:   "run",
		Short: "Credit the allowance for one ISO week (default: current week)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			if period == "" {
				period = allowance.Period(time.Now())
			}
			l := ledger.New(db, audit.NewLogSink(a.logger), a.logger)
			rep, err := allowance.NewRunner(db, l, a.cfg.AllowanceConcurrency, a.logger).RunPeriod(cmd.Context(), period)
			if err != nil {
				return err
			}
			return a.output(cmd).success(rep, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %d families, %d credited, %d already paid\n", rep.Period, rep.Families, rep.Credited, rep.Skipped)
			})
		},
	}
	run.Flags().StringVar(&period, "period", "", "ISO week, e.g. 2026-W42")

	schedule := &cobra.Command{
		Use:   "schedule",
		Short: "Run the allowance job on an interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			l := ledger.New(db, audit.NewLogSink(a.logger), a.logger)
			runner := allowance.NewRunner(db, l, a.cfg.AllowanceConcurrency, a.logger)
			s := allowance.NewScheduler(runner, a.cfg.AllowanceInterval, a.logger)
			a.logger.Info("allowance scheduler started", "interval", a.cfg.AllowanceInterval)
			s.Start(ctx)

			<-ctx.Done()
			s.Stop()
			a.logger.Info("allowance scheduler stopped")
			return nil
		},
	}

	cmd.AddCommand(run, schedule)
	return cmd
}

func newQuoteCommand(a *app) *cobra.Command {
	var (
		familyID string
		points   int64
		cents    int64
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Convert points to money or money to points for a family",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			var req exchange.QuoteRequest
			if cmd.Flags().Changed("points") {
				req.Points = &points
			}
			if cmd.Flags().Changed("cents") {
				req.AmountCents = &cents
			}
			q, err := exchange.NewService(db, nil, a.logger).Quote(cmd.Context(), familyID, req)
			if err != nil {
				return err
			}
			return a.output(cmd).success(q, func(w io.Writer) {
				fmt.Fprintf(w, "%d points = %d.%02d %s\n", q.Points, q.AmountCents/100, q.AmountCents%100, q.Currency)
			})
		},
	}
	cmd.Flags().StringVar(&familyID, "family", "", "family id")
	cmd.Flags().Int64Var(&points, "points", 0, "points to convert")
	cmd.Flags().Int64Var(&cents, "cents", 0, "amount in cents to convert")
	cmd.MarkFlagRequired("family")
	cmd.MarkFlagsMutuallyExclusive("points", "cents")
	return cmd
}

func newLedgerCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the points ledger",
	}

	var kidID, familyID string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check that materialized balances equal the sum of ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			l := ledger.New(db, nil, a.logger)

			kids := []string{kidID}
			if kidID == "" {
				if familyID == "" {
					return apperr.New(apperr.CodeKidRequired, "pass --kid or --family")
				}
				members, err := store.NewFamilyStore(db).ListKids(ctx, familyID)
				if err != nil {
					return err
				}
				kids = kids[:0]
				for _, m := range members {
					kids = append(kids, m.ID)
				}
			}

			results := make([]ledger.Verification, 0, len(kids))
			drift := 0
			for _, id := range kids {
				v, err := l.Verify(ctx, id)
				if err != nil {
					return err
				}
				if !v.OK() {
					drift++
				}
				results = append(results, v)
			}

			err = a.output(cmd).success(results, func(w io.Writer) {
				for _, v := range results {
					state := "ok"
					if !v.OK() {
						state = "DRIFT"
					}
					fmt.Fprintf(w, "%s balance=%d sum=%d %s\n", v.KidID, v.Balance, v.Sum, state)
				}
			})
			if err != nil {
				return err
			}
			if drift > 0 {
				return fmt.Errorf("%d balance(s) drifted from the ledger", drift)
			}
			return nil
		},
	}
	verify.Flags().StringVar(&kidID, "kid", "", "kid id")
	verify.Flags().StringVar(&familyID, "family", "", "verify every kid in the family")

	var limit int
	entries := &cobra.Command{
		Use:   "entries",
		Short: "List a kid's ledger entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			list, err := ledger.New(db, nil, a.logger).Entries(cmd.Context(), kidID, limit)
			if err != nil {
				return err
			}
			return a.output(cmd).success(list, func(w io.Writer) {
				for _, e := range list {
					fmt.Fprintf(w, "%s %+6d %-16s %s\n", e.CreatedAt.Format(time.RFC3339), e.Delta, e.Reason, e.ID)
				}
			})
		},
	}
	entries.Flags().StringVar(&kidID, "kid", "", "kid id")
	entries.Flags().IntVar(&limit, "limit", 20, "maximum entries (0 for all)")

	cmd.AddCommand(verify, entries)
	return cmd
}

// kidStatus is the combined read model printed by the status command.
type kidStatus struct {
	KidID        string               `json:"kid_user_id"`
	Balance      int64                `json:"balance"`
	Goals        []model.GoalProgress `json:"goals"`
	Eligibility  *eligibility.Report  `json:"eligibility,omitempty"`
	Achievements *achievement.Summary `json:"achievements"`
}

func newStatusCommand(a *app) *cobra.Command {
	var kidID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a kid's balance, goals, eligibility and badges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadStatus(cmd.Context(), a, kidID)
			if err != nil {
				return err
			}
			return a.output(cmd).success(st, func(w io.Writer) {
				fmt.Fprintf(w, "balance: %d points\n", st.Balance)
				if st.Eligibility != nil {
					fmt.Fprintf(w, "required work: %d%% (minimum %d%%, eligible=%v, %d outstanding)\n",
						st.Eligibility.Pct, st.Eligibility.MinPct, st.Eligibility.Eligible, len(st.Eligibility.Outstanding))
					for _, o := range st.Eligibility.Outstanding {
						fmt.Fprintf(w, "  required %q [%s]\n", o.Title, o.DueState)
					}
				}
				for _, g := range st.Goals {
					eta := "-"
					if g.ETADays != nil {
						eta = fmt.Sprintf("%dd", *g.ETADays)
					}
					fmt.Fprintf(w, "goal %q [%s]: %d/%d points, eta %s\n", g.Title, g.Status, g.TargetPoints-g.Remaining, g.TargetPoints, eta)
				}
				fmt.Fprintf(w, "streak: %d days, %d chores approved\n", st.Achievements.Stats.CurrentStreak, st.Achievements.Stats.TotalApproved)
				for _, b := range st.Achievements.Awards {
					title := b.AchievementKey
					if def, ok := st.Achievements.Catalog.Lookup(b.AchievementKey); ok {
						title = def.Title
					}
					fmt.Fprintf(w, "badge: %s (%s)\n", title, b.AwardedAt.Format(time.DateOnly))
				}
			})
		},
	}
	cmd.Flags().StringVar(&kidID, "kid", "", "kid id")
	return cmd
}

func loadStatus(ctx context.Context, a *app, kidID string) (*kidStatus, error) {
	db, err := a.database()
	if err != nil {
		return nil, err
	}
	l := ledger.New(db, nil, a.logger)

	balance, err := l.Balance(ctx, kidID)
	if err != nil {
		return nil, err
	}
	goals, err := goal.NewTracker(db, nil, a.logger).List(ctx, kidID)
	if err != nil {
		return nil, err
	}

	report, err := eligibility.NewCalculator(db).Compute(ctx, kidID)
	if apperr.HasCode(err, apperr.CodeExchangeRuleMissing) {
		report, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	catalog, err := achievement.DefaultCatalog()
	if err != nil {
		return nil, err
	}
	summary, err := achievement.NewEngine(db, catalog, l, a.logger).Summary(ctx, kidID)
	if err != nil {
		return nil, err
	}

	return &kidStatus{
		KidID:        kidID,
		Balance:      balance,
		Goals:        goals,
		Eligibility:  report,
		Achievements: summary,
	}, nil
}
