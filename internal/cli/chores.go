package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/pocketmoney/internal/achievement"
	"github.com/dukerupert/pocketmoney/internal/apperr"
	"github.com/dukerupert/pocketmoney/internal/audit"
	"github.com/dukerupert/pocketmoney/internal/chore"
	"github.com/dukerupert/pocketmoney/internal/ledger"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/recurrence"
)

func newChoresCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chores",
		Short: "Maintain recurring chores",
	}

	var days int
	spawn := &cobra.Command{
		Use:   "spawn",
		Short: "Create the recurring chores due from today through --days ahead",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return apperr.Validation("--days must be at least 1")
			}
			m, err := a.choreMachine()
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			rep, err := m.Spawn(cmd.Context(), from, from.AddDate(0, 0, days))
			if err != nil {
				return err
			}
			return a.output(cmd).success(rep, func(w io.Writer) {
				fmt.Fprintf(w, "%d recurring templates: %d chores created, %d already present\n", rep.Templates, rep.Created, rep.Existing)
				if rep.Invalid > 0 {
					fmt.Fprintf(w, "%d templates skipped with an unreadable schedule\n", rep.Invalid)
				}
			})
		},
	}
	spawn.Flags().IntVar(&days, "days", 7, "days ahead to spawn, starting today (UTC)")

	var familyID string
	templates := &cobra.Command{
		Use:   "templates",
		Short: "List a family's chore templates and their schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if familyID == "" {
				return apperr.Validation("--family is required")
			}
			m, err := a.choreMachine()
			if err != nil {
				return err
			}
			list, err := m.ListTemplates(cmd.Context(), familyID)
			if err != nil {
				return err
			}
			views := make([]templateView, len(list))
			for i, t := range list {
				views[i] = templateView{ChoreTemplate: t, Schedule: describeSchedule(t)}
			}
			return a.output(cmd).success(views, func(w io.Writer) {
				for _, v := range views {
					fmt.Fprintf(w, "%s  %q  %d points  %s\n", v.ID, v.Title, v.Points, v.Schedule)
				}
			})
		},
	}
	templates.Flags().StringVar(&familyID, "family", "", "family id")

	cmd.AddCommand(spawn, templates)
	return cmd
}

type templateView struct {
	model.ChoreTemplate
	Schedule string `json:"schedule"`
}

func describeSchedule(t model.ChoreTemplate) string {
	if !t.Recurring() {
		return "one-off"
	}
	rule, err := recurrence.Parse(t.Recurrence)
	if err != nil {
		return "invalid schedule"
	}
	return rule.Describe()
}

func (a *app) choreMachine() (*chore.Machine, error) {
	db, err := a.database()
	if err != nil {
		return nil, err
	}
	catalog, err := achievement.DefaultCatalog()
	if err != nil {
		return nil, err
	}
	sink := audit.NewLogSink(a.logger)
	l := ledger.New(db, sink, a.logger)
	return chore.NewMachine(db, l, achievement.NewEngine(db, catalog, l, a.logger), sink, a.logger), nil
}
