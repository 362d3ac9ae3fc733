package chore

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/pocketmoney/internal/audit"
	"github.com/dukerupert/pocketmoney/internal/auth"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/recurrence"
	"github.com/dukerupert/pocketmoney/internal/telemetry"
)

type SpawnReport struct {
	Templates int `json:"templates"`
	Created   int `json:"created"`
	Existing  int `json:"existing"`
	Invalid   int `json:"invalid"`
}

// Spawn creates an open chore for every recurring template occurrence due in
// [from, to). Occurrences that already have a chore are counted as existing,
// so overlapping windows never duplicate work.
func (m *Machine) Spawn(ctx context.Context, from, to time.Time) (rep SpawnReport, err error) {
	ctx, span := telemetry.Start(ctx, "chore.spawn")
	defer func() { telemetry.End(span, err) }()

	templates, err := m.chores.ListRecurringTemplates(ctx)
	if err != nil {
		return rep, err
	}

	now := m.now().UTC()
	for _, tmpl := range templates {
		if !tmpl.Recurring() {
			continue
		}
		rule, perr := recurrence.Parse(tmpl.Recurrence)
		if perr != nil {
			rep.Invalid++
			m.logger.Warn("skipping template with bad recurrence", "template_id", tmpl.ID, "error", perr)
			continue
		}
		rep.Templates++
		actx := auth.WithAuth(ctx, auth.AuthContext{UserID: auth.SystemUserID, FamilyID: tmpl.FamilyID})

		for _, due := range recurrence.Occurrences(rule, *tmpl.AnchorAt, from, to) {
			c := model.Chore{
				FamilyID:   tmpl.FamilyID,
				KidID:      tmpl.KidID,
				TemplateID: &tmpl.ID,
				Title:      tmpl.Title,
				Category:   tmpl.Category,
				IsRequired: tmpl.IsRequired,
				Points:     tmpl.Points,
				DueAt:      &due,
				CreatedAt:  now,
			}
			var (
				id      string
				created bool
			)
			id, created, err = m.chores.CreateOccurrence(ctx, c)
			if err != nil {
				return rep, fmt.Errorf("spawn %s at %s: %w", tmpl.ID, due.Format(time.RFC3339), err)
			}
			if !created {
				rep.Existing++
				continue
			}
			rep.Created++
			audit.Record(actx, m.audit, m.logger, audit.Event{
				Action: "chore.spawned", TargetID: id,
				Meta: map[string]any{"template_id": tmpl.ID, "due_at": due},
			})
		}
	}

	m.logger.Info("recurring chores spawned", "templates", rep.Templates, "created", rep.Created, "existing", rep.Existing)
	return rep, nil
}
