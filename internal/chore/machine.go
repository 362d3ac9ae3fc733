// Package chore runs the chore lifecycle open → claimed → submitted →
// approved | denied. Every transition is a compare-and-swap on the stored
// status and appends a chore event.
package chore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukerupert/pocketmoney/internal/achievement"
	"github.com/dukerupert/pocketmoney/internal/apperr"
	"github.com/dukerupert/pocketmoney/internal/audit"
	"github.com/dukerupert/pocketmoney/internal/ledger"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/recurrence"
	"github.com/dukerupert/pocketmoney/internal/store"
	"github.com/dukerupert/pocketmoney/internal/telemetry"
)

type Machine struct {
	db           *sql.DB
	chores       *store.ChoreStore
	ledger       *ledger.Ledger
	achievements *achievement.Engine
	audit        audit.Sink
	logger       *slog.Logger
	now          func() time.Time
}

func NewMachine(db *sql.DB, l *ledger.Ledger, ach *achievement.Engine, sink audit.Sink, logger *slog.Logger) *Machine {
	return &Machine{
		db:           db,
		chores:       store.NewChoreStore(db),
		ledger:       l,
		achievements: ach,
		audit:        sink,
		logger:       logger.With("component", "chore"),
		now:          time.Now,
	}
}

func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Spec describes a chore to create.
type Spec struct {
	KidID      string
	Title      string
	Category   string
	IsRequired bool
	Points     int64
	DueAt      *time.Time
	// Recurrence makes a template recurring, starting at DueAt. Only
	// CreateTemplate accepts it.
	Recurrence string

	templateID string
}

func (s *Spec) normalize() error {
	s.Title = strings.TrimSpace(s.Title)
	s.Category = strings.TrimSpace(s.Category)
	if s.Title == "" {
		return apperr.Validation("title is required")
	}
	if s.Points < 0 {
		return apperr.Validation("points must be >= 0")
	}
	return nil
}

// guardian loads actorID and checks it is a parent or helper of familyID.
// An empty familyID accepts any family.
func guardian(ctx context.Context, members *store.FamilyStore, actorID, familyID string) (*model.Member, error) {
	actor, err := members.GetMember(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, apperr.NotFound("member", actorID)
	}
	if familyID != "" && actor.FamilyID != familyID {
		return nil, apperr.New(apperr.CodeWrongFamily, "member belongs to another family")
	}
	if !actor.Role.IsGuardian() {
		return nil, apperr.New(apperr.CodeForbidden, "only parents and helpers can manage chores")
	}
	return actor, nil
}

// kidOf loads kidID and checks it is a kid of familyID.
func kidOf(ctx context.Context, members *store.FamilyStore, kidID, familyID string) (*model.Member, error) {
	if kidID == "" {
		return nil, apperr.New(apperr.CodeKidRequired, "kid id is required")
	}
	kid, err := members.GetMember(ctx, kidID)
	if err != nil {
		return nil, err
	}
	if kid == nil || kid.Role != model.RoleKid {
		return nil, apperr.NotFound("kid", kidID)
	}
	if kid.FamilyID != familyID {
		return nil, apperr.New(apperr.CodeWrongFamily, "kid belongs to another family")
	}
	return kid, nil
}

// Create adds an open chore to the actor's family, optionally assigned to a kid.
func (m *Machine) Create(ctx context.Context, actorID string, spec Spec) (*model.Chore, error) {
	if err := spec.normalize(); err != nil {
		return nil, err
	}
	if spec.Recurrence != "" {
		return nil, apperr.Validation("recurrence applies to templates")
	}

	var c *model.Chore
	err := store.InTx(ctx, m.db, func(tx *sql.Tx) error {
		members := store.NewFamilyStore(tx)
		actor, err := guardian(ctx, members, actorID, "")
		if err != nil {
			return err
		}
		chore := model.Chore{
			FamilyID:   actor.FamilyID,
			Title:      spec.Title,
			Category:   spec.Category,
			IsRequired: spec.IsRequired,
			Points:     spec.Points,
			DueAt:      spec.DueAt,
			CreatedAt:  m.now().UTC(),
		}
		if spec.templateID != "" {
			chore.TemplateID = &spec.templateID
		}
		if spec.KidID != "" {
			if _, err := kidOf(ctx, members, spec.KidID, actor.FamilyID); err != nil {
				return err
			}
			chore.KidID = &spec.KidID
		}
		c, err = store.NewChoreStore(tx).Create(ctx, chore)
		return err
	})
	if err != nil {
		return nil, err
	}

	audit.Record(ctx, m.audit, m.logger, audit.Event{
		Action: "chore.created", ActorID: actorID, TargetID: c.ID,
		Meta: map[string]any{"points": c.Points, "is_required": c.IsRequired},
	})
	return c, nil
}

// CreateTemplate saves a reusable chore definition for the actor's family.
// With a Recurrence the template spawns chores from DueAt on (see Spawn).
func (m *Machine) CreateTemplate(ctx context.Context, actorID string, spec Spec) (*model.ChoreTemplate, error) {
	if err := spec.normalize(); err != nil {
		return nil, err
	}
	members := store.NewFamilyStore(m.db)
	actor, err := guardian(ctx, members, actorID, "")
	if err != nil {
		return nil, err
	}
	tmpl := model.ChoreTemplate{
		FamilyID:   actor.FamilyID,
		Title:      spec.Title,
		Category:   spec.Category,
		IsRequired: spec.IsRequired,
		Points:     spec.Points,
		CreatedAt:  m.now().UTC(),
	}
	if spec.KidID != "" {
		if _, err := kidOf(ctx, members, spec.KidID, actor.FamilyID); err != nil {
			return nil, err
		}
		tmpl.KidID = &spec.KidID
	}
	if spec.Recurrence != "" {
		rule, err := recurrence.Parse(spec.Recurrence)
		if err != nil {
			return nil, apperr.Validation(err.Error())
		}
		if spec.DueAt == nil {
			return nil, apperr.Validation("a recurring template needs a first due time")
		}
		anchor := spec.DueAt.UTC()
		tmpl.Recurrence = rule.String()
		tmpl.AnchorAt = &anchor
	}

	t, err := m.chores.CreateTemplate(ctx, tmpl)
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, m.audit, m.logger, audit.Event{
		Action: "chore_template.created", ActorID: actorID, TargetID: t.ID,
		Meta: map[string]any{"recurrence": t.Recurrence},
	})
	return t, nil
}

func (m *Machine) ListTemplates(ctx context.Context, familyID string) ([]model.ChoreTemplate, error) {
	return m.chores.ListTemplates(ctx, familyID)
}

// CreateFromTemplate instantiates a template as an open chore. An empty kidID
// falls back to the template's kid, if any, else leaves the chore unassigned.
func (m *Machine) CreateFromTemplate(ctx context.Context, actorID, templateID, kidID string) (*model.Chore, error) {
	tmpl, err := m.chores.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, apperr.NotFound("chore template", templateID)
	}
	actor, err := store.NewFamilyStore(m.db).GetMember(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor != nil && actor.FamilyID != tmpl.FamilyID {
		return nil, apperr.New(apperr.CodeWrongFamily, "template belongs to another family")
	}

	if kidID == "" && tmpl.KidID != nil {
		kidID = *tmpl.KidID
	}
	return m.Create(ctx, actorID, Spec{
		KidID:      kidID,
		Title:      tmpl.Title,
		Category:   tmpl.Category,
		IsRequired: tmpl.IsRequired,
		Points:     tmpl.Points,
		templateID: tmpl.ID,
	})
}

// step is one status change applied inside a transaction.
type step struct {
	chore *model.Chore
	to    model.ChoreStatus
	kind  model.ChoreEventKind
	kidID string // binds the chore when set
	actor string
}

// apply performs the compare-and-swap and appends the event.
func (m *Machine) apply(ctx context.Context, chores *store.ChoreStore, s step, at time.Time) error {
	if !CanTransition(s.chore.Status, s.to) {
		return apperr.Errorf(apperr.CodeBadStatus, "chore %s cannot move from %s to %s", s.chore.ID, s.chore.Status, s.to)
	}
	ok, err := chores.CompareAndSwapStatus(ctx, store.Transition{
		ChoreID: s.chore.ID,
		From:    s.chore.Status,
		To:      s.to,
		KidID:   s.kidID,
		At:      at,
	})
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Errorf(apperr.CodeConflict, "chore %s changed concurrently", s.chore.ID)
	}

	s.chore.Status = s.to
	s.chore.UpdatedAt = at
	if s.kidID != "" {
		s.chore.KidID = &s.kidID
	}
	_, err = chores.AppendEvent(ctx, model.ChoreEvent{
		ChoreID:   s.chore.ID,
		FamilyID:  s.chore.FamilyID,
		KidID:     s.chore.KidID,
		Kind:      s.kind,
		ActorID:   s.actor,
		CreatedAt: at,
	})
	return err
}

func (m *Machine) load(ctx context.Context, chores *store.ChoreStore, choreID string) (*model.Chore, error) {
	c, err := chores.GetByID(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("chore", choreID)
	}
	return c, nil
}

func (m *Machine) span(ctx context.Context, op, choreID, actorID string) (context.Context, trace.Span) {
	return telemetry.Start(ctx, "chore."+op, trace.WithAttributes(
		attribute.String("chore_id", choreID),
		attribute.String("actor_id", actorID),
	))
}

// Claim binds an open chore to kidID.
func (m *Machine) Claim(ctx context.Context, choreID, kidID string) (c *model.Chore, err error) {
	ctx, span := m.span(ctx, "claim", choreID, kidID)
	defer func() { telemetry.End(span, err) }()

	err = store.InTx(ctx, m.db, func(tx *sql.Tx) error {
		chores := store.NewChoreStore(tx)
		var err error
		if c, err = m.load(ctx, chores, choreID); err != nil {
			return err
		}
		if _, err := kidOf(ctx, store.NewFamilyStore(tx), kidID, c.FamilyID); err != nil {
			return err
		}
		if c.Status != model.ChoreOpen {
			return apperr.Errorf(apperr.CodeNotOpen, "chore %s is %s", c.ID, c.Status)
		}
		if c.KidID != nil && !c.AssignedTo(kidID) {
			return apperr.New(apperr.CodeNotAssignedToYou, "chore is assigned to another kid")
		}
		return m.apply(ctx, chores, step{chore: c, to: model.ChoreClaimed, kind: model.EventClaimed, kidID: kidID, actor: kidID}, m.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	audit.Record(ctx, m.audit, m.logger, audit.Event{Action: "chore.claimed", ActorID: kidID, TargetID: c.ID})
	return c, nil
}

// Submit marks the kid's chore done and waiting for review. An unassigned open
// chore is bound to the submitting kid.
func (m *Machine) Submit(ctx context.Context, choreID, kidID string) (c *model.Chore, err error) {
	ctx, span := m.span(ctx, "submit", choreID, kidID)
	defer func() { telemetry.End(span, err) }()

	err = store.InTx(ctx, m.db, func(tx *sql.Tx) error {
		chores := store.NewChoreStore(tx)
		var err error
		if c, err = m.load(ctx, chores, choreID); err != nil {
			return err
		}
		if _, err := kidOf(ctx, store.NewFamilyStore(tx), kidID, c.FamilyID); err != nil {
			return err
		}
		if c.Status != model.ChoreOpen && c.Status != model.ChoreClaimed {
			return apperr.Errorf(apperr.CodeBadStatus, "chore %s is %s", c.ID, c.Status)
		}
		if c.KidID != nil && !c.AssignedTo(kidID) {
			return apperr.New(apperr.CodeNotAssignedToYou, "chore is assigned to another kid")
		}
		return m.apply(ctx, chores, step{chore: c, to: model.ChoreSubmitted, kind: model.EventSubmitted, kidID: kidID, actor: kidID}, m.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	audit.Record(ctx, m.audit, m.logger, audit.Event{Action: "chore.submitted", ActorID: kidID, TargetID: c.ID})
	return c, nil
}

// Approval is the outcome of approving a chore.
type Approval struct {
	Chore *model.Chore `json:"chore"`
	// Credit is nil for required chores and zero-point chores.
	Credit  *model.LedgerEntry   `json:"credit,omitempty"`
	Awarded []model.BadgeAward   `json:"awarded,omitempty"`
	Bonuses []*model.LedgerEntry `json:"bonuses,omitempty"`
}

// review loads a submitted chore and checks approverID may review it.
func (m *Machine) review(ctx context.Context, tx *sql.Tx, choreID, approverID string) (*model.Chore, error) {
	c, err := m.load(ctx, store.NewChoreStore(tx), choreID)
	if err != nil {
		return nil, err
	}
	if _, err := guardian(ctx, store.NewFamilyStore(tx), approverID, c.FamilyID); err != nil {
		return nil, err
	}
	if c.Status != model.ChoreSubmitted {
		return nil, apperr.Errorf(apperr.CodeNotSubmitted, "chore %s is %s", c.ID, c.Status)
	}
	if c.KidID == nil {
		return nil, apperr.Errorf(apperr.CodeKidRequired, "chore %s has no kid", c.ID)
	}
	return c, nil
}

// Approve accepts a submitted chore. Paid (non-required) chores credit their
// points to the kid. Achievements are evaluated and any bonuses credited in
// the same transaction, so a failure anywhere leaves no trace.
func (m *Machine) Approve(ctx context.Context, choreID, approverID string) (res *Approval, err error) {
	ctx, span := m.span(ctx, "approve", choreID, approverID)
	defer func() { telemetry.End(span, err) }()

	res = &Approval{}
	err = store.InTx(ctx, m.db, func(tx *sql.Tx) error {
		c, err := m.review(ctx, tx, choreID, approverID)
		if err != nil {
			return err
		}
		at := m.now().UTC()
		if err := m.apply(ctx, store.NewChoreStore(tx), step{chore: c, to: model.ChoreApproved, kind: model.EventApproved, actor: approverID}, at); err != nil {
			return err
		}
		res.Chore = c

		var delta int64
		if !c.IsRequired && c.Points > 0 {
			credit, err := m.ledger.CreditTx(ctx, tx, ledger.CreditInput{
				KidID:    *c.KidID,
				FamilyID: c.FamilyID,
				Delta:    c.Points,
				Reason:   model.ReasonChoreApproved,
				RefID:    c.ID,
			})
			if err != nil {
				return err
			}
			res.Credit = credit.Entry
			delta = c.Points
		}

		if m.achievements == nil {
			return nil
		}
		ev, err := m.achievements.EvaluateTx(ctx, tx, achievement.Approval{
			KidID:    *c.KidID,
			FamilyID: c.FamilyID,
			ChoreID:  c.ID,
			Delta:    delta,
		})
		if err != nil {
			return fmt.Errorf("evaluate achievements: %w", err)
		}
		res.Awarded = ev.Awarded
		res.Bonuses = ev.Bonuses
		return nil
	})
	if err != nil {
		return nil, err
	}

	audit.Record(ctx, m.audit, m.logger, audit.Event{Action: "chore.approved", ActorID: approverID, TargetID: choreID})
	if res.Credit != nil {
		m.ledger.RecordCredit(ctx, res.Credit)
	}
	for _, a := range res.Awarded {
		audit.Record(ctx, m.audit, m.logger, audit.Event{
			Action: "badge.awarded", ActorID: approverID, TargetID: a.KidID,
			Meta: map[string]any{"achievement_key": a.AchievementKey},
		})
	}
	for _, b := range res.Bonuses {
		m.ledger.RecordCredit(ctx, b)
	}
	m.logger.Info("chore approved", "chore_id", choreID, "awarded", len(res.Awarded))
	return res, nil
}

// Deny rejects a submitted chore. Nothing is credited.
func (m *Machine) Deny(ctx context.Context, choreID, approverID string) (c *model.Chore, err error) {
	ctx, span := m.span(ctx, "deny", choreID, approverID)
	defer func() { telemetry.End(span, err) }()

	err = store.InTx(ctx, m.db, func(tx *sql.Tx) error {
		var err error
		if c, err = m.review(ctx, tx, choreID, approverID); err != nil {
			return err
		}
		return m.apply(ctx, store.NewChoreStore(tx), step{chore: c, to: model.ChoreDenied, kind: model.EventDenied, actor: approverID}, m.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	audit.Record(ctx, m.audit, m.logger, audit.Event{Action: "chore.denied", ActorID: approverID, TargetID: c.ID})
	return c, nil
}

func (m *Machine) Get(ctx context.Context, choreID string) (*model.Chore, error) {
	return m.load(ctx, m.chores, choreID)
}

func (m *Machine) ListByFamily(ctx context.Context, familyID string) ([]model.Chore, error) {
	return m.chores.ListByFamily(ctx, familyID)
}

func (m *Machine) ListByKid(ctx context.Context, kidID string) ([]model.Chore, error) {
	if kidID == "" {
		return nil, apperr.New(apperr.CodeKidRequired, "kid id is required")
	}
	return m.chores.ListByKid(ctx, kidID)
}

// Events returns the chore's transition history, oldest first.
func (m *Machine) Events(ctx context.Context, choreID string) ([]model.ChoreEvent, error) {
	return m.chores.ListEvents(ctx, choreID)
}
