// Package ledger is the points ledger: an append-only log of signed deltas per
// kid with a materialized balance that always equals their sum.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukerupert/pocketmoney/internal/apperr"
	"github.com/dukerupert/pocketmoney/internal/audit"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/store"
	"github.com/dukerupert/pocketmoney/internal/telemetry"
)

type Ledger struct {
	db      *sql.DB
	entries *store.LedgerStore
	members *store.FamilyStore
	audit   audit.Sink
	logger  *slog.Logger
	now     func() time.Time
}

func New(db *sql.DB, sink audit.Sink, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:      db,
		entries: store.NewLedgerStore(db),
		members: store.NewFamilyStore(db),
		audit:   sink,
		logger:  logger.With("component", "ledger"),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Tests use it to place entries in time.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

type CreditInput struct {
	KidID    string
	FamilyID string
	Delta    int64
	Reason   model.LedgerReason
	RefID    string
	// IdempotencyKey, when set, makes the credit apply at most once.
	IdempotencyKey string
}

type CreditResult struct {
	Entry   *model.LedgerEntry
	Applied bool
}

func (in CreditInput) validate() error {
	if in.KidID == "" {
		return apperr.New(apperr.CodeKidRequired, "kid id is required")
	}
	if in.FamilyID == "" {
		return apperr.Validation("family id is required")
	}
	if in.Delta == 0 {
		return apperr.Validation("delta must be non-zero")
	}
	if in.Reason == "" {
		return apperr.Validation("reason is required")
	}
	return nil
}

// Credit appends an entry and adjusts the balance in one transaction.
func (l *Ledger) Credit(ctx context.Context, in CreditInput) (CreditResult, error) {
	var res CreditResult
	err := store.InTx(ctx, l.db, func(tx *sql.Tx) error {
		var err error
		res, err = l.CreditTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return CreditResult{}, err
	}
	if res.Applied {
		l.RecordCredit(ctx, res.Entry)
	}
	return res, nil
}

// CreditTx is Credit inside a caller-owned transaction. The caller commits;
// audit recording is left to the caller as well. The kid must belong to
// in.FamilyID.
func (l *Ledger) CreditTx(ctx context.Context, tx store.DBTX, in CreditInput) (CreditResult, error) {
	ctx, span := telemetry.Start(ctx, "ledger.credit", trace.WithAttributes(
		attribute.String("kid_id", in.KidID),
		attribute.String("reason", string(in.Reason)),
		attribute.Int64("delta", in.Delta),
	))
	var err error
	defer func() { telemetry.End(span, err) }()

	if err = in.validate(); err != nil {
		return CreditResult{}, err
	}
	var kid *model.Member
	kid, err = store.NewFamilyStore(tx).GetMember(ctx, in.KidID)
	if err != nil {
		return CreditResult{}, err
	}
	if kid == nil || kid.Role != model.RoleKid {
		err = apperr.NotFound("kid", in.KidID)
		return CreditResult{}, err
	}
	if kid.FamilyID != in.FamilyID {
		err = apperr.New(apperr.CodeWrongFamily, "kid belongs to another family")
		return CreditResult{}, err
	}

	e := &model.LedgerEntry{
		KidID:     in.KidID,
		FamilyID:  in.FamilyID,
		Delta:     in.Delta,
		Reason:    in.Reason,
		CreatedAt: l.now().UTC(),
	}
	if in.RefID != "" {
		e.RefID = &in.RefID
	}
	if in.IdempotencyKey != "" {
		e.IdempotencyKey = &in.IdempotencyKey
	}

	applied, err := store.NewLedgerStore(tx).Append(ctx, e)
	if err != nil {
		return CreditResult{}, fmt.Errorf("credit ledger: %w", err)
	}
	span.SetAttributes(attribute.Bool("applied", applied))
	if !applied {
		return CreditResult{Applied: false}, nil
	}
	return CreditResult{Entry: e, Applied: true}, nil
}

// RecordCredit sends the audit event for an applied credit. Callers of CreditTx
// invoke it after their transaction commits.
func (l *Ledger) RecordCredit(ctx context.Context, e *model.LedgerEntry) {
	audit.Record(ctx, l.audit, l.logger, audit.Event{
		Action:   "ledger." + string(e.Reason),
		TargetID: e.KidID,
		Meta: map[string]any{
			"entry_id": e.ID,
			"delta":    e.Delta,
		},
	})
}

// Payout debits points from a kid when the balance covers them. Only a
// guardian of the kid's family may pay out.
func (l *Ledger) Payout(ctx context.Context, actorID, kidID string, points int64) (*model.LedgerEntry, error) {
	ctx, span := telemetry.Start(ctx, "ledger.payout")
	var err error
	defer func() { telemetry.End(span, err) }()

	if points <= 0 {
		err = apperr.Validation("payout points must be > 0")
		return nil, err
	}
	kid, err := l.kid(ctx, kidID)
	if err != nil {
		return nil, err
	}
	actor, err := l.members.GetMember(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		err = apperr.NotFound("member", actorID)
		return nil, err
	}
	if actor.FamilyID != kid.FamilyID {
		err = apperr.New(apperr.CodeWrongFamily, "kid belongs to another family")
		return nil, err
	}
	if !actor.Role.IsGuardian() {
		err = apperr.New(apperr.CodeForbidden, "only parents can pay out points")
		return nil, err
	}

	e := &model.LedgerEntry{
		KidID:     kid.ID,
		FamilyID:  kid.FamilyID,
		Delta:     -points,
		Reason:    model.ReasonPayout,
		CreatedAt: l.now().UTC(),
	}
	err = store.InTx(ctx, l.db, func(tx *sql.Tx) error {
		ok, err := store.NewLedgerStore(tx).Debit(ctx, e)
		if err != nil {
			return fmt.Errorf("payout: %w", err)
		}
		if !ok {
			return apperr.Errorf(apperr.CodeInsufficientBalance, "balance is below %d points", points)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	audit.Record(ctx, l.audit, l.logger, audit.Event{
		Action:   "ledger.payout",
		ActorID:  actorID,
		TargetID: kid.ID,
		Meta:     map[string]any{"entry_id": e.ID, "points": points},
	})
	return e, nil
}

func (l *Ledger) kid(ctx context.Context, kidID string) (*model.Member, error) {
	if kidID == "" {
		return nil, apperr.New(apperr.CodeKidRequired, "kid id is required")
	}
	m, err := l.members.GetMember(ctx, kidID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.Role != model.RoleKid {
		return nil, apperr.NotFound("kid", kidID)
	}
	return m, nil
}

func (l *Ledger) Balance(ctx context.Context, kidID string) (int64, error) {
	if kidID == "" {
		return 0, apperr.New(apperr.CodeKidRequired, "kid id is required")
	}
	return l.entries.Balance(ctx, kidID)
}

// Entries lists the kid's entries newest first. A limit <= 0 lists all.
func (l *Ledger) Entries(ctx context.Context, kidID string, limit int) ([]model.LedgerEntry, error) {
	if kidID == "" {
		return nil, apperr.New(apperr.CodeKidRequired, "kid id is required")
	}
	return l.entries.ListByKid(ctx, kidID, limit)
}

// SumPositiveSince totals what the kid earned at or after since.
func (l *Ledger) SumPositiveSince(ctx context.Context, kidID string, since time.Time) (int64, error) {
	return l.entries.SumPositiveSince(ctx, kidID, since)
}

type Verification struct {
	KidID   string `json:"kid_user_id"`
	Balance int64  `json:"balance"`
	Sum     int64  `json:"sum"`
}

func (v Verification) OK() bool { return v.Balance == v.Sum }

// Verify recomputes the kid's balance from the log and compares it with the
// materialized value.
func (l *Ledger) Verify(ctx context.Context, kidID string) (Verification, error) {
	v := Verification{KidID: kidID}
	if kidID == "" {
		return v, apperr.New(apperr.CodeKidRequired, "kid id is required")
	}
	// Both reads in one transaction so a concurrent credit can't split them.
	err := store.InTx(ctx, l.db, func(tx *sql.Tx) error {
		s := store.NewLedgerStore(tx)
		var err error
		if v.Balance, err = s.Balance(ctx, kidID); err != nil {
			return err
		}
		v.Sum, err = s.SumDeltas(ctx, kidID)
		return err
	})
	if err != nil {
		return v, err
	}
	if !v.OK() {
		l.logger.Error("ledger balance drift", "kid_id", kidID, "balance", v.Balance, "sum", v.Sum)
	}
	return v, nil
}
