package exchange

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/pocketmoney/internal/apperr"
	"github.com/dukerupert/pocketmoney/internal/audit"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/store"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// Service reads and updates family exchange rules.
type Service struct {
	rules   *store.ExchangeStore
	members *store.FamilyStore
	audit   audit.Sink
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(db *sql.DB, sink audit.Sink, logger *slog.Logger) *Service {
	return &Service{
		rules:   store.NewExchangeStore(db),
		members: store.NewFamilyStore(db),
		audit:   sink,
		logger:  logger,
		now:     time.Now,
	}
}

// RuleInput is what a parent may change on the family's rule.
type RuleInput struct {
	PointsPerUnit         decimal.Decimal
	Currency              string
	Rounding              model.Rounding
	WeeklyAllowancePoints int64
	RequiredTaskMinPct    int
}

func (in RuleInput) validate() error {
	if !in.PointsPerUnit.IsPositive() {
		return apperr.Validation("points_per_unit must be > 0")
	}
	if !currencyCode.MatchString(in.Currency) {
		return apperr.Validation("currency must be a 3-letter ISO code")
	}
	switch in.Rounding {
	case model.RoundingFloor, model.RoundingNearest, model.RoundingUp:
	default:
		return apperr.Validation("rounding must be floor, nearest or up")
	}
	if in.WeeklyAllowancePoints < 0 {
		return apperr.Validation("weekly_allowance_points must be >= 0")
	}
	if in.RequiredTaskMinPct < 0 || in.RequiredTaskMinPct > 100 {
		return apperr.Validation("required_task_min_pct must be between 0 and 100")
	}
	return nil
}

// SetRule replaces the exchange rule of the actor's family. Only guardians may
// change it. Existing goals keep the rate they were created under.
func (s *Service) SetRule(ctx context.Context, actorID string, in RuleInput) (*model.ExchangeRule, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Rounding == "" {
		in.Rounding = model.RoundingFloor
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	actor, err := s.members.GetMember(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, apperr.NotFound("member", actorID)
	}
	if !actor.Role.IsGuardian() {
		return nil, apperr.New(apperr.CodeForbidden, "only parents can change the exchange rule")
	}

	rule, err := s.rules.Upsert(ctx, model.ExchangeRule{
		FamilyID:              actor.FamilyID,
		PointsPerUnit:         in.PointsPerUnit,
		Currency:              in.Currency,
		Rounding:              in.Rounding,
		WeeklyAllowancePoints: in.WeeklyAllowancePoints,
		RequiredTaskMinPct:    in.RequiredTaskMinPct,
		UpdatedAt:             s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("set exchange rule: %w", err)
	}

	audit.Record(ctx, s.audit, s.logger, audit.Event{
		Action:   "exchange_rule.set",
		ActorID:  actorID,
		TargetID: actor.FamilyID,
		Meta: map[string]any{
			"points_per_unit":  rule.PointsPerUnit.String(),
			"currency":         rule.Currency,
			"weekly_allowance": rule.WeeklyAllowancePoints,
		},
	})
	return rule, nil
}

// Rule returns the family's rule or exchange_rule_missing.
func (s *Service) Rule(ctx context.Context, familyID string) (*model.ExchangeRule, error) {
	return LoadRule(ctx, s.rules, familyID)
}

// Quote converts for the family's current rate.
func (s *Service) Quote(ctx context.Context, familyID string, req QuoteRequest) (Quote, error) {
	rule, err := s.Rule(ctx, familyID)
	if err != nil {
		return Quote{}, err
	}
	rate, err := NewRate(rule.PointsPerUnit)
	if err != nil {
		return Quote{}, err
	}
	q, err := rate.Quote(req)
	if err != nil {
		return Quote{}, err
	}
	q.Currency = rule.Currency
	return q, nil
}

// LoadRule fetches a family's rule through rules, which may be bound to a
// transaction, and maps absence to exchange_rule_missing.
func LoadRule(ctx context.Context, rules *store.ExchangeStore, familyID string) (*model.ExchangeRule, error) {
	rule, err := rules.Get(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, apperr.Errorf(apperr.CodeExchangeRuleMissing, "family %s has no exchange rule", familyID)
	}
	return rule, nil
}
