package exchange

import (
	"context"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/pocketmoney/internal/apperr"
	"github.com/dukerupert/pocketmoney/internal/audit"
	"github.com/dukerupert/pocketmoney/internal/database"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/store"
)

func setup(t *testing.T) (*Service, *audit.Recorder, *model.Member, *model.Member) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	fs := store.NewFamilyStore(db)
	fam, err := fs.Create(ctx, "Rivera")
	require.NoError(t, err)
	parent, err := fs.AddMember(ctx, fam.ID, "Dad", model.RoleParent)
	require.NoError(t, err)
	kid, err := fs.AddMember(ctx, fam.ID, "Lu", model.RoleKid)
	require.NoError(t, err)

	rec := &audit.Recorder{}
	return NewService(db, rec, slog.Default()), rec, parent, kid
}

func TestSetRuleAndQuote(t *testing.T) {
	svc, rec, parent, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Quote(ctx, parent.FamilyID, QuoteRequest{Points: ptr(10)})
	assert.True(t, apperr.HasCode(err, apperr.CodeExchangeRuleMissing))

	rule, err := svc.SetRule(ctx, parent.ID, RuleInput{
		PointsPerUnit: decimal.NewFromInt(100), Currency: "usd", WeeklyAllowancePoints: 50, RequiredTaskMinPct: 70,
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", rule.Currency)
	assert.Equal(t, model.RoundingFloor, rule.Rounding)
	assert.Equal(t, []string{"exchange_rule.set"}, rec.Actions())

	q, err := svc.Quote(ctx, parent.FamilyID, QuoteRequest{Points: ptr(250)})
	require.NoError(t, err)
	assert.Equal(t, int64(250), q.AmountCents)
	assert.Equal(t, "USD", q.Currency)
}

func TestSetRuleRequiresGuardian(t *testing.T) {
	svc, _, _, kid := setup(t)

	_, err := svc.SetRule(context.Background(), kid.ID, RuleInput{PointsPerUnit: decimal.NewFromInt(10), Currency: "EUR"})
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
}

func TestSetRuleValidation(t *testing.T) {
	svc, _, parent, _ := setup(t)
	ctx := context.Background()

	tests := []RuleInput{
		{PointsPerUnit: decimal.Zero, Currency: "USD"},
		{PointsPerUnit: decimal.NewFromInt(10), Currency: "dollars"},
		{PointsPerUnit: decimal.NewFromInt(10), Currency: "USD", WeeklyAllowancePoints: -1},
		{PointsPerUnit: decimal.NewFromInt(10), Currency: "USD", RequiredTaskMinPct: 101},
		{PointsPerUnit: decimal.NewFromInt(10), Currency: "USD", Rounding: "banker"},
	}
	for i, in := range tests {
		_, err := svc.SetRule(ctx, parent.ID, in)
		assert.True(t, apperr.HasCode(err, apperr.CodeValidation), "case %d: %v", i, err)
	}
}
