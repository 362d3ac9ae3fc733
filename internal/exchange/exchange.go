// Package exchange converts between points and currency under a family's
// exchange rule. Both directions round in the platform's favor: payouts floor,
// goal pricing ceils.
package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/dukerupert/pocketmoney/internal/apperr"
)

var hundred = decimal.NewFromInt(100)

// Rate is a points-per-currency-unit conversion rate.
type Rate struct {
	PointsPerUnit decimal.Decimal
}

func NewRate(pointsPerUnit decimal.Decimal) (Rate, error) {
	if !pointsPerUnit.IsPositive() {
		return Rate{}, apperr.Validation("points_per_unit must be > 0")
	}
	return Rate{PointsPerUnit: pointsPerUnit}, nil
}

// PointsToCents returns floor(points / pointsPerUnit * 100).
func (r Rate) PointsToCents(points int64) int64 {
	return decimal.NewFromInt(points).Mul(hundred).Div(r.PointsPerUnit).Floor().IntPart()
}

// CentsToPoints returns ceil(cents / 100 * pointsPerUnit).
func (r Rate) CentsToPoints(cents int64) int64 {
	return decimal.NewFromInt(cents).Mul(r.PointsPerUnit).Div(hundred).Ceil().IntPart()
}

type QuoteRequest struct {
	Points      *int64
	AmountCents *int64
}

type Quote struct {
	Points      int64  `json:"points"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// Quote converts whichever side of req is set. When both are set, points win.
func (r Rate) Quote(req QuoteRequest) (Quote, error) {
	switch {
	case req.Points != nil:
		return Quote{Points: *req.Points, AmountCents: r.PointsToCents(*req.Points)}, nil
	case req.AmountCents != nil:
		return Quote{Points: r.CentsToPoints(*req.AmountCents), AmountCents: *req.AmountCents}, nil
	default:
		return Quote{}, apperr.Validation("points or amount is required")
	}
}
