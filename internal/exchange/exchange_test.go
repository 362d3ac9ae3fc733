package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/pocketmoney/internal/apperr"
)

func ptr(v int64) *int64 { return &v }

func mustRate(t *testing.T, ppu string) Rate {
	t.Helper()
	r, err := NewRate(decimal.RequireFromString(ppu))
	require.NoError(t, err)
	return r
}

func TestQuoteHundredPointsPerUnit(t *testing.T) {
	r := mustRate(t, "100")

	q, err := r.Quote(QuoteRequest{Points: ptr(250)})
	require.NoError(t, err)
	assert.Equal(t, int64(250), q.AmountCents)

	q, err = r.Quote(QuoteRequest{AmountCents: ptr(300)})
	require.NoError(t, err)
	assert.Equal(t, int64(300), q.Points)
}

func TestRoundingFavorsPlatform(t *testing.T) {
	r := mustRate(t, "3")

	// 10 points / 3 * 100 = 333.33 -> floor
	assert.Equal(t, int64(333), r.PointsToCents(10))
	// 100 cents / 100 * 3 = 3 exactly
	assert.Equal(t, int64(3), r.CentsToPoints(100))
	// 101 cents -> 3.03 -> ceil
	assert.Equal(t, int64(4), r.CentsToPoints(101))
}

func TestFractionalRate(t *testing.T) {
	r := mustRate(t, "12.5")

	assert.Equal(t, int64(800), r.PointsToCents(100))
	assert.Equal(t, int64(125), r.CentsToPoints(1000))
	assert.Equal(t, int64(1), r.CentsToPoints(1))
}

func TestRoundTripNeverGainsPoints(t *testing.T) {
	for _, ppu := range []string{"1", "3", "7", "12.5", "100", "0.3", "250"} {
		r := mustRate(t, ppu)
		for points := int64(0); points <= 500; points++ {
			back := r.CentsToPoints(r.PointsToCents(points))
			if back > points {
				t.Fatalf("ppu=%s: %d points -> %d cents -> %d points", ppu, points, r.PointsToCents(points), back)
			}
		}
	}
}

func TestQuoteRequiresInput(t *testing.T) {
	r := mustRate(t, "10")
	_, err := r.Quote(QuoteRequest{})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}

func TestNewRateRejectsNonPositive(t *testing.T) {
	for _, ppu := range []string{"0", "-5"} {
		_, err := NewRate(decimal.RequireFromString(ppu))
		assert.True(t, apperr.HasCode(err, apperr.CodeValidation), "ppu=%s", ppu)
	}
}
