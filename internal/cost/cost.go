// Package cost derives per-call and aggregate cost from token counts and per-token rates.
package cost

import (
	"errors"

	"github.com/router-for-me/strepsil/internal/models"
	"github.com/shopspring/decimal"
)

// UnitPlaces is the rendered precision of costs in billing exports.
const UnitPlaces = 4

// ErrNegativeInput indicates a negative token count or rate.
var ErrNegativeInput = errors.New("cost: negative input")

// Breakdown is the result of pricing one call.
type Breakdown struct {
	RateIn  float64
	RateOut float64
	Total   decimal.Decimal
}

// Compute returns tokensIn*rateIn + tokensOut*rateOut.
func Compute(tokensIn, tokensOut int64, rateIn, rateOut float64) (decimal.Decimal, error) {
	if tokensIn < 0 || tokensOut < 0 || rateIn < 0 || rateOut < 0 {
		return decimal.Zero, ErrNegativeInput
	}
	in := decimal.NewFromInt(tokensIn).Mul(decimal.NewFromFloat(rateIn))
	out := decimal.NewFromInt(tokensOut).Mul(decimal.NewFromFloat(rateOut))
	return in.Add(out), nil
}

// ForModel prices a call using the provider pricing table.
// A model without configured pricing costs 0.
func ForModel(pricing map[string]models.ModelRate, model string, tokensIn, tokensOut int64) (Breakdown, error) {
	if tokensIn < 0 || tokensOut < 0 {
		return Breakdown{Total: decimal.Zero}, ErrNegativeInput
	}
	rate, ok := pricing[model]
	if !ok {
		return Breakdown{Total: decimal.Zero}, nil
	}
	total, err := Compute(tokensIn, tokensOut, rate.Input, rate.Output)
	if err != nil {
		return Breakdown{Total: decimal.Zero}, err
	}
	return Breakdown{RateIn: rate.Input, RateOut: rate.Output, Total: total}, nil
}

// FromFloat converts a stored cost into an exact decimal.
func FromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// UnitCost rounds an amount for presentation.
func UnitCost(v decimal.Decimal) string {
	return v.StringFixed(UnitPlaces)
}
