// Package valuation turns positions and quotes into display holdings.
// All arithmetic runs at full precision; rounding happens once, on output.
package valuation

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cryptopro/internal/domain"
)

// ErrInvalidPosition is returned by Validate for positions that cannot be valued.
var ErrInvalidPosition = errors.New("invalid position")

var hundred = decimal.NewFromInt(100)

// Validate checks that a position can be valued.
func Validate(pos domain.Position) error {
	if pos.Asset == "" {
		return fmt.Errorf("%w: empty asset", ErrInvalidPosition)
	}
	if pos.Quantity.IsNegative() {
		return fmt.Errorf("%w: negative quantity %s for %s", ErrInvalidPosition, pos.Quantity, pos.Asset)
	}
	if pos.CostBasis.IsNegative() {
		return fmt.Errorf("%w: negative cost basis %s for %s", ErrInvalidPosition, pos.CostBasis, pos.Asset)
	}
	return nil
}

// Valuate computes the holding for pos at the quoted price.
//
//	currentValue         = quantity * price
//	averageCostBasis     = costBasis / quantity      (0 when quantity is 0)
//	unrealizedPnlPercent = (value - cost) / cost * 100 (0 when cost is 0)
func Valuate(pos domain.Position, q domain.Quote) domain.Holding {
	value := pos.Quantity.Mul(q.Price)
	avg := domain.SafeDivide(pos.CostBasis, pos.Quantity)
	pnl := value.Sub(pos.CostBasis)
	percent := domain.SafeDivide(pnl, pos.CostBasis).Mul(hundred)

	class := domain.PnlGain
	if percent.IsNegative() {
		class = domain.PnlLoss
	}

	return domain.Holding{
		Asset:                pos.Asset,
		Symbol:               q.Ticker,
		Quantity:             domain.RoundQuantity(pos.Quantity),
		AverageCostBasis:     domain.RoundCurrency(avg),
		CurrentPrice:         domain.RoundCurrency(q.Price),
		CurrentValue:         domain.RoundCurrency(value),
		UnrealizedPnlPercent: domain.RoundCurrency(percent),
		ProfitLoss:           domain.RoundCurrency(pnl),
		PnlClass:             class,
		PriceSource:          q.Source,
	}
}

// Neutral builds the zero-confidence row shown when an asset could not be valued.
// The quote is usually the adapter's fallback price.
func Neutral(pos domain.Position, q domain.Quote) domain.Holding {
	qty := domain.ClampZero(pos.Quantity)
	return domain.Holding{
		Asset:                pos.Asset,
		Symbol:               q.Ticker,
		Quantity:             domain.RoundQuantity(qty),
		AverageCostBasis:     decimal.Zero,
		CurrentPrice:         domain.RoundCurrency(q.Price),
		CurrentValue:         domain.RoundCurrency(qty.Mul(q.Price)),
		UnrealizedPnlPercent: decimal.Zero,
		ProfitLoss:           decimal.Zero,
		PnlClass:             domain.PnlNeutral,
		PriceSource:          q.Source,
	}
}

// TotalBalance sums the current value of holdings.
func TotalBalance(holdings []domain.Holding) decimal.Decimal {
	return lo.Reduce(holdings, func(acc decimal.Decimal, h domain.Holding, _ int) decimal.Decimal {
		return acc.Add(h.CurrentValue)
	}, decimal.Zero)
}
