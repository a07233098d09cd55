// Package valuation prices hedge legs and the equity holding at a given index
// level. Every P&L figure in the system (live summary, scenario table, chart)
// goes through these functions.
//
// Options are valued at intrinsic value only; there is no time value model.
package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/hedgebook/internal/domain"
)

// Intrinsic returns the expiry payoff per index point of an option right.
func Intrinsic(cp domain.CallPut, strike int64, index decimal.Decimal) decimal.Decimal {
	k := decimal.NewFromInt(strike)
	var v decimal.Decimal
	if cp == domain.Call {
		v = index.Sub(k)
	} else {
		v = k.Sub(index)
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// OptionPL returns the P&L of an option leg at index. A long leg earns the
// intrinsic value minus the premium paid; a short leg keeps the premium minus
// what it owes.
func OptionPL(pos domain.Position, index decimal.Decimal) decimal.Decimal {
	size := decimal.NewFromInt(pos.Multiplier * pos.Qty)
	value := Intrinsic(pos.CallPut, pos.Strike, index).Mul(size)
	cost := pos.Premium.Mul(size)

	if pos.Side == domain.SideBuy {
		return value.Sub(cost)
	}
	return cost.Sub(value)
}

// FuturePL returns the P&L of a futures leg at index.
func FuturePL(pos domain.Position, index decimal.Decimal) decimal.Decimal {
	diff := index.Sub(pos.Price)
	pl := diff.Mul(decimal.NewFromInt(pos.Multiplier * pos.Qty))

	if pos.Side == domain.SideSell {
		return pl.Neg()
	}
	return pl
}

// PositionPL dispatches on the leg type. Unknown types are worth zero.
func PositionPL(pos domain.Position, index decimal.Decimal) decimal.Decimal {
	switch pos.Type {
	case domain.TypeOption:
		return OptionPL(pos, index)
	case domain.TypeFuture:
		return FuturePL(pos, index)
	default:
		return decimal.Zero
	}
}

// HedgePL sums PositionPL over every leg.
func HedgePL(legs []domain.Position, index decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, leg := range legs {
		total = total.Add(PositionPL(leg, index))
	}
	return total
}

// EquityPL is the unrealized P&L of the holding at its current price.
func EquityPL(h domain.Holding) decimal.Decimal {
	return EquityPLAt(h, h.CurrentPrice)
}

// EquityPLAt is the unrealized P&L of the holding at an arbitrary price.
func EquityPLAt(h domain.Holding, price decimal.Decimal) decimal.Decimal {
	return price.Sub(h.AvgCost).Mul(decimal.NewFromInt(h.Shares))
}

// EquityReturn is the holding's return on cost as a fraction; zero when the
// cost basis is zero.
func EquityReturn(h domain.Holding) decimal.Decimal {
	if h.AvgCost.IsZero() {
		return decimal.Zero
	}
	return h.CurrentPrice.Sub(h.AvgCost).Div(h.AvgCost)
}

// CashPL is the change of the cash account since inception.
func CashPL(c domain.Cash) decimal.Decimal {
	return c.CurrentCash.Sub(c.InitialCash)
}
