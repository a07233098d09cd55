// Package scenario projects the hedged portfolio across a band of index levels
// around the current one. Output feeds both the payoff chart and the
// simulation table; it is a pure function of its inputs.
package scenario

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/hedgebook/internal/domain"
	"github.com/aristath/hedgebook/internal/modules/valuation"
)

// Leverage is the daily tracking multiple assumed for the holding (2x ETF).
const Leverage = 2

// Defaults used by the chart and the simulation table.
const (
	DefaultSteps     = 10
	DefaultSpan      = 1500
	DefaultPointStep = 100
)

// DefaultRange is the chart half-width as a fraction of the index (±5%).
var DefaultRange = decimal.RequireFromString("0.05")

var leverage = decimal.NewFromInt(Leverage)

// Sample is one point of the percent-based projection.
type Sample struct {
	Index   decimal.Decimal `json:"index"`
	Percent decimal.Decimal `json:"percent"`
	StockPL int64           `json:"stockPL"`
	HedgePL int64           `json:"hedgePL"`
	NetPL   int64           `json:"netPL"`
}

// Row is one line of the absolute-point simulation table.
type Row struct {
	Delta     int64           `json:"delta"`
	Index     decimal.Decimal `json:"index"`
	Percent   decimal.Decimal `json:"percent"`
	StockPL   int64           `json:"stockPL"`
	HedgePL   int64           `json:"hedgePL"`
	NetPL     int64           `json:"netPL"`
	IsCurrent bool            `json:"isCurrent"`
}

// Generate returns 2*steps+1 samples at percent = (i/steps)*rangeFrac for
// i in [-steps, steps]. A non-positive steps yields only the center sample.
func Generate(h domain.Holding, legs []domain.Position, center, rangeFrac decimal.Decimal, steps int) []Sample {
	if steps <= 0 {
		steps = 0
	}

	samples := make([]Sample, 0, 2*steps+1)
	for i := -steps; i <= steps; i++ {
		percent := decimal.Zero
		if steps > 0 && i != 0 {
			percent = decimal.NewFromInt(int64(i)).Div(decimal.NewFromInt(int64(steps))).Mul(rangeFrac)
		}
		index := center.Mul(decimal.NewFromInt(1).Add(percent))
		stock, hedge := evaluate(h, legs, index, percent)

		samples = append(samples, Sample{
			Index:   index,
			Percent: percent,
			StockPL: round(stock),
			HedgePL: round(hedge),
			NetPL:   round(stock.Add(hedge)),
		})
	}
	return samples
}

// GeneratePoints returns rows at fixed index-point offsets from center:
// -span, -span+step, ..., +span. The holding still moves at Leverage times
// the relative index change.
func GeneratePoints(h domain.Holding, legs []domain.Position, center decimal.Decimal, span, step int64) []Row {
	if span < 0 {
		span = -span
	}
	if step <= 0 {
		step = span
	}
	if step == 0 {
		step = 1
	}

	rows := make([]Row, 0, 2*span/step+1)
	for delta := -span; delta <= span; delta += step {
		index := center.Add(decimal.NewFromInt(delta))
		percent := decimal.Zero
		if !center.IsZero() && delta != 0 {
			percent = decimal.NewFromInt(delta).Div(center)
		}
		stock, hedge := evaluate(h, legs, index, percent)

		rows = append(rows, Row{
			Delta:     delta,
			Index:     index,
			Percent:   percent,
			StockPL:   round(stock),
			HedgePL:   round(hedge),
			NetPL:     round(stock.Add(hedge)),
			IsCurrent: delta == 0,
		})
	}
	return rows
}

// evaluate prices the holding and the hedge at a simulated index level
// reached by an index move of percent.
func evaluate(h domain.Holding, legs []domain.Position, index, percent decimal.Decimal) (stock, hedge decimal.Decimal) {
	price := h.CurrentPrice.Mul(decimal.NewFromInt(1).Add(percent.Mul(leverage)))
	return valuation.EquityPLAt(h, price), valuation.HedgePL(legs, index)
}

var half = decimal.NewFromFloat(0.5)

// round rounds half toward positive infinity, so -2.5 becomes -2.
func round(v decimal.Decimal) int64 {
	return v.Add(half).Floor().IntPart()
}

// Breakevens returns the index levels at which net P&L crosses zero, linearly
// interpolated between adjacent samples. Samples sitting exactly on zero are
// reported once.
func Breakevens(samples []Sample) []decimal.Decimal {
	var out []decimal.Decimal
	for i, s := range samples {
		if s.NetPL == 0 {
			if len(out) == 0 || !out[len(out)-1].Equal(s.Index) {
				out = append(out, s.Index)
			}
			continue
		}
		if i == 0 {
			continue
		}
		prev := samples[i-1]
		if prev.NetPL == 0 || (prev.NetPL < 0) == (s.NetPL < 0) {
			continue
		}
		// prev.Index + (s.Index - prev.Index) * -prev / (s - prev)
		num := decimal.NewFromInt(-prev.NetPL)
		den := decimal.NewFromInt(s.NetPL - prev.NetPL)
		out = append(out, prev.Index.Add(s.Index.Sub(prev.Index).Mul(num).Div(den)))
	}
	return out
}
