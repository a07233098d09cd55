// Package formatting renders portfolio figures for terminal output.
package formatting

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is the code every portfolio amount is held in.
const Currency = money.TWD

var (
	// Whole-dollar variant of the currency's own formatter.
	wholeFormatter = func() *money.Formatter {
		f := *money.GetCurrency(Currency).Formatter()
		f.Fraction = 0
		return &f
	}()
	pointsFormatter = money.NewFormatter(0, ".", ",", "", "1")
)

// Money renders an amount rounded to whole dollars, e.g. "NT$12,345".
func Money(d decimal.Decimal) string {
	return wholeFormatter.Format(d.Round(0).IntPart())
}

// MoneyCents renders an amount with the currency's minor units, e.g.
// "NT$12,345.60".
func MoneyCents(d decimal.Decimal) string {
	fraction := int32(money.GetCurrency(Currency).Fraction)
	return money.New(d.Shift(fraction).Round(0).IntPart(), Currency).Display()
}

// Signed is Money with an explicit plus sign on gains.
func Signed(d decimal.Decimal) string {
	s := Money(d)
	if d.Round(0).IsPositive() {
		return "+" + s
	}
	return s
}

// SignedInt is Signed for integer amounts such as scenario P&L.
func SignedInt(v int64) string {
	return Signed(decimal.NewFromInt(v))
}

// Percent renders a fraction as a percentage with the given decimal places,
// e.g. 0.0525 -> "5.25%".
func Percent(fraction decimal.Decimal, places int32) string {
	return fraction.Shift(2).StringFixed(places) + "%"
}

// SignedPercent is Percent with an explicit plus sign on positive values.
func SignedPercent(fraction decimal.Decimal, places int32) string {
	s := Percent(fraction, places)
	if fraction.Shift(2).Round(places).IsPositive() {
		return "+" + s
	}
	return s
}

// Points renders an index level as whole points with thousands separators.
func Points(d decimal.Decimal) string {
	return pointsFormatter.Format(d.Round(0).IntPart())
}

// Strike renders an option strike; zero (futures) renders as a dash.
func Strike(v int64) string {
	if v == 0 {
		return "-"
	}
	return pointsFormatter.Format(v)
}

// PadRight pads s with spaces to width runes. East Asian wide characters are
// counted as two columns.
func PadRight(s string, width int) string {
	if n := Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// PadLeft right-aligns s within width columns.
func PadLeft(s string, width int) string {
	if n := Width(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}

// Width is the display width of s in terminal columns.
func Width(s string) int {
	w := 0
	for _, r := range s {
		if isWide(r) {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func isWide(r rune) bool {
	return (r >= 0x1100 && r <= 0x115F) ||
		(r >= 0x2E80 && r <= 0xA4CF) ||
		(r >= 0xAC00 && r <= 0xD7A3) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0xFE30 && r <= 0xFE4F) ||
		(r >= 0xFF00 && r <= 0xFF60) ||
		(r >= 0xFFE0 && r <= 0xFFE6)
}
