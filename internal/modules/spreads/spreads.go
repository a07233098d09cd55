// Package spreads groups option legs into two-leg vertical spreads for display.
package spreads

import (
	"sort"

	"github.com/aristath/hedgebook/internal/domain"
)

// MaxStrikeGap is the widest strike distance, in index points, still treated
// as one vertical spread.
const MaxStrikeGap = 500

// Kind labels the spread family.
type Kind string

const (
	CallSpread Kind = "Call spread"
	PutSpread  Kind = "Put spread"
)

// Spread pairs two legs of the same right, opposite sides and equal size.
type Spread struct {
	ID         string `json:"id"`
	LegAID     string `json:"legAId"`
	LegBID     string `json:"legBId"`
	Type       Kind   `json:"type"`
	BuyStrike  int64  `json:"buyStrike"`
	SellStrike int64  `json:"sellStrike"`
}

// Detect scans option legs in ascending strike order and greedily pairs each
// unconsumed leg with the first later unconsumed leg that matches. Matching is
// order dependent by construction: a consumed leg is never reconsidered.
func Detect(positions []domain.Position) []Spread {
	legs := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if p.Type == domain.TypeOption {
			legs = append(legs, p)
		}
	}
	sort.SliceStable(legs, func(i, j int) bool { return legs[i].Strike < legs[j].Strike })

	consumed := make([]bool, len(legs))
	var out []Spread
	for i := range legs {
		if consumed[i] {
			continue
		}
		for j := i + 1; j < len(legs); j++ {
			if consumed[j] || !matches(legs[i], legs[j]) {
				continue
			}
			consumed[i], consumed[j] = true, true
			out = append(out, newSpread(legs[i], legs[j]))
			break
		}
	}
	return out
}

func matches(a, b domain.Position) bool {
	gap := a.Strike - b.Strike
	if gap < 0 {
		gap = -gap
	}
	return a.CallPut == b.CallPut &&
		a.Side != b.Side &&
		a.Qty == b.Qty &&
		gap <= MaxStrikeGap
}

func newSpread(a, b domain.Position) Spread {
	buy, sell := a, b
	if a.Side == domain.SideSell {
		buy, sell = b, a
	}
	kind := PutSpread
	if a.CallPut == domain.Call {
		kind = CallSpread
	}
	return Spread{
		ID:         "spread-" + a.ID + "-" + b.ID,
		LegAID:     a.ID,
		LegBID:     b.ID,
		Type:       kind,
		BuyStrike:  buy.Strike,
		SellStrike: sell.Strike,
	}
}

// Grouped maps a leg id to the spread it belongs to. Legs without a partner
// are absent from the map.
func Grouped(positions []domain.Position) map[string]Spread {
	out := make(map[string]Spread)
	for _, s := range Detect(positions) {
		out[s.LegAID] = s
		out[s.LegBID] = s
	}
	return out
}
