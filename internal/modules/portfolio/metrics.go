package portfolio

import (
	"strings"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/hedgebook/internal/domain"
	"github.com/aristath/hedgebook/internal/modules/valuation"
)

// RecentDays is how many daily records the tracker chart shows.
const RecentDays = 30

// Metrics are the aggregate figures derived from the state.
type Metrics struct {
	EquityPL     decimal.Decimal `json:"equityPL"`
	EquityReturn decimal.Decimal `json:"equityReturn"`
	CashPL       decimal.Decimal `json:"cashPL"`
	TotalHedgePL decimal.Decimal `json:"totalHedgePL"`
	TotalPL      decimal.Decimal `json:"totalPL"`
	TotalCost    decimal.Decimal `json:"totalCost"`
	TotalReturn  decimal.Decimal `json:"totalReturn"`
}

// Metrics recomputes the aggregates from the current state.
func (s *State) Metrics() Metrics {
	h := s.doc.Holding
	equity := valuation.EquityPL(h)
	cash := valuation.CashPL(s.doc.Cash)
	hedge := valuation.HedgePL(s.doc.Positions, s.doc.MarketIndex)
	total := equity.Add(cash).Add(hedge)
	cost := h.AvgCost.Mul(decimal.NewFromInt(h.Shares)).Add(s.doc.Cash.InitialCash)

	ret := decimal.Zero
	if cost.IsPositive() {
		ret = total.Div(cost)
	}

	return Metrics{
		EquityPL:     equity,
		EquityReturn: valuation.EquityReturn(h),
		CashPL:       cash,
		TotalHedgePL: hedge,
		TotalPL:      total,
		TotalCost:    cost,
		TotalReturn:  ret,
	}
}

// DailyStats summarizes the daily high-water marks.
type DailyStats struct {
	TodayMax    decimal.Decimal      `json:"todayMax"`
	MonthChange decimal.Decimal      `json:"monthChange"`
	AvgDaily    decimal.Decimal      `json:"avgDaily"`
	Count       int                  `json:"count"`
	Recent      []domain.DailyRecord `json:"recent"`
}

// DailyStats reports today's maximum (falling back to the live total P&L when
// today has no record), the change across the current month, and the mean
// daily maximum once more than one day is recorded.
func (s *State) DailyStats(today string) DailyStats {
	records := s.doc.DailyRecords
	stats := DailyStats{
		TodayMax:    s.Metrics().TotalPL,
		MonthChange: decimal.Zero,
		AvgDaily:    decimal.Zero,
		Count:       len(records),
		Recent:      []domain.DailyRecord{},
	}
	if len(records) == 0 {
		return stats
	}

	var month []domain.DailyRecord
	prefix := today
	if len(prefix) >= 7 {
		prefix = prefix[:7]
	}
	values := make([]float64, 0, len(records))
	for _, r := range records {
		if r.Date == today {
			stats.TodayMax = r.MaxPL
		}
		if strings.HasPrefix(r.Date, prefix) {
			month = append(month, r)
		}
		values = append(values, r.MaxPL.InexactFloat64())
	}

	switch {
	case len(month) >= 2:
		stats.MonthChange = month[len(month)-1].MaxPL.Sub(month[0].MaxPL)
	case len(month) == 1:
		stats.MonthChange = month[0].MaxPL
	}

	if len(values) > 1 {
		stats.AvgDaily = decimal.NewFromFloat(stat.Mean(values, nil)).Round(2)
	}

	start := 0
	if len(records) > RecentDays {
		start = len(records) - RecentDays
	}
	stats.Recent = append(stats.Recent, records[start:]...)
	return stats
}
