package portfolio

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedgebook/internal/clock"
	"github.com/aristath/hedgebook/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestState(t *testing.T) (*State, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 3, 14, 1, 30, 0, 0, time.UTC))
	n := 0
	gen := func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
	return NewState(domain.DefaultDocument(), WithClock(clk), WithIDGenerator(gen)), clk
}

func longPut() domain.Position {
	return domain.NewOption("p1", domain.SideBuy, domain.Put, 22000, d("150"), 50, 2)
}

func TestAddPosition_LogsOpenTransaction(t *testing.T) {
	s, clk := newTestState(t)

	require.NoError(t, s.AddPosition(longPut()))

	require.Len(t, s.Positions(), 1)
	txs := s.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "tx-id1", txs[0].ID)
	assert.Equal(t, domain.ActionOpen, txs[0].Action)
	assert.Equal(t, "p1", txs[0].PositionID)
	assert.True(t, txs[0].Price.Equal(d("150")))
	assert.True(t, txs[0].Timestamp.Equal(clk.Now()))
}

func TestAddPosition_RejectsInvalidAndDuplicates(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.AddPosition(longPut()))

	err := s.AddPosition(longPut())
	assert.True(t, errors.Is(err, ErrDuplicatePosition))

	bad := longPut()
	bad.ID = "p2"
	bad.Qty = 0
	err = s.AddPosition(bad)
	assert.True(t, errors.Is(err, domain.ErrInvalidPosition))

	assert.Len(t, s.Positions(), 1)
	assert.Len(t, s.Transactions(), 1)
}

func TestRemovePosition(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.AddPosition(longPut()))
	fut := domain.NewFuture("f1", domain.SideSell, d("22500"), 50, 1)
	require.NoError(t, s.AddPosition(fut))

	assert.True(t, s.RemovePosition("p1"))

	positions := s.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, "f1", positions[0].ID)

	txs := s.Transactions()
	require.Len(t, txs, 3)
	closeTx := txs[2]
	assert.Equal(t, domain.ActionClose, closeTx.Action)
	assert.Equal(t, "p1", closeTx.PositionID)
	assert.Equal(t, int64(2), closeTx.Qty)
	require.NotNil(t, closeTx.Strike)
	assert.Equal(t, int64(22000), *closeTx.Strike)
}

func TestRemovePosition_UnknownIsSilentNoop(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.AddPosition(longPut()))
	before := s.Document()

	assert.False(t, s.RemovePosition("missing"))
	assert.Equal(t, before, s.Document())
}

func TestClearTransactions(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.AddPosition(longPut()))
	s.ClearTransactions()

	assert.Empty(t, s.Transactions())
	assert.Len(t, s.Positions(), 1)
}

func TestImportPositions_Append(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.AddPosition(longPut()))

	legs := []domain.Position{
		domain.NewOption("", domain.SideSell, domain.Put, 22300, d("210"), 50, 2),
		domain.NewFuture("", domain.SideSell, d("22500"), 50, 1),
	}
	require.NoError(t, s.ImportPositions(legs, false))

	positions := s.Positions()
	require.Len(t, positions, 3)
	assert.Equal(t, "p1", positions[0].ID)
	assert.Equal(t, "import-id2", positions[1].ID)
	assert.Len(t, s.Transactions(), 3)
}

func TestImportPositions_Replace(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.AddPosition(longPut()))

	legs := []domain.Position{
		domain.NewOption("n1", domain.SideSell, domain.Put, 22300, d("210"), 50, 2),
	}
	require.NoError(t, s.ImportPositions(legs, true))

	positions := s.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, "n1", positions[0].ID)

	txs := s.Transactions()
	require.Len(t, txs, 3)
	assert.Equal(t, domain.ActionClose, txs[1].Action)
	assert.Equal(t, "p1", txs[1].PositionID)
	assert.Equal(t, domain.ActionOpen, txs[2].Action)
}

func TestImportPositions_AllOrNothing(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.AddPosition(longPut()))
	before := s.Document()

	legs := []domain.Position{
		domain.NewOption("n1", domain.SideSell, domain.Put, 22300, d("210"), 50, 2),
		domain.NewOption("n2", domain.SideSell, domain.Put, 0, d("210"), 50, 2),
	}
	err := s.ImportPositions(legs, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leg 2")
	assert.Equal(t, before, s.Document())

	dup := []domain.Position{
		domain.NewOption("n1", domain.SideSell, domain.Put, 22300, d("210"), 50, 2),
		domain.NewOption("n1", domain.SideBuy, domain.Put, 22000, d("150"), 50, 2),
	}
	err = s.ImportPositions(dup, false)
	assert.True(t, errors.Is(err, ErrDuplicatePosition))
	assert.Equal(t, before, s.Document())
}

func TestSetters(t *testing.T) {
	s, _ := newTestState(t)

	require.NoError(t, s.SetMarketIndex(d("23000")))
	assert.True(t, s.MarketIndex().Equal(d("23000")))
	assert.True(t, errors.Is(s.SetMarketIndex(d("0")), ErrInvalidIndex))
	assert.True(t, s.MarketIndex().Equal(d("23000")))

	err := s.SetHolding(domain.Holding{Symbol: "00631L", Shares: -5})
	assert.Error(t, err)
	assert.Equal(t, int64(5000), s.Holding().Shares)

	s.SetCash(domain.Cash{InitialCash: d("100"), CurrentCash: d("120")})
	assert.True(t, s.Cash().CurrentCash.Equal(d("120")))
}

func TestApplyQuotes(t *testing.T) {
	s, _ := newTestState(t)
	price := d("250")
	index := d("23100.5")

	require.NoError(t, s.ApplyQuotes(&price, nil))
	assert.True(t, s.Holding().CurrentPrice.Equal(price))
	assert.True(t, s.MarketIndex().Equal(d("22800")))

	require.NoError(t, s.ApplyQuotes(nil, &index))
	assert.True(t, s.MarketIndex().Equal(index))

	bad := d("-1")
	newPrice := d("260")
	require.Error(t, s.ApplyQuotes(&newPrice, &bad))
	assert.True(t, s.Holding().CurrentPrice.Equal(price), "nothing applied on error")
}

func TestRecordDailyHighWaterMark(t *testing.T) {
	s, _ := newTestState(t)

	changed, err := s.RecordDailyHighWaterMark("2025-03-14", d("1000"), d("0.01"), d("22800"), d("900000"))
	require.NoError(t, err)
	assert.True(t, changed)

	snapshot, err := s.Document().Encode()
	require.NoError(t, err)

	for _, pl := range []string{"1000", "999", "-5"} {
		changed, err = s.RecordDailyHighWaterMark("2025-03-14", d(pl), d("0.5"), d("1"), d("1"))
		require.NoError(t, err)
		assert.False(t, changed, pl)
	}
	after, err := s.Document().Encode()
	require.NoError(t, err)
	assert.Equal(t, string(snapshot), string(after))

	changed, err = s.RecordDailyHighWaterMark("2025-03-14", d("1500"), d("0.02"), d("23000"), d("900000"))
	require.NoError(t, err)
	assert.True(t, changed)
	records := s.DailyRecords()
	require.Len(t, records, 1)
	assert.True(t, records[0].MaxPL.Equal(d("1500")))
	assert.True(t, records[0].MarketIndex.Equal(d("23000")))
}

func TestRecordDailyHighWaterMark_KeepsDateOrder(t *testing.T) {
	s, _ := newTestState(t)
	for _, day := range []string{"2025-03-14", "2025-03-12", "2025-03-13"} {
		_, err := s.RecordDailyHighWaterMark(day, d("1"), d("0"), d("1"), d("1"))
		require.NoError(t, err)
	}
	records := s.DailyRecords()
	require.Len(t, records, 3)
	assert.Equal(t, "2025-03-12", records[0].Date)
	assert.Equal(t, "2025-03-13", records[1].Date)
	assert.Equal(t, "2025-03-14", records[2].Date)
}

func TestRestore_OrdersAndDedupesDailyRecords(t *testing.T) {
	s, _ := newTestState(t)

	doc := domain.DefaultDocument()
	doc.DailyRecords = []domain.DailyRecord{
		{Date: "2025-03-15", MaxPL: d("10")},
		{Date: "2025-03-14", MaxPL: d("500")},
		{Date: "2025-03-13", MaxPL: d("20")},
		{Date: "2025-03-14", MaxPL: d("700")},
	}
	s.Restore(doc)

	records := s.DailyRecords()
	require.Len(t, records, 3)
	assert.Equal(t, "2025-03-13", records[0].Date)
	assert.Equal(t, "2025-03-14", records[1].Date)
	assert.True(t, records[1].MaxPL.Equal(d("700")))
	assert.Equal(t, "2025-03-15", records[2].Date)

	// the caller's slice is untouched
	assert.Equal(t, "2025-03-15", doc.DailyRecords[0].Date)
	assert.Len(t, doc.DailyRecords, 4)
}

func TestRecordDailyHighWaterMark_UnorderedDocument(t *testing.T) {
	s, _ := newTestState(t)

	doc := domain.DefaultDocument()
	doc.DailyRecords = []domain.DailyRecord{
		{Date: "2025-03-15", MaxPL: d("10")},
		{Date: "2025-03-14", MaxPL: d("500")},
	}
	s.Restore(doc)

	changed, err := s.RecordDailyHighWaterMark("2025-03-14", d("100"), d("0"), d("1"), d("1"))
	require.NoError(t, err)
	assert.False(t, changed, "a lower total must not add a second record for the day")

	changed, err = s.RecordDailyHighWaterMark("2025-03-14", d("600"), d("0"), d("1"), d("1"))
	require.NoError(t, err)
	assert.True(t, changed)

	records := s.DailyRecords()
	require.Len(t, records, 2)
	assert.Equal(t, "2025-03-14", records[0].Date)
	assert.True(t, records[0].MaxPL.Equal(d("600")))
	assert.Equal(t, "2025-03-15", records[1].Date)
}

func TestRecordDailyHighWaterMark_RejectsBadDate(t *testing.T) {
	s, _ := newTestState(t)
	_, err := s.RecordDailyHighWaterMark("14/03/2025", d("1"), d("0"), d("1"), d("1"))
	assert.True(t, errors.Is(err, ErrInvalidDate))
	assert.Empty(t, s.DailyRecords())
}

func TestRecordToday_UsesLocation(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 14, 17, 0, 0, 0, time.UTC))
	taipei := time.FixedZone("CST", 8*3600)
	s := NewState(domain.DefaultDocument(), WithClock(clk), WithLocation(taipei))

	changed, err := s.RecordToday()
	require.NoError(t, err)
	assert.True(t, changed)

	records := s.DailyRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "2025-03-15", records[0].Date)
	assert.True(t, records[0].MaxPL.Equal(s.Metrics().TotalPL))
}

func TestDeleteAndClearDailyRecords(t *testing.T) {
	s, _ := newTestState(t)
	for _, day := range []string{"2025-03-12", "2025-03-13"} {
		_, err := s.RecordDailyHighWaterMark(day, d("1"), d("0"), d("1"), d("1"))
		require.NoError(t, err)
	}

	assert.True(t, s.DeleteDailyRecord("2025-03-12"))
	assert.False(t, s.DeleteDailyRecord("2025-03-12"))
	assert.Len(t, s.DailyRecords(), 1)

	s.ClearDailyRecords()
	assert.Empty(t, s.DailyRecords())
}

func TestRestoreAndDocument_AreCopies(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.AddPosition(longPut()))

	doc := s.Document()
	doc.Positions[0].Qty = 42
	assert.Equal(t, int64(2), s.Positions()[0].Qty)

	other := domain.DefaultDocument()
	other.Holding.Shares = 1
	s.Restore(other)
	assert.Equal(t, int64(1), s.Holding().Shares)
	assert.Empty(t, s.Positions())
}

func TestStamp(t *testing.T) {
	s, clk := newTestState(t)
	s.Stamp(7, "device-a", clk.Now())

	doc := s.Document()
	assert.Equal(t, uint64(7), doc.Revision)
	assert.Equal(t, uint64(7), s.Revision())
	assert.Equal(t, "device-a", doc.Origin)
	assert.True(t, doc.LastUpdated.Equal(clk.Now()))
}
