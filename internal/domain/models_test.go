package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPosition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pos     Position
		wantErr bool
	}{
		{"valid option", NewOption("a", SideBuy, Put, 22000, d("150"), 50, 2), false},
		{"valid mini option", NewOption("a", SideSell, Call, 23000, d("0"), 10, 1), false},
		{"valid future", NewFuture("f", SideSell, d("22500"), 50, 1), false},
		{"valid big future", NewFuture("f", SideBuy, d("22500"), 200, 1), false},
		{"missing id", NewOption("", SideBuy, Put, 22000, d("150"), 50, 2), true},
		{"zero qty", NewOption("a", SideBuy, Put, 22000, d("150"), 50, 0), true},
		{"zero strike", NewOption("a", SideBuy, Put, 0, d("150"), 50, 1), true},
		{"negative premium", NewOption("a", SideBuy, Put, 22000, d("-1"), 50, 1), true},
		{"bad option multiplier", NewOption("a", SideBuy, Put, 22000, d("150"), 200, 1), true},
		{"bad right", NewOption("a", SideBuy, CallPut("straddle"), 22000, d("150"), 50, 1), true},
		{"bad side", NewOption("a", Side("hold"), Put, 22000, d("150"), 50, 1), true},
		{"zero future price", NewFuture("f", SideSell, d("0"), 50, 1), true},
		{"bad future multiplier", NewFuture("f", SideSell, d("22500"), 10, 1), true},
		{"unknown type", Position{ID: "x", Type: "swap", Side: SideBuy, Qty: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pos.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPosition))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHolding_Validate(t *testing.T) {
	assert.NoError(t, Holding{Symbol: "00631L", Shares: 0, AvgCost: d("0"), CurrentPrice: d("0")}.Validate())
	assert.Error(t, Holding{Shares: -1}.Validate())
	assert.Error(t, Holding{Shares: 1, AvgCost: d("-1")}.Validate())
	assert.Error(t, Holding{Shares: 1, CurrentPrice: d("-0.01")}.Validate())
}

func TestNewTransaction(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	t.Run("option captures premium, right and strike", func(t *testing.T) {
		pos := NewOption("p1", SideBuy, Put, 22000, d("150"), 50, 2)
		tx := NewTransaction("tx1", at, ActionOpen, pos)

		assert.Equal(t, "tx1", tx.ID)
		assert.Equal(t, ActionOpen, tx.Action)
		assert.Equal(t, TypeOption, tx.PositionType)
		assert.Equal(t, SideBuy, tx.Side)
		assert.Equal(t, int64(2), tx.Qty)
		assert.True(t, tx.Price.Equal(d("150")))
		require.NotNil(t, tx.CallPut)
		assert.Equal(t, Put, *tx.CallPut)
		require.NotNil(t, tx.Strike)
		assert.Equal(t, int64(22000), *tx.Strike)
		assert.Equal(t, "p1", tx.PositionID)
	})

	t.Run("future captures price only", func(t *testing.T) {
		pos := NewFuture("f1", SideSell, d("22500"), 50, 1)
		tx := NewTransaction("tx2", at, ActionClose, pos)

		assert.Equal(t, ActionClose, tx.Action)
		assert.True(t, tx.Price.Equal(d("22500")))
		assert.Nil(t, tx.CallPut)
		assert.Nil(t, tx.Strike)
	})
}

func TestParseTokens(t *testing.T) {
	typ, err := ParsePositionType(" 選擇權 ")
	require.NoError(t, err)
	assert.Equal(t, TypeOption, typ)

	typ, err = ParsePositionType("FUTURE")
	require.NoError(t, err)
	assert.Equal(t, TypeFuture, typ)

	_, err = ParsePositionType("swap")
	assert.Error(t, err)

	for _, tok := range []string{"buy", "買", "買進", "Buy"} {
		side, err := ParseSide(tok)
		require.NoError(t, err, tok)
		assert.Equal(t, SideBuy, side)
	}
	for _, tok := range []string{"sell", "賣", "賣出"} {
		side, err := ParseSide(tok)
		require.NoError(t, err, tok)
		assert.Equal(t, SideSell, side)
	}
	_, err = ParseSide("hold")
	assert.Error(t, err)

	cp, err := ParseCallPut("C")
	require.NoError(t, err)
	assert.Equal(t, Call, cp)
	cp, err = ParseCallPut("賣權")
	require.NoError(t, err)
	assert.Equal(t, Put, cp)
}

func TestSide_Opposite(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
}

func TestDocument_RoundTrip(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := DefaultDocument()
	doc.Cash = Cash{InitialCash: d("100000"), CurrentCash: d("98500.5")}
	doc.Positions = []Position{
		NewOption("p1", SideBuy, Put, 22000, d("150"), 50, 2),
		NewFuture("f1", SideSell, d("22500"), 50, 1),
		NewOption("p2", SideSell, Put, 22300, d("210.5"), 50, 2),
	}
	doc.Transactions = []Transaction{
		NewTransaction("t1", at, ActionOpen, doc.Positions[0]),
		NewTransaction("t2", at, ActionOpen, doc.Positions[1]),
	}
	doc.DailyRecords = []DailyRecord{
		{Date: "2025-01-02", MaxPL: d("12345"), MaxReturn: d("0.0123"), MarketIndex: d("22800"), TotalCost: d("1000000"), UpdatedAt: at},
	}
	doc.LastUpdated = at
	doc.Revision = 7
	doc.Origin = "device-a"

	first, err := doc.Encode()
	require.NoError(t, err)

	decoded, err := DecodeDocument(first)
	require.NoError(t, err)

	second, err := decoded.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))

	require.Len(t, decoded.Positions, 3)
	assert.Equal(t, []string{"p1", "f1", "p2"}, []string{decoded.Positions[0].ID, decoded.Positions[1].ID, decoded.Positions[2].ID})
	assert.True(t, decoded.Positions[2].Premium.Equal(d("210.5")))
	assert.True(t, decoded.Cash.CurrentCash.Equal(d("98500.5")))
	assert.Equal(t, uint64(7), decoded.Revision)
	assert.Equal(t, "device-a", decoded.Origin)
	assert.True(t, decoded.LastUpdated.Equal(at))
}

func TestDocument_EncodesNumbersUnquoted(t *testing.T) {
	doc := DefaultDocument()
	data, err := doc.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"marketIndex":22800`)
	assert.Contains(t, string(data), `"positions":[]`)
}

func TestDocument_CloneIsDeep(t *testing.T) {
	doc := DefaultDocument()
	doc.Positions = append(doc.Positions, NewOption("p1", SideBuy, Put, 22000, d("150"), 50, 2))
	doc.Transactions = append(doc.Transactions, NewTransaction("t1", time.Now(), ActionOpen, doc.Positions[0]))

	clone := doc.Clone()
	clone.Positions[0].Qty = 99
	*clone.Transactions[0].Strike = 1

	assert.Equal(t, int64(2), doc.Positions[0].Qty)
	assert.Equal(t, int64(22000), *doc.Transactions[0].Strike)
}

func TestDecodeDocument_NormalizesMissingCollections(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"holding":{"symbol":"00631L","shares":1,"avgCost":1,"currentPrice":2},"marketIndex":20000}`))
	require.NoError(t, err)
	assert.NotNil(t, doc.Positions)
	assert.NotNil(t, doc.Transactions)
	assert.NotNil(t, doc.DailyRecords)
	assert.True(t, doc.MarketIndex.Equal(decimal.NewFromInt(20000)))
}
