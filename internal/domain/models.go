// Package domain provides core domain models and types.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The persisted document carries plain JSON numbers, not quoted decimals.
	decimal.MarshalJSONWithoutQuotes = true
}

// Currency represents a currency code
type Currency string

const (
	CurrencyTWD Currency = "TWD"
	CurrencyUSD Currency = "USD"
)

// DateLayout is the calendar-day key used by daily records.
const DateLayout = "2006-01-02"

// ErrInvalidPosition is returned when a leg violates its per-type constraints.
var ErrInvalidPosition = errors.New("invalid position")

// Holding is the leveraged-ETF equity position being hedged.
type Holding struct {
	Symbol       string          `json:"symbol"`
	Shares       int64           `json:"shares"`
	AvgCost      decimal.Decimal `json:"avgCost"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
}

// Validate checks the holding's non-negativity constraints.
func (h Holding) Validate() error {
	if h.Shares < 0 {
		return fmt.Errorf("%w: shares must be >= 0, got %d", ErrInvalidPosition, h.Shares)
	}
	if h.AvgCost.IsNegative() {
		return fmt.Errorf("%w: avgCost must be >= 0, got %s", ErrInvalidPosition, h.AvgCost)
	}
	if h.CurrentPrice.IsNegative() {
		return fmt.Errorf("%w: currentPrice must be >= 0, got %s", ErrInvalidPosition, h.CurrentPrice)
	}
	return nil
}

// Cash is the cash account sitting next to the holding (margin, premium income).
type Cash struct {
	InitialCash decimal.Decimal `json:"initialCash"`
	CurrentCash decimal.Decimal `json:"currentCash"`
}

// Action is the transaction log verb.
type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// Transaction is an append-only log entry written when a leg is opened or closed.
// Option-only fields are nil for futures.
type Transaction struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	Action       Action          `json:"action"`
	PositionType PositionType    `json:"positionType"`
	Side         Side            `json:"side"`
	Qty          int64           `json:"qty"`
	Price        decimal.Decimal `json:"price"`
	CallPut      *CallPut        `json:"callPut,omitempty"`
	Strike       *int64          `json:"strike,omitempty"`
	PositionID   string          `json:"positionId"`
}

// NewTransaction captures the economics of pos at the moment it is opened or closed.
func NewTransaction(id string, at time.Time, action Action, pos Position) Transaction {
	tx := Transaction{
		ID:           id,
		Timestamp:    at.UTC(),
		Action:       action,
		PositionType: pos.Type,
		Side:         pos.Side,
		Qty:          pos.Qty,
		PositionID:   pos.ID,
	}

	switch pos.Type {
	case TypeOption:
		cp := pos.CallPut
		strike := pos.Strike
		tx.Price = pos.Premium
		tx.CallPut = &cp
		tx.Strike = &strike
	case TypeFuture:
		tx.Price = pos.Price
	}

	return tx
}

// DailyRecord is the per-day high-water mark of total portfolio P&L.
type DailyRecord struct {
	Date        string          `json:"date"`
	MaxPL       decimal.Decimal `json:"maxPL"`
	MaxReturn   decimal.Decimal `json:"maxReturn"`
	MarketIndex decimal.Decimal `json:"marketIndex"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
