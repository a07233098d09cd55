package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PositionType is the discriminant of the Position sum type.
type PositionType string

const (
	TypeOption PositionType = "option"
	TypeFuture PositionType = "future"
)

// Side is the direction of a leg.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// CallPut is the option right.
type CallPut string

const (
	Call CallPut = "call"
	Put  CallPut = "put"
)

// Contract multipliers accepted per instrument type (TWD per index point).
var (
	OptionMultipliers = []int64{10, 50}
	FutureMultipliers = []int64{50, 200}
)

// DefaultMultiplier is used by imports that do not carry a multiplier column.
const DefaultMultiplier int64 = 50

// Position is one hedge leg. It is a tagged union over Type: option legs use
// CallPut, Strike and Premium; future legs use Price. The persisted shape is flat.
//
// A position is immutable once created; it is only ever appended or removed.
type Position struct {
	ID         string          `json:"id"`
	Type       PositionType    `json:"type"`
	Side       Side            `json:"side"`
	CallPut    CallPut         `json:"callPut,omitempty"`
	Strike     int64           `json:"strike,omitempty"`
	Premium    decimal.Decimal `json:"premium"`
	Price      decimal.Decimal `json:"price"`
	Multiplier int64           `json:"multiplier"`
	Qty        int64           `json:"qty"`
}

// NewOption builds an option leg.
func NewOption(id string, side Side, cp CallPut, strike int64, premium decimal.Decimal, multiplier, qty int64) Position {
	return Position{
		ID:         id,
		Type:       TypeOption,
		Side:       side,
		CallPut:    cp,
		Strike:     strike,
		Premium:    premium,
		Multiplier: multiplier,
		Qty:        qty,
	}
}

// NewFuture builds a futures leg.
func NewFuture(id string, side Side, price decimal.Decimal, multiplier, qty int64) Position {
	return Position{
		ID:         id,
		Type:       TypeFuture,
		Side:       side,
		Price:      price,
		Multiplier: multiplier,
		Qty:        qty,
	}
}

// EntryPrice is the price a transaction records for the leg: premium for
// options, contract price for futures.
func (p Position) EntryPrice() decimal.Decimal {
	switch p.Type {
	case TypeOption:
		return p.Premium
	case TypeFuture:
		return p.Price
	default:
		return decimal.Zero
	}
}

// Validate enforces the per-type constraints of the leg.
func (p Position) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPosition)
	}
	if p.Side != SideBuy && p.Side != SideSell {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidPosition, p.Side)
	}
	if p.Qty <= 0 {
		return fmt.Errorf("%w: qty must be > 0, got %d", ErrInvalidPosition, p.Qty)
	}

	switch p.Type {
	case TypeOption:
		if p.CallPut != Call && p.CallPut != Put {
			return fmt.Errorf("%w: unknown option right %q", ErrInvalidPosition, p.CallPut)
		}
		if p.Strike <= 0 {
			return fmt.Errorf("%w: strike must be > 0, got %d", ErrInvalidPosition, p.Strike)
		}
		if p.Premium.IsNegative() {
			return fmt.Errorf("%w: premium must be >= 0, got %s", ErrInvalidPosition, p.Premium)
		}
		if !containsMultiplier(OptionMultipliers, p.Multiplier) {
			return fmt.Errorf("%w: option multiplier must be one of %v, got %d", ErrInvalidPosition, OptionMultipliers, p.Multiplier)
		}
	case TypeFuture:
		if !p.Price.IsPositive() {
			return fmt.Errorf("%w: future price must be > 0, got %s", ErrInvalidPosition, p.Price)
		}
		if !containsMultiplier(FutureMultipliers, p.Multiplier) {
			return fmt.Errorf("%w: future multiplier must be one of %v, got %d", ErrInvalidPosition, FutureMultipliers, p.Multiplier)
		}
	default:
		return fmt.Errorf("%w: unknown position type %q", ErrInvalidPosition, p.Type)
	}

	return nil
}

func containsMultiplier(allowed []int64, m int64) bool {
	for _, a := range allowed {
		if a == m {
			return true
		}
	}
	return false
}
