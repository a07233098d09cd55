package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Document is the persisted portfolio shape. The local cache and the remote
// store hold exactly this structure and always replace it whole.
//
// Revision and Origin tag every write with its causality: Revision increases
// by one per outbound write and Origin names the device that produced it.
type Document struct {
	Holding      Holding         `json:"holding"`
	Cash         Cash            `json:"cash"`
	Positions    []Position      `json:"positions"`
	MarketIndex  decimal.Decimal `json:"marketIndex"`
	Transactions []Transaction   `json:"transactions"`
	DailyRecords []DailyRecord   `json:"dailyRecords"`
	LastUpdated  time.Time       `json:"lastUpdated"`
	Revision     uint64          `json:"revision"`
	Origin       string          `json:"origin,omitempty"`
}

// DefaultDocument returns the built-in starting state used when neither the
// remote store nor the local cache has a document.
func DefaultDocument() Document {
	return Document{
		Holding: Holding{
			Symbol:       "00631L",
			Shares:       5000,
			AvgCost:      decimal.NewFromInt(180),
			CurrentPrice: decimal.RequireFromString("245.5"),
		},
		Cash: Cash{
			InitialCash: decimal.Zero,
			CurrentCash: decimal.Zero,
		},
		Positions:    []Position{},
		MarketIndex:  decimal.NewFromInt(22800),
		Transactions: []Transaction{},
		DailyRecords: []DailyRecord{},
	}
}

// Clone returns a deep copy so callers can hand documents across goroutines.
func (d Document) Clone() Document {
	out := d
	out.Positions = append([]Position{}, d.Positions...)
	out.DailyRecords = append([]DailyRecord{}, d.DailyRecords...)
	out.Transactions = make([]Transaction, len(d.Transactions))
	for i, tx := range d.Transactions {
		if tx.CallPut != nil {
			cp := *tx.CallPut
			tx.CallPut = &cp
		}
		if tx.Strike != nil {
			s := *tx.Strike
			tx.Strike = &s
		}
		out.Transactions[i] = tx
	}
	return out
}

// Normalize replaces nil collections with empty ones so a decoded document
// encodes back to the same shape.
func (d *Document) Normalize() {
	if d.Positions == nil {
		d.Positions = []Position{}
	}
	if d.Transactions == nil {
		d.Transactions = []Transaction{}
	}
	if d.DailyRecords == nil {
		d.DailyRecords = []DailyRecord{}
	}
}

// Encode serializes the document to its JSON form.
func (d Document) Encode() ([]byte, error) {
	d.Normalize()
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses a JSON document.
func DecodeDocument(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	d.Normalize()
	return d, nil
}
