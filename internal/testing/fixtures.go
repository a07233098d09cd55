package testing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/hedgebook/internal/domain"
)

// Dec parses a decimal literal, panicking on bad input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// HedgedDocument returns a document holding the default 00631L position
// hedged with a put spread and a short future.
func HedgedDocument() domain.Document {
	doc := domain.DefaultDocument()
	doc.Cash = domain.Cash{InitialCash: Dec("100000"), CurrentCash: Dec("95000")}
	doc.Positions = []domain.Position{
		domain.NewOption("p-long", domain.SideBuy, domain.Put, 22000, Dec("150"), 50, 2),
		domain.NewOption("p-short", domain.SideSell, domain.Put, 22300, Dec("210"), 50, 2),
		domain.NewFuture("f-short", domain.SideSell, Dec("22500"), 50, 1),
	}
	doc.LastUpdated = time.Date(2025, 3, 14, 1, 0, 0, 0, time.UTC)
	return doc
}

// DocumentAt returns a default document tagged with a revision and origin.
func DocumentAt(revision uint64, origin string) domain.Document {
	doc := domain.DefaultDocument()
	doc.Revision = revision
	doc.Origin = origin
	return doc
}
