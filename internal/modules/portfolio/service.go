// Package portfolio holds the authoritative in-memory portfolio aggregate:
// the holding, the cash account, the hedge legs, the transaction log, the
// daily high-water marks and the current index level.
//
// State is not safe for concurrent use; the sync controller serializes all
// access to it.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedgebook/internal/clock"
	"github.com/aristath/hedgebook/internal/domain"
)

var (
	// ErrDuplicatePosition is returned when a leg id is already present.
	ErrDuplicatePosition = errors.New("duplicate position id")
	// ErrInvalidDate is returned for daily-record keys that are not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidIndex is returned for a non-positive market index.
	ErrInvalidIndex = errors.New("invalid market index")
)

// Option configures a State.
type Option func(*State)

// WithClock injects the time source used for transaction timestamps and the
// daily-record key.
func WithClock(c clock.Clock) Option {
	return func(s *State) { s.clock = c }
}

// WithIDGenerator overrides the generator used for transaction ids and
// imported legs.
func WithIDGenerator(gen func() string) Option {
	return func(s *State) { s.newID = gen }
}

// WithLocation sets the time zone whose calendar day keys daily records.
func WithLocation(loc *time.Location) Option {
	return func(s *State) { s.loc = loc }
}

// State is the portfolio aggregate.
type State struct {
	doc   domain.Document
	clock clock.Clock
	newID func() string
	loc   *time.Location
}

// NewState builds a state from doc. The document is deep-copied.
func NewState(doc domain.Document, opts ...Option) *State {
	s := &State{
		clock: clock.New(),
		newID: uuid.NewString,
		loc:   time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Restore(doc)
	return s
}

// Restore replaces the whole state with doc.
func (s *State) Restore(doc domain.Document) {
	doc.Normalize()
	s.doc = doc.Clone()
	s.doc.DailyRecords = orderDailyRecords(s.doc.DailyRecords)
}

// orderDailyRecords sorts records by date and keeps one record per day, the
// one with the highest maxPL. It reuses the backing array of records.
func orderDailyRecords(records []domain.DailyRecord) []domain.DailyRecord {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Date < records[j].Date })

	out := records[:0]
	for _, r := range records {
		if n := len(out); n > 0 && out[n-1].Date == r.Date {
			if r.MaxPL.GreaterThan(out[n-1].MaxPL) {
				out[n-1] = r
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// Document returns a deep copy of the persisted shape.
func (s *State) Document() domain.Document {
	return s.doc.Clone()
}

// Stamp tags the state with the causality of the write about to persist it.
func (s *State) Stamp(revision uint64, origin string, at time.Time) {
	s.doc.Revision = revision
	s.doc.Origin = origin
	s.doc.LastUpdated = at.UTC()
}

// Revision returns the revision of the last persisted or applied document.
func (s *State) Revision() uint64 { return s.doc.Revision }

// Holding returns the equity holding.
func (s *State) Holding() domain.Holding { return s.doc.Holding }

// Cash returns the cash account.
func (s *State) Cash() domain.Cash { return s.doc.Cash }

// MarketIndex returns the current index level.
func (s *State) MarketIndex() decimal.Decimal { return s.doc.MarketIndex }

// Positions returns a copy of the hedge legs in insertion order.
func (s *State) Positions() []domain.Position {
	return append([]domain.Position{}, s.doc.Positions...)
}

// Transactions returns a copy of the transaction log.
func (s *State) Transactions() []domain.Transaction {
	return s.doc.Clone().Transactions
}

// DailyRecords returns a copy of the daily records ordered by date.
func (s *State) DailyRecords() []domain.DailyRecord {
	return append([]domain.DailyRecord{}, s.doc.DailyRecords...)
}

// Today returns the daily-record key for the current instant.
func (s *State) Today() string {
	return s.clock.Now().In(s.loc).Format(domain.DateLayout)
}

// SetHolding replaces the equity holding.
func (s *State) SetHolding(h domain.Holding) error {
	if err := h.Validate(); err != nil {
		return err
	}
	s.doc.Holding = h
	return nil
}

// SetCash replaces the cash account.
func (s *State) SetCash(c domain.Cash) {
	s.doc.Cash = c
}

// SetMarketIndex sets the current index level.
func (s *State) SetMarketIndex(index decimal.Decimal) error {
	if !index.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidIndex, index)
	}
	s.doc.MarketIndex = index
	return nil
}

// ApplyQuotes updates the holding price and the index level from a quote
// refresh. Nil values leave the corresponding field untouched; both are
// validated before either is written.
func (s *State) ApplyQuotes(price, index *decimal.Decimal) error {
	if price != nil && price.IsNegative() {
		return fmt.Errorf("%w: currentPrice must be >= 0, got %s", domain.ErrInvalidPosition, price)
	}
	if index != nil && !index.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidIndex, index)
	}
	if price != nil {
		s.doc.Holding.CurrentPrice = *price
	}
	if index != nil {
		s.doc.MarketIndex = *index
	}
	return nil
}

// AddPosition appends a leg and logs an open transaction.
func (s *State) AddPosition(pos domain.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	if s.indexOf(pos.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicatePosition, pos.ID)
	}

	s.doc.Positions = append(s.doc.Positions, pos)
	s.logTransaction(domain.ActionOpen, pos)
	return nil
}

// RemovePosition deletes a leg and logs a close transaction carrying its last
// economics. Unknown ids are ignored; it reports whether a leg was removed.
func (s *State) RemovePosition(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}

	pos := s.doc.Positions[i]
	s.logTransaction(domain.ActionClose, pos)
	s.doc.Positions = append(s.doc.Positions[:i:i], s.doc.Positions[i+1:]...)
	return true
}

// ImportPositions adds legs from a bulk import. With replace set, every
// existing leg is closed first. Legs without an id get one. The batch is
// validated as a whole before anything changes.
func (s *State) ImportPositions(legs []domain.Position, replace bool) error {
	batch := make([]domain.Position, len(legs))
	seen := make(map[string]bool, len(legs))
	for i, leg := range legs {
		if leg.ID == "" {
			leg.ID = "import-" + s.newID()
		}
		if err := leg.Validate(); err != nil {
			return fmt.Errorf("leg %d: %w", i+1, err)
		}
		if seen[leg.ID] || (!replace && s.indexOf(leg.ID) >= 0) {
			return fmt.Errorf("leg %d: %w: %s", i+1, ErrDuplicatePosition, leg.ID)
		}
		seen[leg.ID] = true
		batch[i] = leg
	}

	if replace {
		for _, pos := range s.doc.Positions {
			s.logTransaction(domain.ActionClose, pos)
		}
		s.doc.Positions = []domain.Position{}
	}
	for _, leg := range batch {
		s.doc.Positions = append(s.doc.Positions, leg)
		s.logTransaction(domain.ActionOpen, leg)
	}
	return nil
}

// ClearTransactions empties the transaction log.
func (s *State) ClearTransactions() {
	s.doc.Transactions = []domain.Transaction{}
}

func (s *State) indexOf(id string) int {
	for i, p := range s.doc.Positions {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *State) logTransaction(action domain.Action, pos domain.Position) {
	tx := domain.NewTransaction("tx-"+s.newID(), s.clock.Now(), action, pos)
	s.doc.Transactions = append(s.doc.Transactions, tx)
}

// RecordDailyHighWaterMark keeps the highest total P&L seen on today. A new
// day inserts a record; an existing day is replaced only when totalPL is
// strictly greater than the stored maximum. It reports whether state changed.
func (s *State) RecordDailyHighWaterMark(today string, totalPL, totalReturn, index, totalCost decimal.Decimal) (bool, error) {
	if _, err := time.Parse(domain.DateLayout, today); err != nil {
		return false, fmt.Errorf("%w: %q", ErrInvalidDate, today)
	}

	rec := domain.DailyRecord{
		Date:        today,
		MaxPL:       totalPL,
		MaxReturn:   totalReturn,
		MarketIndex: index,
		TotalCost:   totalCost,
		UpdatedAt:   s.clock.Now().UTC(),
	}

	records := s.doc.DailyRecords
	i := sort.Search(len(records), func(i int) bool { return records[i].Date >= today })
	if i < len(records) && records[i].Date == today {
		if !totalPL.GreaterThan(records[i].MaxPL) {
			return false, nil
		}
		updated := append([]domain.DailyRecord{}, records...)
		updated[i] = rec
		s.doc.DailyRecords = updated
		return true, nil
	}

	updated := make([]domain.DailyRecord, 0, len(records)+1)
	updated = append(updated, records[:i]...)
	updated = append(updated, rec)
	updated = append(updated, records[i:]...)
	s.doc.DailyRecords = updated
	return true, nil
}

// RecordToday feeds the current metrics into today's high-water mark.
func (s *State) RecordToday() (bool, error) {
	m := s.Metrics()
	return s.RecordDailyHighWaterMark(s.Today(), m.TotalPL, m.TotalReturn, s.doc.MarketIndex, m.TotalCost)
}

// DeleteDailyRecord removes one day. It reports whether the day existed.
func (s *State) DeleteDailyRecord(date string) bool {
	for i, r := range s.doc.DailyRecords {
		if r.Date == date {
			s.doc.DailyRecords = append(s.doc.DailyRecords[:i:i], s.doc.DailyRecords[i+1:]...)
			return true
		}
	}
	return false
}

// ClearDailyRecords removes every daily record.
func (s *State) ClearDailyRecords() {
	s.doc.DailyRecords = []domain.DailyRecord{}
}
