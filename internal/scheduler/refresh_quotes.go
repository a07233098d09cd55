package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedgebook/internal/events"
	"github.com/aristath/hedgebook/internal/modules/portfolio"
)

// ExchangeSuffix is appended to bare holding symbols for the quote proxy.
const ExchangeSuffix = ".TW"

const refreshTimeout = 30 * time.Second

// RefreshResult describes what a quote refresh applied.
type RefreshResult struct {
	Symbol      string           `json:"symbol"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	MarketIndex *decimal.Decimal `json:"marketIndex,omitempty"`
	Stale       bool             `json:"stale"`
	Errors      []string         `json:"errors,omitempty"`
}

// RefreshQuotesJob pulls the holding price and the index level and applies
// them to the portfolio. A failed lookup leaves the corresponding field at
// its last known value.
type RefreshQuotesJob struct {
	quotes QuoteSource
	state  StateUpdater
	bus    *events.Bus
	hours  MarketHours
	now    func() time.Time
	log    zerolog.Logger
}

// NewRefreshQuotesJob creates the job. bus may be nil.
func NewRefreshQuotesJob(quotes QuoteSource, state StateUpdater, bus *events.Bus, hours MarketHours, log zerolog.Logger) *RefreshQuotesJob {
	return &RefreshQuotesJob{
		quotes: quotes,
		state:  state,
		bus:    bus,
		hours:  hours,
		now:    time.Now,
		log:    log.With().Str("job", "refresh_quotes").Logger(),
	}
}

// Name returns the job name
func (j *RefreshQuotesJob) Name() string {
	return "refresh_quotes"
}

// Run refreshes quotes while the market is open.
func (j *RefreshQuotesJob) Run() error {
	if !j.hours.IsOpen(j.now()) {
		j.log.Debug().Msg("Market closed, skipping quote refresh")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	_, err := j.Refresh(ctx)
	return err
}

// Refresh fetches and applies quotes regardless of market hours. It fails
// only when neither lookup succeeded.
func (j *RefreshQuotesJob) Refresh(ctx context.Context) (*RefreshResult, error) {
	var symbol string
	j.state.View(func(s *portfolio.State) {
		symbol = s.Holding().Symbol
	})
	symbol = QuoteSymbol(symbol)

	result := &RefreshResult{Symbol: symbol}
	var errs []error

	if symbol != "" {
		q, err := j.quotes.Quote(ctx, symbol)
		if err != nil {
			errs = append(errs, fmt.Errorf("quote %s: %w", symbol, err))
		} else if q.Price.IsPositive() {
			price := q.Price
			result.Price = &price
			result.Stale = result.Stale || q.Stale
		}
	}

	idx, err := j.quotes.Index(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("index: %w", err))
	} else if idx.Price.IsPositive() {
		level := idx.Price
		result.MarketIndex = &level
		result.Stale = result.Stale || idx.Stale
	}

	for _, e := range errs {
		result.Errors = append(result.Errors, e.Error())
		j.log.Warn().Err(e).Msg("Quote lookup failed")
	}

	if result.Price == nil && result.MarketIndex == nil {
		if len(errs) == 0 {
			return result, errors.New("quote proxy returned no usable prices")
		}
		return result, errors.Join(errs...)
	}

	if err := j.state.Update(func(s *portfolio.State) error {
		return s.ApplyQuotes(result.Price, result.MarketIndex)
	}); err != nil {
		return result, fmt.Errorf("failed to apply quotes: %w", err)
	}

	j.log.Info().
		Str("symbol", symbol).
		Bool("stale", result.Stale).
		Msg("Quotes applied")

	if j.bus != nil {
		j.bus.Emit(events.QuotesUpdated, "scheduler", &events.QuotesUpdatedData{
			Symbol:      symbol,
			Price:       result.Price,
			MarketIndex: result.MarketIndex,
			Stale:       result.Stale,
		})
	}
	return result, nil
}

// QuoteSymbol maps a holding symbol to the proxy's symbol.
func QuoteSymbol(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + ExchangeSuffix
}
