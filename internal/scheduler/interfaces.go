package scheduler

import (
	"context"

	"github.com/aristath/hedgebook/internal/clients/quotes"
	"github.com/aristath/hedgebook/internal/modules/portfolio"
)

// QuoteSource is the part of the quote client the jobs use.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*quotes.Quote, error)
	Index(ctx context.Context) (*quotes.Quote, error)
}

// StateUpdater is the part of the sync controller the jobs use. Update
// persists the change without counting it as a user edit.
type StateUpdater interface {
	Update(fn func(*portfolio.State) error) error
	View(fn func(*portfolio.State))
}
