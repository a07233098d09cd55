// Package quotes is the client for the quote proxy that serves stock and
// index prices. Responses are cached in clientdata, and stale cached data is
// served when the proxy fails.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedgebook/internal/clientdata"
)

// IndexSymbol is the TAIEX symbol used by the proxy.
const IndexSymbol = "^TWII"

// Quote is a single instrument quote.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	Volume        int64           `json:"volume,omitempty"`
	MarketTime    *time.Time      `json:"marketTime,omitempty"`
	Currency      string          `json:"currency,omitempty"`

	// Stale is set when the quote came from the cache after an upstream failure.
	Stale bool `json:"stale,omitempty"`
}

// QuoteResult is one entry of a batch lookup. Err is set when that symbol failed.
type QuoteResult struct {
	Symbol string
	Quote  *Quote
	Err    error
}

// APIError is a non-2xx response from the proxy.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Detail  string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("quote proxy returned %d: %s: %s", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("quote proxy returned %d: %s", e.Status, e.Message)
}

// Client talks to the quote proxy.
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a quote proxy client.
// cacheRepo is optional - if nil, caching is disabled
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "quotes").Logger(),
		cacheRepo: cacheRepo,
	}
}

// Quote fetches one stock quote.
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	if symbol == "" {
		return nil, errors.New("symbol is required")
	}

	return c.cached(ctx, clientdata.TableCurrentPrices, symbol, clientdata.TTLCurrentPrice,
		"/api/quote?symbol="+url.QueryEscape(symbol))
}

// Index fetches the TAIEX level.
func (c *Client) Index(ctx context.Context) (*Quote, error) {
	return c.cached(ctx, clientdata.TableIndexQuotes, IndexSymbol, clientdata.TTLIndexQuote, "/api/taiex")
}

// Quotes fetches several stock quotes in one request. A failure of the whole
// request is returned as an error; per-symbol failures are reported in the
// results, in request order.
func (c *Client) Quotes(ctx context.Context, symbols []string) ([]QuoteResult, error) {
	if len(symbols) == 0 {
		return nil, errors.New("at least one symbol is required")
	}

	var body struct {
		Quotes []struct {
			Quote
			Error string `json:"error,omitempty"`
		} `json:"quotes"`
	}
	if err := c.get(ctx, "/api/quotes?symbols="+url.QueryEscape(strings.Join(symbols, ",")), &body); err != nil {
		return nil, err
	}

	results := make([]QuoteResult, 0, len(body.Quotes))
	for _, entry := range body.Quotes {
		if entry.Error != "" {
			results = append(results, QuoteResult{Symbol: entry.Symbol, Err: errors.New(entry.Error)})
			continue
		}
		q := entry.Quote
		c.store(clientdata.TableCurrentPrices, q.Symbol, &q, clientdata.TTLCurrentPrice)
		results = append(results, QuoteResult{Symbol: q.Symbol, Quote: &q})
	}
	return results, nil
}

func (c *Client) cached(ctx context.Context, table, key string, ttl time.Duration, path string) (*Quote, error) {
	if c.cacheRepo != nil {
		if data, err := c.cacheRepo.GetIfFresh(table, key); err == nil && data != nil {
			var q Quote
			if err := json.Unmarshal(data, &q); err == nil {
				c.log.Debug().Str("symbol", key).Msg("Cache hit")
				return &q, nil
			}
		}
	}

	var q Quote
	if err := c.get(ctx, path, &q); err != nil {
		if stale, ok := c.getStaleFromCache(table, key); ok {
			c.log.Warn().
				Err(err).
				Str("symbol", key).
				Str("price", stale.Price.String()).
				Msg("Quote proxy failed, using stale cached quote")
			return stale, nil
		}
		return nil, err
	}

	c.store(table, key, &q, ttl)
	c.log.Debug().
		Str("symbol", key).
		Str("price", q.Price.String()).
		Msg("Fetched quote")
	return &q, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("quote proxy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) store(table, key string, q *Quote, ttl time.Duration) {
	if c.cacheRepo == nil {
		return
	}
	if err := c.cacheRepo.Store(table, key, q, ttl); err != nil {
		c.log.Warn().Err(err).Str("symbol", key).Msg("Failed to cache quote")
	}
}

// getStaleFromCache retrieves a cached quote even if expired.
func (c *Client) getStaleFromCache(table, key string) (*Quote, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}

	data, err := c.cacheRepo.Get(table, key)
	if err != nil || data == nil {
		return nil, false
	}

	var q Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, false
	}
	q.Stale = true
	return &q, true
}
