package quotes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedgebook/internal/clientdata"
	testutil "github.com/aristath/hedgebook/internal/testing"
)

func newCache(t *testing.T) *clientdata.Repository {
	return clientdata.NewRepository(testutil.NewTestDB(t, "cache").Conn())
}

func TestQuote_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/quote", r.URL.Path)
		assert.Equal(t, "00631L.TW", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"00631L.TW","name":"元大台灣50正2","price":245.5,"change":3.2,"changePercent":1.32,"previousClose":242.3,"volume":123456,"marketTime":"2025-03-14T05:30:00.000Z","currency":"TWD"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", nil, zerolog.Nop())
	q, err := client.Quote(context.Background(), "00631L.TW")
	require.NoError(t, err)

	assert.Equal(t, "00631L.TW", q.Symbol)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("245.5")))
	assert.Equal(t, int64(123456), q.Volume)
	require.NotNil(t, q.MarketTime)
	assert.Equal(t, 2025, q.MarketTime.Year())
	assert.False(t, q.Stale)
}

func TestQuote_RequiresSymbol(t *testing.T) {
	_, err := NewClient("http://unused", nil, zerolog.Nop()).Quote(context.Background(), "")
	assert.Error(t, err)
}

func TestQuote_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to fetch quote","message":"upstream timeout"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, zerolog.Nop()).Quote(context.Background(), "XXX")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "Failed to fetch quote", apiErr.Message)
	assert.Equal(t, "upstream timeout", apiErr.Detail)
}

func TestQuote_NonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, zerolog.Nop()).Index(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}

func TestIndex_CacheFirstThenStaleFallback(t *testing.T) {
	var calls atomic.Int32
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/taiex", r.URL.Path)
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Failed to fetch TAIEX"}`))
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"^TWII","price":22950.12}`))
	}))
	defer server.Close()

	cache := newCache(t)
	client := NewClient(server.URL, cache, zerolog.Nop())

	q, err := client.Index(context.Background())
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("22950.12")))

	_, err = client.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "fresh cache answers the second call")

	_, err = cache.DeleteExpired(clientdata.TableIndexQuotes)
	require.NoError(t, err)
	require.NoError(t, cache.Store(clientdata.TableIndexQuotes, IndexSymbol, q, -1))
	fail.Store(true)

	stale, err := client.Index(context.Background())
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.True(t, stale.Price.Equal(q.Price))
	assert.Equal(t, int32(2), calls.Load())
}

func TestIndex_FailureWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, newCache(t), zerolog.Nop()).Index(context.Background())
	assert.Error(t, err)
}

func TestQuotes_PerSymbolErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/quotes", r.URL.Path)
		assert.Equal(t, "00631L.TW,BAD", r.URL.Query().Get("symbols"))
		_, _ = w.Write([]byte(`{"quotes":[{"symbol":"00631L.TW","price":245.5,"change":1,"changePercent":0.4},{"symbol":"BAD","error":"Quote not found"}]}`))
	}))
	defer server.Close()

	cache := newCache(t)
	results, err := NewClient(server.URL, cache, zerolog.Nop()).Quotes(context.Background(), []string{"00631L.TW", "BAD"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.NoError(t, results[0].Err)
	assert.True(t, results[0].Quote.Price.Equal(decimal.RequireFromString("245.5")))
	assert.Nil(t, results[1].Quote)
	assert.EqualError(t, results[1].Err, "Quote not found")

	raw, err := cache.GetIfFresh(clientdata.TableCurrentPrices, "00631L.TW")
	require.NoError(t, err)
	assert.NotNil(t, raw)
}

func TestQuotes_RequiresSymbols(t *testing.T) {
	_, err := NewClient("http://unused", nil, zerolog.Nop()).Quotes(context.Background(), nil)
	assert.Error(t, err)
}
