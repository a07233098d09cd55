package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedgebook/internal/clock"
	"github.com/aristath/hedgebook/internal/domain"
	"github.com/aristath/hedgebook/internal/localstore"
	"github.com/aristath/hedgebook/internal/modules/importer"
	"github.com/aristath/hedgebook/internal/modules/portfolio"
	"github.com/aristath/hedgebook/internal/modules/syncer"
	"github.com/aristath/hedgebook/internal/scheduler"
	testutil "github.com/aristath/hedgebook/internal/testing"
)

type fakeRefresher struct {
	result *scheduler.RefreshResult
	err    error
}

func (f *fakeRefresher) Refresh(context.Context) (*scheduler.RefreshResult, error) {
	return f.result, f.err
}

type fakeRecognizer struct {
	text  string
	err   error
	image []byte
}

func (f *fakeRecognizer) RecognizeCSV(_ context.Context, image []byte) (string, error) {
	f.image = image
	return f.text, f.err
}

type fixture struct {
	ctrl   *syncer.Controller
	router *chi.Mux
}

func newFixture(t *testing.T, quotes QuoteRefresher, ocr Recognizer) *fixture {
	t.Helper()

	store := localstore.New(testutil.NewTestDB(t, "device"), zerolog.Nop())
	require.NoError(t, store.Save(context.Background(), testutil.HedgedDocument()))

	fake := clock.NewFake(time.Date(2025, 3, 14, 2, 0, 0, 0, time.UTC))
	state := portfolio.NewState(domain.DefaultDocument(), portfolio.WithClock(fake))
	ctrl := syncer.New(syncer.Config{DeviceID: "dev-test"}, state, store, nil, zerolog.Nop(), syncer.WithClock(fake))
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(ctrl.Close)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		NewHandler(ctrl, quotes, ocr, zerolog.Nop()).RegisterRoutes(r)
	})
	return &fixture{ctrl: ctrl, router: router}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	msg, _ := body["error"].(string)
	return msg
}

func TestRegisterRoutes(t *testing.T) {
	f := newFixture(t, nil, nil)

	testCases := []struct {
		method string
		path   string
	}{
		{"GET", "/api/state"},
		{"GET", "/api/metrics"},
		{"GET", "/api/scenario"},
		{"GET", "/api/scenario/table"},
		{"GET", "/api/spreads"},
		{"GET", "/api/daily-records"},
		{"GET", "/api/daily-stats"},
		{"POST", "/api/quotes/refresh"},
		{"POST", "/api/ocr"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, nil)
			assert.NotEqual(t, http.StatusNotFound, rec.Code)
			assert.NotEqual(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}
}

func TestHandleGetState(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StateResponse
	decodeBody(t, rec, &resp)
	assert.Len(t, resp.Document.Positions, 3)
	assert.Equal(t, "00631L", resp.Document.Holding.Symbol)
	require.Len(t, resp.Spreads, 1)
	assert.Equal(t, int64(22000), resp.Spreads[0].BuyStrike)

	var direct portfolio.Metrics
	f.ctrl.View(func(s *portfolio.State) { direct = s.Metrics() })
	assert.True(t, direct.TotalPL.Equal(resp.Metrics.TotalPL))
}

func TestHandleGetScenario(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodGet, "/api/scenario?range=0.1&steps=4", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ScenarioResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, 4, resp.Steps)
	assert.Len(t, resp.Samples, 9)
	assert.True(t, resp.Center.Equal(testutil.Dec("22800")))
	assert.True(t, resp.Samples[4].Percent.IsZero())
	assert.NotNil(t, resp.Breakevens)
}

func TestHandleGetScenario_Validation(t *testing.T) {
	f := newFixture(t, nil, nil)

	for _, path := range []string{
		"/api/scenario?range=abc",
		"/api/scenario?range=0",
		"/api/scenario?range=1.5",
		"/api/scenario?steps=-1",
		"/api/scenario?steps=many",
		"/api/scenario?steps=1000",
		"/api/scenario/table?span=0",
		"/api/scenario/table?step=-5",
		"/api/scenario/table?span=100000&step=1",
	} {
		t.Run(path, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, errorOf(t, rec))
		})
	}
}

func TestHandleGetScenarioTable(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodGet, "/api/scenario/table?span=300&step=100", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Span int `json:"span"`
		Step int `json:"step"`
		Rows []struct {
			Delta     int64 `json:"delta"`
			IsCurrent bool  `json:"isCurrent"`
		} `json:"rows"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Rows, 7)
	assert.Equal(t, int64(-300), resp.Rows[0].Delta)
	assert.True(t, resp.Rows[3].IsCurrent)
}

func TestHandleAddAndRemovePosition(t *testing.T) {
	f := newFixture(t, nil, nil)

	leg := domain.NewOption("", domain.SideBuy, domain.Call, 23500, testutil.Dec("85"), 50, 1)
	rec := f.do(t, http.MethodPost, "/api/positions", leg)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created domain.Position
	decodeBody(t, rec, &created)
	assert.NotEmpty(t, created.ID)

	var count int
	f.ctrl.View(func(s *portfolio.State) { count = len(s.Positions()) })
	assert.Equal(t, 4, count)
	assert.True(t, f.ctrl.Status().Pending)

	rec = f.do(t, http.MethodDelete, "/api/positions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var removed map[string]interface{}
	decodeBody(t, rec, &removed)
	assert.Equal(t, true, removed["removed"])

	rec = f.do(t, http.MethodDelete, "/api/positions/unknown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &removed)
	assert.Equal(t, false, removed["removed"])

	var txs []domain.Transaction
	f.ctrl.View(func(s *portfolio.State) { txs = s.Transactions() })
	require.Len(t, txs, 2)
	assert.Equal(t, domain.ActionOpen, txs[0].Action)
	assert.Equal(t, domain.ActionClose, txs[1].Action)
}

func TestHandleAddPosition_Invalid(t *testing.T) {
	f := newFixture(t, nil, nil)

	t.Run("bad json", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/positions", "{")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad multiplier", func(t *testing.T) {
		leg := domain.NewOption("x", domain.SideBuy, domain.Call, 23500, testutil.Dec("85"), 7, 1)
		rec := f.do(t, http.MethodPost, "/api/positions", leg)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorOf(t, rec), "multiplier")
	})

	t.Run("duplicate id", func(t *testing.T) {
		leg := domain.NewFuture("f-short", domain.SideSell, testutil.Dec("22500"), 50, 1)
		rec := f.do(t, http.MethodPost, "/api/positions", leg)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	var count int
	f.ctrl.View(func(s *portfolio.State) { count = len(s.Positions()) })
	assert.Equal(t, 3, count)
	assert.False(t, f.ctrl.Status().Pending)
}

func TestHandleImportPositions(t *testing.T) {
	f := newFixture(t, nil, nil)

	text := importer.Header + "\n選擇權,買進,Call,23000,120,2\n期貨,賣出,,0,22600,1\n"
	rec := f.do(t, http.MethodPost, "/api/positions/import", ImportRequest{Text: text, Replace: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var positions []domain.Position
	f.ctrl.View(func(s *portfolio.State) { positions = s.Positions() })
	require.Len(t, positions, 2)
	assert.Equal(t, domain.TypeOption, positions[0].Type)
	assert.Equal(t, domain.TypeFuture, positions[1].Type)
}

func TestHandleImportPositions_LineErrorLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, nil, nil)

	text := "選擇權,買進,Call,23000,120,2\n選擇權,買進,Call,abc,120,2\n"
	rec := f.do(t, http.MethodPost, "/api/positions/import", ImportRequest{Text: text})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorOf(t, rec), "2")

	var count int
	f.ctrl.View(func(s *portfolio.State) { count = len(s.Positions()) })
	assert.Equal(t, 3, count)
}

func TestHandleSetHoldingCashAndIndex(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodPut, "/api/holding", domain.Holding{
		Symbol: "00631L", Shares: 6000, AvgCost: testutil.Dec("190"), CurrentPrice: testutil.Dec("250"),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/cash", domain.Cash{
		InitialCash: testutil.Dec("200000"), CurrentCash: testutil.Dec("180000"),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/market-index", `{"marketIndex": 23100}`)
	require.Equal(t, http.StatusOK, rec.Code)

	f.ctrl.View(func(s *portfolio.State) {
		assert.Equal(t, int64(6000), s.Holding().Shares)
		assert.True(t, s.Cash().CurrentCash.Equal(testutil.Dec("180000")))
		assert.True(t, s.MarketIndex().Equal(testutil.Dec("23100")))
	})

	rec = f.do(t, http.MethodPut, "/api/market-index", `{"marketIndex": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/holding", `{"symbol":"00631L","shares":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDailyRecords(t *testing.T) {
	f := newFixture(t, nil, nil)
	require.NoError(t, f.ctrl.Update(func(s *portfolio.State) error {
		if _, err := s.RecordDailyHighWaterMark("2025-03-13", testutil.Dec("1000"), testutil.Dec("0.01"), testutil.Dec("22700"), testutil.Dec("1000000")); err != nil {
			return err
		}
		_, err := s.RecordToday()
		return err
	}))

	rec := f.do(t, http.MethodGet, "/api/daily-records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []domain.DailyRecord
	decodeBody(t, rec, &records)
	require.Len(t, records, 2)
	assert.Equal(t, "2025-03-13", records[0].Date)
	assert.Equal(t, "2025-03-14", records[1].Date)

	rec = f.do(t, http.MethodGet, "/api/daily-stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats portfolio.DailyStats
	decodeBody(t, rec, &stats)
	assert.Equal(t, 2, stats.Count)

	rec = f.do(t, http.MethodDelete, "/api/daily-records/2025-03-13", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/daily-records/2025-03-13", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/daily-records", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	f.ctrl.View(func(s *portfolio.State) { assert.Empty(t, s.DailyRecords()) })
}

func TestHandleClearTransactions(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.do(t, http.MethodDelete, "/api/positions/p-long", nil)

	rec := f.do(t, http.MethodDelete, "/api/transactions", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	f.ctrl.View(func(s *portfolio.State) { assert.Empty(t, s.Transactions()) })
}

func TestHandleRefreshQuotes(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		rec := f.do(t, http.MethodPost, "/api/quotes/refresh", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		price := testutil.Dec("251")
		f := newFixture(t, &fakeRefresher{result: &scheduler.RefreshResult{Symbol: "00631L.TW", Price: &price}}, nil)
		rec := f.do(t, http.MethodPost, "/api/quotes/refresh", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "00631L.TW")
	})

	t.Run("upstream failure", func(t *testing.T) {
		f := newFixture(t, &fakeRefresher{err: errors.New("proxy unreachable")}, nil)
		before := f.ctrl.Document()

		rec := f.do(t, http.MethodPost, "/api/quotes/refresh", nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, errorOf(t, rec), "proxy unreachable")
		assert.Equal(t, before.Holding, f.ctrl.Document().Holding)
	})
}

func TestHandleOCR(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ocr := &fakeRecognizer{text: importer.Header + "\n選擇權,買進,Put,22000,150,2"}
		f := newFixture(t, nil, ocr)

		rec := f.do(t, http.MethodPost, "/api/ocr", []byte{0x89, 'P', 'N', 'G'})
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]string
		decodeBody(t, rec, &body)
		assert.True(t, strings.HasPrefix(body["text"], importer.Header))
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, ocr.image)
	})

	t.Run("empty image", func(t *testing.T) {
		f := newFixture(t, nil, &fakeRecognizer{})
		rec := f.do(t, http.MethodPost, "/api/ocr", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("recognition failure", func(t *testing.T) {
		f := newFixture(t, nil, &fakeRecognizer{err: importer.ErrRecognition})
		rec := f.do(t, http.MethodPost, "/api/ocr", []byte("img"))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("no rows", func(t *testing.T) {
		f := newFixture(t, nil, &fakeRecognizer{err: importer.ErrNoPositions})
		rec := f.do(t, http.MethodPost, "/api/ocr", []byte("img"))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}
