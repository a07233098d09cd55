// Package handlers provides HTTP handlers for the hedged portfolio.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedgebook/internal/domain"
	"github.com/aristath/hedgebook/internal/modules/importer"
	"github.com/aristath/hedgebook/internal/modules/portfolio"
	"github.com/aristath/hedgebook/internal/modules/scenario"
	"github.com/aristath/hedgebook/internal/modules/spreads"
	"github.com/aristath/hedgebook/internal/modules/syncer"
	"github.com/aristath/hedgebook/internal/scheduler"
)

// maxImageBytes caps the screenshot accepted by the OCR route.
const maxImageBytes = 10 << 20

// maxSteps caps the scenario resolution a client may request.
const maxSteps = 200

// Store is the serialized access to the portfolio state.
type Store interface {
	Mutate(fn func(*portfolio.State) error) error
	View(fn func(*portfolio.State))
}

// QuoteRefresher triggers an immediate quote refresh.
type QuoteRefresher interface {
	Refresh(ctx context.Context) (*scheduler.RefreshResult, error)
}

// Recognizer turns a broker screenshot into import text.
type Recognizer interface {
	RecognizeCSV(ctx context.Context, image []byte) (string, error)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	store  Store
	quotes QuoteRefresher
	ocr    Recognizer
	log    zerolog.Logger
}

// NewHandler creates a new portfolio handler. quotes and ocr may be nil, in
// which case their routes answer 503.
func NewHandler(store Store, quotes QuoteRefresher, ocr Recognizer, log zerolog.Logger) *Handler {
	return &Handler{
		store:  store,
		quotes: quotes,
		ocr:    ocr,
		log:    log.With().Str("handler", "portfolio").Logger(),
	}
}

// StateResponse is the full document plus the derived figures.
type StateResponse struct {
	Document domain.Document   `json:"document"`
	Metrics  portfolio.Metrics `json:"metrics"`
	Spreads  []spreads.Spread  `json:"spreads"`
}

// HandleGetState returns the document with its metrics.
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	var resp StateResponse
	h.store.View(func(s *portfolio.State) {
		resp.Document = s.Document()
		resp.Metrics = s.Metrics()
		resp.Spreads = nonNil(spreads.Detect(resp.Document.Positions))
	})
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGetMetrics returns the aggregate P&L figures.
func (h *Handler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	var m portfolio.Metrics
	h.store.View(func(s *portfolio.State) { m = s.Metrics() })
	h.writeJSON(w, http.StatusOK, m)
}

// ScenarioResponse is the payoff chart data.
type ScenarioResponse struct {
	Center     decimal.Decimal   `json:"center"`
	Range      decimal.Decimal   `json:"range"`
	Steps      int               `json:"steps"`
	Samples    []scenario.Sample `json:"samples"`
	Breakevens []decimal.Decimal `json:"breakevens"`
}

// HandleGetScenario projects P&L across ±range of the current index.
// Query: range (fraction, default 0.05), steps (default 10).
func (h *Handler) HandleGetScenario(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rangeFrac := scenario.DefaultRange
	if v := q.Get("range"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(1)) {
			h.writeError(w, http.StatusBadRequest, "range must be a fraction in (0, 1]")
			return
		}
		rangeFrac = d
	}

	steps, err := intParam(q.Get("steps"), scenario.DefaultSteps)
	if err != nil || steps < 0 || steps > maxSteps {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("steps must be an integer in [0, %d]", maxSteps))
		return
	}

	resp := ScenarioResponse{Range: rangeFrac, Steps: steps}
	h.store.View(func(s *portfolio.State) {
		resp.Center = s.MarketIndex()
		resp.Samples = scenario.Generate(s.Holding(), s.Positions(), resp.Center, rangeFrac, steps)
	})
	resp.Breakevens = nonNil(scenario.Breakevens(resp.Samples))
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGetScenarioTable returns the absolute-point simulation table.
// Query: span (points, default 1500), step (points, default 100).
func (h *Handler) HandleGetScenarioTable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	span, err := intParam(q.Get("span"), scenario.DefaultSpan)
	if err != nil || span <= 0 {
		h.writeError(w, http.StatusBadRequest, "span must be a positive integer")
		return
	}
	step, err := intParam(q.Get("step"), scenario.DefaultPointStep)
	if err != nil || step <= 0 {
		h.writeError(w, http.StatusBadRequest, "step must be a positive integer")
		return
	}
	if span/step > maxSteps {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("span/step must not exceed %d", maxSteps))
		return
	}

	var rows []scenario.Row
	h.store.View(func(s *portfolio.State) {
		rows = scenario.GeneratePoints(s.Holding(), s.Positions(), s.MarketIndex(), int64(span), int64(step))
	})
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"span": span,
		"step": step,
		"rows": rows,
	})
}

// HandleGetSpreads returns the detected vertical spreads.
func (h *Handler) HandleGetSpreads(w http.ResponseWriter, r *http.Request) {
	var out []spreads.Spread
	h.store.View(func(s *portfolio.State) { out = spreads.Detect(s.Positions()) })
	h.writeJSON(w, http.StatusOK, nonNil(out))
}

// HandleAddPosition opens a hedge leg. An empty id is generated.
func (h *Handler) HandleAddPosition(w http.ResponseWriter, r *http.Request) {
	var pos domain.Position
	if !h.decode(w, r, &pos) {
		return
	}
	if strings.TrimSpace(pos.ID) == "" {
		pos.ID = uuid.NewString()
	}

	if err := h.store.Mutate(func(s *portfolio.State) error {
		return s.AddPosition(pos)
	}); err != nil {
		h.writeMutationError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, pos)
}

// HandleRemovePosition closes a hedge leg. Unknown ids are a no-op.
func (h *Handler) HandleRemovePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var removed bool
	if err := h.store.Mutate(func(s *portfolio.State) error {
		removed = s.RemovePosition(id)
		return nil
	}); err != nil {
		h.writeMutationError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "removed": removed})
}

// ImportRequest is the body of POST /api/positions/import.
type ImportRequest struct {
	Text    string `json:"text"`
	Replace bool   `json:"replace"`
}

// HandleImportPositions parses pasted rows and adds them as one batch.
func (h *Handler) HandleImportPositions(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !h.decode(w, r, &req) {
		return
	}

	legs, err := importer.Parse(req.Text)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Mutate(func(s *portfolio.State) error {
		return s.ImportPositions(legs, req.Replace)
	}); err != nil {
		h.writeMutationError(w, err)
		return
	}

	h.log.Info().Int("legs", len(legs)).Bool("replace", req.Replace).Msg("Positions imported")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported": len(legs),
		"replace":  req.Replace,
	})
}

// HandleSetHolding replaces the equity holding.
func (h *Handler) HandleSetHolding(w http.ResponseWriter, r *http.Request) {
	var holding domain.Holding
	if !h.decode(w, r, &holding) {
		return
	}
	if err := h.store.Mutate(func(s *portfolio.State) error {
		return s.SetHolding(holding)
	}); err != nil {
		h.writeMutationError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, holding)
}

// HandleSetCash replaces the cash account.
func (h *Handler) HandleSetCash(w http.ResponseWriter, r *http.Request) {
	var cash domain.Cash
	if !h.decode(w, r, &cash) {
		return
	}
	if err := h.store.Mutate(func(s *portfolio.State) error {
		s.SetCash(cash)
		return nil
	}); err != nil {
		h.writeMutationError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cash)
}

// HandleSetMarketIndex sets the index level by hand.
func (h *Handler) HandleSetMarketIndex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MarketIndex decimal.Decimal `json:"marketIndex"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.store.Mutate(func(s *portfolio.State) error {
		return s.SetMarketIndex(req.MarketIndex)
	}); err != nil {
		h.writeMutationError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"marketIndex": req.MarketIndex})
}

// HandleClearTransactions empties the transaction log.
func (h *Handler) HandleClearTransactions(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Mutate(func(s *portfolio.State) error {
		s.ClearTransactions()
		return nil
	}); err != nil {
		h.writeMutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetDailyRecords returns the high-water marks, oldest first.
func (h *Handler) HandleGetDailyRecords(w http.ResponseWriter, r *http.Request) {
	var records []domain.DailyRecord
	h.store.View(func(s *portfolio.State) { records = s.DailyRecords() })
	h.writeJSON(w, http.StatusOK, nonNil(records))
}

// HandleDeleteDailyRecord removes one day.
func (h *Handler) HandleDeleteDailyRecord(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")

	var removed bool
	if err := h.store.Mutate(func(s *portfolio.State) error {
		removed = s.DeleteDailyRecord(date)
		return nil
	}); err != nil {
		h.writeMutationError(w, err)
		return
	}
	if !removed {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("no daily record for %s", date))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClearDailyRecords removes every daily record.
func (h *Handler) HandleClearDailyRecords(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Mutate(func(s *portfolio.State) error {
		s.ClearDailyRecords()
		return nil
	}); err != nil {
		h.writeMutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetDailyStats summarizes the daily records for the tracker panel.
func (h *Handler) HandleGetDailyStats(w http.ResponseWriter, r *http.Request) {
	var stats portfolio.DailyStats
	h.store.View(func(s *portfolio.State) { stats = s.DailyStats(s.Today()) })
	h.writeJSON(w, http.StatusOK, stats)
}

// HandleRefreshQuotes pulls fresh prices now. Upstream failures answer 502
// and leave the state untouched.
func (h *Handler) HandleRefreshQuotes(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		h.writeError(w, http.StatusServiceUnavailable, "quote refresh is not configured")
		return
	}

	result, err := h.quotes.Refresh(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Quote refresh failed")
		h.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":  err.Error(),
			"result": result,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleOCR converts an uploaded screenshot into import text. The image is
// the raw request body.
func (h *Handler) HandleOCR(w http.ResponseWriter, r *http.Request) {
	if h.ocr == nil {
		h.writeError(w, http.StatusServiceUnavailable, "ocr is not configured")
		return
	}

	image, err := io.ReadAll(io.LimitReader(r.Body, maxImageBytes+1))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if len(image) == 0 {
		h.writeError(w, http.StatusBadRequest, "image is empty")
		return
	}
	if len(image) > maxImageBytes {
		h.writeError(w, http.StatusRequestEntityTooLarge, "image is too large")
		return
	}

	text, err := h.ocr.RecognizeCSV(r.Context(), image)
	if err != nil {
		if errors.Is(err, importer.ErrNoPositions) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.log.Warn().Err(err).Msg("OCR failed")
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) writeMutationError(w http.ResponseWriter, err error) {
	var lineErr *importer.LineError
	switch {
	case errors.Is(err, domain.ErrInvalidPosition),
		errors.Is(err, portfolio.ErrDuplicatePosition),
		errors.Is(err, portfolio.ErrInvalidDate),
		errors.Is(err, portfolio.ErrInvalidIndex),
		errors.As(err, &lineErr):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, syncer.ErrNotStarted), errors.Is(err, syncer.ErrClosed):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Error().Err(err).Msg("Mutation failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
