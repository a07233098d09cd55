package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"nhooyr.io/websocket"

	"github.com/aristath/hedgebook/internal/database"
	"github.com/aristath/hedgebook/internal/domain"
)

const (
	maxDocumentBytes = 8 << 20
	writeWait        = 10 * time.Second
	pingInterval     = 30 * time.Second
)

// Handler serves the shared document API.
type Handler struct {
	store   *Store
	bcast   *Broadcaster
	db      *database.DB
	started time.Time
	log     zerolog.Logger
}

// NewHandler creates the hub handler.
func NewHandler(store *Store, bcast *Broadcaster, db *database.DB, log zerolog.Logger) *Handler {
	return &Handler{
		store:   store,
		bcast:   bcast,
		db:      db,
		started: time.Now(),
		log:     log.With().Str("component", "hub_handler").Logger(),
	}
}

// RegisterRoutes registers the document routes. The stream route is kept
// apart so it can be mounted outside request timeouts.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/document", h.HandleGetDocument)
	r.Put("/api/document", h.HandlePutDocument)
	r.Get("/api/document/history", h.HandleGetHistory)
	r.Get("/health", h.HandleHealth)
}

// RegisterStreamRoutes registers the websocket push route.
func (h *Handler) RegisterStreamRoutes(r chi.Router) {
	r.Get("/api/document/stream", h.HandleStream)
}

// HandleGetDocument returns the shared document.
// GET /api/document
func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Load(r.Context())
	if errors.Is(err, ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "no shared document")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load shared document")
		h.writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Document-Revision", strconv.FormatUint(rec.Revision, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Body)
}

// HandlePutDocument replaces the shared document and pushes it to every
// connected device.
// PUT /api/document
func (h *Handler) HandlePutDocument(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}

	doc, err := domain.DecodeDocument(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid document: "+err.Error())
		return
	}
	canonical, err := doc.Encode()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid document: "+err.Error())
		return
	}

	rec, err := h.store.Save(r.Context(), doc.Revision, doc.Origin, canonical)
	if err != nil {
		h.log.Error().Err(err).Uint64("revision", doc.Revision).Msg("Failed to store shared document")
		h.writeError(w, http.StatusInternalServerError, "failed to store document")
		return
	}

	frame, err := EncodeEnvelope(snapshotEnvelope(rec))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode snapshot frame")
	} else {
		h.bcast.Broadcast(frame)
	}

	h.log.Info().
		Uint64("revision", rec.Revision).
		Str("origin", rec.Origin).
		Int("subscribers", h.bcast.Count()).
		Msg("Shared document replaced")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"revision":   rec.Revision,
		"origin":     rec.Origin,
		"updated_at": rec.UpdatedAt,
	})
}

// HandleGetHistory lists recent writes.
// GET /api/document/history?limit=N
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := h.store.History(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load history")
		h.writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

// HandleStream upgrades to a websocket and pushes msgpack envelopes: the
// current document on connect, then every replacement.
// GET /api/document/stream
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	id, frames := h.bcast.Subscribe()
	defer h.bcast.Unsubscribe(id)

	h.log.Info().Uint64("subscriber", id).Str("remote_addr", r.RemoteAddr).Msg("Device connected to document stream")

	// devices never send; CloseRead handles control frames and ends ctx on close
	ctx := conn.CloseRead(r.Context())

	rec, err := h.store.Load(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		h.log.Error().Err(err).Msg("Failed to load document for new subscriber")
		conn.Close(websocket.StatusInternalError, "load failed")
		return
	}
	initial, err := EncodeEnvelope(snapshotEnvelope(rec))
	if err != nil {
		conn.Close(websocket.StatusInternalError, "encode failed")
		return
	}
	if err := h.write(ctx, conn, initial); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Uint64("subscriber", id).Msg("Device disconnected from document stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case frame := <-frames:
			if err := h.write(ctx, conn, frame); err != nil {
				h.log.Warn().Err(err).Uint64("subscriber", id).Msg("Failed to push frame")
				return
			}

		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Uint64("subscriber", id).Msg("Ping failed")
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, frame []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageBinary, frame)
}

// HandleHealth reports hub liveness, database and host statistics.
// GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	response := map[string]interface{}{
		"service":        "hedgebook-hub",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"subscribers":    h.bcast.Count(),
	}

	if err := h.db.HealthCheck(r.Context()); err != nil {
		h.log.Warn().Err(err).Msg("Database health check failed")
		status = "degraded"
		response["database_error"] = err.Error()
	}
	if stats, err := h.db.GetStats(); err == nil {
		response["database"] = stats
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		response["cpu_percent"] = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		response["ram_percent"] = memStat.UsedPercent
	}

	response["status"] = status
	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, response)
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
