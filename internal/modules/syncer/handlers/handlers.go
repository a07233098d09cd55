// Package handlers exposes the sync controller over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/modules/syncer"
)

// Controller is the part of the sync controller the handlers use.
type Controller interface {
	Status() syncer.Status
	Flush(ctx context.Context) error
}

// Handler handles sync HTTP requests
type Handler struct {
	controller Controller
	log        zerolog.Logger
}

// NewHandler creates a new sync handler
func NewHandler(controller Controller, log zerolog.Logger) *Handler {
	return &Handler{
		controller: controller,
		log:        log.With().Str("handler", "sync").Logger(),
	}
}

// RegisterRoutes registers the sync routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sync", func(r chi.Router) {
		r.Get("/status", h.HandleGetStatus)
		r.Post("/flush", h.HandleFlush)
	})
}

// HandleGetStatus returns the controller's current status.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.controller.Status())
}

// HandleFlush writes any pending change now. A failed write answers 502 with
// the resulting status.
func (h *Handler) HandleFlush(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Flush(r.Context()); err != nil {
		h.log.Warn().Err(err).Msg("Forced flush failed")
		h.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":  err.Error(),
			"status": h.controller.Status(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, h.controller.Status())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
