package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.HandleGetState)
	r.Get("/metrics", h.HandleGetMetrics)
	r.Get("/spreads", h.HandleGetSpreads)

	r.Route("/scenario", func(r chi.Router) {
		r.Get("/", h.HandleGetScenario)
		r.Get("/table", h.HandleGetScenarioTable)
	})

	r.Route("/positions", func(r chi.Router) {
		r.Post("/", h.HandleAddPosition)
		r.Post("/import", h.HandleImportPositions)
		r.Delete("/{id}", h.HandleRemovePosition)
	})

	r.Put("/holding", h.HandleSetHolding)
	r.Put("/cash", h.HandleSetCash)
	r.Put("/market-index", h.HandleSetMarketIndex)
	r.Delete("/transactions", h.HandleClearTransactions)

	r.Route("/daily-records", func(r chi.Router) {
		r.Get("/", h.HandleGetDailyRecords)
		r.Delete("/", h.HandleClearDailyRecords)
		r.Delete("/{date}", h.HandleDeleteDailyRecord)
	})
	r.Get("/daily-stats", h.HandleGetDailyStats)

	r.Post("/quotes/refresh", h.HandleRefreshQuotes)
	r.Post("/ocr", h.HandleOCR)
}
