// Package server provides the device daemon's HTTP server and routing.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/di"
	portfoliohandlers "github.com/aristath/hedgebook/internal/modules/portfolio/handlers"
	synchandlers "github.com/aristath/hedgebook/internal/modules/syncer/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	LogUnit   string // systemd unit read by the log routes
	Container *di.Container
	Jobs      *di.JobInstances
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	container      *di.Container
	jobs           *di.JobInstances
	systemHandlers *SystemHandlers
	logHandlers    *LogHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		port:      cfg.Port,
		container: cfg.Container,
		jobs:      cfg.Jobs,
		systemHandlers: NewSystemHandlers(
			cfg.Container.Databases(),
			cfg.Container.Controller,
			jobRunner(cfg.Container),
			cfg.Log,
		),
		logHandlers: NewLogHandlers(cfg.LogUnit, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	// No WriteTimeout: the event stream holds its response open
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Event stream stays outside the request timeout
		eventsStreamHandler := NewEventsStreamHandler(s.container.EventBus, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
				r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
				r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)

				r.Get("/logs/list", s.logHandlers.HandleListLogs)
				r.Get("/logs", s.logHandlers.HandleGetLogs)
				r.Get("/logs/errors", s.logHandlers.HandleGetErrors)
			})

			// Portfolio module
			portfolioHandler := portfoliohandlers.NewHandler(
				s.container.Controller,
				s.quoteRefresher(),
				s.recognizer(),
				s.log,
			)
			portfolioHandler.RegisterRoutes(r)

			// Sync module
			syncHandler := synchandlers.NewHandler(s.container.Controller, s.log)
			syncHandler.RegisterRoutes(r)
		})
	})
}

func jobRunner(c *di.Container) JobRunner {
	if c.Scheduler == nil {
		return nil
	}
	return c.Scheduler
}

// quoteRefresher keeps a missing job from becoming a non-nil interface.
func (s *Server) quoteRefresher() portfoliohandlers.QuoteRefresher {
	if s.jobs == nil || s.jobs.RefreshQuotes == nil {
		return nil
	}
	return s.jobs.RefreshQuotes
}

func (s *Server) recognizer() portfoliohandlers.Recognizer {
	if s.container.OCRClient == nil {
		return nil
	}
	return s.container.OCRClient
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
