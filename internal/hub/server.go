package hub

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/database"
)

// Config holds hub server configuration.
type Config struct {
	Log          zerolog.Logger
	DB           *database.DB
	Port         int
	HistoryLimit int
}

// Server is the hub HTTP server.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	handler *Handler
	port    int
	log     zerolog.Logger
}

// New creates the hub server over a migrated "hub" database.
func New(cfg Config) *Server {
	log := cfg.Log.With().Str("component", "hub_server").Logger()
	bcast := NewBroadcaster(cfg.Log)
	store := NewStore(cfg.DB, cfg.HistoryLimit, cfg.Log)

	s := &Server{
		router:  chi.NewRouter(),
		handler: NewHandler(store, bcast, cfg.DB, cfg.Log),
		port:    cfg.Port,
		log:     log,
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Document-Revision"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	// long-lived websocket, no request timeout
	s.handler.RegisterStreamRoutes(s.router)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		s.handler.RegisterRoutes(r)
	})
}

// Router exposes the routes, for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting hub server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down hub server")
	return s.server.Shutdown(ctx)
}

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
