// Package main is the entry point for the hedgebook hub, the shared
// single-document store that devices sync through.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/hedgebook/internal/config"
	"github.com/aristath/hedgebook/internal/database"
	"github.com/aristath/hedgebook/internal/hub"
	"github.com/aristath/hedgebook/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting hedgebook hub")

	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "hub.db"),
		Profile: database.ProfileLedger,
		Name:    "hub",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open hub database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply hub schema")
	}

	srv := hub.New(hub.Config{
		Log:          log,
		DB:           db,
		Port:         cfg.Hub.Port,
		HistoryLimit: cfg.Hub.HistoryLimit,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start hub")
		}
	}()

	log.Info().Int("port", cfg.Hub.Port).Msg("Hub started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Hub forced to shutdown")
	}

	log.Info().Msg("Hub stopped")
}
