// Package main is the entry point for the hedgebook device daemon.
//
// The daemon holds the hedged portfolio in memory, persists it to the local
// cache, keeps it in sync with the configured shared store, refreshes quotes
// during market hours and serves the device API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/hedgebook/internal/config"
	"github.com/aristath/hedgebook/internal/di"
	"github.com/aristath/hedgebook/internal/server"
	"github.com/aristath/hedgebook/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

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

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("sync_backend", cfg.Sync.Backend).
		Msg("Starting hedgebook")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Databases, stores, clients, controller and jobs
	container, jobs, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Load the portfolio and subscribe to the shared store
	if err := container.Controller.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sync controller")
	}

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Container: container,
		Jobs:      jobs,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Str("device_id", container.DeviceID).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.Scheduler.Stop()

	// Write out any pending edit before the controller goes away
	if err := container.Controller.Flush(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Final flush failed, local cache may be behind")
	}

	log.Info().Msg("Server stopped")
}
