package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container
// This is the main entry point for dependency injection
// Order of operations:
// 1. Initialize databases
// 2. Initialize stores, clients and the sync controller
// 3. Register jobs
// Nothing is started; the caller starts the controller and the scheduler.
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	// Step 1: Initialize databases
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	// Step 2: Initialize services
	if err := InitializeServices(ctx, container, cfg, log); err != nil {
		container.closeDatabases()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Step 3: Register jobs
	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.closeDatabases()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, jobs, nil
}

// Close stops the sync controller and closes the databases. Pending writes
// should be flushed before calling it.
func (c *Container) Close() {
	if c.Controller != nil {
		c.Controller.Close()
	}
	c.closeDatabases()
}

func (c *Container) closeDatabases() {
	if c.DeviceDB != nil {
		c.DeviceDB.Close()
	}
	if c.CacheDB != nil {
		c.CacheDB.Close()
	}
}
