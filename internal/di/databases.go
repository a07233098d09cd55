package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/config"
	"github.com/aristath/hedgebook/internal/database"
)

// InitializeDatabases opens both device databases and applies schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. device.db - the local document cache and the device id
	deviceDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "device.db"),
		Profile: database.ProfileLedger, // the only durable copy while offline
		Name:    "device",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize device database: %w", err)
	}
	container.DeviceDB = deviceDB

	// 2. cache.db - quote proxy responses
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		deviceDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	for _, db := range []*database.DB{deviceDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			deviceDB.Close()
			cacheDB.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized and schemas applied")

	return container, nil
}
