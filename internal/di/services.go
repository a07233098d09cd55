package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/clientdata"
	"github.com/aristath/hedgebook/internal/clients/ocr"
	"github.com/aristath/hedgebook/internal/clients/quotes"
	"github.com/aristath/hedgebook/internal/config"
	"github.com/aristath/hedgebook/internal/domain"
	"github.com/aristath/hedgebook/internal/events"
	"github.com/aristath/hedgebook/internal/localstore"
	"github.com/aristath/hedgebook/internal/modules/portfolio"
	"github.com/aristath/hedgebook/internal/modules/syncer"
	"github.com/aristath/hedgebook/internal/remote"
	"github.com/aristath/hedgebook/internal/remote/hubclient"
	"github.com/aristath/hedgebook/internal/remote/s3store"
)

// InitializeServices builds the stores, clients and the sync controller.
// The controller is created but not started.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.EventBus = events.NewBus(log)

	// Storage
	container.LocalStore = localstore.New(container.DeviceDB, log)
	container.ClientDataRepo = clientdata.NewRepository(container.CacheDB.Conn())

	deviceID := cfg.DeviceID
	if deviceID == "" {
		id, err := container.LocalStore.DeviceID(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve device id: %w", err)
		}
		deviceID = id
	}
	container.DeviceID = deviceID

	remoteStore, err := NewRemoteStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	container.Remote = remoteStore

	// Clients
	if cfg.Quotes.URL != "" {
		container.QuoteClient = quotes.NewClient(cfg.Quotes.URL, container.ClientDataRepo, log)
	} else {
		log.Warn().Msg("No quote proxy configured, quote refresh disabled")
	}
	if cfg.OCR.URL != "" {
		container.OCRClient = ocr.NewClient(cfg.OCR.URL, log)
	}

	// Portfolio and sync
	container.State = portfolio.NewState(domain.DefaultDocument(), portfolio.WithLocation(cfg.Location()))
	container.Controller = syncer.New(syncer.Config{
		DeviceID:     deviceID,
		Debounce:     cfg.Sync.Debounce.Duration,
		GracePeriod:  cfg.Sync.GracePeriod.Duration,
		WriteTimeout: cfg.Sync.WriteTimeout.Duration,
	}, container.State, container.LocalStore, container.Remote, log,
		syncer.WithEventBus(container.EventBus))

	log.Info().
		Str("device_id", deviceID).
		Str("sync_backend", cfg.Sync.Backend).
		Msg("Services initialized")
	return nil
}

// NewRemoteStore builds the shared store selected by cfg.Sync.Backend. It
// returns nil for local-only operation.
func NewRemoteStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (syncer.RemoteStore, error) {
	switch cfg.Sync.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMemory:
		return remote.NewMemoryStore(), nil
	case config.BackendHub:
		return hubclient.New(cfg.Hub.URL, log), nil
	case config.BackendS3:
		store, err := s3store.Connect(ctx, s3store.Config{
			Bucket:          cfg.S3.Bucket,
			Key:             cfg.S3.Key,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PollInterval:    cfg.S3.PollInterval.Duration,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect s3 store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown sync backend %q", cfg.Sync.Backend)
	}
}
