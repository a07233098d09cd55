// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/hedgebook/internal/clientdata"
	"github.com/aristath/hedgebook/internal/clients/ocr"
	"github.com/aristath/hedgebook/internal/clients/quotes"
	"github.com/aristath/hedgebook/internal/database"
	"github.com/aristath/hedgebook/internal/events"
	"github.com/aristath/hedgebook/internal/localstore"
	"github.com/aristath/hedgebook/internal/modules/portfolio"
	"github.com/aristath/hedgebook/internal/modules/syncer"
	"github.com/aristath/hedgebook/internal/scheduler"
)

// Container holds all dependencies for the device daemon.
//
// Databases: device (document cache, device id) and cache (quote responses).
// QuoteClient and OCRClient are nil when their service URL is not configured;
// Remote is nil for local-only operation.
type Container struct {
	// Databases
	DeviceDB *database.DB
	CacheDB  *database.DB

	// Event bus
	EventBus *events.Bus

	// Storage
	LocalStore     *localstore.Store
	Remote         syncer.RemoteStore
	ClientDataRepo *clientdata.Repository

	// Portfolio and sync
	DeviceID   string
	State      *portfolio.State
	Controller *syncer.Controller

	// Clients
	QuoteClient *quotes.Client
	OCRClient   *ocr.Client

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered jobs for manual triggering via API.
type JobInstances struct {
	RefreshQuotes       *scheduler.RefreshQuotesJob // nil without a quote proxy
	RecordDailyHigh     *scheduler.RecordDailyHighJob
	CleanupClientData   *clientdata.CleanupJob
	CheckWALCheckpoints *scheduler.CheckWALCheckpointsJob
}

// Databases returns the open databases keyed by name.
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"device": c.DeviceDB,
		"cache":  c.CacheDB,
	}
}
