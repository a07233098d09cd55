package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/clientdata"
	"github.com/aristath/hedgebook/internal/config"
	"github.com/aristath/hedgebook/internal/events"
	"github.com/aristath/hedgebook/internal/scheduler"
)

// Fixed maintenance schedules.
const (
	cleanupSchedule  = "0 15 * * * *"
	walCheckSchedule = "0 45 */6 * * *"
)

// RegisterJobs creates the background jobs and registers them with the
// scheduler. The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	loc := cfg.Location()
	sched := scheduler.New(loc, log)
	sched.SetEventBus(container.EventBus)
	container.Scheduler = sched
	instances := &JobInstances{}

	// Daily high-water mark
	recordDailyHigh := scheduler.NewRecordDailyHighJob(container.Controller, container.EventBus, log)
	if err := sched.AddJob(cfg.Quotes.DailyHighSchedule, recordDailyHigh); err != nil {
		return nil, err
	}
	instances.RecordDailyHigh = recordDailyHigh

	// Quote refresh, only with a proxy
	if container.QuoteClient != nil {
		refresh := scheduler.NewRefreshQuotesJob(container.QuoteClient, container.Controller, container.EventBus,
			scheduler.TaiwanMarketHours(loc), log)
		if err := sched.AddJob(cfg.Quotes.RefreshSchedule, refresh); err != nil {
			return nil, err
		}
		instances.RefreshQuotes = refresh

		// Every applied refresh can move the high-water mark
		container.EventBus.Subscribe(events.QuotesUpdated, func(*events.Event) {
			if err := recordDailyHigh.Run(); err != nil {
				log.Error().Err(err).Msg("Failed to record daily high after quote refresh")
			}
		})
	}

	// Maintenance
	cleanup := clientdata.NewCleanupJob(container.ClientDataRepo, log)
	if err := sched.AddJob(cleanupSchedule, cleanup); err != nil {
		return nil, err
	}
	instances.CleanupClientData = cleanup

	walCheck := scheduler.NewCheckWALCheckpointsJob(container.Databases(), log)
	if err := sched.AddJob(walCheckSchedule, walCheck); err != nil {
		return nil, err
	}
	instances.CheckWALCheckpoints = walCheck

	log.Info().Strs("jobs", sched.JobNames()).Msg("Jobs registered")
	return instances, nil
}
