package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/domain"
	"github.com/aristath/hedgebook/internal/events"
	"github.com/aristath/hedgebook/internal/modules/portfolio"
)

// RecordDailyHighJob feeds the current total P&L into today's high-water mark.
type RecordDailyHighJob struct {
	state StateUpdater
	bus   *events.Bus
	log   zerolog.Logger
}

// NewRecordDailyHighJob creates the job. bus may be nil.
func NewRecordDailyHighJob(state StateUpdater, bus *events.Bus, log zerolog.Logger) *RecordDailyHighJob {
	return &RecordDailyHighJob{
		state: state,
		bus:   bus,
		log:   log.With().Str("job", "record_daily_high").Logger(),
	}
}

// Name returns the job name
func (j *RecordDailyHighJob) Name() string {
	return "record_daily_high"
}

// Run records today's high-water mark when it moved.
func (j *RecordDailyHighJob) Run() error {
	var (
		changed bool
		rec     domain.DailyRecord
	)
	err := j.state.Update(func(s *portfolio.State) error {
		ok, err := s.RecordToday()
		if err != nil || !ok {
			return err
		}
		changed = true
		today := s.Today()
		for _, r := range s.DailyRecords() {
			if r.Date == today {
				rec = r
				break
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	j.log.Info().
		Str("date", rec.Date).
		Str("max_pl", rec.MaxPL.String()).
		Msg("Daily high-water mark updated")

	if j.bus != nil {
		j.bus.Emit(events.DailyRecordUpdated, "scheduler", &events.DailyRecordUpdatedData{
			Date:      rec.Date,
			MaxPL:     rec.MaxPL,
			MaxReturn: rec.MaxReturn,
		})
	}
	return nil
}
