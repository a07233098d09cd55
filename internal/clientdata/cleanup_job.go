package clientdata

import (
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob prunes quote cache rows that are past the stale retention window.
type CleanupJob struct {
	repo      *Repository
	retention time.Duration
	log       zerolog.Logger
}

// NewCleanupJob creates the cache pruning job with StaleRetention.
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:      repo,
		retention: StaleRetention,
		log:       log.With().Str("job", "cleanup_client_data").Logger(),
	}
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "cleanup_client_data"
}

// Run deletes stale rows table by table.
func (j *CleanupJob) Run() error {
	deleted, err := j.repo.DeleteAllStale(j.retention)
	if err != nil {
		j.log.Error().Err(err).Msg("Quote cache cleanup failed")
		return err
	}

	total := deleted[TableCurrentPrices] + deleted[TableIndexQuotes]
	if total == 0 {
		j.log.Debug().Msg("Quote cache has nothing to prune")
		return nil
	}

	j.log.Info().
		Int64("quotes", deleted[TableCurrentPrices]).
		Int64("index", deleted[TableIndexQuotes]).
		Dur("retention", j.retention).
		Msg("Pruned stale quote cache rows")
	return nil
}
