package clientdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const cleanupTimeout = time.Minute

// CleanupJob evicts expired quotes, price history and security metadata.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger
}

func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "market_data_cache_cleanup").Logger(),
	}
}

// Run implements scheduler.Job
func (j *CleanupJob) Run() error {
	return j.RunContext(context.Background())
}

// RunContext evicts every cache table. A failing table does not stop the
// others; its error is returned once the pass is over.
func (j *CleanupJob) RunContext(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	evicted, err := j.repo.DeleteAllExpired(ctx)

	var total int64
	perTable := zerolog.Dict()
	for _, table := range AllTables {
		if n, ok := evicted[table]; ok {
			perTable.Int64(table, n)
			total += n
		}
	}

	if err != nil {
		j.log.Error().Err(err).Dict("evicted", perTable).Msg("Market data cache cleanup incomplete")
		return err
	}

	event := j.log.Debug()
	if total > 0 {
		event = j.log.Info()
	}
	event.Int64("total", total).Dict("evicted", perTable).Msg("Market data cache cleaned")
	return nil
}

func (j *CleanupJob) Name() string {
	return "market_data_cache_cleanup"
}
