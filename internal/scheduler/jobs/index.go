package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-ingest/internal/s0_data/collector"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

// IndexRefreshJob refreshes index membership files between updates
// ⭐ SSOT: 지수 구성종목 스케줄은 이 Job에서만
type IndexRefreshJob struct {
	refresher collector.IndexRefresher
	indices   []string
	now       func() time.Time
	logger    *logger.Logger
}

// NewIndexRefreshJob creates an index refresh job for the given indices
func NewIndexRefreshJob(refresher collector.IndexRefresher, indices []string, log *logger.Logger) *IndexRefreshJob {
	return &IndexRefreshJob{
		refresher: refresher,
		indices:   indices,
		now:       time.Now,
		logger:    log.Module("job.index"),
	}
}

// Name returns the job name
func (j *IndexRefreshJob) Name() string {
	return "index_refresh"
}

// Schedule returns the cron schedule (Saturdays 10 AM)
func (j *IndexRefreshJob) Schedule() string {
	return "0 0 10 * * 6"
}

// Run refreshes every index; the job fails only if all of them fail
func (j *IndexRefreshJob) Run(ctx context.Context) error {
	day := j.now()
	var lastErr error
	failed := 0
	for _, index := range j.indices {
		if err := j.refresher.Refresh(ctx, index, day); err != nil {
			failed++
			lastErr = err
			j.logger.WithError(err).WithField("index", index).Warn("Index refresh failed")
		}
	}
	if len(j.indices) > 0 && failed == len(j.indices) {
		return fmt.Errorf("all %d index refreshes failed: %w", failed, lastErr)
	}
	return nil
}
