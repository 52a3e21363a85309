package jobs

import (
	"context"
	"time"

	"github.com/wonny/aegis-ingest/internal/archive"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

// TempCleanupJob removes partial files left by interrupted archive writes
type TempCleanupJob struct {
	dir       string
	olderThan time.Duration
	logger    *logger.Logger
}

// NewTempCleanupJob creates a cleanup job for the archive at dir
func NewTempCleanupJob(dir string, olderThan time.Duration, log *logger.Logger) *TempCleanupJob {
	return &TempCleanupJob{
		dir:       dir,
		olderThan: olderThan,
		logger:    log.Module("job.cleanup"),
	}
}

// Name returns the job name
func (j *TempCleanupJob) Name() string {
	return "temp_cleanup"
}

// Schedule returns the cron schedule (daily 3 AM)
func (j *TempCleanupJob) Schedule() string {
	return "0 0 3 * * *"
}

// Run executes the cleanup
func (j *TempCleanupJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled temp cleanup")

	count, err := archive.RemoveStaleTemp(j.dir, j.olderThan, time.Now())
	if err != nil {
		return err
	}
	if count > 0 {
		j.logger.WithField("removed", count).Info("Temp cleanup completed")
	}
	return nil
}
