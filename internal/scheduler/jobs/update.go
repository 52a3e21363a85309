package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/internal/s0_data/collector"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

// Updater runs one incremental update
type Updater interface {
	Update(ctx context.Context, opts collector.Options) (*contracts.UpdateReport, error)
}

// UpdateJob extends the archive after the close
// ⭐ SSOT: 일봉 수집 스케줄은 이 Job에서만
type UpdateJob struct {
	updater Updater
	opts    collector.Options
	logger  *logger.Logger
}

// NewUpdateJob creates a daily update job; opts.Start/End stay zero so every
// run resumes from the archive calendar
func NewUpdateJob(updater Updater, opts collector.Options, log *logger.Logger) *UpdateJob {
	return &UpdateJob{
		updater: updater,
		opts:    opts,
		logger:  log.Module("job.update"),
	}
}

// Name returns the job name
func (j *UpdateJob) Name() string {
	return "daily_update"
}

// Schedule returns the cron schedule (weekdays 6 PM, after the exchange close)
func (j *UpdateJob) Schedule() string {
	return "0 0 18 * * 1-5"
}

// Run executes the update. Partial failures are reported, not retried.
func (j *UpdateJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled update")

	report, err := j.updater.Update(ctx, j.opts)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	if report.Failed > 0 {
		j.logger.WithFields(map[string]interface{}{
			"failed": report.Failed,
			"total":  report.Total,
		}).Warn("Scheduled update finished with failures")
		return nil
	}

	j.logger.WithField("rows", report.RowsAppended).Info("Scheduled update completed successfully")
	return nil
}
