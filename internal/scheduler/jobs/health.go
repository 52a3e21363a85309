package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

// HealthRunner lists and checks archived instruments
type HealthRunner interface {
	Codes(ctx context.Context, limit int) ([]string, error)
	Run(ctx context.Context, codes []string) *contracts.HealthReport
}

// HealthRecorder keeps the latest health report
type HealthRecorder interface {
	SaveHealth(ctx context.Context, report *contracts.HealthReport) error
}

// HealthJob audits the archive after the daily update
type HealthJob struct {
	checker HealthRunner
	runs    HealthRecorder
	limit   int
	logger  *logger.Logger
}

// NewHealthJob creates a health check job; runs may be nil
func NewHealthJob(checker HealthRunner, runs HealthRecorder, limit int, log *logger.Logger) *HealthJob {
	return &HealthJob{
		checker: checker,
		runs:    runs,
		limit:   limit,
		logger:  log.Module("job.health"),
	}
}

// Name returns the job name
func (j *HealthJob) Name() string {
	return "health_check"
}

// Schedule returns the cron schedule (weekdays 8 PM)
func (j *HealthJob) Schedule() string {
	return "0 0 20 * * 1-5"
}

// Run checks the archive and records the report. Findings are not failures.
func (j *HealthJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled health check")

	// 1. 대상 종목
	codes, err := j.checker.Codes(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("list instruments: %w", err)
	}

	// 2. 검사
	report := j.checker.Run(ctx, codes)

	// 3. 결과 저장
	if j.runs != nil {
		if err := j.runs.SaveHealth(ctx, report); err != nil {
			j.logger.WithError(err).Warn("Failed to record health report")
		}
	}

	if !report.Clean() {
		j.logger.WithFields(map[string]interface{}{
			"checked": report.Checked,
			"counts":  report.Counts(),
		}).Warn("Health check found issues")
		return nil
	}
	j.logger.WithField("checked", report.Checked).Info("Health check passed")
	return nil
}
