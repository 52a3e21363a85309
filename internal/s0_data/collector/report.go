package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/wonny/aegis-ingest/internal/archive"
	"github.com/wonny/aegis-ingest/internal/contracts"
)

// Run report files kept next to the archive
const (
	LastRunSuccessFile = ".lastrun.success.json"
	LastRunFailedFile  = ".lastrun.failed.json"
)

// finish stamps the report and persists it; persistence failures are logged only
func (c *Collector) finish(ctx context.Context, report *contracts.UpdateReport) *contracts.UpdateReport {
	report.FinishedAt = c.now()

	if c.deps.Metrics != nil {
		c.deps.Metrics.UpdateDuration.Observe(report.Duration().Seconds())
	}

	if c.deps.ReportDir != "" {
		if err := WriteLastRun(c.deps.ReportDir, report); err != nil {
			c.logger.WithError(err).Warn("Failed to write run report")
		}
	}
	if c.deps.Runs != nil {
		if err := c.deps.Runs.SaveUpdate(ctx, report); err != nil {
			c.logger.WithError(err).Warn("Failed to record run report")
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"total":    report.Total,
		"success":  report.Success,
		"empty":    report.Empty,
		"failed":   report.Failed,
		"rows":     report.RowsAppended,
		"duration": report.Duration().String(),
	}).Info("Bar collection completed")
	return report
}

// WriteLastRun records a clean run in the success file and any run with
// failures in the failed file. A clean run clears a stale failed file.
func WriteLastRun(dir string, report *contracts.UpdateReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	if report.Failed > 0 {
		return archive.WriteFileAtomic(filepath.Join(dir, LastRunFailedFile), data)
	}
	if err := archive.WriteFileAtomic(filepath.Join(dir, LastRunSuccessFile), data); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, LastRunFailedFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ReadLastRun loads one of the run report files; ok=false when absent
func ReadLastRun(dir, name string) (*contracts.UpdateReport, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var report contracts.UpdateReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", name, err)
	}
	return &report, true, nil
}
