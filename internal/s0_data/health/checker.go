package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/logger"
	"github.com/wonny/aegis-ingest/pkg/metrics"
)

// Checker scans the archive in parallel
type Checker struct {
	reader  contracts.ArchiveReader
	config  Config
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewChecker creates a new Checker; m may be nil
func NewChecker(reader contracts.ArchiveReader, cfg Config, log *logger.Logger, m *metrics.Metrics) *Checker {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &Checker{
		reader:  reader,
		config:  cfg,
		logger:  log.Module("health"),
		metrics: m,
	}
}

// Codes lists archived instruments, truncated to limit when limit > 0
func (c *Checker) Codes(ctx context.Context, limit int) ([]string, error) {
	instruments, err := c.reader.Instruments(ctx)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(instruments))
	for _, in := range instruments {
		codes = append(codes, in.Code)
	}
	if limit > 0 && limit < len(codes) {
		codes = codes[:limit]
	}
	return codes, nil
}

// Run checks every code and aggregates the results once all workers finish.
// Per-instrument failures land in the report's errors category.
func (c *Checker) Run(ctx context.Context, codes []string) *contracts.HealthReport {
	report := contracts.NewHealthReport()
	report.StartedAt = time.Now()

	c.logger.WithFields(map[string]interface{}{
		"instruments": len(codes),
		"parallelism": c.config.Parallelism,
	}).Info("starting health check")

	// 결과는 인덱스별 슬롯에 저장 (공유 accumulator 없음)
	results := make([]contracts.InstrumentResult, len(codes))

	var g errgroup.Group
	g.SetLimit(c.config.Parallelism)
	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			results[i] = CheckInstrument(ctx, c.reader, code, c.config)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		report.Add(res)
	}
	report.FinishedAt = time.Now()

	counts := report.Counts()
	if c.metrics != nil {
		for category, n := range counts {
			c.metrics.HealthFindings.WithLabelValues(category).Add(float64(n))
		}
		c.metrics.HealthDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}

	fields := map[string]interface{}{"checked": report.Checked}
	for category, n := range counts {
		fields[category] = n
	}
	c.logger.WithFields(fields).Info("health check completed")

	return report
}
