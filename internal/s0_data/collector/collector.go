package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/internal/s0_data/extend"
	"github.com/wonny/aegis-ingest/internal/s0_data/normalize"
	"github.com/wonny/aegis-ingest/pkg/logger"
	"github.com/wonny/aegis-ingest/pkg/metrics"
)

// IndexRefresher rewrites the membership of one index basket
type IndexRefresher interface {
	Refresh(ctx context.Context, index string, day time.Time) error
}

// RunRecorder keeps the latest run report for the status API
type RunRecorder interface {
	SaveUpdate(ctx context.Context, report *contracts.UpdateReport) error
}

// Config holds update pipeline settings
type Config struct {
	Workers           int           `yaml:"workers"`
	MaxCollectorCount int           `yaml:"max_collector_count"` // passes over failed instruments
	CheckDataLength   int           `yaml:"check_data_length"`   // fewer fetched rows is a failure, 0 disables
	Delay             time.Duration `yaml:"delay"`               // pause after every fetch, per worker
}

// DefaultConfig returns the standard update settings
func DefaultConfig() Config {
	return Config{
		Workers:           1,
		MaxCollectorCount: 2,
	}
}

// Options are the parameters of one run
type Options struct {
	Start time.Time // zero: archive calendar end
	End   time.Time // zero: tomorrow
	Limit int       // 0: every instrument
	Codes []string  // explicit universe, skips the provider listing
}

// Deps are the collaborators of the collector
type Deps struct {
	Fetcher   contracts.BarFetcher
	Lister    contracts.InstrumentLister
	Calendar  contracts.CalendarProvider
	Archive   contracts.Archive
	Bootstrap func(ctx context.Context) error // nil: a missing archive needs Options.Start
	Indices   IndexRefresher                  // nil: no membership refresh
	Runs      RunRecorder                     // nil: latest run not recorded
	ReportDir string                          // "": no .lastrun files
	Strategy  contracts.Strategy
	Extend    extend.Config
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
}

// Collector runs the update pipeline: fetch → normalize → extend → append
// ⭐ SSOT: 데이터 수집 오케스트레이션은 이 패키지에서만
type Collector struct {
	deps     Deps
	config   Config
	extender *extend.Extender
	logger   *logger.Logger
	now      func() time.Time
}

// NewCollector creates a new Collector instance
func NewCollector(deps Deps, cfg Config) *Collector {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxCollectorCount < 1 {
		cfg.MaxCollectorCount = 1
	}
	return &Collector{
		deps:     deps,
		config:   cfg,
		extender: extend.New(deps.Archive, deps.Extend),
		logger:   deps.Logger.Module("collector"),
		now:      time.Now,
	}
}

// window is the resolved fetch range and its trading days
type window struct {
	start    time.Time
	end      time.Time
	calendar []time.Time
}

// Result is the outcome of one instrument
type Result struct {
	Code  string
	Rows  int
	Empty bool
	Error error
}

// Update runs one full update. The returned report is non-nil whenever the
// run got as far as the worker pool, even when an error is returned.
func (c *Collector) Update(ctx context.Context, opts Options) (*contracts.UpdateReport, error) {
	report := &contracts.UpdateReport{
		StartedAt: c.now(),
		Failures:  make(map[string]string),
	}

	// 1. 아카이브 존재 확인 / bootstrap
	bootstrapped, err := c.ensureArchive(ctx, opts)
	if err != nil {
		return nil, err
	}
	report.Bootstrapped = bootstrapped

	// 2. 수집 기간
	win, err := c.resolveWindow(ctx, opts)
	if err != nil {
		return nil, err
	}
	report.WindowStart, report.WindowEnd = win.start, win.end

	// 3. 종목 목록
	codes, err := c.universe(ctx, opts, win)
	if err != nil {
		return nil, err
	}
	report.Total = len(codes)

	c.logger.WithFields(map[string]interface{}{
		"instruments": len(codes),
		"from":        win.start.Format(contracts.DateLayout),
		"to":          win.end.Format(contracts.DateLayout),
		"workers":     c.config.Workers,
	}).Info("Starting bar collection")

	// 4. worker pool (실패 종목은 다음 pass에서 재시도)
	pending := codes
	final := make(map[string]Result, len(codes))
	for pass := 1; pass <= c.config.MaxCollectorCount && len(pending) > 0; pass++ {
		if pass > 1 {
			c.logger.WithFields(map[string]interface{}{
				"pass":    pass,
				"pending": len(pending),
			}).Warn("Retrying failed instruments")
		}
		var failed []string
		for _, res := range c.runPool(ctx, pending, win) {
			final[res.Code] = res
			if res.Error != nil {
				failed = append(failed, res.Code)
			}
		}
		pending = failed
		if ctx.Err() != nil {
			break
		}
	}
	c.tally(report, codes, final)

	// 5. calendar / instrument range 기록
	if err := c.deps.Archive.Flush(ctx); err != nil {
		return c.finish(ctx, report), fmt.Errorf("flush archive: %w", err)
	}

	// 6. 지수 구성종목 갱신 (실패해도 update는 성공)
	c.refreshIndices(ctx, report, win)

	c.finish(ctx, report)
	if report.AllFailed() {
		return report, fmt.Errorf("all %d instruments failed", report.Total)
	}
	return report, nil
}

func (c *Collector) ensureArchive(ctx context.Context, opts Options) (bool, error) {
	exists, err := c.deps.Archive.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check archive: %w", err)
	}
	if exists {
		return false, nil
	}
	if c.deps.Bootstrap == nil {
		if opts.Start.IsZero() {
			return false, errors.New("archive does not exist: configure a bootstrap url or pass a start date")
		}
		c.logger.Warn("archive does not exist, starting an empty one")
		return false, nil
	}

	c.logger.Info("archive does not exist, bootstrapping")
	if err := c.deps.Bootstrap(ctx); err != nil {
		return false, fmt.Errorf("bootstrap archive: %w", err)
	}
	return true, nil
}

func (c *Collector) resolveWindow(ctx context.Context, opts Options) (window, error) {
	win := window{start: contracts.Day(opts.Start), end: contracts.Day(opts.End)}

	if opts.Start.IsZero() {
		last, ok, err := c.deps.Archive.CalendarEnd(ctx)
		if err != nil {
			return win, fmt.Errorf("read archive calendar: %w", err)
		}
		if !ok {
			return win, errors.New("archive calendar is empty: pass a start date")
		}
		win.start = last
	}
	if opts.End.IsZero() {
		win.end = contracts.Day(c.now()).AddDate(0, 0, 1)
	}
	if win.end.Before(win.start) {
		return win, fmt.Errorf("end %s is before start %s", win.end.Format(contracts.DateLayout), win.start.Format(contracts.DateLayout))
	}

	days, err := c.deps.Calendar.Calendar(ctx, c.deps.Strategy.Region, win.start, win.end)
	if err != nil {
		// 캘린더 없이도 원본 날짜로 정규화 가능
		c.logger.WithError(err).Warn("calendar unavailable, keeping provider dates")
		return win, nil
	}
	win.calendar = days
	return win, nil
}

func (c *Collector) universe(ctx context.Context, opts Options, win window) ([]string, error) {
	codes := opts.Codes
	if len(codes) == 0 {
		day := c.listingDay(win)
		listed, err := c.deps.Lister.FetchAllStocks(ctx, day)
		switch {
		case err != nil:
			c.logger.WithError(err).Warn("instrument listing failed, using archived instruments")
		case len(listed) == 0:
			c.logger.WithField("day", day.Format(contracts.DateLayout)).Warn("instrument listing empty, using archived instruments")
		default:
			codes = listed
		}
	}

	if len(codes) == 0 {
		archived, err := c.deps.Archive.Instruments(ctx)
		if err != nil {
			return nil, fmt.Errorf("list archived instruments: %w", err)
		}
		for _, in := range archived {
			codes = append(codes, in.Code)
		}
	}
	if len(codes) == 0 {
		return nil, errors.New("no instruments to update")
	}

	if opts.Limit > 0 && opts.Limit < len(codes) {
		codes = codes[:opts.Limit]
	}
	return codes, nil
}

// listingDay is the latest trading day of the window not after today
func (c *Collector) listingDay(win window) time.Time {
	today := contracts.Day(c.now())
	day := win.start
	for _, d := range win.calendar {
		if d.After(today) {
			break
		}
		day = d
	}
	return day
}

// runPool processes codes with the configured number of workers
func (c *Collector) runPool(ctx context.Context, codes []string, win window) []Result {
	resultCh := make(chan Result, len(codes))
	codeCh := make(chan string, len(codes))

	var wg sync.WaitGroup
	for i := 0; i < c.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.worker(ctx, workerID, codeCh, resultCh, win)
		}(i)
	}

	for _, code := range codes {
		codeCh <- code
	}
	close(codeCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]Result, 0, len(codes))
	for res := range resultCh {
		results = append(results, res)
	}
	return results
}

// worker handles one instrument at a time, end to end
func (c *Collector) worker(ctx context.Context, workerID int, codeCh <-chan string, resultCh chan<- Result, win window) {
	for code := range codeCh {
		if err := ctx.Err(); err != nil {
			resultCh <- Result{Code: code, Error: err}
			continue
		}

		res := c.processInstrument(ctx, code, win)
		log := c.logger.WithFields(map[string]interface{}{
			"worker": workerID,
			"code":   code,
		})
		switch {
		case res.Error != nil:
			log.WithError(res.Error).Error("Failed to update instrument")
		case res.Empty:
			log.Debug("No new rows")
		default:
			log.WithField("rows", res.Rows).Debug("Appended rows")
		}
		resultCh <- res
	}
}

// processInstrument runs fetch → normalize → extend → append for one code
func (c *Collector) processInstrument(ctx context.Context, code string, win window) Result {
	res := Result{Code: code}

	raw, err := c.deps.Fetcher.FetchDailyBars(ctx, code, win.start, win.end)
	c.pause(ctx)
	if err != nil {
		res.Error = fmt.Errorf("fetch: %w", err)
		return res
	}
	if len(raw) == 0 {
		res.Empty = true
		return res
	}
	if c.config.CheckDataLength > 0 && len(raw) < c.config.CheckDataLength {
		res.Error = fmt.Errorf("fetched %d rows, want at least %d", len(raw), c.config.CheckDataLength)
		return res
	}

	hint, err := c.priorClose(ctx, code, win.start)
	if err != nil {
		res.Error = err
		return res
	}

	bars := normalize.Normalize(code, raw, win.calendar, hint)
	appendable, splice, err := c.extender.Extend(ctx, code, bars)
	if err != nil {
		res.Error = fmt.Errorf("extend: %w", err)
		return res
	}
	if splice.Archived && !splice.Scaled {
		c.logger.WithFields(map[string]interface{}{
			"code":      code,
			"last_date": splice.LastDate.Format(contracts.DateLayout),
		}).Warn("splice boundary missing, appending unscaled rows")
	}
	if len(appendable) == 0 {
		res.Empty = true
		return res
	}

	if err := c.deps.Archive.Append(ctx, code, appendable); err != nil {
		res.Error = fmt.Errorf("append: %w", err)
		return res
	}
	res.Rows = len(appendable)
	return res
}

// priorClose returns the last valid archived close strictly before day
func (c *Collector) priorClose(ctx context.Context, code string, day time.Time) (*float64, error) {
	frame, err := c.deps.Archive.Rows(ctx, code, []string{contracts.ColClose})
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read archived close: %w", err)
	}
	closes, ok := frame.Column(contracts.ColClose)
	if !ok {
		return nil, nil
	}
	for i := frame.Len() - 1; i >= 0; i-- {
		if !frame.Dates[i].Before(day) {
			continue
		}
		if v := closes[i]; !math.IsNaN(v) {
			return &v, nil
		}
	}
	return nil, nil
}

func (c *Collector) pause(ctx context.Context) {
	if c.config.Delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(c.config.Delay):
	}
}

func (c *Collector) tally(report *contracts.UpdateReport, codes []string, final map[string]Result) {
	for _, code := range codes {
		res := final[code]
		switch {
		case res.Error != nil:
			report.Failed++
			report.Failures[code] = res.Error.Error()
			c.observe("failed")
		case res.Empty:
			report.Empty++
			report.Succeeded = append(report.Succeeded, code)
			c.observe("empty")
		default:
			report.Success++
			report.RowsAppended += res.Rows
			report.Succeeded = append(report.Succeeded, code)
			c.observe("success")
		}
	}
	if c.deps.Metrics != nil {
		c.deps.Metrics.RowsAppended.Add(float64(report.RowsAppended))
	}
}

func (c *Collector) observe(result string) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.InstrumentsDone.WithLabelValues(result).Inc()
	}
}

func (c *Collector) refreshIndices(ctx context.Context, report *contracts.UpdateReport, win window) {
	if c.deps.Indices == nil {
		return
	}
	day := c.listingDay(win)
	for _, index := range c.deps.Strategy.Indices {
		if err := c.deps.Indices.Refresh(ctx, index, day); err != nil {
			if report.IndexErrors == nil {
				report.IndexErrors = make(map[string]string)
			}
			report.IndexErrors[index] = err.Error()
			c.logger.WithError(err).WithField("index", index).Warn("Failed to update index data")
		}
	}
}
