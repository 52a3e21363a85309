package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

// parquetRow is one archived day in features/<code>.parquet
type parquetRow struct {
	Date   string  `parquet:"date"`
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume float64 `parquet:"volume"`
	Amount float64 `parquet:"amount"`
	Change float64 `parquet:"change"`
	Factor float64 `parquet:"factor"`
}

func toParquetRow(b contracts.NormalizedBar) parquetRow {
	return parquetRow{
		Date: b.Date.Format(contracts.DateLayout),
		Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
		Volume: b.Volume, Amount: b.Amount, Change: b.Change, Factor: b.Factor,
	}
}

func (r parquetRow) bar(code string) (contracts.NormalizedBar, error) {
	d, err := contracts.ParseDay(r.Date)
	if err != nil {
		return contracts.NormalizedBar{}, err
	}
	return contracts.NormalizedBar{
		Code: code, Date: d,
		Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
		Volume: r.Volume, Amount: r.Amount, Change: r.Change, Factor: r.Factor,
	}, nil
}

// ParquetStore keeps one parquet file per instrument plus text index files
// ⭐ SSOT: 파일 아카이브 읽기/쓰기는 여기서만
type ParquetStore struct {
	dir    string
	logger *logger.Logger

	mu      sync.Mutex
	touched map[string]contracts.Instrument // ranges written since last Flush
	days    map[time.Time]bool              // calendar days written since last Flush
}

// NewParquetStore opens (without creating) the archive at dir
func NewParquetStore(dir string, log *logger.Logger) *ParquetStore {
	return &ParquetStore{
		dir:     dir,
		logger:  log.Module("archive"),
		touched: make(map[string]contracts.Instrument),
		days:    make(map[time.Time]bool),
	}
}

// Dir returns the archive root
func (s *ParquetStore) Dir() string {
	return s.dir
}

func (s *ParquetStore) featurePath(code string) string {
	return filepath.Join(s.dir, FeaturesDir, strings.ToLower(code)+".parquet")
}

func (s *ParquetStore) indexPath(name string) string {
	return filepath.Join(s.dir, InstrumentsDir, strings.ToLower(name)+".txt")
}

// Exists reports whether the archive has a calendar and a features directory
func (s *ParquetStore) Exists(context.Context) (bool, error) {
	for _, p := range []string{filepath.Join(s.dir, CalendarFile), filepath.Join(s.dir, FeaturesDir)} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}

// readFile returns the bars of code and the column names present in the file
func (s *ParquetStore) readFile(code string) ([]contracts.NormalizedBar, map[string]bool, error) {
	f, err := os.Open(s.featurePath(code))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, nil, fmt.Errorf("open parquet %s: %w", code, err)
	}

	present := make(map[string]bool)
	for _, field := range pf.Schema().Fields() {
		present[field.Name()] = true
	}

	reader := parquet.NewGenericReader[parquetRow](f)
	defer reader.Close()

	rows := make([]parquetRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("read parquet %s: %w", code, err)
	}

	bars := make([]contracts.NormalizedBar, 0, n)
	for _, r := range rows[:n] {
		b, err := r.bar(code)
		if err != nil {
			return nil, nil, fmt.Errorf("bad date in %s: %w", code, err)
		}
		bars = append(bars, b)
	}
	return mergeBars(nil, bars), present, nil
}

func (s *ParquetStore) LatestDate(_ context.Context, code string) (time.Time, bool, error) {
	bars, _, err := s.readFile(code)
	if errors.Is(err, contracts.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if len(bars) == 0 {
		return time.Time{}, false, nil
	}
	return bars[len(bars)-1].Date, true, nil
}

func (s *ParquetStore) Rows(_ context.Context, code string, columns []string) (*contracts.Frame, error) {
	bars, present, err := s.readFile(code)
	if err != nil {
		return nil, err
	}
	f := contracts.FrameFromBars(code, bars)
	for _, col := range contracts.AllColumns {
		if !present[col] {
			delete(f.Cols, col)
		}
	}
	return f.Select(columns), nil
}

// Instruments reads instruments/all.txt
func (s *ParquetStore) Instruments(context.Context) ([]contracts.Instrument, error) {
	return ReadInstrumentFile(s.indexPath(AllInstruments))
}

// Calendar reads calendars/day.txt
func (s *ParquetStore) Calendar(context.Context) ([]time.Time, error) {
	return ReadCalendarFile(filepath.Join(s.dir, CalendarFile))
}

func (s *ParquetStore) CalendarEnd(ctx context.Context) (time.Time, bool, error) {
	days, err := s.Calendar(ctx)
	if err != nil || len(days) == 0 {
		return time.Time{}, false, err
	}
	return days[len(days)-1], true, nil
}

// Append merges bars into the instrument file. One writer per instrument.
func (s *ParquetStore) Append(_ context.Context, code string, bars []contracts.NormalizedBar) error {
	if len(bars) == 0 {
		return nil
	}

	existing, _, err := s.readFile(code)
	if err != nil && !errors.Is(err, contracts.ErrNotFound) {
		return err
	}
	merged := mergeBars(existing, bars)

	rows := make([]parquetRow, len(merged))
	for i, b := range merged {
		rows[i] = toParquetRow(b)
	}

	path := s.featurePath(code)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create features dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write parquet %s: %w", code, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit parquet %s: %w", code, err)
	}

	s.mu.Lock()
	s.touched[code] = rangeOf(code, merged)
	for _, b := range bars {
		s.days[contracts.Day(b.Date)] = true
	}
	s.mu.Unlock()
	return nil
}

// Flush merges the ranges and days written since the last Flush into
// instruments/all.txt and calendars/day.txt
func (s *ParquetStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	touched, days := s.touched, s.days
	s.touched = make(map[string]contracts.Instrument)
	s.days = make(map[time.Time]bool)
	s.mu.Unlock()

	if len(touched) == 0 && len(days) == 0 {
		return nil
	}

	existing, err := s.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("read instruments: %w", err)
	}
	if err := WriteInstrumentFile(s.indexPath(AllInstruments), MergeRanges(existing, touched)); err != nil {
		return fmt.Errorf("write instruments: %w", err)
	}

	calendar, err := s.Calendar(ctx)
	if err != nil {
		return fmt.Errorf("read calendar: %w", err)
	}
	for d := range days {
		calendar = append(calendar, d)
	}
	if err := WriteCalendarFile(filepath.Join(s.dir, CalendarFile), calendar); err != nil {
		return fmt.Errorf("write calendar: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"instruments": len(touched),
		"days":        len(days),
	}).Info("archive index flushed")
	return nil
}

// WriteCalendar replaces the archive calendar (bootstrap and imports)
func (s *ParquetStore) WriteCalendar(_ context.Context, days []time.Time) error {
	return WriteCalendarFile(filepath.Join(s.dir, CalendarFile), days)
}

func (s *ParquetStore) ReadIndex(_ context.Context, name string) ([]contracts.Instrument, error) {
	return ReadInstrumentFile(s.indexPath(name))
}

func (s *ParquetStore) WriteIndex(_ context.Context, name string, members []contracts.Instrument) error {
	return WriteInstrumentFile(s.indexPath(name), members)
}

func (s *ParquetStore) Close() error { return nil }
