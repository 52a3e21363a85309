package archive

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS data;

CREATE TABLE IF NOT EXISTS data.daily_bars (
	code       TEXT             NOT NULL,
	trade_date DATE             NOT NULL,
	open       DOUBLE PRECISION,
	high       DOUBLE PRECISION,
	low        DOUBLE PRECISION,
	close      DOUBLE PRECISION,
	volume     DOUBLE PRECISION,
	amount     DOUBLE PRECISION,
	change     DOUBLE PRECISION,
	factor     DOUBLE PRECISION,
	PRIMARY KEY (code, trade_date)
);

CREATE TABLE IF NOT EXISTS data.trading_calendar (
	trade_date DATE PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS data.index_members (
	index_name TEXT NOT NULL,
	code       TEXT NOT NULL,
	start_date DATE NOT NULL,
	end_date   DATE NOT NULL,
	PRIMARY KEY (index_name, code)
);
`

// PostgresStore keeps the archive in data.daily_bars
// ⭐ SSOT: DB 아카이브 읽기/쓰기는 여기서만
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logger.Logger

	mu   sync.Mutex
	days map[time.Time]bool
}

// NewPostgresStore wraps a pool; call EnsureSchema before first use
func NewPostgresStore(pool *pgxpool.Pool, log *logger.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: log.Module("archive"),
		days:   make(map[time.Time]bool),
	}
}

// EnsureSchema creates the archive tables when missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM data.trading_calendar)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe archive: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) LatestDate(ctx context.Context, code string) (time.Time, bool, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(trade_date) FROM data.daily_bars WHERE code = $1`, code).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest date %s: %w", code, err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return contracts.Day(*last), true, nil
}

func (s *PostgresStore) Rows(ctx context.Context, code string, columns []string) (*contracts.Frame, error) {
	query := `
		SELECT trade_date, open, high, low, close, volume, amount, change, factor
		FROM data.daily_bars
		WHERE code = $1
		ORDER BY trade_date ASC
	`
	rows, err := s.pool.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("query rows %s: %w", code, err)
	}
	defer rows.Close()

	var bars []contracts.NormalizedBar
	for rows.Next() {
		var d time.Time
		var vals [8]*float64
		if err := rows.Scan(&d, &vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5], &vals[6], &vals[7]); err != nil {
			return nil, fmt.Errorf("scan row %s: %w", code, err)
		}
		b := contracts.NaNBar(code, contracts.Day(d))
		for i, col := range contracts.AllColumns {
			if vals[i] != nil {
				b.Set(col, *vals[i])
			}
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, contracts.ErrNotFound
	}
	return contracts.FrameFromBars(code, bars).Select(columns), nil
}

func (s *PostgresStore) Instruments(ctx context.Context) ([]contracts.Instrument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, MIN(trade_date), MAX(trade_date)
		FROM data.daily_bars
		GROUP BY code
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var out []contracts.Instrument
	for rows.Next() {
		var in contracts.Instrument
		if err := rows.Scan(&in.Code, &in.Start, &in.End); err != nil {
			return nil, err
		}
		in.Start, in.End = contracts.Day(in.Start), contracts.Day(in.End)
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Calendar(ctx context.Context) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, `SELECT trade_date FROM data.trading_calendar ORDER BY trade_date`)
	if err != nil {
		return nil, fmt.Errorf("read calendar: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, contracts.Day(d))
	}
	return days, rows.Err()
}

func (s *PostgresStore) CalendarEnd(ctx context.Context) (time.Time, bool, error) {
	var last *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(trade_date) FROM data.trading_calendar`).Scan(&last); err != nil {
		return time.Time{}, false, fmt.Errorf("calendar end: %w", err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return contracts.Day(*last), true, nil
}

// Append upserts bars in one transaction; duplicate dates overwrite
func (s *PostgresStore) Append(ctx context.Context, code string, bars []contracts.NormalizedBar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO data.daily_bars (code, trade_date, open, high, low, close, volume, amount, change, factor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code, trade_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			amount = EXCLUDED.amount,
			change = EXCLUDED.change,
			factor = EXCLUDED.factor
	`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, code, contracts.Day(b.Date),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount, b.Change, b.Factor)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", code, err)
	}

	s.mu.Lock()
	for _, b := range bars {
		s.days[contracts.Day(b.Date)] = true
	}
	s.mu.Unlock()
	return nil
}

// Flush records the days appended since the last Flush in the calendar
func (s *PostgresStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	days := make([]time.Time, 0, len(s.days))
	for d := range s.days {
		days = append(days, d)
	}
	s.days = make(map[time.Time]bool)
	s.mu.Unlock()

	if err := s.WriteCalendar(ctx, days); err != nil {
		return err
	}
	s.logger.WithField("days", len(days)).Info("archive calendar flushed")
	return nil
}

// WriteCalendar adds days to the calendar
func (s *PostgresStore) WriteCalendar(ctx context.Context, days []time.Time) error {
	if len(days) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO data.trading_calendar (trade_date)
		SELECT unnest($1::date[])
		ON CONFLICT DO NOTHING
	`, days)
	if err != nil {
		return fmt.Errorf("write calendar: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReadIndex(ctx context.Context, name string) ([]contracts.Instrument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, start_date, end_date FROM data.index_members
		WHERE index_name = $1 ORDER BY code
	`, strings.ToLower(name))
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", name, err)
	}
	defer rows.Close()

	var out []contracts.Instrument
	for rows.Next() {
		var in contracts.Instrument
		if err := rows.Scan(&in.Code, &in.Start, &in.End); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// WriteIndex replaces the membership of one index
func (s *PostgresStore) WriteIndex(ctx context.Context, name string, members []contracts.Instrument) error {
	name = strings.ToLower(name)
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM data.index_members WHERE index_name = $1`, name); err != nil {
			return err
		}
		rows := make([][]interface{}, len(members))
		for i, m := range members {
			rows[i] = []interface{}{name, m.Code, m.Start, m.End}
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"data", "index_members"},
			[]string{"index_name", "code", "start_date", "end_date"}, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("write index %s: %w", name, err)
		}
		return nil
	})
}

func (s *PostgresStore) Close() error {
	return nil
}
