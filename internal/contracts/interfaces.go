package contracts

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by archive readers for an instrument they do not hold
var ErrNotFound = errors.New("instrument not found in archive")

// CalendarProvider supplies the ordered trading dates of a region
// ⭐ SSOT: 거래일 캘린더 인터페이스
type CalendarProvider interface {
	Calendar(ctx context.Context, region Region, start, end time.Time) ([]time.Time, error)
}

// BarFetcher fetches raw daily bars for one instrument over an inclusive range
// ⭐ SSOT: 원격 시세 조회 인터페이스
type BarFetcher interface {
	FetchDailyBars(ctx context.Context, code string, start, end time.Time) ([]RawBar, error)
}

// InstrumentLister lists the tradable universe on a given day
type InstrumentLister interface {
	FetchAllStocks(ctx context.Context, day time.Time) ([]string, error)
}

// ArchiveReader is the read side of the archive
// ⭐ SSOT: 아카이브 조회 인터페이스
type ArchiveReader interface {
	// LatestDate returns the final archived date of code; ok=false when absent
	LatestDate(ctx context.Context, code string) (time.Time, bool, error)
	// Rows returns the requested columns of code; columns the store lacks are
	// absent from the frame. Returns ErrNotFound for unknown instruments.
	Rows(ctx context.Context, code string, columns []string) (*Frame, error)
	// Instruments lists every archived instrument with its date range
	Instruments(ctx context.Context) ([]Instrument, error)
	// CalendarEnd returns the last date of the archive calendar
	CalendarEnd(ctx context.Context) (time.Time, bool, error)
}

// ArchiveWriter is the write side of the archive
// ⭐ SSOT: 아카이브 저장 인터페이스
type ArchiveWriter interface {
	// Append merges bars into code's series; duplicate dates overwrite
	Append(ctx context.Context, code string, bars []NormalizedBar) error
	// Flush rewrites the archive calendar and instrument ranges
	Flush(ctx context.Context) error
}

// IndexStore persists index basket membership (CSI300 and friends)
type IndexStore interface {
	ReadIndex(ctx context.Context, name string) ([]Instrument, error)
	WriteIndex(ctx context.Context, name string, members []Instrument) error
}

// CalendarStore exposes the calendar committed to the archive
type CalendarStore interface {
	Calendar(ctx context.Context) ([]time.Time, error)
}

// Archive is a complete store backend
type Archive interface {
	ArchiveReader
	ArchiveWriter
	IndexStore
	CalendarStore
	Exists(ctx context.Context) (bool, error)
	Close() error
}
