package archive

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/aegis-ingest/internal/contracts"
)

// MemoryStore is an in-process archive used for dry runs
type MemoryStore struct {
	mu       sync.RWMutex
	series   map[string][]contracts.NormalizedBar
	dropped  map[string]map[string]bool // code → columns the store does not hold
	calendar []time.Time
	indices  map[string][]contracts.Instrument
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series:  make(map[string][]contracts.NormalizedBar),
		dropped: make(map[string]map[string]bool),
		indices: make(map[string][]contracts.Instrument),
	}
}

// Seed replaces an instrument's series (dry runs start from a snapshot)
func (m *MemoryStore) Seed(code string, bars []contracts.NormalizedBar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[code] = mergeBars(nil, bars)
	for _, b := range bars {
		m.calendar = append(m.calendar, b.Date)
	}
	m.calendar = uniqueDays(m.calendar)
}

// DropColumn makes Rows report col as absent for code
func (m *MemoryStore) DropColumn(code, col string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropped[code] == nil {
		m.dropped[code] = make(map[string]bool)
	}
	m.dropped[code][col] = true
}

func (m *MemoryStore) Exists(context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.series) > 0, nil
}

func (m *MemoryStore) LatestDate(_ context.Context, code string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bars := m.series[code]
	if len(bars) == 0 {
		return time.Time{}, false, nil
	}
	return bars[len(bars)-1].Date, true, nil
}

func (m *MemoryStore) Rows(_ context.Context, code string, columns []string) (*contracts.Frame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bars, ok := m.series[code]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	f := contracts.FrameFromBars(code, bars)
	for col := range m.dropped[code] {
		delete(f.Cols, col)
	}
	return f.Select(columns), nil
}

func (m *MemoryStore) Instruments(context.Context) ([]contracts.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	updates := make(map[string]contracts.Instrument, len(m.series))
	for code, bars := range m.series {
		if len(bars) > 0 {
			updates[code] = rangeOf(code, bars)
		}
	}
	return MergeRanges(nil, updates), nil
}

func (m *MemoryStore) CalendarEnd(context.Context) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calendar) == 0 {
		return time.Time{}, false, nil
	}
	return m.calendar[len(m.calendar)-1], true, nil
}

// Calendar returns the archive calendar
func (m *MemoryStore) Calendar(context.Context) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Time(nil), m.calendar...), nil
}

func (m *MemoryStore) Append(_ context.Context, code string, bars []contracts.NormalizedBar) error {
	if len(bars) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[code] = mergeBars(m.series[code], bars)
	for _, b := range bars {
		m.calendar = append(m.calendar, b.Date)
	}
	return nil
}

func (m *MemoryStore) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calendar = uniqueDays(m.calendar)
	return nil
}

func (m *MemoryStore) ReadIndex(_ context.Context, name string) ([]contracts.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]contracts.Instrument(nil), m.indices[name]...), nil
}

func (m *MemoryStore) WriteIndex(_ context.Context, name string, members []contracts.Instrument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indices[name] = append([]contracts.Instrument(nil), members...)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
