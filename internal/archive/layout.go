package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wonny/aegis-ingest/internal/contracts"
)

// Archive directory layout
const (
	CalendarFile   = "calendars/day.txt"
	InstrumentsDir = "instruments"
	AllInstruments = "all"
	FeaturesDir    = "features"
)

// ReadCalendarFile reads one YYYY-MM-DD per line; a missing file is empty
func ReadCalendarFile(path string) ([]time.Time, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var days []time.Time
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		d, err := contracts.ParseDay(line)
		if err != nil {
			return nil, fmt.Errorf("parse calendar line %q: %w", line, err)
		}
		days = append(days, d)
	}
	return days, sc.Err()
}

// WriteCalendarFile writes sorted unique days atomically
func WriteCalendarFile(path string, days []time.Time) error {
	days = uniqueDays(days)
	var b strings.Builder
	for _, d := range days {
		b.WriteString(d.Format(contracts.DateLayout))
		b.WriteByte('\n')
	}
	return WriteFileAtomic(path, []byte(b.String()))
}

// ReadInstrumentFile reads "CODE\tstart\tend" lines; a missing file is empty
func ReadInstrumentFile(path string) ([]contracts.Instrument, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []contracts.Instrument
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed instrument line %q", line)
		}
		start, err := contracts.ParseDay(parts[1])
		if err != nil {
			return nil, fmt.Errorf("parse start in %q: %w", line, err)
		}
		end, err := contracts.ParseDay(parts[2])
		if err != nil {
			return nil, fmt.Errorf("parse end in %q: %w", line, err)
		}
		out = append(out, contracts.Instrument{Code: strings.ToUpper(parts[0]), Start: start, End: end})
	}
	return out, sc.Err()
}

// WriteInstrumentFile writes instruments sorted by code atomically
func WriteInstrumentFile(path string, instruments []contracts.Instrument) error {
	sorted := append([]contracts.Instrument(nil), instruments...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	var b strings.Builder
	for _, in := range sorted {
		fmt.Fprintf(&b, "%s\t%s\t%s\n", in.Code, in.Start.Format(contracts.DateLayout), in.End.Format(contracts.DateLayout))
	}
	return WriteFileAtomic(path, []byte(b.String()))
}

// WriteFileAtomic writes to a temp file in the same directory then renames
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// MergeRanges widens existing instrument ranges with updates
func MergeRanges(existing []contracts.Instrument, updates map[string]contracts.Instrument) []contracts.Instrument {
	byCode := make(map[string]contracts.Instrument, len(existing)+len(updates))
	for _, in := range existing {
		byCode[in.Code] = in
	}
	for code, up := range updates {
		cur, ok := byCode[code]
		if !ok {
			byCode[code] = up
			continue
		}
		if up.Start.Before(cur.Start) {
			cur.Start = up.Start
		}
		if up.End.After(cur.End) {
			cur.End = up.End
		}
		byCode[code] = cur
	}

	out := make([]contracts.Instrument, 0, len(byCode))
	for _, in := range byCode {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func uniqueDays(days []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(days))
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		d = contracts.Day(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// mergeBars overlays incoming rows on existing ones by date, sorted ascending
func mergeBars(existing, incoming []contracts.NormalizedBar) []contracts.NormalizedBar {
	byDate := make(map[time.Time]contracts.NormalizedBar, len(existing)+len(incoming))
	for _, b := range existing {
		byDate[b.Date] = b
	}
	for _, b := range incoming {
		byDate[contracts.Day(b.Date)] = b
	}

	out := make([]contracts.NormalizedBar, 0, len(byDate))
	for d, b := range byDate {
		b.Date = d
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// rangeOf returns the first and last date of sorted bars
func rangeOf(code string, bars []contracts.NormalizedBar) contracts.Instrument {
	return contracts.Instrument{Code: code, Start: bars[0].Date, End: bars[len(bars)-1].Date}
}
