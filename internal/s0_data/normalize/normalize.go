// Package normalize converts raw provider bars into canonical archive rows.
package normalize

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-ingest/internal/contracts"
)

// Normalize converts raw bars of one instrument into calendar-aligned rows.
//
//  1. duplicate dates keep the first row
//  2. rows are reindexed onto the calendar days inside [min, max]; raw days
//     outside the calendar are dropped and missing days become NaN rows
//  3. a row with non-positive or unparsable volume is invalid: every numeric
//     column becomes NaN
//  4. change = close / previous close - 1, previous close forward-filled and
//     seeded from priorClose when given
//  5. factor is the running product of close / preclose over valid rows
//  6. volume is divided by factor
//
// A nil calendar keeps the raw dates as they are.
func Normalize(code string, raw []contracts.RawBar, calendar []time.Time, priorClose *float64) []contracts.NormalizedBar {
	if len(raw) == 0 {
		return []contracts.NormalizedBar{}
	}

	byDate, dates := dedupe(raw)
	if len(dates) == 0 {
		return []contracts.NormalizedBar{}
	}
	if calendar != nil {
		dates = reindex(calendar, dates[0], dates[len(dates)-1])
	}

	out := make([]contracts.NormalizedBar, len(dates))
	preclose := make([]float64, len(dates))
	for i, d := range dates {
		r, ok := byDate[d]
		if !ok {
			out[i] = contracts.NaNBar(code, d)
			preclose[i] = math.NaN()
			continue
		}
		out[i], preclose[i] = coerce(code, d, r)
	}

	computeChange(out, priorClose)
	computeFactor(out, preclose)
	return out
}

// dedupe parses dates, keeps the first row per date and returns sorted dates
func dedupe(raw []contracts.RawBar) (map[time.Time]contracts.RawBar, []time.Time) {
	byDate := make(map[time.Time]contracts.RawBar, len(raw))
	dates := make([]time.Time, 0, len(raw))
	for _, r := range raw {
		d, err := contracts.ParseDay(strings.TrimSpace(r.Date))
		if err != nil {
			continue
		}
		if _, seen := byDate[d]; seen {
			continue
		}
		byDate[d] = r
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return byDate, dates
}

// reindex returns the calendar days within [lo, hi] in order
func reindex(calendar []time.Time, lo, hi time.Time) []time.Time {
	days := make([]time.Time, 0, len(calendar))
	for _, c := range calendar {
		d := contracts.Day(c)
		if d.Before(lo) || d.After(hi) {
			continue
		}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// coerce parses the numeric fields and applies the invalid-volume rule
func coerce(code string, d time.Time, r contracts.RawBar) (contracts.NormalizedBar, float64) {
	volume := parseNumber(r.Volume)
	if math.IsNaN(volume) || volume <= 0 {
		return contracts.NaNBar(code, d), math.NaN()
	}

	return contracts.NormalizedBar{
		Code:   code,
		Date:   d,
		Open:   parseNumber(r.Open),
		High:   parseNumber(r.High),
		Low:    parseNumber(r.Low),
		Close:  parseNumber(r.Close),
		Volume: volume,
		Amount: parseNumber(r.Amount),
		Change: math.NaN(),
		Factor: math.NaN(),
	}, parseNumber(r.PreClose)
}

// parseNumber returns NaN for empty or unparsable provider strings
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return math.NaN()
	}
	return v.InexactFloat64()
}

func computeChange(rows []contracts.NormalizedBar, priorClose *float64) {
	prev := math.NaN()
	if priorClose != nil {
		prev = *priorClose
	}
	for i := range rows {
		cur := rows[i].Close
		if math.IsNaN(cur) {
			cur = prev // forward fill
		}
		if rows[i].Valid() {
			rows[i].Change = cur/prev - 1
		} else {
			rows[i].Change = math.NaN()
		}
		prev = cur
	}
}

// computeFactor fills factor and adjusts volume. A missing, zero or
// unparsable ratio contributes 1 so one bad field cannot poison the product.
func computeFactor(rows []contracts.NormalizedBar, preclose []float64) {
	factor := 1.0
	for i := range rows {
		if !rows[i].Valid() {
			rows[i].Factor = math.NaN()
			continue
		}
		ratio := rows[i].Close / preclose[i]
		if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio == 0 {
			ratio = 1
		}
		factor *= ratio
		rows[i].Factor = factor
		rows[i].Volume /= factor
	}
}
