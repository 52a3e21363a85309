package contracts

import (
	"math"
	"sort"
	"time"
)

// Frame is a columnar view of one instrument's archived series.
// A column absent from Cols was not present in the store, which is
// different from a column whose values are all NaN.
type Frame struct {
	Code  string
	Dates []time.Time
	Cols  map[string][]float64
}

// NewFrame creates an empty frame with the given columns present
func NewFrame(code string, columns ...string) *Frame {
	f := &Frame{Code: code, Cols: make(map[string][]float64, len(columns))}
	for _, c := range columns {
		f.Cols[c] = []float64{}
	}
	return f
}

// FrameFromBars builds a frame holding every canonical column
func FrameFromBars(code string, bars []NormalizedBar) *Frame {
	f := NewFrame(code, AllColumns...)
	for _, b := range bars {
		f.Dates = append(f.Dates, b.Date)
		for _, c := range AllColumns {
			f.Cols[c] = append(f.Cols[c], b.Value(c))
		}
	}
	return f
}

// Len returns the number of rows
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Dates)
}

// Column returns the named column and whether it exists
func (f *Frame) Column(name string) ([]float64, bool) {
	col, ok := f.Cols[name]
	return col, ok
}

// Has reports whether the column exists
func (f *Frame) Has(name string) bool {
	_, ok := f.Cols[name]
	return ok
}

// LastDate returns the final date of the series
func (f *Frame) LastDate() (time.Time, bool) {
	if f.Len() == 0 {
		return time.Time{}, false
	}
	return f.Dates[len(f.Dates)-1], true
}

// Index returns the row for date or -1. Dates are sorted ascending.
func (f *Frame) Index(date time.Time) int {
	i := sort.Search(len(f.Dates), func(i int) bool { return !f.Dates[i].Before(date) })
	if i < len(f.Dates) && f.Dates[i].Equal(date) {
		return i
	}
	return -1
}

// Row materializes one row; absent columns read as NaN
func (f *Frame) Row(i int) NormalizedBar {
	b := NormalizedBar{Code: f.Code, Date: f.Dates[i]}
	for _, c := range AllColumns {
		if col, ok := f.Cols[c]; ok {
			b.Set(c, col[i])
		} else {
			b.Set(c, math.NaN())
		}
	}
	return b
}

// Bars materializes every row
func (f *Frame) Bars() []NormalizedBar {
	out := make([]NormalizedBar, f.Len())
	for i := range out {
		out[i] = f.Row(i)
	}
	return out
}

// Select keeps only the requested columns that exist
func (f *Frame) Select(columns []string) *Frame {
	out := &Frame{Code: f.Code, Dates: f.Dates, Cols: make(map[string][]float64, len(columns))}
	for _, c := range columns {
		if col, ok := f.Cols[c]; ok {
			out.Cols[c] = col
		}
	}
	return out
}
