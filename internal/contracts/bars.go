package contracts

import (
	"math"
	"time"
)

// Column names shared by the archive, the normalizer and the health checker
const (
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
	ColAmount = "amount"
	ColChange = "change"
	ColFactor = "factor"
)

// AllColumns is the canonical archive schema order
var AllColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume, ColAmount, ColChange, ColFactor}

// PriceColumns are checked against the price step threshold
var PriceColumns = []string{ColOpen, ColHigh, ColLow, ColClose}

// RequiredColumns must exist in every archived series
var RequiredColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// SpliceColumns are rescaled when extending an archive
var SpliceColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume, ColFactor}

// RawBar is one provider record; numeric fields stay as provider strings
// until the normalizer coerces them
// ⭐ SSOT: provider → normalizer 원본 레코드
type RawBar struct {
	Code        string `json:"code"` // provider form, e.g. sh.600000
	Date        string `json:"date"` // YYYY-MM-DD
	Open        string `json:"open"`
	High        string `json:"high"`
	Low         string `json:"low"`
	Close       string `json:"close"`
	PreClose    string `json:"preclose"`
	Volume      string `json:"volume"`
	Amount      string `json:"amount"`
	AdjustFlag  string `json:"adjustflag"`
	TradeStatus string `json:"tradestatus"`
	IsST        string `json:"isST"`
}

// NormalizedBar is one canonical archive row. NaN marks a missing value.
// ⭐ SSOT: normalizer → extender → archive 정규화 레코드
type NormalizedBar struct {
	Code   string    `json:"code"` // archive form, e.g. SH600000
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Amount float64   `json:"amount"`
	Change float64   `json:"change"`
	Factor float64   `json:"factor"`
}

// NaNBar returns a placeholder row for a calendar day with no data
func NaNBar(code string, date time.Time) NormalizedBar {
	nan := math.NaN()
	return NormalizedBar{
		Code: code, Date: date,
		Open: nan, High: nan, Low: nan, Close: nan,
		Volume: nan, Amount: nan, Change: nan, Factor: nan,
	}
}

// Valid reports whether the row carries trading data
func (b NormalizedBar) Valid() bool {
	return !math.IsNaN(b.Volume) && b.Volume > 0
}

// Value returns the named column, NaN for unknown names
func (b NormalizedBar) Value(col string) float64 {
	switch col {
	case ColOpen:
		return b.Open
	case ColHigh:
		return b.High
	case ColLow:
		return b.Low
	case ColClose:
		return b.Close
	case ColVolume:
		return b.Volume
	case ColAmount:
		return b.Amount
	case ColChange:
		return b.Change
	case ColFactor:
		return b.Factor
	}
	return math.NaN()
}

// Set assigns the named column; unknown names are ignored
func (b *NormalizedBar) Set(col string, v float64) {
	switch col {
	case ColOpen:
		b.Open = v
	case ColHigh:
		b.High = v
	case ColLow:
		b.Low = v
	case ColClose:
		b.Close = v
	case ColVolume:
		b.Volume = v
	case ColAmount:
		b.Amount = v
	case ColChange:
		b.Change = v
	case ColFactor:
		b.Factor = v
	}
}

// Instrument is one line of the archive instrument list
type Instrument struct {
	Code  string    `json:"code"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DateLayout is the day format used in provider payloads and archive text files
const DateLayout = "2006-01-02"

// ParseDay parses YYYY-MM-DD as a UTC midnight
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Day truncates t to its UTC calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
