package contracts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Finding categories of a health report
const (
	CategoryMissingData    = "missing_data"
	CategoryLargeSteps     = "large_steps"
	CategoryMissingColumns = "missing_columns"
	CategoryMissingFactor  = "missing_factor"
	CategoryErrors         = "errors"
)

// Categories lists the finding categories in report order
var Categories = []string{
	CategoryMissingData,
	CategoryLargeSteps,
	CategoryMissingColumns,
	CategoryMissingFactor,
	CategoryErrors,
}

// Missing factor reasons
const (
	FactorColumnMissing = "column_missing"
	FactorAllNaN        = "all_nan"
)

// MissingCount is a per-column NaN count; All marks an empty series
type MissingCount struct {
	Count int
	All   bool
}

func (m MissingCount) String() string {
	if m.All {
		return "all"
	}
	return strconv.Itoa(m.Count)
}

// MarshalJSON renders "all" or the count
func (m MissingCount) MarshalJSON() ([]byte, error) {
	if m.All {
		return json.Marshal("all")
	}
	return json.Marshal(m.Count)
}

// UnmarshalJSON accepts "all" or a count
func (m *MissingCount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "all" {
			return fmt.Errorf("invalid missing count %q", s)
		}
		*m = MissingCount{All: true}
		return nil
	}
	*m = MissingCount{}
	return json.Unmarshal(data, &m.Count)
}

// StepFinding is an abnormal day-over-day move in one column
type StepFinding struct {
	Column    string    `json:"column"`
	FirstDate time.Time `json:"first_date"`
	MaxChange float64   `json:"max_change"`
}

// InstrumentResult holds the findings for one instrument
type InstrumentResult struct {
	Code           string                  `json:"code"`
	MissingColumns []string                `json:"missing_columns,omitempty"`
	MissingData    map[string]MissingCount `json:"missing_data,omitempty"`
	LargeSteps     []StepFinding           `json:"large_steps,omitempty"`
	MissingFactor  string                  `json:"missing_factor,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

// HasFindings reports whether anything was flagged
func (r InstrumentResult) HasFindings() bool {
	return len(r.MissingColumns) > 0 || len(r.MissingData) > 0 || len(r.LargeSteps) > 0 ||
		r.MissingFactor != "" || r.Error != ""
}

// HealthReport aggregates instrument results by category
// ⭐ SSOT: health check 결과 집계
type HealthReport struct {
	StartedAt      time.Time                          `json:"started_at"`
	FinishedAt     time.Time                          `json:"finished_at"`
	Checked        int                                `json:"checked"`
	MissingData    map[string]map[string]MissingCount `json:"missing_data"`
	LargeSteps     map[string][]StepFinding           `json:"large_steps"`
	MissingColumns map[string][]string                `json:"missing_columns"`
	MissingFactor  map[string]string                  `json:"missing_factor"`
	Errors         map[string]string                  `json:"errors"`
}

// NewHealthReport creates an empty report
func NewHealthReport() *HealthReport {
	return &HealthReport{
		MissingData:    make(map[string]map[string]MissingCount),
		LargeSteps:     make(map[string][]StepFinding),
		MissingColumns: make(map[string][]string),
		MissingFactor:  make(map[string]string),
		Errors:         make(map[string]string),
	}
}

// Add merges one instrument result into the report
func (r *HealthReport) Add(res InstrumentResult) {
	r.Checked++
	if len(res.MissingData) > 0 {
		r.MissingData[res.Code] = res.MissingData
	}
	if len(res.LargeSteps) > 0 {
		r.LargeSteps[res.Code] = res.LargeSteps
	}
	if len(res.MissingColumns) > 0 {
		r.MissingColumns[res.Code] = res.MissingColumns
	}
	if res.MissingFactor != "" {
		r.MissingFactor[res.Code] = res.MissingFactor
	}
	if res.Error != "" {
		r.Errors[res.Code] = res.Error
	}
}

// Counts returns the number of flagged instruments per category
func (r *HealthReport) Counts() map[string]int {
	return map[string]int{
		CategoryMissingData:    len(r.MissingData),
		CategoryLargeSteps:     len(r.LargeSteps),
		CategoryMissingColumns: len(r.MissingColumns),
		CategoryMissingFactor:  len(r.MissingFactor),
		CategoryErrors:         len(r.Errors),
	}
}

// Clean reports whether no category has findings
func (r *HealthReport) Clean() bool {
	for _, n := range r.Counts() {
		if n > 0 {
			return false
		}
	}
	return true
}

// SortedCodes returns the keys of a category map in order
func SortedCodes[V any](m map[string]V) []string {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
