package health

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wonny/aegis-ingest/internal/contracts"
)

// Config holds health check thresholds
type Config struct {
	MissingDataNum  int     `yaml:"missing_data_num"`            // NaN count tolerated per column
	LargeStepPrice  float64 `yaml:"large_step_threshold_price"`  // 0.5 (50%)
	LargeStepVolume float64 `yaml:"large_step_threshold_volume"` // 3.0 (300%)
	Parallelism     int     `yaml:"parallelism"`
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		MissingDataNum:  0,
		LargeStepPrice:  0.5,
		LargeStepVolume: 3.0,
		Parallelism:     1,
	}
}

// checkedColumns are read for every instrument
var checkedColumns = append(append([]string(nil), contracts.RequiredColumns...), contracts.ColFactor)

// CheckInstrument runs every check against one archived instrument.
// Errors and panics are captured in the result, never returned.
// ⭐ SSOT: 종목 단위 건전성 검사
func CheckInstrument(ctx context.Context, reader contracts.ArchiveReader, code string, cfg Config) (res contracts.InstrumentResult) {
	res.Code = code
	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	frame, err := reader.Rows(ctx, code, checkedColumns)
	if err != nil && !errors.Is(err, contracts.ErrNotFound) {
		res.Error = err.Error()
		return res
	}

	// 빈 시계열 (행이 없는 종목 포함): 모든 컬럼 "all"
	if err != nil || frame.Len() == 0 {
		res.MissingData = make(map[string]contracts.MissingCount, len(checkedColumns))
		for _, col := range checkedColumns {
			res.MissingData[col] = contracts.MissingCount{All: true}
		}
		return res
	}

	// 1. 필수 컬럼 (OHLCV)
	for _, col := range contracts.RequiredColumns {
		if !frame.Has(col) {
			res.MissingColumns = append(res.MissingColumns, col)
		}
	}

	// 2. 결측치
	for _, col := range checkedColumns {
		values, ok := frame.Column(col)
		if !ok {
			continue
		}
		if n := countNaN(values); n > cfg.MissingDataNum {
			if res.MissingData == nil {
				res.MissingData = make(map[string]contracts.MissingCount)
			}
			res.MissingData[col] = contracts.MissingCount{Count: n}
		}
	}

	// 3. 급격한 변동
	for _, col := range contracts.RequiredColumns {
		values, ok := frame.Column(col)
		if !ok {
			continue
		}
		threshold := cfg.LargeStepPrice
		if col == contracts.ColVolume {
			threshold = cfg.LargeStepVolume
		}
		if step, found := largeStep(frame, col, values, threshold); found {
			res.LargeSteps = append(res.LargeSteps, step)
		}
	}

	// 4. factor
	if factor, ok := frame.Column(contracts.ColFactor); !ok {
		res.MissingFactor = contracts.FactorColumnMissing
	} else if countNaN(factor) == len(factor) {
		res.MissingFactor = contracts.FactorAllNaN
	}

	return res
}

func countNaN(values []float64) int {
	n := 0
	for _, v := range values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// largeStep finds the first day whose absolute pct change exceeds threshold
// and the largest absolute change of the series. Differences involving NaN
// or a zero base are undefined and never trigger.
func largeStep(frame *contracts.Frame, col string, values []float64, threshold float64) (contracts.StepFinding, bool) {
	step := contracts.StepFinding{Column: col}
	found := false
	for i := 1; i < len(values); i++ {
		prev, cur := values[i-1], values[i]
		if math.IsNaN(prev) || math.IsNaN(cur) || prev == 0 {
			continue
		}
		change := math.Abs(cur/prev - 1)
		if change > step.MaxChange {
			step.MaxChange = change
		}
		if change > threshold && !found {
			step.FirstDate = frame.Dates[i]
			found = true
		}
	}
	return step, found
}
