package health

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-ingest/internal/archive"
	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/logger"
	"github.com/wonny/aegis-ingest/pkg/metrics"
)

func series(code string, closes ...float64) []contracts.NormalizedBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]contracts.NormalizedBar, len(closes))
	for i, c := range closes {
		bars[i] = contracts.NormalizedBar{
			Code: code, Date: start.AddDate(0, 0, i),
			Open: c, High: c, Low: c, Close: c,
			Volume: 1000, Amount: c * 1000, Change: math.NaN(), Factor: 1,
		}
	}
	return bars
}

func TestCheckInstrument_Clean(t *testing.T) {
	store := archive.NewMemoryStore()
	store.Seed("SH600000", series("SH600000", 10, 10.5, 11, 10.8))

	res := CheckInstrument(context.Background(), store, "SH600000", DefaultConfig())
	assert.False(t, res.HasFindings(), "%+v", res)
}

func TestCheckInstrument_LargeStep(t *testing.T) {
	store := archive.NewMemoryStore()
	bars := series("SH600000", 10, 10, 16, 16)
	for i := range bars {
		bars[i].Open, bars[i].High, bars[i].Low = 10, 10, 10
	}
	store.Seed("SH600000", bars)

	res := CheckInstrument(context.Background(), store, "SH600000", DefaultConfig())
	require.Len(t, res.LargeSteps, 1)
	step := res.LargeSteps[0]
	assert.Equal(t, contracts.ColClose, step.Column)
	assert.Equal(t, bars[2].Date, step.FirstDate)
	assert.InDelta(t, 0.6, step.MaxChange, 1e-9)
}

func TestCheckInstrument_VolumeThreshold(t *testing.T) {
	store := archive.NewMemoryStore()
	bars := series("SH600000", 10, 10, 10)
	bars[1].Volume = 3500 // +250%
	bars[2].Volume = 20000
	store.Seed("SH600000", bars)

	res := CheckInstrument(context.Background(), store, "SH600000", DefaultConfig())
	require.Len(t, res.LargeSteps, 1)
	assert.Equal(t, contracts.ColVolume, res.LargeSteps[0].Column)
	assert.Equal(t, bars[2].Date, res.LargeSteps[0].FirstDate)
}

func TestCheckInstrument_NaNNeverTriggersStep(t *testing.T) {
	store := archive.NewMemoryStore()
	bars := series("SH600000", 10, 10, 10)
	bars[1] = contracts.NaNBar("SH600000", bars[1].Date)
	bars[2].Close = 14
	store.Seed("SH600000", bars)

	cfg := DefaultConfig()
	cfg.MissingDataNum = 1
	res := CheckInstrument(context.Background(), store, "SH600000", cfg)
	assert.Empty(t, res.LargeSteps, "10 → NaN → 14 has no defined difference")
	assert.Empty(t, res.MissingData, "one NaN per column is tolerated")
}

func TestCheckInstrument_MissingData(t *testing.T) {
	store := archive.NewMemoryStore()
	bars := series("SH600000", 10, 10, 10)
	bars[0].Factor = math.NaN()
	store.Seed("SH600000", bars)

	res := CheckInstrument(context.Background(), store, "SH600000", DefaultConfig())
	assert.Equal(t, map[string]contracts.MissingCount{contracts.ColFactor: {Count: 1}}, res.MissingData)
	assert.Empty(t, res.MissingFactor)
}

func TestCheckInstrument_Factor(t *testing.T) {
	t.Run("all nan", func(t *testing.T) {
		store := archive.NewMemoryStore()
		bars := series("SH600000", 10, 10)
		for i := range bars {
			bars[i].Factor = math.NaN()
		}
		store.Seed("SH600000", bars)
		res := CheckInstrument(context.Background(), store, "SH600000", DefaultConfig())
		assert.Equal(t, contracts.FactorAllNaN, res.MissingFactor)
	})

	t.Run("column missing", func(t *testing.T) {
		store := archive.NewMemoryStore()
		store.Seed("SH600000", series("SH600000", 10, 10))
		store.DropColumn("SH600000", contracts.ColFactor)
		res := CheckInstrument(context.Background(), store, "SH600000", DefaultConfig())
		assert.Equal(t, contracts.FactorColumnMissing, res.MissingFactor)
		assert.Empty(t, res.MissingColumns, "factor is not an OHLCV column")
	})
}

func TestCheckInstrument_EmptySeries(t *testing.T) {
	store := archive.NewMemoryStore()
	store.Seed("SH600000", nil)

	res := CheckInstrument(context.Background(), store, "SH600000", DefaultConfig())
	require.Len(t, res.MissingData, len(checkedColumns))
	assert.Equal(t, "all", res.MissingData[contracts.ColClose].String())
}

type panickyReader struct{ *archive.MemoryStore }

func (panickyReader) Rows(context.Context, string, []string) (*contracts.Frame, error) {
	panic("corrupt block")
}

type failingReader struct {
	*archive.MemoryStore
	failFor string
}

func (r failingReader) Rows(ctx context.Context, code string, cols []string) (*contracts.Frame, error) {
	if code == r.failFor {
		return nil, errors.New("read features: input/output error")
	}
	return r.MemoryStore.Rows(ctx, code, cols)
}

func TestCheckInstrument_NoRowsIsMissingData(t *testing.T) {
	// 목록에는 있지만 행이 없는 종목: 실제 store는 ErrNotFound 반환
	store := archive.NewMemoryStore()

	res := CheckInstrument(context.Background(), store, "SZ000001", DefaultConfig())
	assert.Empty(t, res.Error)
	require.Len(t, res.MissingData, len(checkedColumns))
	for _, col := range checkedColumns {
		assert.True(t, res.MissingData[col].All, col)
	}
}

func TestCheckInstrument_CapturesErrors(t *testing.T) {
	store := archive.NewMemoryStore()

	res := CheckInstrument(context.Background(), failingReader{store, "SZ000001"}, "SZ000001", DefaultConfig())
	assert.Equal(t, "read features: input/output error", res.Error)
	assert.Empty(t, res.MissingData)

	res = CheckInstrument(context.Background(), panickyReader{store}, "SZ000001", DefaultConfig())
	assert.Equal(t, "panic: corrupt block", res.Error)
}

func TestChecker_MissingVolumeIsolated(t *testing.T) {
	store := archive.NewMemoryStore()
	for _, code := range []string{"SH600000", "SH600001", "SZ000001", "SZ000002"} {
		store.Seed(code, series(code, 10, 10.1, 10.2))
	}
	store.DropColumn("SH600001", contracts.ColVolume)

	m := metrics.New()
	checker := NewChecker(store, Config{LargeStepPrice: 0.5, LargeStepVolume: 3, Parallelism: 3}, logger.Nop(), m)
	codes, err := checker.Codes(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, codes, 4)

	report := checker.Run(context.Background(), codes)
	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, map[string][]string{"SH600001": {contracts.ColVolume}}, report.MissingColumns)
	assert.Empty(t, report.LargeSteps)
	assert.Empty(t, report.Errors)
	assert.False(t, report.Clean())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthFindings.WithLabelValues(contracts.CategoryMissingColumns)))
}

func TestChecker_CodesLimit(t *testing.T) {
	store := archive.NewMemoryStore()
	for _, code := range []string{"SH600000", "SH600001", "SZ000001"} {
		store.Seed(code, series(code, 10))
	}
	checker := NewChecker(store, DefaultConfig(), logger.Nop(), nil)

	codes, err := checker.Codes(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"SH600000", "SH600001"}, codes)
}

func TestChecker_OneErrorDoesNotFailRun(t *testing.T) {
	store := archive.NewMemoryStore()
	store.Seed("SH600000", series("SH600000", 10, 10))

	report := NewChecker(failingReader{store, "SZ999999"}, DefaultConfig(), logger.Nop(), nil).
		Run(context.Background(), []string{"SH600000", "SZ999999"})
	assert.Equal(t, 2, report.Checked)
	assert.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors, "SZ999999")
}

func TestRender(t *testing.T) {
	t.Run("clean", func(t *testing.T) {
		var buf bytes.Buffer
		r := contracts.NewHealthReport()
		r.Checked = 3
		Render(&buf, r)
		assert.Contains(t, buf.String(), "3 instruments checked")
		assert.Contains(t, buf.String(), "All checks passed")
	})

	t.Run("findings", func(t *testing.T) {
		var buf bytes.Buffer
		r := contracts.NewHealthReport()
		r.Add(contracts.InstrumentResult{Code: "SH600001", MissingColumns: []string{"volume"}})
		r.Add(contracts.InstrumentResult{
			Code:        "SH600000",
			MissingData: map[string]contracts.MissingCount{"close": {All: true}},
			LargeSteps:  []contracts.StepFinding{{Column: "close", FirstDate: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), MaxChange: 0.6}},
		})
		r.Add(contracts.InstrumentResult{Code: "SZ000001", Error: errors.New("boom").Error()})
		Render(&buf, r)

		out := buf.String()
		assert.NotContains(t, out, "All checks passed")
		assert.Contains(t, out, "missing required columns")
		assert.Contains(t, out, "2024-01-03")
		assert.Contains(t, out, "0.600000")
		assert.Contains(t, out, "all")
		assert.Contains(t, out, "boom")
	})
}
