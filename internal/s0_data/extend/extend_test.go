package extend

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-ingest/internal/archive"
	"github.com/wonny/aegis-ingest/internal/contracts"
)

func bar(date string, close float64) contracts.NormalizedBar {
	d, err := contracts.ParseDay(date)
	if err != nil {
		panic(err)
	}
	return contracts.NormalizedBar{
		Code: "SH600000", Date: d,
		Open: close, High: close, Low: close, Close: close,
		Volume: 1000, Amount: close * 1000, Change: 0, Factor: 1,
	}
}

func TestExtend_SpliceRescalesToArchiveLevel(t *testing.T) {
	store := archive.NewMemoryStore()
	store.Seed("SH600000", []contracts.NormalizedBar{bar("2023-06-29", 14.8), bar("2023-06-30", 15.0)})

	fresh := []contracts.NormalizedBar{bar("2023-06-30", 30.0), bar("2023-07-01", 31.0), bar("2023-07-02", 32.0)}

	out, splice, err := New(store, Config{}).Extend(context.Background(), "SH600000", fresh)
	require.NoError(t, err)

	assert.True(t, splice.Scaled)
	assert.InDelta(t, 0.5, splice.K[contracts.ColClose], 1e-12)
	assert.InDelta(t, 1.0, splice.K[contracts.ColVolume], 1e-12)

	require.Len(t, out, 2, "the boundary row is not appended")
	assert.Equal(t, fresh[1].Date, out[0].Date)
	assert.InDelta(t, 15.5, out[0].Close, 1e-9)
	assert.InDelta(t, 16.0, out[1].Close, 1e-9)
	assert.InDelta(t, 15.5, out[0].Open, 1e-9)

	// fresh is not mutated
	assert.Equal(t, 31.0, fresh[1].Close)
}

func TestExtend_ContinuityAtBoundary(t *testing.T) {
	store := archive.NewMemoryStore()
	store.Seed("SH600000", []contracts.NormalizedBar{bar("2023-06-30", 12.0)})

	fresh := []contracts.NormalizedBar{bar("2023-06-30", 48.0), bar("2023-07-03", 48.0)}
	out, splice, err := New(store, Config{}).Extend(context.Background(), "SH600000", fresh)
	require.NoError(t, err)
	require.Len(t, out, 1)

	// unchanged price on the new basis stays level with the archive
	assert.InDelta(t, 12.0, out[0].Close, 1e-9)
	assert.InDelta(t, 0.25, splice.K[contracts.ColClose], 1e-12)
}

func TestExtend_NotArchived(t *testing.T) {
	fresh := []contracts.NormalizedBar{bar("2023-06-30", 30.0), bar("2023-07-01", 31.0)}

	out, splice, err := New(archive.NewMemoryStore(), Config{RequireBoundary: true}).
		Extend(context.Background(), "SH600000", fresh)
	require.NoError(t, err)
	assert.False(t, splice.Archived)
	assert.Equal(t, fresh, out)
}

func TestExtend_BoundaryMissing(t *testing.T) {
	store := archive.NewMemoryStore()
	store.Seed("SH600000", []contracts.NormalizedBar{bar("2023-06-30", 15.0)})
	fresh := []contracts.NormalizedBar{bar("2023-07-03", 31.0), bar("2023-07-04", 32.0)}

	t.Run("lenient appends unscaled", func(t *testing.T) {
		out, splice, err := New(store, Config{}).Extend(context.Background(), "SH600000", fresh)
		require.NoError(t, err)
		assert.False(t, splice.Scaled)
		assert.Equal(t, fresh, out)
	})

	t.Run("strict refuses", func(t *testing.T) {
		out, _, err := New(store, Config{RequireBoundary: true}).Extend(context.Background(), "SH600000", fresh)
		assert.True(t, errors.Is(err, ErrBoundaryMissing))
		assert.Nil(t, out)
	})
}

func TestExtend_BoundaryMissingNeverRewritesHistory(t *testing.T) {
	store := archive.NewMemoryStore()
	store.Seed("SH600000", []contracts.NormalizedBar{
		bar("2023-06-01", 15.0), bar("2023-06-02", 15.1), bar("2023-06-30", 15.0),
	})
	// backfill window: 06-30 row absent, earlier days on another price basis
	fresh := []contracts.NormalizedBar{bar("2023-06-01", 30.0), bar("2023-06-02", 30.2), bar("2023-07-03", 31.0)}

	out, splice, err := New(store, Config{}).Extend(context.Background(), "SH600000", fresh)
	require.NoError(t, err)
	assert.False(t, splice.Scaled)
	require.Len(t, out, 1)
	assert.Equal(t, "2023-07-03", out[0].Date.Format(contracts.DateLayout))
	assert.Equal(t, 31.0, out[0].Close)

	require.NoError(t, store.Append(context.Background(), "SH600000", out))
	frame, err := store.Rows(context.Background(), "SH600000", []string{contracts.ColClose})
	require.NoError(t, err)
	closes, _ := frame.Column(contracts.ColClose)
	assert.Equal(t, []float64{15.0, 15.1, 15.0, 31.0}, closes)
}

func TestExtend_IdempotentWhenWindowCovered(t *testing.T) {
	store := archive.NewMemoryStore()
	store.Seed("SH600000", []contracts.NormalizedBar{bar("2023-06-29", 14.0), bar("2023-06-30", 15.0)})

	fresh := []contracts.NormalizedBar{bar("2023-06-29", 14.0), bar("2023-06-30", 15.0)}
	out, _, err := New(store, Config{}).Extend(context.Background(), "SH600000", fresh)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestExtend_DegenerateBoundaryValues(t *testing.T) {
	store := archive.NewMemoryStore()
	archived := bar("2023-06-30", 15.0)
	archived.Factor = math.NaN()
	store.Seed("SH600000", []contracts.NormalizedBar{archived})

	boundary := bar("2023-06-30", 30.0)
	boundary.Volume = 0
	next := bar("2023-07-03", 31.0)
	next.Factor = 2

	out, splice, err := New(store, Config{}).Extend(context.Background(), "SH600000", []contracts.NormalizedBar{boundary, next})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1.0, splice.K[contracts.ColFactor], "NaN archived value")
	assert.Equal(t, 1.0, splice.K[contracts.ColVolume], "zero denominator")
	assert.Equal(t, 2.0, out[0].Factor)
	assert.Equal(t, 1000.0, out[0].Volume)
}

func TestRatio(t *testing.T) {
	tests := []struct {
		name            string
		archived, fresh float64
		want            float64
	}{
		{"normal", 15, 30, 0.5},
		{"zero denominator", 15, 0, 1},
		{"nan denominator", 15, math.NaN(), 1},
		{"nan archived", math.NaN(), 30, 1},
		{"inf", math.Inf(1), 30, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ratio(tt.archived, tt.fresh))
		})
	}
}

type failingReader struct{}

func (failingReader) LatestDate(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("disk gone")
}

func (failingReader) Rows(context.Context, string, []string) (*contracts.Frame, error) {
	return nil, errors.New("disk gone")
}

func (failingReader) Instruments(context.Context) ([]contracts.Instrument, error) {
	return nil, errors.New("disk gone")
}

func (failingReader) CalendarEnd(context.Context) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("disk gone")
}

func TestExtend_ReaderError(t *testing.T) {
	_, _, err := New(failingReader{}, Config{}).Extend(context.Background(), "SH600000", []contracts.NormalizedBar{bar("2023-06-30", 1)})
	assert.Error(t, err)
}
