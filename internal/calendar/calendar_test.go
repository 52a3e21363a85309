package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-ingest/internal/archive"
	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/logger"
	"github.com/wonny/aegis-ingest/pkg/redis"
)

func day(s string) time.Time {
	d, err := contracts.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeSource struct {
	calls int
	days  []time.Time
	err   error
}

func (f *fakeSource) FetchTradeDates(context.Context, time.Time, time.Time) ([]time.Time, error) {
	f.calls++
	return f.days, f.err
}

func TestRemoteProvider_SortsAndDedupes(t *testing.T) {
	src := &fakeSource{days: []time.Time{day("2024-01-03"), day("2024-01-02"), day("2024-01-03")}}
	cache := redis.NewCache(redis.Disabled(), "ingest")
	p := NewRemoteProvider(src, cache, contracts.RegionCN, logger.Nop())

	days, err := p.Calendar(context.Background(), contracts.RegionCN, day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2024-01-02"), day("2024-01-03")}, days)

	// disabled cache never serves, so the source is asked again
	_, err = p.Calendar(context.Background(), contracts.RegionCN, day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestRemoteProvider_Errors(t *testing.T) {
	src := &fakeSource{err: errors.New("provider down")}
	p := NewRemoteProvider(src, nil, contracts.RegionCN, logger.Nop())

	_, err := p.Calendar(context.Background(), contracts.RegionCN, day("2024-01-01"), day("2024-01-05"))
	assert.ErrorContains(t, err, "provider down")

	_, err = p.Calendar(context.Background(), contracts.RegionUS, day("2024-01-01"), day("2024-01-05"))
	assert.Error(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestFileProvider(t *testing.T) {
	store := archive.NewParquetStore(t.TempDir(), logger.Nop())
	require.NoError(t, store.WriteCalendar(context.Background(), []time.Time{
		day("2024-01-02"), day("2024-01-03"), day("2024-01-04"), day("2024-01-05"),
	}))
	p := NewFileProvider(store, contracts.RegionCN)

	days, err := p.Calendar(context.Background(), contracts.RegionCN, day("2024-01-03"), day("2024-01-04"))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2024-01-03"), day("2024-01-04")}, days)

	all, err := p.Calendar(context.Background(), contracts.RegionCN, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestWindow(t *testing.T) {
	days := []time.Time{day("2024-01-02"), day("2024-01-03"), day("2024-01-04")}
	assert.Equal(t, days[1:], Window(days, day("2024-01-03"), time.Time{}))
	assert.Equal(t, days[:1], Window(days, time.Time{}, day("2024-01-02")))
	assert.Empty(t, Window(days, day("2024-02-01"), time.Time{}))
}
