package runs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/internal/s0_data/collector"
	"github.com/wonny/aegis-ingest/pkg/logger"
	"github.com/wonny/aegis-ingest/pkg/redis"
)

func TestStoreEmpty(t *testing.T) {
	s := NewStore(redis.NewCache(redis.Disabled(), "test"), t.TempDir(), logger.Nop())
	ctx := context.Background()

	_, ok, err := s.LatestUpdate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.LatestHealth(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreKeepsLatestInMemory(t *testing.T) {
	s := NewStore(nil, "", logger.Nop())
	ctx := context.Background()

	require.NoError(t, s.SaveUpdate(ctx, &contracts.UpdateReport{Total: 3, Success: 3}))
	require.NoError(t, s.SaveUpdate(ctx, &contracts.UpdateReport{Total: 4, Failed: 1}))
	update, ok, err := s.LatestUpdate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, update.Total)

	hr := contracts.NewHealthReport()
	hr.Add(contracts.InstrumentResult{Code: "SH600000", MissingFactor: contracts.FactorAllNaN})
	require.NoError(t, s.SaveHealth(ctx, hr))
	health, ok, err := s.LatestHealth(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, contracts.FactorAllNaN, health.MissingFactor["SH600000"])
}

func TestStoreFallsBackToRunFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	start := time.Date(2023, 7, 4, 16, 0, 0, 0, time.UTC)

	require.NoError(t, collector.WriteLastRun(dir, &contracts.UpdateReport{StartedAt: start, Total: 2, Success: 2}))
	s := NewStore(nil, dir, logger.Nop())
	report, ok, err := s.LatestUpdate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, report.Success)

	// a later failed run wins over the older success file
	require.NoError(t, collector.WriteLastRun(dir, &contracts.UpdateReport{StartedAt: start.Add(24 * time.Hour), Total: 2, Success: 1, Failed: 1}))
	report, ok, err = NewStore(nil, dir, logger.Nop()).LatestUpdate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, report.Failed)
}
