package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/logger"
	"github.com/wonny/aegis-ingest/pkg/redis"
)

// TradeDateSource is the provider call behind RemoteProvider
type TradeDateSource interface {
	FetchTradeDates(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// RemoteProvider serves trading days from the provider, cached in redis
// ⭐ SSOT: 거래일 캘린더 (원격 + 캐시)
type RemoteProvider struct {
	source TradeDateSource
	cache  *redis.Cache
	region contracts.Region
	logger *logger.Logger
}

// NewRemoteProvider creates a provider for one region; cache may be nil
func NewRemoteProvider(source TradeDateSource, cache *redis.Cache, region contracts.Region, log *logger.Logger) *RemoteProvider {
	return &RemoteProvider{
		source: source,
		cache:  cache,
		region: region,
		logger: log.Module("calendar"),
	}
}

// Calendar returns the trading days in [start, end]
func (p *RemoteProvider) Calendar(ctx context.Context, region contracts.Region, start, end time.Time) ([]time.Time, error) {
	if region != p.region {
		return nil, fmt.Errorf("calendar for region %s not served (have %s)", region, p.region)
	}

	key := redis.CalendarKey(string(region), start.Format(contracts.DateLayout), end.Format(contracts.DateLayout))
	if p.cache != nil {
		var cached []time.Time
		found, err := p.cache.Get(ctx, key, &cached)
		if err != nil {
			p.logger.WithError(err).Warn("calendar cache read failed")
		} else if found {
			return cached, nil
		}
	}

	days, err := p.source.FetchTradeDates(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch trade dates: %w", err)
	}
	days = normalize(days)

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, days, redis.TTLDaily); err != nil {
			p.logger.WithError(err).Warn("calendar cache write failed")
		}
	}

	p.logger.WithFields(map[string]interface{}{
		"region": region,
		"days":   len(days),
	}).Debug("calendar fetched")
	return days, nil
}

// FileProvider serves the calendar already committed to an archive
type FileProvider struct {
	store  contracts.CalendarStore
	region contracts.Region
}

// NewFileProvider creates a provider over an archive calendar
func NewFileProvider(store contracts.CalendarStore, region contracts.Region) *FileProvider {
	return &FileProvider{store: store, region: region}
}

// Calendar returns archive days in [start, end]; a zero bound is open
func (p *FileProvider) Calendar(ctx context.Context, region contracts.Region, start, end time.Time) ([]time.Time, error) {
	if region != p.region {
		return nil, fmt.Errorf("calendar for region %s not served (have %s)", region, p.region)
	}
	days, err := p.store.Calendar(ctx)
	if err != nil {
		return nil, fmt.Errorf("read archive calendar: %w", err)
	}
	return Window(normalize(days), start, end), nil
}

// Window keeps the sorted days inside [start, end]; a zero bound is open
func Window(days []time.Time, start, end time.Time) []time.Time {
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		if !start.IsZero() && d.Before(contracts.Day(start)) {
			continue
		}
		if !end.IsZero() && d.After(contracts.Day(end)) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func normalize(days []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(days))
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		d = contracts.Day(d)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
