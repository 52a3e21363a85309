package runs

import (
	"context"
	"sync"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/internal/s0_data/collector"
	"github.com/wonny/aegis-ingest/pkg/logger"
	"github.com/wonny/aegis-ingest/pkg/redis"
)

// Run kinds in the redis cache
const (
	KindUpdate = "update"
	KindHealth = "health"
)

// Store keeps the latest update and health reports.
// Lookup order: process memory, redis, then the archive's .lastrun files.
// ⭐ SSOT: 최근 실행 결과 조회는 여기서만
type Store struct {
	cache  *redis.Cache
	dir    string // archive dir for .lastrun files; "" skips the file fallback
	logger *logger.Logger

	mu     sync.RWMutex
	update *contracts.UpdateReport
	health *contracts.HealthReport
}

// NewStore creates a run store; cache may be nil
func NewStore(cache *redis.Cache, dir string, log *logger.Logger) *Store {
	return &Store{
		cache:  cache,
		dir:    dir,
		logger: log.Module("runs"),
	}
}

// SaveUpdate records an update report
func (s *Store) SaveUpdate(ctx context.Context, report *contracts.UpdateReport) error {
	s.mu.Lock()
	s.update = report
	s.mu.Unlock()
	return s.put(ctx, KindUpdate, report)
}

// SaveHealth records a health report
func (s *Store) SaveHealth(ctx context.Context, report *contracts.HealthReport) error {
	s.mu.Lock()
	s.health = report
	s.mu.Unlock()
	return s.put(ctx, KindHealth, report)
}

func (s *Store) put(ctx context.Context, kind string, v interface{}) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Set(ctx, redis.LatestRunKey(kind), v, 0)
}

// LatestUpdate returns the most recent update report, if any
func (s *Store) LatestUpdate(ctx context.Context) (*contracts.UpdateReport, bool, error) {
	s.mu.RLock()
	cur := s.update
	s.mu.RUnlock()
	if cur != nil {
		return cur, true, nil
	}

	var cached contracts.UpdateReport
	if ok := s.get(ctx, KindUpdate, &cached); ok {
		return &cached, true, nil
	}

	if s.dir == "" {
		return nil, false, nil
	}
	// 실패 기록이 남아있으면 그게 최신
	for _, name := range []string{collector.LastRunFailedFile, collector.LastRunSuccessFile} {
		report, ok, err := collector.ReadLastRun(s.dir, name)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return report, true, nil
		}
	}
	return nil, false, nil
}

// LatestHealth returns the most recent health report, if any
func (s *Store) LatestHealth(ctx context.Context) (*contracts.HealthReport, bool, error) {
	s.mu.RLock()
	cur := s.health
	s.mu.RUnlock()
	if cur != nil {
		return cur, true, nil
	}

	var cached contracts.HealthReport
	if ok := s.get(ctx, KindHealth, &cached); ok {
		return &cached, true, nil
	}
	return nil, false, nil
}

// get reads the cache; errors degrade to a miss
func (s *Store) get(ctx context.Context, kind string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, redis.LatestRunKey(kind), dest)
	if err != nil {
		s.logger.WithError(err).WithField("kind", kind).Warn("Run cache read failed")
		return false
	}
	return ok
}
