package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/wonny/aegis-ingest/internal/archive"
	"github.com/wonny/aegis-ingest/internal/calendar"
	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/internal/external/baostock"
	"github.com/wonny/aegis-ingest/internal/pipelineconfig"
	"github.com/wonny/aegis-ingest/internal/runs"
	"github.com/wonny/aegis-ingest/internal/s0_data/collector"
	"github.com/wonny/aegis-ingest/internal/s0_data/health"
	"github.com/wonny/aegis-ingest/internal/s1_universe"
	"github.com/wonny/aegis-ingest/pkg/config"
	"github.com/wonny/aegis-ingest/pkg/httputil"
	"github.com/wonny/aegis-ingest/pkg/logger"
	"github.com/wonny/aegis-ingest/pkg/metrics"
	"github.com/wonny/aegis-ingest/pkg/redis"
)

// app holds the process-wide dependencies shared by every command
type app struct {
	cfg      *config.Config
	pipeline pipelineconfig.Config
	strategy contracts.Strategy
	log      *logger.Logger
	metrics  *metrics.Metrics
	redis    *redis.Client
	cache    *redis.Cache
	runs     *runs.Store
	dir      string
}

// overrides are CLI flags layered over the pipeline file
type overrides struct {
	dir          string
	workers      int
	strictSplice bool
}

// newApp loads config, then builds the pipeline settings top-down:
// defaults ← YAML file ← CLI flags
func newApp(o overrides) (*app, error) {
	// 1. 환경 설정
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg)

	// 2. 파이프라인 설정
	path := pipelineFile
	if path == "" {
		path = cfg.PipelineConfig
	}
	pipeline, err := pipelineconfig.Load(path, pipelineconfig.Default(cfg.MaxWorkers))
	if err != nil {
		return nil, fmt.Errorf("load pipeline config: %w", err)
	}
	if o.workers > 0 {
		pipeline.Update.Workers = o.workers
		pipeline.Health.Parallelism = o.workers
	}
	if o.strictSplice {
		pipeline.Extend.RequireBoundary = true
	}
	if err := pipelineconfig.Validate(pipeline); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	strategy, err := pipeline.Strategy()
	if err != nil {
		return nil, fmt.Errorf("resolve strategy: %w", err)
	}

	// 3. Redis (비활성화 시 no-op)
	rc, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		rc = redis.Disabled()
	}
	cache := redis.NewCache(rc, "ingest")

	dir := cfg.Archive.Dir
	if o.dir != "" {
		dir = o.dir
	}

	hash, _ := pipelineconfig.Hash(pipeline)
	log.WithFields(map[string]interface{}{
		"env":         cfg.Env,
		"dir":         dir,
		"backend":     cfg.Archive.Backend,
		"workers":     pipeline.Update.Workers,
		"config_hash": hash,
	}).Debug("Configuration loaded")

	return &app{
		cfg:      cfg,
		pipeline: pipeline,
		strategy: strategy,
		log:      log,
		metrics:  metrics.New(),
		redis:    rc,
		cache:    cache,
		runs:     runs.NewStore(cache, dir, log),
		dir:      dir,
	}, nil
}

func (a *app) Close() {
	a.redis.Close()
}

// openArchive opens the configured backend rooted at the archive dir
func (a *app) openArchive(ctx context.Context) (contracts.Archive, error) {
	return archive.Open(ctx, a.cfg, a.dir, a.log)
}

// providerClient builds the bar provider client. The HTTP layer only rate
// limits; the provider client owns retries and the session.
func (a *app) providerClient() *baostock.Client {
	hc := httputil.New(a.log, a.cfg.Provider.Timeout).
		DisableRetry().
		WithLocalLimit(a.cfg.Provider.RateLimit)
	if a.redis.Enabled() {
		hc.WithRateLimiter(redis.NewRateLimiter(a.redis, "ingest"), redis.ProviderRateLimit(a.cfg.Provider.RateLimit))
	}
	return baostock.NewClient(a.cfg.Provider, hc, a.log,
		baostock.WithRetries(a.pipeline.Fetch.Retries, a.pipeline.Fetch.RetryDelay),
		baostock.WithStrategy(a.strategy),
		baostock.WithMetrics(a.metrics),
	)
}

// bootstrapFunc seeds a missing archive from BOOTSTRAP_URL; nil when unset.
// The postgres backend extracts the snapshot to a temp dir and imports it.
func (a *app) bootstrapFunc(store contracts.Archive) func(ctx context.Context) error {
	url := a.cfg.Archive.BootstrapURL
	if url == "" {
		return nil
	}
	hc := httputil.New(a.log, 0)
	return func(ctx context.Context) error {
		if a.cfg.Archive.Backend != "postgres" {
			return archive.Bootstrap(ctx, hc, url, a.dir, a.log)
		}

		tmp, err := os.MkdirTemp("", "ingest-bootstrap-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		if err := archive.Bootstrap(ctx, hc, url, tmp, a.log); err != nil {
			return err
		}
		return archive.Import(ctx, archive.NewParquetStore(tmp, a.log), store, a.strategy.Indices, a.log)
	}
}

// indexRefresher returns nil when INDEX_SOURCE_URL is unset
func (a *app) indexRefresher(store contracts.IndexStore) collector.IndexRefresher {
	if a.cfg.IndexSourceURL == "" {
		return nil
	}
	hc := httputil.New(a.log, 0)
	source := s1_universe.NewHTMLSource(hc, a.cfg.IndexSourceURL, a.log)
	return s1_universe.NewRefresher(source, store, a.log)
}

// newCollector wires the update pipeline against store
func (a *app) newCollector(store contracts.Archive) *collector.Collector {
	client := a.providerClient()
	deps := collector.Deps{
		Fetcher:   client,
		Lister:    client,
		Calendar:  calendar.NewRemoteProvider(client, a.cache, a.strategy.Region, a.log),
		Archive:   store,
		Bootstrap: a.bootstrapFunc(store),
		Indices:   a.indexRefresher(store),
		Runs:      a.runs,
		Strategy:  a.strategy,
		Extend:    a.pipeline.Extend,
		Logger:    a.log,
		Metrics:   a.metrics,
	}
	if a.cfg.Archive.Backend != "postgres" {
		deps.ReportDir = a.dir
	}
	return collector.NewCollector(deps, a.pipeline.Update)
}

// newChecker wires the health checker against store
func (a *app) newChecker(store contracts.ArchiveReader) *health.Checker {
	return health.NewChecker(store, a.pipeline.Health, a.log, a.metrics)
}
