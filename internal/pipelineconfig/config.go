package pipelineconfig

import (
	"time"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/internal/s0_data/collector"
	"github.com/wonny/aegis-ingest/internal/s0_data/extend"
	"github.com/wonny/aegis-ingest/internal/s0_data/health"
)

// Config는 수집 파이프라인 단계별 설정 (값으로 전달, 변경 금지)
type Config struct {
	Meta   Meta             `yaml:"meta" json:"meta"`
	Fetch  Fetch            `yaml:"fetch" json:"fetch"`
	Update collector.Config `yaml:"update" json:"update"`
	Extend extend.Config    `yaml:"extend" json:"extend"`
	Health health.Config    `yaml:"health" json:"health"`
}

// Meta selects the interval/region strategy
type Meta struct {
	Interval string `yaml:"interval" json:"interval"` // 1d
	Region   string `yaml:"region" json:"region"`     // cn
}

// Fetch holds provider request settings
type Fetch struct {
	Retries    int           `yaml:"retries" json:"retries"`         // attempts per request
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"` // fixed pause between attempts
}

// Default returns the built-in settings for a host with the given worker count
func Default(workers int) Config {
	update := collector.DefaultConfig()
	update.Workers = workers

	h := health.DefaultConfig()
	h.Parallelism = workers

	return Config{
		Meta:   Meta{Interval: string(contracts.Interval1d), Region: string(contracts.RegionCN)},
		Fetch:  Fetch{Retries: 5, RetryDelay: time.Second},
		Update: update,
		Extend: extend.Config{RequireBoundary: false},
		Health: h,
	}
}

// Strategy resolves the interval/region pair once
func (c Config) Strategy() (contracts.Strategy, error) {
	interval, err := contracts.ParseInterval(c.Meta.Interval)
	if err != nil {
		return contracts.Strategy{}, err
	}
	region, err := contracts.ParseRegion(c.Meta.Region)
	if err != nil {
		return contracts.Strategy{}, err
	}
	return contracts.ResolveStrategy(interval, region)
}
