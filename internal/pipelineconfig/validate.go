package pipelineconfig

import "fmt"

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
func Validate(cfg Config) error {
	// === Meta ===
	if _, err := cfg.Strategy(); err != nil {
		return ValidationError{"meta", err.Error()}
	}

	// === Fetch ===
	if cfg.Fetch.Retries < 1 {
		return ValidationError{"fetch.retries", "must be >= 1"}
	}
	if cfg.Fetch.RetryDelay < 0 {
		return ValidationError{"fetch.retry_delay", "must be >= 0"}
	}

	// === Update ===
	if cfg.Update.Workers < 1 {
		return ValidationError{"update.workers", "must be >= 1"}
	}
	if cfg.Update.MaxCollectorCount < 1 {
		return ValidationError{"update.max_collector_count", "must be >= 1"}
	}
	if cfg.Update.CheckDataLength < 0 {
		return ValidationError{"update.check_data_length", "must be >= 0"}
	}
	if cfg.Update.Delay < 0 {
		return ValidationError{"update.delay", "must be >= 0"}
	}

	// === Health ===
	if cfg.Health.MissingDataNum < 0 {
		return ValidationError{"health.missing_data_num", "must be >= 0"}
	}
	if cfg.Health.LargeStepPrice <= 0 {
		return ValidationError{"health.large_step_threshold_price", "must be > 0"}
	}
	if cfg.Health.LargeStepVolume <= 0 {
		return ValidationError{"health.large_step_threshold_volume", "must be > 0"}
	}
	if cfg.Health.Parallelism < 1 {
		return ValidationError{"health.parallelism", "must be >= 1"}
	}

	return nil
}
