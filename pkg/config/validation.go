package config

import (
	"fmt"

	"github.com/quarryfs/quarry/pkg/block"
)

// Validate checks the configuration for values that cannot work.
// It assumes defaults have already been applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}
	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return err
	}
	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative, got %s", cfg.ShutdownTimeout)
	}
	if err := validateCache(&cfg.Cache); err != nil {
		return err
	}
	if err := validateQuota(&cfg.Quota); err != nil {
		return err
	}
	if cfg.Index.Path == "" {
		return fmt.Errorf("index.path is required")
	}
	if err := validateOrigin(&cfg.Origin); err != nil {
		return err
	}
	if err := validateAPI(cfg); err != nil {
		return err
	}
	if err := validateCull(&cfg.Cull); err != nil {
		return err
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	switch cfg.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level must be one of DEBUG, INFO, WARN, ERROR, got %q", cfg.Level)
	}

	switch cfg.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Format)
	}

	if cfg.Output == "" {
		return fmt.Errorf("logging.output is required (stdout, stderr, or a file path)")
	}
	return nil
}

func validateTelemetry(cfg *TelemetryConfig) error {
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0.0 and 1.0, got %g", cfg.SampleRate)
	}
	return nil
}

func validateCache(cfg *CacheConfig) error {
	if cfg.Root == "" {
		return fmt.Errorf("cache.root is required")
	}

	size := cfg.BlockSize.Int64()
	if size < block.MinSize || size > block.MaxSize || size&(size-1) != 0 {
		return fmt.Errorf("cache.block_size must be a power of two between 4KiB and 16MiB, got %s", cfg.BlockSize)
	}

	if cfg.Workers < 0 {
		return fmt.Errorf("cache.workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.Readers < 0 {
		return fmt.Errorf("cache.readers must not be negative, got %d", cfg.Readers)
	}
	if cfg.QueueSize < 0 {
		return fmt.Errorf("cache.queue_size must not be negative, got %d", cfg.QueueSize)
	}
	if cfg.MaxOpen < 0 {
		return fmt.Errorf("cache.max_open must not be negative, got %d", cfg.MaxOpen)
	}
	if cfg.MonitorMax < 0 {
		return fmt.Errorf("cache.monitor_max must not be negative, got %d", cfg.MonitorMax)
	}
	return nil
}

func validateQuota(cfg *QuotaConfig) error {
	switch cfg.Mode {
	case "none", "budget", "disk":
	default:
		return fmt.Errorf("quota.mode must be one of none, budget, disk, got %q", cfg.Mode)
	}

	if cfg.BlockRun > 100 || cfg.FileRun > 100 {
		return fmt.Errorf("quota thresholds are percentages and must not exceed 100")
	}
	if cfg.BlockStop > cfg.BlockCull || cfg.BlockCull > cfg.BlockRun {
		return fmt.Errorf("quota block thresholds must satisfy stop <= cull <= run, got %d/%d/%d",
			cfg.BlockStop, cfg.BlockCull, cfg.BlockRun)
	}
	if cfg.FileStop > cfg.FileCull || cfg.FileCull > cfg.FileRun {
		return fmt.Errorf("quota file thresholds must satisfy stop <= cull <= run, got %d/%d/%d",
			cfg.FileStop, cfg.FileCull, cfg.FileRun)
	}
	return nil
}

func validateOrigin(cfg *OriginConfig) error {
	// The bucket is deliberately not required here so that a freshly
	// generated config validates; the daemon refuses to start without
	// one.
	if cfg.Type != "s3" {
		return fmt.Errorf("origin.type must be \"s3\", got %q", cfg.Type)
	}
	if cfg.S3.MaxRetries < 0 {
		return fmt.Errorf("origin.s3.max_retries must not be negative, got %d", cfg.S3.MaxRetries)
	}
	return nil
}

func validateAPI(cfg *Config) error {
	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535, got %d", cfg.API.Port)
	}
	if cfg.API.ReadTimeout < 0 || cfg.API.WriteTimeout < 0 || cfg.API.IdleTimeout < 0 {
		return fmt.Errorf("api timeouts must not be negative")
	}
	return nil
}

func validateCull(cfg *CullConfig) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("cull.interval must be positive, got %s", cfg.Interval)
	}
	if cfg.Batch <= 0 {
		return fmt.Errorf("cull.batch must be positive, got %d", cfg.Batch)
	}
	if cfg.MinAge < 0 {
		return fmt.Errorf("cull.min_age must not be negative, got %s", cfg.MinAge)
	}
	if cfg.MaxIdle < 0 {
		return fmt.Errorf("cull.max_idle must not be negative, got %s", cfg.MaxIdle)
	}
	if cfg.Rate <= 0 {
		return fmt.Errorf("cull.rate must be positive, got %g", cfg.Rate)
	}
	if cfg.Burst < 0 {
		return fmt.Errorf("cull.burst must not be negative, got %d", cfg.Burst)
	}
	return nil
}
