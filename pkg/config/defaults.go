package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/quarryfs/quarry/internal/bytesize"
	"github.com/quarryfs/quarry/pkg/backing"
	"github.com/quarryfs/quarry/pkg/block"
	"github.com/quarryfs/quarry/pkg/cull"
	"github.com/quarryfs/quarry/pkg/engine"
	"github.com/quarryfs/quarry/pkg/quota"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownDefaults(cfg)
	applyCacheDefaults(&cfg.Cache)
	applyQuotaDefaults(&cfg.Quota)
	applyIndexDefaults(&cfg.Index, cfg.Cache.Root)
	applyOriginDefaults(&cfg.Origin)
	applyAPIDefaults(cfg)
	applyCullDefaults(&cfg.Cull)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets tracing and profiling defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{
			"cpu", "alloc_objects", "alloc_space",
			"inuse_objects", "inuse_space", "goroutines",
		}
	}
}

// applyShutdownDefaults sets the graceful shutdown timeout.
func applyShutdownDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyCacheDefaults sets backing store and engine defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Root == "" {
		cfg.Root = getCacheDir()
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = bytesize.ByteSize(block.DefaultSize)
	}
	if cfg.Workers == 0 {
		cfg.Workers = engine.DefaultWorkers
	}
	if cfg.Readers == 0 {
		cfg.Readers = backing.DefaultReaders
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = backing.DefaultQueueSize
	}
	if cfg.MonitorMax == 0 {
		cfg.MonitorMax = engine.DefaultMonitorMax
	}
}

// applyQuotaDefaults sets the admission oracle defaults.
func applyQuotaDefaults(cfg *QuotaConfig) {
	if cfg.Mode == "" {
		cfg.Mode = "disk"
	}
	cfg.Mode = strings.ToLower(cfg.Mode)

	if cfg.BlockRun == 0 {
		cfg.BlockRun = quota.DefaultRunPct
	}
	if cfg.BlockCull == 0 {
		cfg.BlockCull = quota.DefaultCullPct
	}
	if cfg.BlockStop == 0 {
		cfg.BlockStop = quota.DefaultStopPct
	}
	if cfg.FileRun == 0 {
		cfg.FileRun = quota.DefaultRunPct
	}
	if cfg.FileCull == 0 {
		cfg.FileCull = quota.DefaultCullPct
	}
	if cfg.FileStop == 0 {
		cfg.FileStop = quota.DefaultStopPct
	}
}

// applyIndexDefaults places the index under the cache root unless a
// path was given.
func applyIndexDefaults(cfg *IndexConfig, cacheRoot string) {
	if cfg.Path == "" {
		cfg.Path = filepath.Join(cacheRoot, "index")
	}
}

// applyOriginDefaults sets origin defaults.
func applyOriginDefaults(cfg *OriginConfig) {
	if cfg.Type == "" {
		cfg.Type = "s3"
	}
	cfg.Type = strings.ToLower(cfg.Type)

	if cfg.S3.MaxRetries == 0 {
		cfg.S3.MaxRetries = 3
	}
}

// applyAPIDefaults sets admin API server defaults.
func applyAPIDefaults(cfg *Config) {
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.ReadTimeout == 0 {
		cfg.API.ReadTimeout = 10 * time.Second
	}
	if cfg.API.WriteTimeout == 0 {
		cfg.API.WriteTimeout = 60 * time.Second
	}
	if cfg.API.IdleTimeout == 0 {
		cfg.API.IdleTimeout = 60 * time.Second
	}
}

// applyCullDefaults sets background eviction defaults.
func applyCullDefaults(cfg *CullConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = cull.DefaultInterval
	}
	if cfg.Batch == 0 {
		cfg.Batch = cull.DefaultBatch
	}
	if cfg.MinAge == 0 {
		cfg.MinAge = cull.DefaultMinAge
	}
	if cfg.Rate == 0 {
		cfg.Rate = cull.DefaultRate
	}
	if cfg.Burst == 0 {
		cfg.Burst = cfg.Batch
	}
}

// GetDefaultConfig returns a configuration with all defaults applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
