// Package config loads, validates and persists the quarry daemon
// configuration.
//
// Configuration comes from a YAML file with environment variable
// overrides (QUARRY_ prefix, dots replaced by underscores, e.g.
// QUARRY_CACHE_ROOT=/var/cache/quarry). Missing values fall back to
// defaults, so an empty file and no file at all are both valid.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/quarryfs/quarry/internal/bytesize"
	"github.com/quarryfs/quarry/internal/logger"
	"github.com/quarryfs/quarry/pkg/api"
)

// Config is the root configuration for the quarry daemon.
type Config struct {
	// Logging controls log output
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry contains distributed tracing and profiling configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Cache configures the backing store and the copy engine
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Quota configures cache admission limits
	Quota QuotaConfig `mapstructure:"quota" yaml:"quota"`

	// Index configures the persistent object index
	Index IndexConfig `mapstructure:"index" yaml:"index"`

	// Origin configures where cache misses are fetched from
	Origin OriginConfig `mapstructure:"origin" yaml:"origin"`

	// API configures the admin HTTP server
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Cull configures background eviction
	Cull CullConfig `mapstructure:"cull" yaml:"cull"`

	// Metrics configures Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// 1.0 = sample all traces, 0.5 = sample 50%, 0.0 = no sampling
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// CacheConfig configures the disk cache: where backing files live and
// how the copy engine is sized.
type CacheConfig struct {
	// Root is the cache directory. Backing files live under
	// <root>/objects, and by default the object index lives under
	// <root>/index.
	// Default: $XDG_CACHE_HOME/quarry (or ~/.cache/quarry)
	Root string `mapstructure:"root" yaml:"root"`

	// BlockSize is the cache block size. Power of two between 4KiB
	// and 16MiB. Changing it invalidates existing backing files.
	// Supports human-readable formats: "64KiB", "1MB"
	// Default: 64KiB
	BlockSize bytesize.ByteSize `mapstructure:"block_size" yaml:"block_size,omitempty"`

	// Workers is the number of engine completion workers.
	// Default: 2
	Workers int `mapstructure:"workers" yaml:"workers"`

	// Readers is the number of backing store read workers.
	// Default: 4
	Readers int `mapstructure:"readers" yaml:"readers"`

	// QueueSize bounds the backing read queue.
	// Default: 256
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// MaxOpen caps simultaneously open backing files. 0 means
	// unlimited.
	MaxOpen int `mapstructure:"max_open" yaml:"max_open"`

	// MonitorMax caps in-flight block monitors across all reads.
	// Default: 4096
	MonitorMax int64 `mapstructure:"monitor_max" yaml:"monitor_max"`
}

// QuotaConfig selects and configures the cache admission oracle.
type QuotaConfig struct {
	// Mode selects the oracle:
	//   - "none": unlimited admission
	//   - "budget": fixed caps (max_files, max_size)
	//   - "disk": free-space thresholds on the cache filesystem
	// Default: disk
	Mode string `mapstructure:"mode" yaml:"mode"`

	// MaxFiles caps backing files in budget mode. 0 means unlimited.
	MaxFiles uint64 `mapstructure:"max_files" yaml:"max_files"`

	// MaxSize caps cached bytes in budget mode, rounded down to whole
	// blocks. 0 means unlimited.
	// Supports human-readable formats: "10GiB", "500MB"
	MaxSize bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size,omitempty"`

	// Disk mode thresholds, as percent free space on the cache
	// filesystem. Admission stops below the stop level, eviction
	// pressure starts below the cull level, and eviction runs until
	// free space climbs back to the run level. The same three levels
	// apply to inodes (file_*).
	// Defaults: run 7, cull 5, stop 3
	BlockRun  uint `mapstructure:"block_run" yaml:"block_run"`
	BlockCull uint `mapstructure:"block_cull" yaml:"block_cull"`
	BlockStop uint `mapstructure:"block_stop" yaml:"block_stop"`
	FileRun   uint `mapstructure:"file_run" yaml:"file_run"`
	FileCull  uint `mapstructure:"file_cull" yaml:"file_cull"`
	FileStop  uint `mapstructure:"file_stop" yaml:"file_stop"`
}

// IndexConfig configures the persistent object index.
type IndexConfig struct {
	// Path is the BadgerDB directory.
	// Default: <cache.root>/index
	Path string `mapstructure:"path" yaml:"path"`
}

// OriginConfig configures the origin store misses are fetched from.
type OriginConfig struct {
	// Type selects the origin backend. Only "s3" is supported.
	Type string `mapstructure:"type" yaml:"type"`

	// S3 configures the S3 origin.
	S3 S3OriginConfig `mapstructure:"s3" yaml:"s3"`
}

// S3OriginConfig configures the S3 origin store.
type S3OriginConfig struct {
	// Bucket is the S3 bucket name (required to start the daemon).
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region. Empty uses the SDK default chain.
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint overrides the S3 endpoint URL (for MinIO, Localstack
	// and other S3-compatible services).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// KeyPrefix is prepended to all object keys (e.g., "datasets/").
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`

	// AccessKeyID and SecretAccessKey are static credentials. Empty
	// uses the SDK default credential chain.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`

	// ForcePathStyle forces path-style addressing (required for
	// Localstack/MinIO).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`

	// MaxRetries is the retry budget for transient errors.
	// Default: 3
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// CullConfig configures background eviction.
type CullConfig struct {
	// Enabled controls whether the culler runs.
	// Default: true
	// Use a pointer to distinguish "not set" from "explicitly false"
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval between eviction scans.
	// Default: 1m
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// Batch caps evictions per scan.
	// Default: 64
	Batch int `mapstructure:"batch" yaml:"batch"`

	// MaxIdle evicts objects not used for this long regardless of
	// space pressure. 0 disables idle-based eviction.
	MaxIdle time.Duration `mapstructure:"max_idle" yaml:"max_idle"`

	// MinAge protects recently used objects from eviction.
	// Default: 30s
	MinAge time.Duration `mapstructure:"min_age" yaml:"min_age"`

	// Rate limits evictions per second.
	// Default: 32
	Rate float64 `mapstructure:"rate" yaml:"rate"`

	// Burst is the eviction rate limiter burst. 0 means the batch
	// size.
	Burst int `mapstructure:"burst" yaml:"burst"`
}

// IsEnabled returns whether the culler is enabled.
// Defaults to true if not explicitly set.
func (c *CullConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true // Default: enabled
	}
	return *c.Enabled
}

// MetricsConfig configures Prometheus metrics collection.
// Metrics are served on the API server's /metrics endpoint.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load reads configuration from the given file, or from the default
// location when configFile is empty.
//
// Returns the default configuration when no config file exists.
// Environment variables override file values either way.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setupViper(v, configFile)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		logger.Debug("No config file found, using defaults")
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", v.ConfigFileUsed(), err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", v.ConfigFileUsed(), err)
	}

	logger.Debug("Configuration loaded", logger.KeyPath, v.ConfigFileUsed())
	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages. Unlike Load,
// it refuses to fall back to built-in defaults: commands that operate on
// a real deployment (start, config show) should fail loudly when no
// config file exists rather than silently using defaults.
func MustLoad(configFile string) (*Config, error) {
	if configFile == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Initialize a configuration file first:\n"+
				"  quarry init\n\n"+
				"Or specify a custom config file:\n"+
				"  quarry <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configFile = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Create it first:\n"+
				"  quarry init --config %s",
				configFile, configFile)
		}
	}

	cfg, err := Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to the given path as YAML,
// creating parent directories as needed. The file is written with
// 0600 permissions since it may contain credentials.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment handling and the config file
// location.
func setupViper(v *viper.Viper, configFile string) {
	v.SetEnvPrefix("QUARRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the config file if present. A missing file is
// not an error.
func readConfigFile(v *viper.Viper) (bool, error) {
	err := v.ReadInConfig()
	if err == nil {
		return true, nil
	}
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return false, nil
	}
	if os.IsNotExist(err) {
		// SetConfigFile bypasses viper's own not-found error.
		return false, nil
	}
	return false, fmt.Errorf("failed to read config file: %w", err)
}

// configDecodeHooks returns the decode hooks for config unmarshaling:
// human-readable byte sizes ("512MB") and durations ("30s").
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch value := data.(type) {
		case string:
			return bytesize.Parse(value)
		case int:
			return bytesize.ByteSize(value), nil
		case int64:
			return bytesize.ByteSize(value), nil
		case uint64:
			return bytesize.ByteSize(value), nil
		case float64:
			return bytesize.ByteSize(value), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings and numbers to time.Duration.
// Numbers are interpreted as nanoseconds, matching yaml.Marshal output.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch value := data.(type) {
		case string:
			return time.ParseDuration(value)
		case int:
			return time.Duration(value), nil
		case int64:
			return time.Duration(value), nil
		case float64:
			return time.Duration(value), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir resolves the quarry config directory:
// $XDG_CONFIG_HOME/quarry, falling back to ~/.config/quarry.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "quarry")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "quarry")
}

// getCacheDir resolves the default cache root:
// $XDG_CACHE_HOME/quarry, falling back to ~/.cache/quarry.
func getCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "quarry")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "quarry-cache")
	}
	return filepath.Join(home, ".cache", "quarry")
}

// GetConfigDir returns the directory quarry reads its config from.
func GetConfigDir() string {
	return getConfigDir()
}

// GetDefaultConfigPath returns the default config file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default path.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
