package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/quarryfs/quarry/internal/bytesize"
)

func TestApplyDefaults_Empty(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Format = %q, want text", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Output = %q, want stdout", cfg.Logging.Output)
	}

	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("Telemetry.Endpoint = %q", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("SampleRate = %g, want 1.0", cfg.Telemetry.SampleRate)
	}
	if cfg.Telemetry.Profiling.Endpoint != "http://localhost:4040" {
		t.Errorf("Profiling.Endpoint = %q", cfg.Telemetry.Profiling.Endpoint)
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		t.Error("Profiling.ProfileTypes is empty")
	}

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 30s", cfg.ShutdownTimeout)
	}

	if cfg.Cache.Root == "" {
		t.Error("Cache.Root default is empty")
	}
	if cfg.Cache.BlockSize != bytesize.ByteSize(64*1024) {
		t.Errorf("BlockSize = %s, want 64KiB", cfg.Cache.BlockSize)
	}
	if cfg.Cache.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Cache.Workers)
	}
	if cfg.Cache.Readers != 4 {
		t.Errorf("Readers = %d, want 4", cfg.Cache.Readers)
	}
	if cfg.Cache.QueueSize != 256 {
		t.Errorf("QueueSize = %d, want 256", cfg.Cache.QueueSize)
	}
	if cfg.Cache.MonitorMax != 4096 {
		t.Errorf("MonitorMax = %d, want 4096", cfg.Cache.MonitorMax)
	}

	if cfg.Quota.Mode != "disk" {
		t.Errorf("Quota.Mode = %q, want disk", cfg.Quota.Mode)
	}
	if cfg.Quota.BlockRun != 7 || cfg.Quota.BlockCull != 5 || cfg.Quota.BlockStop != 3 {
		t.Errorf("block thresholds = %d/%d/%d, want 7/5/3",
			cfg.Quota.BlockRun, cfg.Quota.BlockCull, cfg.Quota.BlockStop)
	}
	if cfg.Quota.FileRun != 7 || cfg.Quota.FileCull != 5 || cfg.Quota.FileStop != 3 {
		t.Errorf("file thresholds = %d/%d/%d, want 7/5/3",
			cfg.Quota.FileRun, cfg.Quota.FileCull, cfg.Quota.FileStop)
	}

	if want := filepath.Join(cfg.Cache.Root, "index"); cfg.Index.Path != want {
		t.Errorf("Index.Path = %q, want %q", cfg.Index.Path, want)
	}

	if cfg.Origin.Type != "s3" {
		t.Errorf("Origin.Type = %q, want s3", cfg.Origin.Type)
	}
	if cfg.Origin.S3.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Origin.S3.MaxRetries)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %s, want 10s", cfg.API.ReadTimeout)
	}
	if !cfg.API.IsEnabled() {
		t.Error("API should be enabled by default")
	}

	if cfg.Cull.Interval != time.Minute {
		t.Errorf("Cull.Interval = %s, want 1m", cfg.Cull.Interval)
	}
	if cfg.Cull.Batch != 64 {
		t.Errorf("Cull.Batch = %d, want 64", cfg.Cull.Batch)
	}
	if cfg.Cull.MinAge != 30*time.Second {
		t.Errorf("Cull.MinAge = %s, want 30s", cfg.Cull.MinAge)
	}
	if cfg.Cull.Rate != 32 {
		t.Errorf("Cull.Rate = %g, want 32", cfg.Cull.Rate)
	}
	if cfg.Cull.Burst != cfg.Cull.Batch {
		t.Errorf("Cull.Burst = %d, want batch size %d", cfg.Cull.Burst, cfg.Cull.Batch)
	}
	if !cfg.Cull.IsEnabled() {
		t.Error("culler should be enabled by default")
	}

	if cfg.Metrics.Enabled {
		t.Error("metrics should be disabled by default")
	}
}

func TestApplyDefaults_PreservesExplicit(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "warn"
	cfg.Cache.Root = "/custom/root"
	cfg.Cache.Workers = 16
	cfg.Quota.Mode = "budget"
	cfg.Index.Path = "/elsewhere/index"
	cfg.Cull.Batch = 5

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Level = %q, want WARN (normalized, not replaced)", cfg.Logging.Level)
	}
	if cfg.Cache.Root != "/custom/root" {
		t.Errorf("Root = %q, explicit value clobbered", cfg.Cache.Root)
	}
	if cfg.Cache.Workers != 16 {
		t.Errorf("Workers = %d, explicit value clobbered", cfg.Cache.Workers)
	}
	if cfg.Quota.Mode != "budget" {
		t.Errorf("Mode = %q, explicit value clobbered", cfg.Quota.Mode)
	}
	if cfg.Index.Path != "/elsewhere/index" {
		t.Errorf("Index.Path = %q, explicit value clobbered", cfg.Index.Path)
	}
	if cfg.Cull.Batch != 5 {
		t.Errorf("Batch = %d, explicit value clobbered", cfg.Cull.Batch)
	}
	if cfg.Cull.Burst != 5 {
		t.Errorf("Burst = %d, want batch size 5", cfg.Cull.Burst)
	}
}

func TestApplyDefaults_DisabledCullerStaysDisabled(t *testing.T) {
	disabled := false
	cfg := &Config{}
	cfg.Cull.Enabled = &disabled

	ApplyDefaults(cfg)

	if cfg.Cull.IsEnabled() {
		t.Error("explicitly disabled culler was re-enabled")
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("default config fails validation: %v", err)
	}
}
