package config

import (
	"strings"
	"testing"

	"github.com/quarryfs/quarry/internal/bytesize"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_NilConfig(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("Expected error for nil config")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "LOUD"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("Expected logging.level in error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_BlockSizeNotPowerOfTwo(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cache.BlockSize = bytesize.ByteSize(100 * 1024)

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for non power of two block size")
	}
	if !strings.Contains(err.Error(), "block_size") {
		t.Errorf("Expected block_size in error, got: %v", err)
	}
}

func TestValidate_BlockSizeOutOfRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cache.BlockSize = bytesize.ByteSize(1024) // below 4KiB minimum

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for too small block size")
	}

	cfg = GetDefaultConfig()
	cfg.Cache.BlockSize = bytesize.ByteSize(32 << 20) // above 16MiB maximum

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for too large block size")
	}
}

func TestValidate_MissingCacheRoot(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cache.Root = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing cache root")
	}
	if !strings.Contains(err.Error(), "cache.root") {
		t.Errorf("Expected cache.root in error, got: %v", err)
	}
}

func TestValidate_InvalidQuotaMode(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Quota.Mode = "wishful"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid quota mode")
	}
	if !strings.Contains(err.Error(), "quota.mode") {
		t.Errorf("Expected quota.mode in error, got: %v", err)
	}
}

func TestValidate_QuotaThresholdOrder(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Quota.BlockStop = 10 // above cull=5 and run=7

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for out of order thresholds")
	}
	if !strings.Contains(err.Error(), "stop <= cull <= run") {
		t.Errorf("Expected threshold ordering in error, got: %v", err)
	}
}

func TestValidate_InvalidAPIPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = 70000 // Out of range

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "api.port") {
		t.Errorf("Expected api.port in error, got: %v", err)
	}

	cfg = GetDefaultConfig()
	cfg.API.Port = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative port")
	}
}

func TestValidate_InvalidOriginType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Origin.Type = "gcs"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unsupported origin type")
	}
	if !strings.Contains(err.Error(), "origin.type") {
		t.Errorf("Expected origin.type in error, got: %v", err)
	}
}

func TestValidate_EmptyBucketAllowed(t *testing.T) {
	// A freshly generated config has no bucket yet; the daemon, not
	// Validate, refuses to start without one.
	cfg := GetDefaultConfig()
	cfg.Origin.S3.Bucket = ""

	if err := Validate(cfg); err != nil {
		t.Errorf("empty bucket should pass validation, got: %v", err)
	}
}

func TestValidate_NegativeCullInterval(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cull.Interval = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for negative cull interval")
	}
	if !strings.Contains(err.Error(), "cull.interval") {
		t.Errorf("Expected cull.interval in error, got: %v", err)
	}
}

func TestValidate_InvalidSampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.SampleRate = 1.5

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for sample rate above 1.0")
	}
	if !strings.Contains(err.Error(), "sample_rate") {
		t.Errorf("Expected sample_rate in error, got: %v", err)
	}
}
