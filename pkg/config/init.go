package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// InitConfig writes an annotated default config file at the default
// location and returns its path. Refuses to overwrite an existing file
// unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes an annotated default config file to the given
// path, creating parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// defaultConfigTemplate renders the annotated starter config. Values
// that need tuning are commented out with their defaults so the file
// documents itself.
func defaultConfigTemplate() string {
	return fmt.Sprintf(`# Quarry Configuration File
#
# Quarry is a disk-backed read-through cache for remote objects.
# Any value can be overridden with a QUARRY_* environment variable,
# e.g. QUARRY_CACHE_ROOT=/var/cache/quarry or QUARRY_API_PORT=9000.

logging:
  level: INFO # DEBUG, INFO, WARN, ERROR
  format: text # text, json
  output: stdout # stdout, stderr, or a file path

cache:
  # Directory holding the backing files.
  root: %s
  # Block size: power of two between 4KiB and 16MiB. Changing it
  # invalidates existing backing files.
  # block_size: 64KiB
  # workers: 2 # engine completion workers
  # readers: 4 # backing read workers

quota:
  # Admission oracle: none, budget, or disk.
  mode: disk
  # Budget mode caps:
  # max_files: 0 # 0 = unlimited
  # max_size: 10GiB
  # Disk mode thresholds, percent free space:
  # block_run: 7
  # block_cull: 5
  # block_stop: 3

index:
  # Persistent object index (BadgerDB directory).
  path: %s

origin:
  type: s3
  s3:
    # The bucket is required before the daemon will start.
    bucket: ""
    region: ""
    # endpoint: http://localhost:9000 # S3-compatible services
    # key_prefix: datasets/
    # force_path_style: true # required for MinIO/Localstack

api:
  enabled: true
  port: 8080

cull:
  enabled: true
  # interval: 1m # time between eviction scans
  batch: 64
  # min_age: 30s # protects recently used objects
  # max_idle: 24h # evict objects idle longer than this

metrics:
  enabled: false # served at /metrics on the API port

telemetry:
  enabled: false
  endpoint: localhost:4317

# shutdown_timeout: 30s
`, getCacheDir(), filepath.Join(getCacheDir(), "index"))
}
