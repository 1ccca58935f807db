package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryfs/quarry/internal/bytesize"
	"github.com/quarryfs/quarry/pkg/config"
)

// testConfig returns a runnable configuration rooted in a temp
// directory. The API server is disabled so tests never bind a port,
// and the origin points at a closed local endpoint, which is fine
// because nothing dials the origin until an object is read.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.GetDefaultConfig()
	root := t.TempDir()
	cfg.Cache.Root = root
	cfg.Cache.BlockSize = bytesize.ByteSize(4096)
	cfg.Cache.Workers = 2
	cfg.Index.Path = filepath.Join(root, "index")

	cfg.Origin.Type = "s3"
	cfg.Origin.S3.Bucket = "quarry-test"
	cfg.Origin.S3.Region = "us-east-1"
	cfg.Origin.S3.Endpoint = "http://127.0.0.1:1"
	cfg.Origin.S3.AccessKeyID = "test"
	cfg.Origin.S3.SecretAccessKey = "test"
	cfg.Origin.S3.ForcePathStyle = true

	cfg.Quota.Mode = "budget"
	cfg.Quota.MaxFiles = 100
	cfg.Quota.MaxSize = bytesize.ByteSize(1 << 20)

	apiEnabled := false
	cfg.API.Enabled = &apiEnabled

	cullEnabled := true
	cfg.Cull.Enabled = &cullEnabled
	cfg.Cull.Interval = time.Hour

	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration is required")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Quota.Mode = "wishful"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNew_RequiresBucket(t *testing.T) {
	cfg := testConfig(t)
	cfg.Origin.S3.Bucket = ""

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	d, err := New(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	require.NotNil(t, d.Service())
	assert.Nil(t, d.APIServer(), "API server should be disabled")

	done := make(chan error, 1)
	go func() {
		done <- d.Serve(ctx)
	}()

	// Give recovery and the culler a moment to start, then shut down.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}

func TestNew_DiskQuota(t *testing.T) {
	cfg := testConfig(t)
	cfg.Quota.Mode = "disk"

	d, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestNew_NoQuota(t *testing.T) {
	cfg := testConfig(t)
	cfg.Quota.Mode = "none"

	d, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, d.Close())
}