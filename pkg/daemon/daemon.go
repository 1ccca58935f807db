// Package daemon assembles the cache stack and runs it.
//
// The daemon owns every long-lived component: the backing store, the
// object index, the origin client, the quota oracle, the retrieval
// engine, the cache service, the culler and the admin API server. It
// wires them in dependency order, recovers persisted cache state on
// startup and tears everything down in reverse order on shutdown.
//
// Usage:
//
//	d, err := daemon.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	err = d.Serve(ctx)
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/quarryfs/quarry/internal/logger"
	"github.com/quarryfs/quarry/pkg/api"
	"github.com/quarryfs/quarry/pkg/backing"
	"github.com/quarryfs/quarry/pkg/config"
	"github.com/quarryfs/quarry/pkg/cull"
	"github.com/quarryfs/quarry/pkg/engine"
	"github.com/quarryfs/quarry/pkg/index"
	"github.com/quarryfs/quarry/pkg/metrics"
	"github.com/quarryfs/quarry/pkg/origin"
	"github.com/quarryfs/quarry/pkg/origin/s3"
	"github.com/quarryfs/quarry/pkg/quota"
	"github.com/quarryfs/quarry/pkg/service"

	// Register the Prometheus metric constructors.
	_ "github.com/quarryfs/quarry/pkg/metrics/prometheus"
)

// Daemon is the composition root for a quarry cache node.
type Daemon struct {
	cfg *config.Config

	backing *backing.Manager
	index   index.Index
	origin  origin.Origin
	oracle  quota.Oracle
	engine  *engine.Engine
	service *service.Service
	culler  *cull.Culler
	api     *api.Server

	serveOnce sync.Once
	closeOnce sync.Once
}

// New builds a Daemon from the given configuration.
//
// Construction order matters: metrics first so that the component
// constructors pick up enabled sinks, then storage (backing, index),
// then the origin, then the engine and service on top, and finally the
// optional culler and API server. On error every component created so
// far is closed again.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("daemon: configuration is required")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("daemon: invalid configuration: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics collection enabled")
	} else {
		logger.Info("Metrics collection disabled")
	}

	blockSize := cfg.Cache.BlockSize.Int64()

	mgr, err := backing.New(backing.Config{
		Root:      cfg.Cache.Root,
		BlockSize: blockSize,
		Readers:   cfg.Cache.Readers,
		QueueSize: cfg.Cache.QueueSize,
		MaxOpen:   cfg.Cache.MaxOpen,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: backing store: %w", err)
	}
	logger.Info("Backing store opened",
		logger.KeyRoot, cfg.Cache.Root,
		logger.KeyBlockSize, blockSize)

	idx, err := index.NewBadger(cfg.Index.Path)
	if err != nil {
		_ = mgr.Close()
		return nil, fmt.Errorf("daemon: index: %w", err)
	}
	logger.Info("Index opened", logger.KeyPath, cfg.Index.Path)

	org, err := newOrigin(ctx, cfg)
	if err != nil {
		_ = idx.Close()
		_ = mgr.Close()
		return nil, err
	}

	oracle, err := newOracle(cfg, blockSize)
	if err != nil {
		_ = idx.Close()
		_ = mgr.Close()
		return nil, err
	}

	engineOpts := []engine.Option{engine.WithQuota(oracle)}
	if m := metrics.NewEngineMetrics(); m != nil {
		engineOpts = append(engineOpts, engine.WithMetrics(m))
	}
	eng, err := engine.New(engine.Config{
		BlockSize:  blockSize,
		Workers:    cfg.Cache.Workers,
		MonitorMax: cfg.Cache.MonitorMax,
	}, engineOpts...)
	if err != nil {
		_ = idx.Close()
		_ = mgr.Close()
		return nil, fmt.Errorf("daemon: engine: %w", err)
	}

	svcOpts := []service.Option{service.WithQuota(oracle)}
	if m := metrics.NewServiceMetrics(); m != nil {
		svcOpts = append(svcOpts, service.WithMetrics(m))
	}
	svc, err := service.New(eng, mgr, idx, org, svcOpts...)
	if err != nil {
		_ = eng.Close(ctx)
		_ = idx.Close()
		_ = mgr.Close()
		return nil, fmt.Errorf("daemon: service: %w", err)
	}

	d := &Daemon{
		cfg:     cfg,
		backing: mgr,
		index:   idx,
		origin:  org,
		oracle:  oracle,
		engine:  eng,
		service: svc,
	}

	if cfg.Cull.IsEnabled() {
		cullOpts := []cull.Option{}
		if pressure, ok := oracle.(cull.Pressure); ok {
			cullOpts = append(cullOpts, cull.WithPressure(pressure))
		}
		if m := metrics.NewCullMetrics(); m != nil {
			cullOpts = append(cullOpts, cull.WithMetrics(m))
		}
		culler, err := cull.New(cull.Config{
			Interval: cfg.Cull.Interval,
			Batch:    cfg.Cull.Batch,
			MaxIdle:  cfg.Cull.MaxIdle,
			MinAge:   cfg.Cull.MinAge,
			Rate:     cfg.Cull.Rate,
			Burst:    cfg.Cull.Burst,
		}, idx, svc, cullOpts...)
		if err != nil {
			_ = eng.Close(ctx)
			d.closeComponents()
			return nil, fmt.Errorf("daemon: culler: %w", err)
		}
		d.culler = culler
		logger.Info("Culler enabled", logger.KeyInterval, cfg.Cull.Interval)
	} else {
		logger.Info("Culler disabled")
	}

	if cfg.API.IsEnabled() {
		var metricsHandler http.Handler
		if cfg.Metrics.Enabled {
			metricsHandler = metrics.Handler()
		}
		d.api = api.NewServer(cfg.API, svc, metricsHandler)
		logger.Info("API server enabled", "port", cfg.API.Port)
	} else {
		logger.Info("API server disabled")
	}

	return d, nil
}

// newOrigin builds the origin client from configuration.
func newOrigin(ctx context.Context, cfg *config.Config) (origin.Origin, error) {
	switch cfg.Origin.Type {
	case "s3":
		if cfg.Origin.S3.Bucket == "" {
			return nil, fmt.Errorf("daemon: s3 origin requires a bucket " +
				"(set origin.s3.bucket or QUARRY_ORIGIN_S3_BUCKET)")
		}
		org, err := s3.NewFromConfig(ctx, s3.Config{
			Bucket:          cfg.Origin.S3.Bucket,
			Region:          cfg.Origin.S3.Region,
			Endpoint:        cfg.Origin.S3.Endpoint,
			KeyPrefix:       cfg.Origin.S3.KeyPrefix,
			AccessKeyID:     cfg.Origin.S3.AccessKeyID,
			SecretAccessKey: cfg.Origin.S3.SecretAccessKey,
			ForcePathStyle:  cfg.Origin.S3.ForcePathStyle,
			MaxRetries:      cfg.Origin.S3.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("daemon: s3 origin: %w", err)
		}
		logger.Info("Origin configured",
			logger.KeyBucket, cfg.Origin.S3.Bucket,
			logger.KeyRegion, cfg.Origin.S3.Region)
		return org, nil
	default:
		return nil, fmt.Errorf("daemon: unknown origin type %q", cfg.Origin.Type)
	}
}

// newOracle builds the quota oracle from configuration.
func newOracle(cfg *config.Config, blockSize int64) (quota.Oracle, error) {
	switch cfg.Quota.Mode {
	case "none":
		logger.Info("Quota disabled")
		return quota.Nop{}, nil

	case "budget":
		maxBlocks := cfg.Quota.MaxSize.Uint64() / uint64(blockSize)
		if cfg.Quota.MaxSize > 0 && maxBlocks == 0 {
			// A cap smaller than one block still has to cap something.
			maxBlocks = 1
		}
		logger.Info("Quota budget configured",
			"max_files", cfg.Quota.MaxFiles,
			"max_blocks", maxBlocks)
		return quota.NewBudget(cfg.Quota.MaxFiles, maxBlocks), nil

	case "disk":
		oracle, err := quota.NewDisk(quota.DiskConfig{
			Path:      cfg.Cache.Root,
			BlockRun:  cfg.Quota.BlockRun,
			BlockCull: cfg.Quota.BlockCull,
			BlockStop: cfg.Quota.BlockStop,
			FileRun:   cfg.Quota.FileRun,
			FileCull:  cfg.Quota.FileCull,
			FileStop:  cfg.Quota.FileStop,
		}, blockSize)
		if err != nil {
			return nil, fmt.Errorf("daemon: disk quota: %w", err)
		}
		logger.Info("Disk quota configured",
			logger.KeyPath, cfg.Cache.Root,
			"block_stop_pct", cfg.Quota.BlockStop,
			"block_cull_pct", cfg.Quota.BlockCull,
			"block_run_pct", cfg.Quota.BlockRun)
		return oracle, nil

	default:
		return nil, fmt.Errorf("daemon: unknown quota mode %q", cfg.Quota.Mode)
	}
}

// Service returns the cache service. Exposed for tests and for
// embedding the daemon in other processes.
func (d *Daemon) Service() *service.Service {
	return d.service
}

// APIServer returns the admin API server, or nil when disabled.
func (d *Daemon) APIServer() *api.Server {
	return d.api
}

// Serve recovers cache state, starts the culler and API server and
// blocks until ctx is cancelled or the API server fails. The stack is
// shut down before Serve returns. Serve may be called once.
func (d *Daemon) Serve(ctx context.Context) error {
	var err error
	d.serveOnce.Do(func() {
		err = d.serve(ctx)
	})
	return err
}

func (d *Daemon) serve(ctx context.Context) error {
	logger.Info("Starting quarry daemon")

	if err := d.service.Recover(ctx); err != nil {
		d.shutdown()
		return err
	}

	if d.culler != nil {
		d.culler.Start(ctx)
	}

	apiErrChan := make(chan error, 1)
	if d.api != nil {
		go func() {
			if err := d.api.Start(ctx); err != nil {
				logger.Error("API server error", logger.KeyError, err)
				apiErrChan <- err
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", "reason", ctx.Err())

	case err := <-apiErrChan:
		serveErr = fmt.Errorf("API server error: %w", err)
	}

	d.shutdown()

	logger.Info("Quarry daemon stopped")
	return serveErr
}

// Close releases all resources held by the Daemon. It is safe to call
// after Serve has returned, and covers the case where the daemon was
// built but never served.
func (d *Daemon) Close() error {
	d.shutdown()
	return nil
}

// shutdown tears the stack down in reverse dependency order: stop
// admitting work (API), stop background eviction, drain in-flight
// retrievals, then release handles and close storage. Runs at most
// once.
func (d *Daemon) shutdown() {
	d.closeOnce.Do(d.teardown)
}

func (d *Daemon) teardown() {
	timeout := d.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if d.api != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.api.Stop(stopCtx); err != nil {
			logger.Error("API server shutdown error", logger.KeyError, err)
		}
		cancel()
	}

	if d.culler != nil {
		d.culler.Stop(timeout)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), timeout)
	if err := d.engine.Close(drainCtx); err != nil {
		logger.Warn("Engine close incomplete", logger.KeyError, err)
	}
	cancel()

	d.closeComponents()
}

// closeComponents releases the service, index and backing store.
func (d *Daemon) closeComponents() {
	if err := d.service.Close(); err != nil {
		logger.Warn("Service close failed", logger.KeyError, err)
	}
	if err := d.index.Close(); err != nil {
		logger.Warn("Index close failed", logger.KeyError, err)
	}
	if err := d.backing.Close(); err != nil {
		logger.Warn("Backing store close failed", logger.KeyError, err)
	}
}
