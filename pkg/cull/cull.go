// Package cull evicts cold objects to keep the cache inside its
// capacity. A background loop scans the object index on an interval
// and removes least-recently-used entries when space pressure demands
// it or when objects sit idle past a configurable age. Evictions are
// rate limited so a pressure spike cannot turn into an I/O storm.
package cull

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quarryfs/quarry/internal/logger"
	"github.com/quarryfs/quarry/internal/telemetry"
	"github.com/quarryfs/quarry/pkg/index"
)

const (
	// DefaultInterval is the default scan period.
	DefaultInterval = time.Minute

	// DefaultBatch is the default eviction cap per scan.
	DefaultBatch = 64

	// DefaultMinAge is the default protection window for recently
	// used objects.
	DefaultMinAge = 30 * time.Second

	// DefaultRate is the default eviction rate limit per second.
	DefaultRate = 32.0
)

// Remover drops one object from the cache. The service implements it.
type Remover interface {
	Remove(ctx context.Context, key string) error
}

// Pressure reports filesystem pressure. The disk quota oracle
// implements it; a counted budget has no notion of pressure and runs
// on idle age alone.
type Pressure interface {
	// NeedsCull reports that free space fell below the cull threshold.
	NeedsCull() bool

	// BelowRun reports that free space is still below the level
	// culling tries to restore.
	BelowRun() bool
}

// Config tunes the culler.
type Config struct {
	// Interval between scans (default 1m).
	Interval time.Duration

	// Batch caps evictions per scan (default 64).
	Batch int

	// MaxIdle evicts objects unused for longer than this; 0 disables
	// idle-based eviction.
	MaxIdle time.Duration

	// MinAge protects objects used within this window even under
	// pressure (default 30s).
	MinAge time.Duration

	// Rate limits evictions per second (default 32).
	Rate float64

	// Burst is the limiter burst (default Batch).
	Burst int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Batch <= 0 {
		c.Batch = DefaultBatch
	}
	if c.MinAge <= 0 {
		c.MinAge = DefaultMinAge
	}
	if c.Rate <= 0 {
		c.Rate = DefaultRate
	}
	if c.Burst <= 0 {
		c.Burst = c.Batch
	}
}

// Option configures a Culler.
type Option func(*Culler)

// WithPressure installs a pressure source. Without one, only idle age
// triggers evictions.
func WithPressure(p Pressure) Option {
	return func(c *Culler) { c.pressure = p }
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Culler) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Culler runs the eviction loop.
type Culler struct {
	cfg      Config
	idx      index.Index
	remover  Remover
	pressure Pressure
	limiter  *rate.Limiter
	metrics  Metrics

	mu        sync.Mutex
	started   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New builds a culler over the index and remover.
func New(cfg Config, idx index.Index, remover Remover, opts ...Option) (*Culler, error) {
	if idx == nil {
		return nil, errors.New("cull: nil index")
	}
	if remover == nil {
		return nil, errors.New("cull: nil remover")
	}
	cfg.applyDefaults()

	c := &Culler{
		cfg:       cfg,
		idx:       idx,
		remover:   remover,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		metrics:   nopMetrics{},
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start launches the background loop. Idempotent.
func (c *Culler) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	logger.Info("starting culler",
		logger.KeyInterval, c.cfg.Interval,
		logger.KeyCount, c.cfg.Batch)
	go c.run(ctx)
}

// Stop shuts the loop down, waiting up to timeout for the current scan
// to finish.
func (c *Culler) Stop(timeout time.Duration) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	close(c.stopCh)
	select {
	case <-c.stoppedCh:
		logger.Info("culler stopped")
	case <-time.After(timeout):
		logger.Warn("culler stop timed out")
	}
}

func (c *Culler) run(ctx context.Context) {
	defer close(c.stoppedCh)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if _, err := c.RunOnce(ctx); err != nil {
				logger.Warn("cull scan failed", logger.KeyError, err)
			}
		}
	}
}

// RunOnce performs one scan and returns how many objects it evicted.
// Eviction stops when the batch is spent, pressure clears and no stale
// objects remain, or the context ends.
func (c *Culler) RunOnce(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartCullSpan(ctx, "scan")
	defer span.End()
	start := time.Now()

	entries, err := c.idx.List(ctx)
	if err != nil {
		c.metrics.Error()
		return 0, fmt.Errorf("cull: list objects: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastUsed.Before(entries[j].LastUsed)
	})

	culling := c.pressure != nil && c.pressure.NeedsCull()
	now := time.Now().UTC()
	evicted := 0
	for _, e := range entries {
		if evicted >= c.cfg.Batch {
			break
		}
		if culling && !c.pressure.BelowRun() {
			culling = false
		}
		// Entries are in recency order, so the first one that is
		// neither stale nor needed for pressure ends the scan.
		if now.Sub(e.LastUsed) < c.cfg.MinAge {
			break
		}
		stale := c.cfg.MaxIdle > 0 && now.Sub(e.LastUsed) > c.cfg.MaxIdle
		if !culling && !stale {
			break
		}

		if err := c.limiter.Wait(ctx); err != nil {
			c.finish(ctx, evicted, start)
			return evicted, fmt.Errorf("cull: %w", err)
		}
		if err := c.evict(ctx, e); err != nil {
			logger.Warn("eviction failed",
				logger.KeyObject, e.Key,
				logger.KeyError, err)
			c.metrics.Error()
			continue
		}
		evicted++
	}

	c.finish(ctx, evicted, start)
	return evicted, nil
}

func (c *Culler) evict(ctx context.Context, e *index.Entry) error {
	ctx, span := telemetry.StartCullSpan(ctx, "evict",
		telemetry.ObjectKey(e.Key),
		telemetry.Blocks(int(e.Blocks)))
	defer span.End()

	if err := c.remover.Remove(ctx, e.Key); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	logger.Debug("object evicted",
		logger.KeyObject, e.Key,
		logger.KeyBlocks, e.Blocks,
		logger.KeyIdle, time.Since(e.LastUsed))
	return nil
}

func (c *Culler) finish(ctx context.Context, evicted int, start time.Time) {
	c.metrics.Scan(time.Since(start))
	if evicted > 0 {
		c.metrics.Evicted(evicted)
		telemetry.SetAttributes(ctx, telemetry.Evicted(evicted))
		logger.Info("cull scan evicted objects",
			logger.KeyEvicted, evicted,
			logger.KeyDurationMs, time.Since(start).Milliseconds())
	}
}
