// Package engine implements the cache core: a disk-backed,
// read-through/write-back block cache for origin-backed objects.
//
// Requesters submit fixed-size blocks under a Retrieval. For each block
// the engine answers with a Disposition: Backed blocks are filled from
// the backing store and complete through the retrieval callback,
// Reserved blocks are admitted but must be fetched from the origin and
// written back, and None blocks were declined. At most one backing read
// is in flight per backing block, no matter how many retrievals wait on
// it.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/quarryfs/quarry/internal/logger"
	"github.com/quarryfs/quarry/pkg/block"
	"github.com/quarryfs/quarry/pkg/quota"
)

const (
	// DefaultWorkers is the default completion worker count.
	DefaultWorkers = 2

	// DefaultMonitorMax bounds the number of in-flight monitors.
	DefaultMonitorMax = 4096

	// copyQuantum is how many completions a worker processes for one
	// object before giving other scheduled objects a turn.
	copyQuantum = 8
)

// Config configures an Engine.
type Config struct {
	// BlockSize is the cache block size in bytes. Power of two,
	// between block.MinSize and block.MaxSize. 0 means
	// block.DefaultSize.
	BlockSize int64

	// Workers is the completion worker count. 0 means DefaultWorkers.
	Workers int

	// MonitorMax caps in-flight monitors. 0 means DefaultMonitorMax.
	MonitorMax int64
}

// Option adjusts an Engine beyond its Config.
type Option func(*Engine)

// WithQuota installs the admission oracle. Default is quota.Nop.
func WithQuota(q quota.Oracle) Option {
	return func(e *Engine) { e.quota = q }
}

// WithMetrics installs an instrumentation sink. Default is none.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Engine is the cache core. One Engine serves many objects; all blocks
// share its block size.
type Engine struct {
	geom       block.Geometry
	quota      quota.Oracle
	metrics    Metrics
	monitors   *semaphore.Weighted
	monitorMax int64
	inFlight   atomic.Int64

	queue   *objectQueue
	workers int
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// New builds an Engine and starts its completion workers.
func New(cfg Config, opts ...Option) (*Engine, error) {
	size := cfg.BlockSize
	if size == 0 {
		size = block.DefaultSize
	}
	geom, err := block.NewGeometry(size)
	if err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	monitorMax := cfg.MonitorMax
	if monitorMax <= 0 {
		monitorMax = DefaultMonitorMax
	}

	e := &Engine{
		geom:       geom,
		quota:      quota.Nop{},
		metrics:    nopMetrics{},
		monitors:   semaphore.NewWeighted(monitorMax),
		monitorMax: monitorMax,
		queue:      newObjectQueue(),
		workers:    workers,
	}
	for _, opt := range opts {
		opt(e)
	}

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	logger.Info("cache engine started",
		logger.KeyBlockSize, geom.BlockSize,
		logger.KeyWorkers, workers)
	return e, nil
}

// BlockSize returns the engine-wide block size in bytes.
func (e *Engine) BlockSize() int64 { return e.geom.BlockSize }

// Geometry returns the engine's block geometry.
func (e *Engine) Geometry() block.Geometry { return e.geom }

func (e *Engine) stopping() bool { return e.closed.Load() }

// Close stops the engine. It refuses new operations, waits for
// in-flight monitors to settle (bounded by ctx) and then stops the
// workers after the completion queue drains.
func (e *Engine) Close(ctx context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}

	// All monitors settled means the full budget is re-acquirable.
	err := e.monitors.Acquire(ctx, e.monitorMax)
	if err == nil {
		e.monitors.Release(e.monitorMax)
	}

	e.queue.close()
	e.wg.Wait()

	logger.Info("cache engine stopped")
	return err
}

// Stats is a point-in-time snapshot of engine load.
type Stats struct {
	BlockSize        int64 `json:"block_size"`
	Workers          int   `json:"workers"`
	MonitorsInFlight int64 `json:"monitors_in_flight"`
	QueuedObjects    int   `json:"queued_objects"`
}

// Stats returns current engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		BlockSize:        e.geom.BlockSize,
		Workers:          e.workers,
		MonitorsInFlight: e.inFlight.Load(),
		QueuedObjects:    e.queue.len(),
	}
}

// worker drains scheduled objects until the queue closes and empties.
func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		obj, ok := e.queue.pop()
		if !ok {
			return
		}
		e.processObject(obj)
	}
}

// objectQueue is the engine's completion queue: objects with pending
// monitor work, in arrival order. Unbounded; pushes never block, which
// the monitor bridge relies on.
type objectQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*Object
	closed bool
}

func newObjectQueue() *objectQueue {
	q := &objectQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *objectQueue) push(obj *Object) {
	q.mu.Lock()
	q.items = append(q.items, obj)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until an object is available or the queue is closed and
// empty.
func (q *objectQueue) pop() (*Object, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	obj := q.items[0]
	q.items = q.items[1:]
	return obj, true
}

func (q *objectQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *objectQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
