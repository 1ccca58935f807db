package engine

import (
	"sync"
	"sync/atomic"

	"github.com/quarryfs/quarry/pkg/backing"
)

// Object is the engine's view of one cached logical file. It binds the
// backing file, tracks the logical EOF (writes past it are refused) and
// owns the queue of completions waiting for a worker.
type Object struct {
	key    string
	backer *backing.File

	eof      atomic.Int64
	degraded atomic.Bool

	workMu    sync.Mutex
	work      []*monitor
	scheduled bool
}

// NewObject binds a cache object to its backing file. backer may be
// nil, in which case every retrieval fails with ErrNoBackingStore.
func NewObject(key string, backer *backing.File, eof int64) *Object {
	o := &Object{
		key:    key,
		backer: backer,
	}
	o.eof.Store(eof)
	return o
}

// Key returns the object's cache key.
func (o *Object) Key() string { return o.key }

// Backer returns the backing file handle, or nil.
func (o *Object) Backer() *backing.File { return o.backer }

// EOF returns the logical size of the object.
func (o *Object) EOF() int64 { return o.eof.Load() }

// SetEOF updates the logical size. It does not touch backing data; use
// Engine.Truncate to shrink both together.
func (o *Object) SetEOF(size int64) { o.eof.Store(size) }

// Degraded reports whether a backing I/O error demoted this object.
// Degraded objects refuse cache service; reads bypass to the origin.
func (o *Object) Degraded() bool { return o.degraded.Load() }

// Pending returns the number of completions waiting for a worker.
func (o *Object) Pending() int {
	o.workMu.Lock()
	defer o.workMu.Unlock()
	return len(o.work)
}

// enqueue adds a completed monitor to the work queue and reports
// whether the object needs scheduling on the engine queue.
func (o *Object) enqueue(m *monitor) bool {
	o.workMu.Lock()
	defer o.workMu.Unlock()
	o.work = append(o.work, m)
	if o.scheduled {
		return false
	}
	o.scheduled = true
	return true
}

// dequeue pops the next monitor. When the queue is empty it clears the
// scheduled flag and returns nil, so the next enqueue reschedules.
func (o *Object) dequeue() *monitor {
	o.workMu.Lock()
	defer o.workMu.Unlock()
	if len(o.work) == 0 {
		o.scheduled = false
		return nil
	}
	m := o.work[0]
	o.work = o.work[1:]
	return m
}

// hasWork reports whether monitors are still queued.
func (o *Object) hasWork() bool {
	o.workMu.Lock()
	defer o.workMu.Unlock()
	return len(o.work) > 0
}
