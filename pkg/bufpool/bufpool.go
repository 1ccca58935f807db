// Package bufpool pools byte buffers by size class.
//
// Retrieval assembles reads from per-block scratch buffers and the API
// server streams object bytes through copy buffers, so slices churn at
// I/O rate. The pool keeps three size classes matched to the block-size
// range and allocates directly above the largest class, so oversized
// buffers are never pinned.
package bufpool

import "sync"

// Size classes. The small and medium classes line up with the smallest
// and default cache block sizes.
const (
	DefaultSmallSize  = 4 << 10
	DefaultMediumSize = 64 << 10
	DefaultLargeSize  = 1 << 20
)

// Config sets the pool's size classes. Zero values take the defaults.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// Pool hands out byte slices from per-class sync.Pools. Requests above
// the large class are allocated directly and never pooled.
type Pool struct {
	small      sync.Pool
	medium     sync.Pool
	large      sync.Pool
	smallSize  int
	mediumSize int
	largeSize  int
}

// New creates a pool with the given size classes.
func New(cfg Config) *Pool {
	if cfg.SmallSize <= 0 {
		cfg.SmallSize = DefaultSmallSize
	}
	if cfg.MediumSize <= 0 {
		cfg.MediumSize = DefaultMediumSize
	}
	if cfg.LargeSize <= 0 {
		cfg.LargeSize = DefaultLargeSize
	}

	p := &Pool{
		smallSize:  cfg.SmallSize,
		mediumSize: cfg.MediumSize,
		largeSize:  cfg.LargeSize,
	}
	p.small.New = func() any {
		buf := make([]byte, p.smallSize)
		return &buf
	}
	p.medium.New = func() any {
		buf := make([]byte, p.mediumSize)
		return &buf
	}
	p.large.New = func() any {
		buf := make([]byte, p.largeSize)
		return &buf
	}
	return p
}

// Get returns a slice of exactly the requested length, backed by a
// pooled buffer when the size fits a class. The caller hands it back
// with Put when done.
func (p *Pool) Get(size int) []byte {
	var ptr *[]byte
	switch {
	case size <= p.smallSize:
		ptr = p.small.Get().(*[]byte)
	case size <= p.mediumSize:
		ptr = p.medium.Get().(*[]byte)
	case size <= p.largeSize:
		ptr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}
	return (*ptr)[:size]
}

// Put returns a buffer obtained from Get. Buffers whose capacity does
// not match a class are left for the GC.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	switch cap(buf) {
	case p.smallSize:
		p.small.Put(&full)
	case p.mediumSize:
		p.medium.Put(&full)
	case p.largeSize:
		p.large.Put(&full)
	}
}

var defaultPool = New(Config{})

// Get takes a buffer from the default pool.
func Get(size int) []byte { return defaultPool.Get(size) }

// Put returns a buffer to the default pool.
func Put(buf []byte) { defaultPool.Put(buf) }
