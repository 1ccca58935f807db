package engine

import "errors"

var (
	// ErrNoBackingStore means the object has no backing file bound, so
	// retrieval from the cache is impossible.
	ErrNoBackingStore = errors.New("engine: object has no backing store")

	// ErrNoBuffers means the cache declined the block: admission was
	// denied, the geometry is unsupported, or a write could not be
	// honored. The caller falls back to the origin.
	ErrNoBuffers = errors.New("engine: no buffers")

	// ErrNoData means the block is not in the cache. A miss, not a
	// failure.
	ErrNoData = errors.New("engine: no data")

	// ErrIO means backing I/O failed. The owning object is degraded as
	// a side effect and subsequent cache operations on it fail fast.
	ErrIO = errors.New("engine: backing I/O error")

	// ErrOutOfMemory means the in-flight monitor budget is exhausted.
	// No state was changed; the caller may retry or fall back.
	ErrOutOfMemory = errors.New("engine: monitor budget exhausted")

	// ErrEngineClosed is returned for operations started after Close.
	ErrEngineClosed = errors.New("engine: closed")
)
