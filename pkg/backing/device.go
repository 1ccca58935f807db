package backing

import "io"

// Device is the raw byte store behind one backing file. The production
// implementation is a sparse file on the cache filesystem; tests use an
// in-memory device with hooks for stalling and failing reads.
//
// ReadAt and WriteAt must be safe for concurrent use. Reading a hole
// yields zeros; reading at or past the device size returns io.EOF.
type Device interface {
	io.ReaderAt
	io.WriterAt

	// HasData reports whether any byte in [off, off+length) has been
	// written. This is the index-presence probe the engine uses to
	// distinguish cached blocks from holes.
	HasData(off, length int64) (bool, error)

	// Size returns the current device size in bytes.
	Size() (int64, error)

	// Truncate resizes the device, discarding data past size.
	Truncate(size int64) error

	// Granularity returns the device's native allocation unit. The
	// engine refuses objects whose device granularity exceeds the
	// cache block size.
	Granularity() int64

	// Sync flushes written data to stable storage.
	Sync() error

	Close() error
}
