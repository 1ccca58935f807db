// Package origin abstracts the remote store the cache fronts. Misses
// are fetched from an Origin and written back into the cache; Stat
// supplies the size and entity tag the service revalidates against.
package origin

import "context"

// ObjectInfo describes one origin object.
type ObjectInfo struct {
	// Size is the object length in bytes.
	Size int64

	// ETag is the origin entity tag. Cached data is only valid for the
	// tag it was fetched under.
	ETag string
}

// Origin is a remote object store. Implementations must be safe for
// concurrent use.
type Origin interface {
	// Stat returns metadata for key, or ErrNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Fetch reads len(p) bytes at offset off into p, following
	// io.ReaderAt semantics: a short read returns the bytes read and
	// io.EOF, and an offset at or past the end returns (0, io.EOF).
	// Returns ErrNotFound when the object is absent.
	Fetch(ctx context.Context, key string, off int64, p []byte) (int, error)
}
