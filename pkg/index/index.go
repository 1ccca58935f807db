// Package index is the persistent object registry: it maps origin
// object keys to their backing files and remembers enough metadata to
// revalidate and cull them across restarts.
package index

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry records one cached object.
type Entry struct {
	// Key is the origin object key.
	Key string `json:"key"`

	// FileID names the backing file under the cache root.
	FileID uuid.UUID `json:"file_id"`

	// Size is the object size learned from the origin at open time.
	Size int64 `json:"size"`

	// ETag is the origin entity tag the cached data belongs to.
	ETag string `json:"etag"`

	// Blocks counts the blocks admitted for this object.
	Blocks uint64 `json:"blocks"`

	// Degraded marks objects that fell back to pass-through mode.
	Degraded bool `json:"degraded"`

	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// Index is the object registry. Implementations must be safe for
// concurrent use.
type Index interface {
	// Get returns the entry for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores or replaces the entry under entry.Key.
	Put(ctx context.Context, entry *Entry) error

	// Delete removes the entry for key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// Touch updates the last-used time for key. Returns ErrNotFound
	// when the key is absent.
	Touch(ctx context.Context, key string, at time.Time) error

	// List returns all entries. Order is unspecified.
	List(ctx context.Context) ([]*Entry, error)

	// ForEach calls fn for every entry, stopping at the first error.
	ForEach(ctx context.Context, fn func(*Entry) error) error

	// Close releases the registry.
	Close() error
}
