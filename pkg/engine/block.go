package engine

import "sync/atomic"

// Disposition says what the cache decided for one requested block.
type Disposition int

const (
	// DispositionNone: the cache did not take the block. The caller
	// owns fetching it, and no completion callback will arrive.
	DispositionNone Disposition = iota

	// DispositionBacked: the block is served from the backing store.
	// The completion callback fires exactly once, possibly before the
	// retrieve call returns.
	DispositionBacked

	// DispositionReserved: the block is absent but admitted. The
	// caller fetches it from the origin and writes it back.
	DispositionReserved
)

func (d Disposition) String() string {
	switch d {
	case DispositionBacked:
		return "backed"
	case DispositionReserved:
		return "reserved"
	default:
		return "none"
	}
}

// Block is a requester-owned block buffer. The engine copies backing
// bytes into Data on a backed retrieval and reads from it on
// write-back. Data must be exactly one block long.
type Block struct {
	Index uint64
	Data  []byte

	cached atomic.Bool
}

// Cached reports whether the cache holds (or has reserved) this block.
func (b *Block) Cached() bool { return b.cached.Load() }

func (b *Block) setCached(v bool) { b.cached.Store(v) }
