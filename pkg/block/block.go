// Package block provides block-addressing math shared by the cache
// engine and its callers.
//
// A cached object is divided into fixed-size blocks; block index 0
// starts at byte offset 0. The block size is engine-wide, configurable
// and always a power of two (64KiB by default). All helpers hang off a
// Geometry value so callers never repeat the size arithmetic.
package block

import "fmt"

const (
	// DefaultSize is the default block size (64KiB).
	DefaultSize = 64 * 1024

	// MinSize is the smallest allowed block size (4KiB).
	MinSize = 4 * 1024

	// MaxSize is the largest allowed block size (16MiB).
	MaxSize = 16 * 1024 * 1024
)

// Geometry captures the block size of a cache and derives block/byte
// conversions from it.
type Geometry struct {
	BlockSize int64
}

// NewGeometry validates the block size and returns a Geometry for it.
func NewGeometry(blockSize int64) (Geometry, error) {
	if blockSize < MinSize || blockSize > MaxSize {
		return Geometry{}, fmt.Errorf("block size %d out of range [%d, %d]", blockSize, MinSize, MaxSize)
	}
	if blockSize&(blockSize-1) != 0 {
		return Geometry{}, fmt.Errorf("block size %d is not a power of two", blockSize)
	}
	return Geometry{BlockSize: blockSize}, nil
}

// IndexForOffset returns the block index containing the byte offset.
func (g Geometry) IndexForOffset(off int64) uint64 {
	return uint64(off / g.BlockSize)
}

// OffsetInBlock returns the offset of a byte within its block.
func (g Geometry) OffsetInBlock(off int64) int64 {
	return off % g.BlockSize
}

// Start returns the byte offset where a block begins.
func (g Geometry) Start(idx uint64) int64 {
	return int64(idx) * g.BlockSize
}

// Bounds returns the byte range [start, end) covered by a block.
func (g Geometry) Bounds(idx uint64) (start, end int64) {
	start = g.Start(idx)
	return start, start + g.BlockSize
}

// Range returns the inclusive block index range touched by the byte
// range [off, off+length). A zero length touches only off's block.
func (g Geometry) Range(off, length int64) (first, last uint64) {
	first = g.IndexForOffset(off)
	if length <= 0 {
		return first, first
	}
	return first, g.IndexForOffset(off + length - 1)
}

// Count returns how many blocks an object of the given size occupies.
func (g Geometry) Count(size int64) uint64 {
	if size <= 0 {
		return 0
	}
	return uint64((size + g.BlockSize - 1) / g.BlockSize)
}

// Len returns how many bytes of a block are valid for an object of the
// given size: the full block size, a short tail for the final partial
// block, or 0 when the block starts at or beyond the object's end.
func (g Geometry) Len(idx uint64, size int64) int64 {
	start := g.Start(idx)
	if start >= size {
		return 0
	}
	if remain := size - start; remain < g.BlockSize {
		return remain
	}
	return g.BlockSize
}
