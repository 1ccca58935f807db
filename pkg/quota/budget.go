package quota

import "sync"

// Budget is a counted Oracle with hard limits on backing files and
// blocks. Reserve consumes capacity atomically, so a grant can never be
// invalidated by a later grant racing against it. A zero limit means
// unlimited for that dimension.
type Budget struct {
	mu         sync.Mutex
	maxFiles   uint64
	maxBlocks  uint64
	usedFiles  uint64
	usedBlocks uint64
}

// NewBudget returns a Budget allowing up to maxFiles backing files and
// maxBlocks cached blocks.
func NewBudget(maxFiles, maxBlocks uint64) *Budget {
	return &Budget{maxFiles: maxFiles, maxBlocks: maxBlocks}
}

// Reserve admits the request only if both dimensions fit, and consumes
// the capacity before returning.
func (b *Budget) Reserve(files, blocks uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxFiles > 0 && b.usedFiles+files > b.maxFiles {
		return ErrNoSpace
	}
	if b.maxBlocks > 0 && b.usedBlocks+blocks > b.maxBlocks {
		return ErrNoSpace
	}

	b.usedFiles += files
	b.usedBlocks += blocks
	return nil
}

// Release returns capacity consumed by an earlier Reserve. Releasing
// more than was reserved clamps to zero.
func (b *Budget) Release(files, blocks uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if files > b.usedFiles {
		b.usedFiles = 0
	} else {
		b.usedFiles -= files
	}
	if blocks > b.usedBlocks {
		b.usedBlocks = 0
	} else {
		b.usedBlocks -= blocks
	}
}

// Stats reports current usage against the limits.
func (b *Budget) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		FilesUsed:   b.usedFiles,
		FilesLimit:  b.maxFiles,
		BlocksUsed:  b.usedBlocks,
		BlocksLimit: b.maxBlocks,
	}
	if b.maxBlocks > 0 {
		s.FreePct = float64(b.maxBlocks-b.usedBlocks) / float64(b.maxBlocks) * 100
	}
	return s
}
