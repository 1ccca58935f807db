package backing

import (
	"sync"
)

// Blocks is the in-memory block store of one backing file: the set of
// backing blocks currently resident for it, keyed by block index. It is
// the cache engine's view of the file's contents; reads are issued
// through it and truncation invalidates through it.
type Blocks struct {
	mgr *Manager
	dev Device

	mu     sync.Mutex
	blocks map[uint64]*Block
	closed bool
}

func newBlocks(mgr *Manager, dev Device) *Blocks {
	return &Blocks{
		mgr:    mgr,
		dev:    dev,
		blocks: make(map[uint64]*Block),
	}
}

// GetOrCreate returns the resident block for index, creating it when
// absent. The returned block carries a reference the caller must Put.
func (s *Blocks) GetOrCreate(index uint64) (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	if b, ok := s.blocks[index]; ok {
		return b.Get(), nil
	}

	b := newBlock(index, s.mgr.getBuf(), s.release)
	s.blocks[index] = b
	return b.Get(), nil
}

// Peek returns the resident block for index without creating one. The
// returned block carries a reference the caller must Put.
func (s *Blocks) Peek(index uint64) (*Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[index]
	if !ok {
		return nil, false
	}
	return b.Get(), true
}

// IssueRead hands the block to the reader pool. The caller must hold
// the block's fill lock; ownership of the lock passes to the read,
// which sets uptodate-or-error and unlocks when it completes. On error
// the lock stays with the caller.
func (s *Blocks) IssueRead(b *Block) error {
	if !b.Locked() {
		return ErrNotLocked
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrStoreClosed
	}

	b.Get() // reference held by the in-flight read
	off := int64(b.index) * s.mgr.blockSize
	if err := s.mgr.submitRead(readRequest{dev: s.dev, block: b, off: off}); err != nil {
		b.Put()
		return err
	}
	return nil
}

// Truncate drops every resident block whose first byte lies at or past
// size and returns how many were dropped. Holders of a dropped block
// keep their references; the block is simply no longer what the index
// maps to, which is how in-flight retrievals detect the truncation.
func (s *Blocks) Truncate(size int64) int {
	var first uint64
	if size > 0 {
		first = uint64((size + s.mgr.blockSize - 1) / s.mgr.blockSize)
	}

	s.mu.Lock()
	var orphaned []*Block
	for idx, b := range s.blocks {
		if idx >= first {
			delete(s.blocks, idx)
			orphaned = append(orphaned, b)
		}
	}
	s.mu.Unlock()

	for _, b := range orphaned {
		b.Put() // drop the store's resident reference
	}
	return len(orphaned)
}

// Live returns the number of resident blocks.
func (s *Blocks) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}

// close drops all resident blocks and rejects further use.
func (s *Blocks) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	orphaned := make([]*Block, 0, len(s.blocks))
	for idx, b := range s.blocks {
		delete(s.blocks, idx)
		orphaned = append(orphaned, b)
	}
	s.mu.Unlock()

	for _, b := range orphaned {
		b.Put()
	}
}

// release returns a block's buffer to the pool once the last reference
// is gone.
func (s *Blocks) release(b *Block) {
	if b.data != nil {
		s.mgr.putBuf(b.data)
		b.data = nil
	}
}
