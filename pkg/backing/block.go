package backing

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Waiter is a one-shot notification registration on a backing block.
// Its callback runs when the block's lock is released, on the goroutine
// performing the unlock. Callbacks must be quick and must not block.
type Waiter struct {
	fn func(*Block)
}

// NewWaiter wraps a callback for registration with AddWaiter.
func NewWaiter(fn func(*Block)) *Waiter {
	return &Waiter{fn: fn}
}

// Block is one cache-block-sized unit of a backing file held in memory.
//
// A block carries three pieces of state the engine's read protocol
// relies on:
//
//   - a lock bit: held by whichever party is filling the block, and by
//     exactly one party at a time;
//   - uptodate/error flags, set once before the filling party unlocks;
//   - a waiter list, fired and cleared on every unlock.
//
// Blocks are reference counted. The store holds one reference while the
// block is resident; every retrieval holding the block takes its own
// with Get and drops it with Put. Put below zero panics: a reference
// must be released exactly once.
type Block struct {
	index uint64
	refs  atomic.Int32

	mu       sync.Mutex
	data     []byte
	locked   bool
	uptodate bool
	err      error
	waiters  []*Waiter

	// release runs when the reference count reaches zero.
	release func(*Block)
}

func newBlock(index uint64, data []byte, release func(*Block)) *Block {
	b := &Block{index: index, data: data, release: release}
	b.refs.Store(1)
	return b
}

// Index returns the block's index within its backing file.
func (b *Block) Index() uint64 { return b.index }

// Data returns the block's buffer. Readers may touch it only after the
// block reports uptodate.
func (b *Block) Data() []byte { return b.data }

// Get takes a reference. The caller must already hold one, directly or
// via the store's resident reference.
func (b *Block) Get() *Block {
	if b.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("backing: Get on released block %d", b.index))
	}
	return b
}

// Put drops a reference. The last Put releases the block's buffer.
func (b *Block) Put() {
	n := b.refs.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("backing: Put below zero on block %d", b.index))
	}
	if n == 0 && b.release != nil {
		b.release(b)
	}
}

// Refs returns the current reference count.
func (b *Block) Refs() int32 { return b.refs.Load() }

// TryLock attempts to take the fill lock without blocking.
func (b *Block) TryLock() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.locked {
		return false
	}
	b.locked = true
	return true
}

// Unlock releases the fill lock and fires all registered waiters. It
// does not change the uptodate or error state; a read completion that
// needs to set state goes through finish.
func (b *Block) Unlock() {
	b.mu.Lock()
	if !b.locked {
		b.mu.Unlock()
		panic(fmt.Sprintf("backing: Unlock of unlocked block %d", b.index))
	}
	b.locked = false
	fired := b.waiters
	b.waiters = nil
	b.mu.Unlock()

	for _, w := range fired {
		w.fn(b)
	}
}

// finish records the outcome of a read into the block and unlocks it,
// waking all waiters. Called by the reader pool.
func (b *Block) finish(err error) {
	b.mu.Lock()
	if err != nil {
		b.err = err
	} else {
		b.uptodate = true
	}
	b.locked = false
	fired := b.waiters
	b.waiters = nil
	b.mu.Unlock()

	for _, w := range fired {
		w.fn(b)
	}
}

// Uptodate reports whether the block holds valid data.
func (b *Block) Uptodate() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uptodate
}

// HasError reports whether a read against the block failed.
func (b *Block) HasError() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err != nil
}

// Err returns the recorded read error, if any.
func (b *Block) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Locked reports whether a fill is in flight.
func (b *Block) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// AddWaiter registers w for the next unlock. Registration is allowed at
// any time; pairing it with a TryLock double-check closes the window
// where an unlock slips by between checking state and registering.
func (b *Block) AddWaiter(w *Waiter) {
	b.mu.Lock()
	b.waiters = append(b.waiters, w)
	b.mu.Unlock()
}

// RemoveWaiter deregisters w before it fires. It reports whether the
// waiter was still registered.
func (b *Block) RemoveWaiter(w *Waiter) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, x := range b.waiters {
		if x == w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return true
		}
	}
	return false
}
