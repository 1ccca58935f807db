package engine

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// BlockCallback receives the outcome for one backed block: nil on a
// successful copy, ErrIO on backing failure, ErrNoData when the block
// vanished before it could be read. It may run on the caller's
// goroutine or on a completion worker.
type BlockCallback func(blk *Block, err error)

// Retrieval is one retrieval operation. It carries the completion
// callback shared by all blocks of the operation and is reference
// counted: the creator holds one reference and drops it with Done;
// each in-flight monitor holds another.
type Retrieval struct {
	id         uuid.UUID
	onComplete BlockCallback
	onCached   func(*Block)
	onRelease  func()
	refs       atomic.Int64
}

// NewRetrieval creates a retrieval operation around a completion
// callback. Call Done when no more blocks will be submitted under it.
func NewRetrieval(onComplete BlockCallback) *Retrieval {
	r := &Retrieval{
		id:         uuid.New(),
		onComplete: onComplete,
	}
	r.refs.Store(1)
	return r
}

// ID identifies the operation in logs.
func (r *Retrieval) ID() uuid.UUID { return r.id }

// OnCached installs a hook invoked whenever a block becomes cached
// under this operation. Set it before the first retrieve call.
func (r *Retrieval) OnCached(fn func(*Block)) { r.onCached = fn }

// OnRelease installs a hook invoked when the last reference is
// dropped. Set it before the first retrieve call.
func (r *Retrieval) OnRelease(fn func()) { r.onRelease = fn }

// Done drops the creator's reference.
func (r *Retrieval) Done() { r.put() }

func (r *Retrieval) get() {
	if r.refs.Add(1) <= 1 {
		panic("engine: retrieval revived after release")
	}
}

func (r *Retrieval) put() {
	n := r.refs.Add(-1)
	if n < 0 {
		panic("engine: retrieval released twice")
	}
	if n == 0 && r.onRelease != nil {
		r.onRelease()
	}
}

// notify invokes the completion callback for one block.
func (r *Retrieval) notify(blk *Block, err error) {
	if r.onComplete != nil {
		r.onComplete(blk, err)
	}
}

// markCached flags blk as held by the cache and fires the hook.
func (r *Retrieval) markCached(blk *Block) {
	blk.setCached(true)
	if r.onCached != nil {
		r.onCached(blk)
	}
}
