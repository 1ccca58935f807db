package engine

import (
	"context"
	"errors"

	"github.com/quarryfs/quarry/internal/logger"
)

// Retrieve asks the cache for one block. Backed blocks complete through
// op's callback (possibly before Retrieve returns); Reserved blocks are
// admitted for write-back and the caller fetches them from the origin;
// DispositionNone means the cache declined, with the error saying why.
func (e *Engine) Retrieve(ctx context.Context, op *Retrieval, obj *Object, blk *Block) (Disposition, error) {
	if err := e.gate(ctx, obj); err != nil {
		return DispositionNone, err
	}
	d, err := e.retrieveOne(op, obj, blk)
	e.metrics.Disposition(d)
	logger.Debug("retrieve",
		logger.KeyRetrieval, op.id,
		logger.KeyObject, obj.key,
		logger.KeyBlock, blk.Index,
		logger.KeyDisposition, d.String())
	return d, err
}

// RetrieveBatch is Retrieve over a set of blocks. Quota is consulted
// per absent block in order, so admission is monotonic within the
// request: once the budget runs out, later absent blocks are declined
// while present blocks are still served. The returned count is the
// number of blocks the cache did not take over (reserved + declined);
// the error is ErrNoBuffers if any block was declined for quota, or
// the first hard failure, which stops the batch.
func (e *Engine) RetrieveBatch(ctx context.Context, op *Retrieval, obj *Object, blks []*Block) ([]Disposition, int, error) {
	ds := make([]Disposition, len(blks))
	remaining := len(blks)
	if err := e.gate(ctx, obj); err != nil {
		return ds, remaining, err
	}

	var admission error
	for i, blk := range blks {
		d, err := e.retrieveOne(op, obj, blk)
		ds[i] = d
		e.metrics.Disposition(d)
		if d == DispositionBacked {
			remaining--
		}
		if err != nil {
			if errors.Is(err, ErrNoBuffers) {
				admission = ErrNoBuffers
				continue
			}
			logger.Debug("retrieve batch aborted",
				logger.KeyRetrieval, op.id,
				logger.KeyObject, obj.key,
				logger.KeyBlock, blk.Index,
				logger.KeyError, err)
			return ds, remaining, err
		}
	}
	logger.Debug("retrieve batch",
		logger.KeyRetrieval, op.id,
		logger.KeyObject, obj.key,
		logger.KeyBlocks, len(blks),
		logger.KeyCount, remaining)
	return ds, remaining, admission
}

// gate applies the object-level preconditions shared by the retrieval
// entry points.
func (e *Engine) gate(ctx context.Context, obj *Object) error {
	if e.stopping() {
		return ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if obj.backer == nil {
		return ErrNoBackingStore
	}
	if obj.Degraded() {
		return ErrIO
	}
	if obj.backer.Granularity() > e.geom.BlockSize {
		return ErrNoBuffers
	}
	return nil
}

// retrieveOne decides one block: present data goes through the backing
// read pipeline, absent data is admitted (or not) by the quota oracle.
func (e *Engine) retrieveOne(op *Retrieval, obj *Object, blk *Block) (Disposition, error) {
	if len(blk.Data) != int(e.geom.BlockSize) {
		return DispositionNone, ErrNoBuffers
	}

	present, err := obj.backer.HasData(blk.Index)
	if err != nil {
		// Treat a failed probe as absent: the block falls through to
		// the origin, which is always correct.
		logger.Warn("presence probe failed",
			logger.KeyObject, obj.key,
			logger.KeyBlock, blk.Index,
			logger.KeyError, err)
		present = false
	}
	if present {
		return e.readBackingBlock(op, obj, blk)
	}

	if err := e.quota.Reserve(0, 1); err != nil {
		return DispositionNone, ErrNoBuffers
	}
	op.markCached(blk)
	return DispositionReserved, nil
}

// readBackingBlock hands one present block to the backing read
// pipeline. On return the block is either already complete (uptodate
// data copied synchronously) or a monitor is armed and the completion
// arrives through the worker.
func (e *Engine) readBackingBlock(op *Retrieval, obj *Object, blk *Block) (Disposition, error) {
	store := obj.backer.Blocks()

	b, err := store.GetOrCreate(blk.Index)
	if err != nil {
		e.degradeObject(obj, err)
		return DispositionNone, ErrIO
	}

	if b.HasError() {
		cause := b.Err()
		b.Put()
		e.degradeObject(obj, cause)
		return DispositionNone, ErrIO
	}
	if b.Uptodate() {
		copy(blk.Data, b.Data())
		op.markCached(blk)
		op.notify(blk, nil)
		b.Put()
		return DispositionBacked, nil
	}

	if !e.monitors.TryAcquire(1) {
		b.Put()
		return DispositionNone, ErrOutOfMemory
	}

	// The monitor takes over our reference on b. Registration happens
	// before the lock attempt; the jumpstart below covers the window
	// in between.
	m := e.newMonitor(op, obj, blk, b)
	b.AddWaiter(m.waiter)

	if b.TryLock() {
		// State may have settled between registration and locking.
		switch {
		case b.HasError():
			cause := b.Err()
			owned := b.RemoveWaiter(m.waiter)
			b.Unlock()
			if !owned {
				// The waiter fired first; the worker owns the
				// completion now.
				return DispositionBacked, nil
			}
			e.settle(m)
			e.degradeObject(obj, cause)
			return DispositionNone, ErrIO
		case b.Uptodate():
			// Unlocking synthesizes the notification.
			b.Unlock()
			return DispositionBacked, nil
		}

		if err := store.IssueRead(b); err != nil {
			owned := b.RemoveWaiter(m.waiter)
			b.Unlock()
			if !owned {
				return DispositionBacked, nil
			}
			e.settle(m)
			e.degradeObject(obj, err)
			return DispositionNone, ErrIO
		}
		e.metrics.ReadIssued()
	}

	// A completion may have fired before the waiter registered;
	// locking and unlocking re-fires it.
	if b.TryLock() {
		b.Unlock()
	}
	return DispositionBacked, nil
}
