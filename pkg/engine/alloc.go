package engine

import (
	"context"

	"github.com/quarryfs/quarry/internal/logger"
)

// Allocate reserves cache space for one block without reading: the
// caller fetches the data and writes it back. Admission consumes quota
// and is never revisited for the block.
func (e *Engine) Allocate(ctx context.Context, op *Retrieval, obj *Object, blk *Block) (Disposition, error) {
	if e.stopping() {
		return DispositionNone, ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return DispositionNone, err
	}

	if err := e.quota.Reserve(0, 1); err != nil {
		return DispositionNone, ErrNoBuffers
	}
	op.markCached(blk)
	e.metrics.Disposition(DispositionReserved)
	logger.Debug("allocate",
		logger.KeyRetrieval, op.id,
		logger.KeyObject, obj.key,
		logger.KeyBlock, blk.Index)
	return DispositionReserved, nil
}

// AllocateBatch reserves space for a set of blocks in one all-or-
// nothing quota draw: either every block comes back Reserved or none
// does and the call fails with ErrNoBuffers.
func (e *Engine) AllocateBatch(ctx context.Context, op *Retrieval, obj *Object, blks []*Block) ([]Disposition, error) {
	ds := make([]Disposition, len(blks))
	if e.stopping() {
		return ds, ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return ds, err
	}
	if len(blks) == 0 {
		return ds, nil
	}

	if err := e.quota.Reserve(0, uint64(len(blks))); err != nil {
		return ds, ErrNoBuffers
	}
	for i, blk := range blks {
		op.markCached(blk)
		ds[i] = DispositionReserved
		e.metrics.Disposition(DispositionReserved)
	}
	logger.Debug("allocate batch",
		logger.KeyRetrieval, op.id,
		logger.KeyObject, obj.key,
		logger.KeyBlocks, len(blks))
	return ds, nil
}
