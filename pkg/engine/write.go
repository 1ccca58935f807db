package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quarryfs/quarry/internal/logger"
)

// Write stores one block into the backing file, synchronously. The
// write length is the block size clamped to the logical EOF, so a
// partial final block writes exactly the bytes below EOF and nothing
// past it. Blocks at or beyond EOF are refused without touching the
// device. An unrecoverable write degrades the object; the caller sees
// ErrNoBuffers and stops writing back.
func (e *Engine) Write(ctx context.Context, op *Retrieval, obj *Object, blk *Block) error {
	if e.stopping() {
		return ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if obj.backer == nil || obj.Degraded() {
		return ErrNoBuffers
	}

	n := e.geom.Len(blk.Index, obj.EOF())
	if n == 0 {
		return ErrNoBuffers
	}
	if int64(len(blk.Data)) < n {
		return ErrNoBuffers
	}
	pos := e.geom.Start(blk.Index)

	start := time.Now()
	written, err := obj.backer.WriteAt(blk.Data[:n], pos)
	if err != nil {
		e.degradeObject(obj, err)
		return ErrNoBuffers
	}
	if int64(written) != n {
		e.degradeObject(obj, fmt.Errorf("short write: %d of %d bytes", written, n))
		return ErrNoBuffers
	}

	e.metrics.WriteBack(n, time.Since(start))
	logger.Debug("write-back",
		logger.KeyRetrieval, op.id,
		logger.KeyObject, obj.key,
		logger.KeyBlock, blk.Index,
		logger.KeyBytes, n)
	return nil
}

// Uncache clears the cached marker on a requester block. Bookkeeping
// only; backing data is untouched.
func (e *Engine) Uncache(obj *Object, blk *Block) {
	blk.setCached(false)
	logger.Debug("uncache",
		logger.KeyObject, obj.key,
		logger.KeyBlock, blk.Index)
}

// Truncate shrinks the object's logical EOF, drops backing blocks at
// or beyond it and returns their quota. Growing only moves the EOF.
func (e *Engine) Truncate(ctx context.Context, obj *Object, size int64) error {
	if e.stopping() {
		return ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if size < 0 {
		size = 0
	}

	old := obj.EOF()
	obj.SetEOF(size)
	if obj.backer == nil {
		return nil
	}

	dropped, err := obj.backer.Truncate(size)
	if before := e.geom.Count(old); before > e.geom.Count(size) {
		e.quota.Release(0, before-e.geom.Count(size))
	}
	if err != nil {
		e.degradeObject(obj, err)
		return ErrIO
	}

	logger.Debug("truncate",
		logger.KeyObject, obj.key,
		logger.KeySize, size,
		logger.KeyBlocks, dropped)
	return nil
}
