package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/quarryfs/quarry/internal/logger"
	"github.com/quarryfs/quarry/internal/telemetry"
	"github.com/quarryfs/quarry/pkg/bufpool"
	"github.com/quarryfs/quarry/pkg/engine"
)

// blockResult carries one backed completion out of the engine's
// callback.
type blockResult struct {
	blk *engine.Block
	err error
}

// ReadAt reads len(p) bytes at offset off from the object, serving
// resident blocks from the cache and fetching the rest from the
// origin. Origin bytes for admitted blocks are written back before the
// call returns. The contract is io.ReaderAt's: a read reaching the
// object's end returns the bytes read and io.EOF.
func (s *Service) ReadAt(ctx context.Context, key string, p []byte, off int64) (int, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "read", key,
		telemetry.Offset(off),
		telemetry.Length(len(p)))
	defer span.End()

	if off < 0 {
		return 0, fmt.Errorf("service: negative offset %d", off)
	}

	h, err := s.ensure(ctx, key)
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	size := h.obj.EOF()
	if off >= size {
		return 0, io.EOF
	}
	want := int64(len(p))
	atEnd := false
	if off+want >= size {
		want = size - off
		atEnd = true
	}

	var n int
	if h.cached() && !h.obj.Degraded() {
		n, err = s.readCached(ctx, h, p[:want], off)
	} else {
		telemetry.SetAttributes(ctx, telemetry.Degraded(h.obj.Degraded()))
		n, err = s.readOrigin(ctx, h, p[:want], off)
	}
	s.metrics.Read(int64(n))
	switch {
	case err == nil:
		if atEnd {
			return n, io.EOF
		}
		return n, nil
	case errors.Is(err, io.EOF):
		return n, io.EOF
	default:
		telemetry.RecordError(ctx, err)
		return n, err
	}
}

// readOrigin serves a read straight from the origin, bypassing the
// cache. Pass-through handles and degraded objects land here.
func (s *Service) readOrigin(ctx context.Context, h *handle, p []byte, off int64) (int, error) {
	first, last := s.geom.Range(off, int64(len(p)))
	n, err := s.org.Fetch(ctx, h.entry.Key, off, p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("service: origin read %q: %w", h.entry.Key, err)
	}
	s.metrics.Blocks(SourceOrigin, int(last-first+1))
	if err != nil {
		return n, io.EOF
	}
	return n, nil
}

// readCached runs the block-granular cycle: retrieve the span from the
// engine, wait out backed completions, fill the gaps from the origin,
// write admitted blocks back and assemble the caller's range.
func (s *Service) readCached(ctx context.Context, h *handle, p []byte, off int64) (int, error) {
	first, last := s.geom.Range(off, int64(len(p)))
	count := int(last - first + 1)
	telemetry.SetAttributes(ctx, telemetry.Blocks(count))

	blks := make([]*engine.Block, count)
	bufs := make([][]byte, count)
	for i := range blks {
		bufs[i] = bufpool.Get(int(s.geom.BlockSize))
		blks[i] = &engine.Block{Index: first + uint64(i), Data: bufs[i]}
	}

	results := make(chan blockResult, count)
	op := engine.NewRetrieval(func(blk *engine.Block, err error) {
		results <- blockResult{blk: blk, err: err}
	})
	// Buffers recycle only once the last monitor settles; completions
	// may still land after an early return below.
	op.OnRelease(func() {
		for _, buf := range bufs {
			bufpool.Put(buf)
		}
	})
	defer op.Done()

	ds, _, err := s.eng.RetrieveBatch(ctx, op, h.obj, blks)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrNoBuffers):
		// Declined blocks fall through to the origin, uncached.
	case errors.Is(err, engine.ErrIO), errors.Is(err, engine.ErrOutOfMemory):
		// The batch stopped early; unreached blocks read as not taken
		// and the origin serves them.
	default:
		return 0, fmt.Errorf("service: retrieve %q: %w", h.entry.Key, err)
	}

	fetch := make([]bool, count)
	writeBack := make([]bool, count)
	backed, reserved := 0, 0
	for i, d := range ds {
		switch d {
		case engine.DispositionBacked:
			backed++
		case engine.DispositionReserved:
			reserved++
			fetch[i] = true
			writeBack[i] = true
		default:
			fetch[i] = true
		}
	}

	// Wait out the backed blocks. A block that vanished in a
	// truncation race or failed its backing read joins the origin set.
	served := backed
	for done := 0; done < backed; done++ {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case res := <-results:
			if res.err != nil {
				fetch[res.blk.Index-first] = true
				served--
			}
		}
	}
	if served > 0 {
		s.metrics.Blocks(SourceCache, served)
	}

	// Fill the gaps block-aligned from the origin and write admitted
	// blocks back. Write-back refusals only cost residency.
	misses := 0
	for i, blk := range blks {
		if !fetch[i] {
			continue
		}
		if ferr := s.fillFromOrigin(ctx, h, blk); ferr != nil {
			return 0, ferr
		}
		misses++
		if writeBack[i] {
			if werr := s.eng.Write(ctx, op, h.obj, blk); werr != nil {
				logger.Debug("write-back declined",
					logger.KeyObject, h.entry.Key,
					logger.KeyBlock, blk.Index,
					logger.KeyError, werr)
			}
		}
	}
	if misses > 0 {
		s.metrics.Blocks(SourceOrigin, misses)
	}
	telemetry.SetAttributes(ctx, telemetry.Hit(misses == 0))

	s.finishRead(ctx, h, reserved)

	// Assemble the caller's range from the block buffers.
	n := 0
	for _, blk := range blks {
		bs := s.geom.Start(blk.Index)
		be := bs + s.geom.BlockSize
		lo := max(off, bs)
		hi := min(off+int64(len(p)), be)
		if hi <= lo {
			continue
		}
		copy(p[lo-off:hi-off], blk.Data[lo-bs:hi-bs])
		n += int(hi - lo)
	}
	return n, nil
}

// fillFromOrigin fetches one block's bytes, clamped to the object's
// size, into the block buffer.
func (s *Service) fillFromOrigin(ctx context.Context, h *handle, blk *engine.Block) error {
	valid := s.geom.Len(blk.Index, h.obj.EOF())
	pos := s.geom.Start(blk.Index)
	n, err := s.org.Fetch(ctx, h.entry.Key, pos, blk.Data[:valid])
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("service: origin read %q block %d: %w", h.entry.Key, blk.Index, err)
	}
	if int64(n) < valid {
		// The origin shrank under us; the next open revalidates.
		return fmt.Errorf("service: origin read %q block %d: %w", h.entry.Key, blk.Index, io.ErrUnexpectedEOF)
	}
	return nil
}

// finishRead folds a read's admissions into the index entry: block
// count, recency and the degraded flag. Index failures are logged, not
// returned; the read itself already succeeded. A handle that lost a
// race with Remove is not written back.
func (s *Service) finishRead(ctx context.Context, h *handle, reserved int) {
	s.mu.Lock()
	live := s.handles[h.entry.Key] == h
	s.mu.Unlock()
	if !live {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.entry.Blocks += uint64(reserved)
	h.entry.LastUsed = time.Now().UTC()
	degraded := h.obj.Degraded()
	changed := reserved > 0 || degraded != h.entry.Degraded
	h.entry.Degraded = degraded

	var err error
	if changed {
		err = s.idx.Put(ctx, &h.entry)
	} else {
		err = s.idx.Touch(ctx, h.entry.Key, h.entry.LastUsed)
	}
	if err != nil {
		logger.Warn("index update failed",
			logger.KeyObject, h.entry.Key,
			logger.KeyError, err)
	}
}
