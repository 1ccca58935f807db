package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quarryfs/quarry/internal/logger"
	"github.com/quarryfs/quarry/internal/telemetry"
	"github.com/quarryfs/quarry/pkg/engine"
	"github.com/quarryfs/quarry/pkg/index"
)

// List returns the index entries of every cached object.
func (s *Service) List(ctx context.Context) ([]*index.Entry, error) {
	entries, err := s.idx.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list objects: %w", err)
	}
	return entries, nil
}

// Describe returns the index entry for one object without touching the
// origin.
func (s *Service) Describe(ctx context.Context, key string) (*index.Entry, error) {
	entry, err := s.idx.Get(ctx, key)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return nil, fmt.Errorf("service: describe %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("service: index lookup %q: %w", key, err)
	}
	return entry, nil
}

// Invalidate drops every cached block of an object but keeps the
// object itself. Subsequent reads repopulate from the origin.
func (s *Service) Invalidate(ctx context.Context, key string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "invalidate", key)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if h, ok := s.handles[key]; ok {
		return s.invalidateHandle(ctx, h)
	}

	entry, err := s.idx.Get(ctx, key)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return fmt.Errorf("service: invalidate %q: %w", key, ErrNotFound)
		}
		return fmt.Errorf("service: index lookup %q: %w", key, err)
	}

	// Cold object: truncate the backing file without keeping it open.
	file, err := s.mgr.Open(entry.FileID.String())
	if err != nil {
		return fmt.Errorf("service: open backing for %q: %w", key, err)
	}
	obj := engine.NewObject(key, file, entry.Size)
	terr := s.eng.Truncate(ctx, obj, 0)
	if cerr := file.Close(); cerr != nil {
		logger.Warn("backing file close failed",
			logger.KeyObject, key,
			logger.KeyError, cerr)
	}
	if terr != nil && !errors.Is(terr, engine.ErrIO) {
		return fmt.Errorf("service: truncate %q: %w", key, terr)
	}

	dropped := entry.Blocks
	entry.Blocks = 0
	entry.Degraded = entry.Degraded || obj.Degraded()
	entry.LastUsed = time.Now().UTC()
	if err := s.idx.Put(ctx, entry); err != nil {
		return fmt.Errorf("service: index put %q: %w", key, err)
	}
	s.metrics.Invalidated()
	logger.Info("object invalidated",
		logger.KeyObject, key,
		logger.KeyBlocks, dropped)
	return nil
}

// invalidateHandle drops the cached blocks of a live handle and
// restores its logical size. The truncation releases the blocks' quota
// inside the engine.
func (s *Service) invalidateHandle(ctx context.Context, h *handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	dropped := h.entry.Blocks
	if h.cached() {
		if err := s.eng.Truncate(ctx, h.obj, 0); err != nil && !errors.Is(err, engine.ErrIO) {
			return fmt.Errorf("service: truncate %q: %w", h.entry.Key, err)
		}
		h.obj.SetEOF(h.entry.Size)
	}
	h.entry.Blocks = 0
	h.entry.Degraded = h.obj.Degraded()
	h.entry.LastUsed = time.Now().UTC()
	if h.cached() {
		if err := s.idx.Put(ctx, &h.entry); err != nil {
			return fmt.Errorf("service: index put %q: %w", h.entry.Key, err)
		}
	}
	s.metrics.Invalidated()
	logger.Info("object invalidated",
		logger.KeyObject, h.entry.Key,
		logger.KeyBlocks, dropped)
	return nil
}

// Remove evicts an object outright: handle, backing file, index entry
// and quota reservation all go. Both the admin API's delete and the
// culler land here.
func (s *Service) Remove(ctx context.Context, key string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "remove", key)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var entry index.Entry
	if h, ok := s.handles[key]; ok {
		h.mu.Lock()
		entry = h.entry
		h.mu.Unlock()
		delete(s.handles, key)
		if h.file != nil {
			if err := h.file.Close(); err != nil {
				logger.Warn("backing file close failed",
					logger.KeyObject, key,
					logger.KeyError, err)
			}
		}
	} else {
		e, err := s.idx.Get(ctx, key)
		if err != nil {
			if errors.Is(err, index.ErrNotFound) {
				return fmt.Errorf("service: remove %q: %w", key, ErrNotFound)
			}
			return fmt.Errorf("service: index lookup %q: %w", key, err)
		}
		entry = *e
	}

	if entry.FileID != uuid.Nil {
		if err := s.mgr.Remove(entry.FileID.String()); err != nil {
			// The index entry still goes; a leftover file is swept up
			// on the next open of the same key.
			logger.Warn("backing file remove failed",
				logger.KeyObject, key,
				logger.KeyFileID, entry.FileID,
				logger.KeyError, err)
		}
	}
	if err := s.idx.Delete(ctx, key); err != nil && !errors.Is(err, index.ErrNotFound) {
		return fmt.Errorf("service: index delete %q: %w", key, err)
	}
	if entry.FileID != uuid.Nil {
		s.quota.Release(1, entry.Blocks)
	}
	s.metrics.Removed()
	logger.Info("object removed",
		logger.KeyObject, key,
		logger.KeyFileID, entry.FileID,
		logger.KeyBlocks, entry.Blocks)
	return nil
}
