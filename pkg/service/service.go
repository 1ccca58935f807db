// Package service is the cache front door: it composes the engine, the
// backing store, the object index, the origin and the quota oracle into
// a read-through, write-back object cache.
//
// Open binds an object key to a backing file, validating the cached
// copy against the origin's ETag. ReadAt serves byte ranges block by
// block: resident blocks come from the backing store through the
// engine, absent blocks are fetched from the origin and written back
// when admitted. Objects the cache cannot admit are served pass-through
// so a full cache never blocks reads.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarryfs/quarry/internal/logger"
	"github.com/quarryfs/quarry/internal/telemetry"
	"github.com/quarryfs/quarry/pkg/backing"
	"github.com/quarryfs/quarry/pkg/block"
	"github.com/quarryfs/quarry/pkg/engine"
	"github.com/quarryfs/quarry/pkg/index"
	"github.com/quarryfs/quarry/pkg/origin"
	"github.com/quarryfs/quarry/pkg/quota"
)

var (
	// ErrNotFound is returned when neither the cache nor the origin
	// knows the object.
	ErrNotFound = errors.New("service: object not found")

	// ErrClosed is returned for operations started after Close.
	ErrClosed = errors.New("service: closed")
)

// handle is the live state of one open object: its index entry, the
// backing file and the engine object bound to it. A pass-through
// handle has no file; reads on it go straight to the origin.
type handle struct {
	mu    sync.Mutex
	entry index.Entry
	file  *backing.File
	obj   *engine.Object
}

func (h *handle) cached() bool { return h.file != nil }

// Info describes an open object as served to callers.
type Info struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	ETag     string `json:"etag"`
	Cached   bool   `json:"cached"`
	Degraded bool   `json:"degraded"`
}

// describe snapshots a handle. The caller holds h.mu or owns h
// exclusively.
func describe(h *handle) Info {
	return Info{
		Key:      h.entry.Key,
		Size:     h.entry.Size,
		ETag:     h.entry.ETag,
		Cached:   h.cached(),
		Degraded: h.obj.Degraded(),
	}
}

// Option configures a Service.
type Option func(*Service)

// WithQuota installs the admission oracle. Defaults to the Nop oracle,
// which admits everything.
func WithQuota(q quota.Oracle) Option {
	return func(s *Service) {
		if q != nil {
			s.quota = q
		}
	}
}

// WithMetrics installs a metrics sink. A nil sink leaves metrics off.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Service serves object reads through the cache. Safe for concurrent
// use.
type Service struct {
	eng     *engine.Engine
	mgr     *backing.Manager
	idx     index.Index
	org     origin.Origin
	quota   quota.Oracle
	metrics Metrics
	geom    block.Geometry

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool
}

// New wires a service over its collaborators. The engine, backing
// manager, index and origin are required.
func New(eng *engine.Engine, mgr *backing.Manager, idx index.Index, org origin.Origin, opts ...Option) (*Service, error) {
	if eng == nil {
		return nil, errors.New("service: nil engine")
	}
	if mgr == nil {
		return nil, errors.New("service: nil backing manager")
	}
	if idx == nil {
		return nil, errors.New("service: nil index")
	}
	if org == nil {
		return nil, errors.New("service: nil origin")
	}

	s := &Service{
		eng:     eng,
		mgr:     mgr,
		idx:     idx,
		org:     org,
		quota:   quota.Nop{},
		metrics: nopMetrics{},
		geom:    eng.Geometry(),
		handles: make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open makes an object ready for reading. The origin is consulted for
// the current size and ETag on every call: a matching cached copy is
// reused, a stale one is dropped and repopulated lazily, an unknown key
// is admitted fresh. When quota denies admission the object is served
// pass-through.
func (s *Service) Open(ctx context.Context, key string) (Info, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "open", key)
	defer span.End()

	if key == "" {
		return Info{}, errors.New("service: empty object key")
	}

	stat, err := s.org.Stat(ctx, key)
	if err != nil {
		telemetry.RecordError(ctx, err)
		if errors.Is(err, origin.ErrNotFound) {
			return Info{}, fmt.Errorf("service: open %q: %w", key, ErrNotFound)
		}
		return Info{}, fmt.Errorf("service: stat %q: %w", key, err)
	}
	telemetry.SetAttributes(ctx, telemetry.Size(stat.Size), telemetry.ETag(stat.ETag))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Info{}, ErrClosed
	}

	if h, ok := s.handles[key]; ok {
		// Pass-through handles retry admission on every open so the
		// object starts caching once quota frees up.
		if h.cached() {
			return s.refreshLocked(ctx, h, stat)
		}
		delete(s.handles, key)
	}
	return s.admitLocked(ctx, key, stat)
}

// refreshLocked revalidates an already-open handle against the
// origin's current view. An ETag match only bumps recency; a mismatch
// drops every cached block and rebinds the object at the new size.
func (s *Service) refreshLocked(ctx context.Context, h *handle, stat origin.ObjectInfo) (Info, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.entry.ETag == stat.ETag {
		h.entry.LastUsed = time.Now().UTC()
		if err := s.idx.Touch(ctx, h.entry.Key, h.entry.LastUsed); err != nil {
			logger.Warn("index touch failed",
				logger.KeyObject, h.entry.Key,
				logger.KeyError, err)
		}
		s.metrics.Open(OpenReopened)
		return describe(h), nil
	}

	if err := s.rebind(ctx, h, stat); err != nil {
		return Info{}, err
	}
	s.metrics.Open(OpenRevalidated)
	return describe(h), nil
}

// admitLocked brings an object into the handle table: reopen a known
// backing file, or create a fresh one when the index has no entry.
func (s *Service) admitLocked(ctx context.Context, key string, stat origin.ObjectInfo) (Info, error) {
	entry, err := s.idx.Get(ctx, key)
	switch {
	case err == nil:
		return s.reopenLocked(ctx, entry, stat)
	case errors.Is(err, index.ErrNotFound):
		return s.createLocked(ctx, key, stat)
	default:
		return Info{}, fmt.Errorf("service: index lookup %q: %w", key, err)
	}
}

// reopenLocked revives a cold object from its index entry.
func (s *Service) reopenLocked(ctx context.Context, entry *index.Entry, stat origin.ObjectInfo) (Info, error) {
	file, err := s.mgr.Open(entry.FileID.String())
	if err != nil {
		// The entry outlived its backing file. Drop it and start over.
		logger.Warn("backing file unavailable, recreating object",
			logger.KeyObject, entry.Key,
			logger.KeyFileID, entry.FileID,
			logger.KeyError, err)
		if derr := s.idx.Delete(ctx, entry.Key); derr != nil && !errors.Is(derr, index.ErrNotFound) {
			return Info{}, fmt.Errorf("service: index delete %q: %w", entry.Key, derr)
		}
		s.quota.Release(1, entry.Blocks)
		return s.createLocked(ctx, entry.Key, stat)
	}

	h := &handle{entry: *entry}
	h.file = file
	h.obj = engine.NewObject(entry.Key, file, entry.Size)

	if entry.ETag == stat.ETag {
		h.entry.LastUsed = time.Now().UTC()
		if terr := s.idx.Touch(ctx, entry.Key, h.entry.LastUsed); terr != nil {
			logger.Warn("index touch failed",
				logger.KeyObject, entry.Key,
				logger.KeyError, terr)
		}
		s.handles[entry.Key] = h
		s.metrics.Open(OpenReopened)
		logger.Debug("object reopened",
			logger.KeyObject, entry.Key,
			logger.KeyFileID, entry.FileID,
			logger.KeySize, entry.Size,
			logger.KeyBlocks, entry.Blocks)
		return describe(h), nil
	}

	if err := s.rebind(ctx, h, stat); err != nil {
		file.Close()
		return Info{}, err
	}
	s.handles[entry.Key] = h
	s.metrics.Open(OpenRevalidated)
	return describe(h), nil
}

// rebind drops the handle's cached blocks and rebinds it to the
// origin's current content. The caller holds h.mu or owns h
// exclusively. Backing failures degrade the object but do not fail the
// rebind: the rewritten entry makes any stale blocks unreachable.
func (s *Service) rebind(ctx context.Context, h *handle, stat origin.ObjectInfo) error {
	if err := s.eng.Truncate(ctx, h.obj, 0); err != nil && !errors.Is(err, engine.ErrIO) {
		return fmt.Errorf("service: truncate %q: %w", h.entry.Key, err)
	}
	h.obj.SetEOF(stat.Size)
	h.entry.Size = stat.Size
	h.entry.ETag = stat.ETag
	h.entry.Blocks = 0
	h.entry.Degraded = h.obj.Degraded()
	h.entry.LastUsed = time.Now().UTC()
	if err := s.idx.Put(ctx, &h.entry); err != nil {
		return fmt.Errorf("service: index put %q: %w", h.entry.Key, err)
	}
	logger.Info("object revalidated",
		logger.KeyObject, h.entry.Key,
		logger.KeyETag, stat.ETag,
		logger.KeySize, stat.Size)
	return nil
}

// createLocked admits a brand-new object. Quota denial or a backing
// failure downgrades to a pass-through handle instead of failing the
// open, so the origin keeps serving when the cache cannot.
func (s *Service) createLocked(ctx context.Context, key string, stat origin.ObjectInfo) (Info, error) {
	now := time.Now().UTC()

	if err := s.quota.Reserve(1, 0); err != nil {
		logger.Warn("cache admission denied, serving pass-through",
			logger.KeyObject, key,
			logger.KeyError, err)
		return s.passthroughLocked(key, stat, now), nil
	}

	id := uuid.New()
	file, err := s.mgr.Open(id.String())
	if err != nil {
		s.quota.Release(1, 0)
		logger.Error("backing file create failed, serving pass-through",
			logger.KeyObject, key,
			logger.KeyFileID, id,
			logger.KeyError, err)
		return s.passthroughLocked(key, stat, now), nil
	}

	entry := index.Entry{
		Key:       key,
		FileID:    id,
		Size:      stat.Size,
		ETag:      stat.ETag,
		CreatedAt: now,
		LastUsed:  now,
	}
	if err := s.idx.Put(ctx, &entry); err != nil {
		file.Close()
		if rerr := s.mgr.Remove(id.String()); rerr != nil {
			logger.Warn("orphan backing file left behind",
				logger.KeyFileID, id,
				logger.KeyError, rerr)
		}
		s.quota.Release(1, 0)
		return Info{}, fmt.Errorf("service: index put %q: %w", key, err)
	}

	h := &handle{
		entry: entry,
		file:  file,
		obj:   engine.NewObject(key, file, stat.Size),
	}
	s.handles[key] = h
	s.metrics.Open(OpenCreated)
	logger.Info("object created",
		logger.KeyObject, key,
		logger.KeyFileID, id,
		logger.KeySize, stat.Size)
	return describe(h), nil
}

// passthroughLocked registers a handle with no backing file. Reads on
// it bypass the cache entirely.
func (s *Service) passthroughLocked(key string, stat origin.ObjectInfo, now time.Time) Info {
	h := &handle{
		entry: index.Entry{
			Key:       key,
			Size:      stat.Size,
			ETag:      stat.ETag,
			CreatedAt: now,
			LastUsed:  now,
		},
		obj: engine.NewObject(key, nil, stat.Size),
	}
	s.handles[key] = h
	s.metrics.Open(OpenPassthrough)
	return describe(h)
}

// ensure returns the live handle for key, opening the object on first
// touch.
func (s *Service) ensure(ctx context.Context, key string) (*handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	h, ok := s.handles[key]
	s.mu.Unlock()
	if ok {
		return h, nil
	}

	if _, err := s.Open(ctx, key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if h, ok := s.handles[key]; ok {
		return h, nil
	}
	// The open raced a concurrent remove.
	return nil, fmt.Errorf("service: open %q: %w", key, ErrNotFound)
}

// Stats is a point-in-time snapshot across the service's
// collaborators.
type Stats struct {
	Engine  engine.Stats  `json:"engine"`
	Backing backing.Stats `json:"backing"`
	Quota   quota.Stats   `json:"quota"`
	Open    int           `json:"open_objects"`
	Indexed int           `json:"indexed_objects"`
}

// Stats reports cache-wide counters for the admin API.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	open := len(s.handles)
	s.mu.Unlock()

	st := Stats{
		Engine:  s.eng.Stats(),
		Backing: s.mgr.Stats(),
		Open:    open,
	}
	if sp, ok := s.quota.(quota.StatsProvider); ok {
		st.Quota = sp.Stats()
	}
	entries, err := s.idx.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("service: stats: %w", err)
	}
	st.Indexed = len(entries)
	return st, nil
}

// Recover rebuilds quota reservations from the index after a restart.
// Reservation failures are logged, not fatal: an over-budget cache
// keeps serving and the culler works the excess off.
func (s *Service) Recover(ctx context.Context) error {
	var objects, blocks uint64
	err := s.idx.ForEach(ctx, func(e *index.Entry) error {
		if rerr := s.quota.Reserve(1, e.Blocks); rerr != nil {
			logger.Warn("quota re-reservation failed, cache over budget",
				logger.KeyObject, e.Key,
				logger.KeyBlocks, e.Blocks,
				logger.KeyError, rerr)
		}
		objects++
		blocks += e.Blocks
		return nil
	})
	if err != nil {
		return fmt.Errorf("service: recover: %w", err)
	}
	logger.Info("cache state recovered",
		logger.KeyCount, objects,
		logger.KeyBlocks, blocks)
	return nil
}

// Close drops every handle. The engine, backing manager and index are
// owned by the caller and stay open.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for key, h := range s.handles {
		if h.file != nil {
			if err := h.file.Close(); err != nil {
				logger.Warn("backing file close failed",
					logger.KeyObject, key,
					logger.KeyError, err)
			}
		}
		delete(s.handles, key)
	}
	return nil
}
