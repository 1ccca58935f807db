package index

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory Index for tests and throwaway deployments.
// Entries do not survive a restart.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	closed  bool
}

// NewMemory returns an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := entry
	return &cp, nil
}

func (m *Memory) Put(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.entries[entry.Key] = *entry
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	delete(m.entries, key)
	return nil
}

func (m *Memory) Touch(ctx context.Context, key string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	entry, ok := m.entries[key]
	if !ok {
		return ErrNotFound
	}
	entry.LastUsed = at
	m.entries[key] = entry
	return nil
}

func (m *Memory) List(ctx context.Context) ([]*Entry, error) {
	var entries []*Entry
	err := m.ForEach(ctx, func(entry *Entry) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (m *Memory) ForEach(ctx context.Context, fn func(*Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Snapshot under the lock so fn can call back into the index.
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	snapshot := make([]Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		snapshot = append(snapshot, entry)
	}
	m.mu.RUnlock()

	for i := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		cp := snapshot[i]
		if err := fn(&cp); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
