package origin

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sync"
)

// Memory is an in-memory Origin for tests. Objects are byte slices
// with S3-style content-derived ETags.
//
// Test hooks:
//   - SetETag forces a tag change without touching the bytes, which is
//     how revalidation is provoked;
//   - FailStat and FailFetch inject persistent errors;
//   - StatCount and FetchCount report how often the origin was hit.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memObject

	statErr  error
	fetchErr error

	statCount  int
	fetchCount int
}

type memObject struct {
	data []byte
	etag string
}

// NewMemory returns an empty in-memory origin.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

// Put stores data under key with an ETag derived from the content.
func (m *Memory) Put(key string, data []byte) {
	sum := md5.Sum(data)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[key] = memObject{data: cp, etag: etag}
}

// SetETag overrides the ETag for key without changing its bytes,
// simulating an origin-side replacement.
func (m *Memory) SetETag(key, etag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return
	}
	obj.etag = etag
	m.objects[key] = obj
}

// Remove drops key from the origin.
func (m *Memory) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
}

// Stat returns metadata for key, or ErrNotFound.
func (m *Memory) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.statCount++

	if m.statErr != nil {
		return ObjectInfo{}, m.statErr
	}
	obj, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, ErrNotFound
	}
	return ObjectInfo{Size: int64(len(obj.data)), ETag: obj.etag}, nil
}

// Fetch reads len(p) bytes at off following io.ReaderAt semantics.
func (m *Memory) Fetch(ctx context.Context, key string, off int64, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCount++

	if m.fetchErr != nil {
		return 0, m.fetchErr
	}
	obj, ok := m.objects[key]
	if !ok {
		return 0, ErrNotFound
	}

	if off >= int64(len(obj.data)) {
		return 0, io.EOF
	}
	n := copy(p, obj.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// FailStat makes Stat return err. Passing nil clears the injection.
func (m *Memory) FailStat(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statErr = err
}

// FailFetch makes Fetch return err. Passing nil clears the injection.
func (m *Memory) FailFetch(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr = err
}

// StatCount reports how many Stat calls the origin served.
func (m *Memory) StatCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statCount
}

// FetchCount reports how many Fetch calls the origin served.
func (m *Memory) FetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCount
}

var _ Origin = (*Memory)(nil)
