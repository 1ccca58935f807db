// Package backingtest provides an in-memory backing.Device with hooks
// for stalling and failing reads, used to drive the cache engine
// through races that are hard to provoke on a real filesystem.
package backingtest

import (
	"io"
	"sync"
)

// MemDevice is an in-memory sparse device. Presence tracking mirrors a
// sparse file: only byte ranges that were written report data.
//
// Test hooks:
//   - HoldReads blocks reads of an offset until released, pinning a
//     fill in its in-flight state;
//   - FailReads makes reads of an offset return an error;
//   - ReadCount reports how many reads touched an offset.
type MemDevice struct {
	mu          sync.Mutex
	content     []byte
	spans       []span
	granularity int64

	gates     map[int64]chan struct{}
	readErrs  map[int64]error
	readCount map[int64]int
}

type span struct {
	start, end int64
}

// NewMemDevice returns an empty device reporting the given allocation
// granularity.
func NewMemDevice(granularity int64) *MemDevice {
	return &MemDevice{
		granularity: granularity,
		gates:       make(map[int64]chan struct{}),
		readErrs:    make(map[int64]error),
		readCount:   make(map[int64]int),
	}
}

// ReadAt copies from the device. Holes read as zeros; offsets at or
// past the device size return io.EOF like a file would.
func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	gate := d.gates[off]
	d.readCount[off]++
	err := d.readErrs[off]
	size := int64(len(d.content))
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return 0, err
	}

	if off >= size {
		return 0, io.EOF
	}

	d.mu.Lock()
	n := copy(p, d.content[off:])
	d.mu.Unlock()

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt stores p at off, growing the device and recording presence.
func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(d.content)) {
		grown := make([]byte, end)
		copy(grown, d.content)
		d.content = grown
	}
	copy(d.content[off:end], p)
	d.spans = append(d.spans, span{start: off, end: end})
	return len(p), nil
}

// HasData reports whether any written byte falls in [off, off+length).
func (d *MemDevice) HasData(off, length int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	end := off + length
	for _, s := range d.spans {
		if s.start < end && s.end > off {
			return true, nil
		}
	}
	return false, nil
}

// Size returns the device size.
func (d *MemDevice) Size() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.content)), nil
}

// Truncate resizes the device, discarding content and presence past
// size.
func (d *MemDevice) Truncate(size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if size < int64(len(d.content)) {
		d.content = d.content[:size]
	} else if size > int64(len(d.content)) {
		grown := make([]byte, size)
		copy(grown, d.content)
		d.content = grown
	}

	kept := d.spans[:0]
	for _, s := range d.spans {
		if s.start >= size {
			continue
		}
		if s.end > size {
			s.end = size
		}
		kept = append(kept, s)
	}
	d.spans = kept
	return nil
}

// Granularity returns the configured allocation unit.
func (d *MemDevice) Granularity() int64 { return d.granularity }

// Sync is a no-op.
func (d *MemDevice) Sync() error { return nil }

// Close is a no-op.
func (d *MemDevice) Close() error { return nil }

// HoldReads stalls reads at off until the returned release function is
// called. Reads already past the gate are unaffected.
func (d *MemDevice) HoldReads(off int64) (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gates[off] = gate
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.gates, off)
			d.mu.Unlock()
			close(gate)
		})
	}
}

// FailReads makes reads at off return err. Passing nil clears the
// injection.
func (d *MemDevice) FailReads(off int64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.readErrs, off)
		return
	}
	d.readErrs[off] = err
}

// ReadCount reports how many ReadAt calls targeted off.
func (d *MemDevice) ReadCount(off int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readCount[off]
}
