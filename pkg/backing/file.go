package backing

// File is a reference-counted handle on one backing file and its block
// store. Handles come from Manager.Open and are shared: the underlying
// file closes when the last handle is closed.
type File struct {
	id   string
	path string
	mgr  *Manager
	dev  Device

	blocks *Blocks
	refs   int // guarded by mgr.mu
}

// ID returns the backing file identifier.
func (f *File) ID() string { return f.id }

// Path returns the on-disk path, or "" for device-backed handles.
func (f *File) Path() string { return f.path }

// Blocks returns the file's block store.
func (f *File) Blocks() *Blocks { return f.blocks }

// BlockSize returns the cache block size.
func (f *File) BlockSize() int64 { return f.mgr.blockSize }

// Granularity returns the underlying device's allocation unit.
func (f *File) Granularity() int64 { return f.dev.Granularity() }

// HasData reports whether block idx contains cached data, by probing
// the device for written bytes in the block's range.
func (f *File) HasData(idx uint64) (bool, error) {
	off := int64(idx) * f.mgr.blockSize
	return f.dev.HasData(off, f.mgr.blockSize)
}

// WriteAt writes directly to the backing device. Used by the engine's
// write-back path.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	return f.dev.WriteAt(p, off)
}

// Size returns the backing device's current size.
func (f *File) Size() (int64, error) {
	return f.dev.Size()
}

// Truncate shrinks the backing device to size and invalidates resident
// blocks at or past it. It returns the number of blocks invalidated.
func (f *File) Truncate(size int64) (int, error) {
	if size < 0 {
		size = 0
	}
	if err := f.dev.Truncate(size); err != nil {
		return 0, err
	}
	return f.blocks.Truncate(size), nil
}

// Sync flushes written data to stable storage.
func (f *File) Sync() error {
	return f.dev.Sync()
}

// Resident returns the number of blocks held in memory for this file.
func (f *File) Resident() int {
	return f.blocks.Live()
}

// Close drops this handle. The last Close tears down the block store
// and closes the device.
func (f *File) Close() error {
	m := f.mgr

	m.mu.Lock()
	f.refs--
	if f.refs > 0 {
		m.mu.Unlock()
		return nil
	}
	delete(m.files, f.id)
	m.mu.Unlock()

	f.blocks.close()
	return f.dev.Close()
}
