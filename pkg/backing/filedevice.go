package backing

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileDevice is a Device backed by a sparse file. Blocks that were
// never written back remain holes, and HasData distinguishes holes from
// cached data with SEEK_DATA, so presence needs no separate index.
type fileDevice struct {
	f           *os.File
	granularity int64
	seekData    bool // filesystem supports SEEK_DATA
}

func newFileDevice(f *os.File, seekData bool) (*fileDevice, error) {
	var st unix.Statfs_t
	if err := unix.Fstatfs(int(f.Fd()), &st); err != nil {
		return nil, fmt.Errorf("fstatfs %s: %w", f.Name(), err)
	}
	return &fileDevice{
		f:           f,
		granularity: int64(st.Bsize),
		seekData:    seekData,
	}, nil
}

func (d *fileDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

func (d *fileDevice) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}

// HasData probes for written data in [off, off+length) by seeking to
// the next data extent. Without SEEK_DATA support everything reports
// absent: the cache stays correct and misses fall through to the
// origin.
func (d *fileDevice) HasData(off, length int64) (bool, error) {
	if !d.seekData {
		return false, nil
	}

	pos, err := unix.Seek(int(d.f.Fd()), off, unix.SEEK_DATA)
	if err != nil {
		if errors.Is(err, unix.ENXIO) {
			// No data at or after off.
			return false, nil
		}
		return false, fmt.Errorf("seek data %s: %w", d.f.Name(), err)
	}
	return pos < off+length, nil
}

func (d *fileDevice) Size() (int64, error) {
	st, err := d.f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func (d *fileDevice) Truncate(size int64) error {
	return d.f.Truncate(size)
}

func (d *fileDevice) Granularity() int64 {
	return d.granularity
}

func (d *fileDevice) Sync() error {
	return d.f.Sync()
}

func (d *fileDevice) Close() error {
	return d.f.Close()
}

// probeSeekData reports whether the filesystem at dir supports
// SEEK_DATA, by exercising it on a scratch file.
func probeSeekData(dir string) bool {
	f, err := os.CreateTemp(dir, ".seekprobe-*")
	if err != nil {
		return false
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.WriteAt([]byte{1}, 0); err != nil {
		return false
	}
	_, err = unix.Seek(int(f.Fd()), 0, unix.SEEK_DATA)
	return err == nil
}
