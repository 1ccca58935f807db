//go:build linux || darwin

package quota

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// DiskConfig sets the free-space thresholds for a Disk oracle, as
// percentages of the filesystem's total blocks and inodes.
//
// Admission stops when free space falls below the stop level, eviction
// pressure begins below the cull level, and eviction aims to restore
// free space to the run level. The same three levels exist for inodes.
type DiskConfig struct {
	Path string // a path on the filesystem holding the cache

	BlockRun  uint // percent free to restore when culling (default 7)
	BlockCull uint // percent free below which culling starts (default 5)
	BlockStop uint // percent free below which admission fails (default 3)

	FileRun  uint // as above, for inodes (default 7)
	FileCull uint // (default 5)
	FileStop uint // (default 3)
}

func (c *DiskConfig) applyDefaults() {
	if c.BlockRun == 0 {
		c.BlockRun = DefaultRunPct
	}
	if c.BlockCull == 0 {
		c.BlockCull = DefaultCullPct
	}
	if c.BlockStop == 0 {
		c.BlockStop = DefaultStopPct
	}
	if c.FileRun == 0 {
		c.FileRun = DefaultRunPct
	}
	if c.FileCull == 0 {
		c.FileCull = DefaultCullPct
	}
	if c.FileStop == 0 {
		c.FileStop = DefaultStopPct
	}
}

// Disk is an advisory Oracle backed by statfs on the cache filesystem.
// Every Reserve samples the filesystem, so grants reflect real free
// space but are not reserved against concurrent writers. Release is a
// no-op.
type Disk struct {
	path      string
	cfg       DiskConfig
	blockSize int64 // cache block size, for converting block counts to fs blocks

	mu   sync.Mutex
	last Stats // most recent sample, for Stats()
}

// NewDisk validates the thresholds and returns a Disk oracle. blockSize
// is the cache's block size, used to translate reserve requests into
// filesystem blocks.
func NewDisk(cfg DiskConfig, blockSize int64) (*Disk, error) {
	cfg.applyDefaults()

	if cfg.BlockStop > cfg.BlockCull || cfg.BlockCull > cfg.BlockRun {
		return nil, fmt.Errorf("quota: block thresholds must satisfy stop <= cull <= run, got %d/%d/%d",
			cfg.BlockStop, cfg.BlockCull, cfg.BlockRun)
	}
	if cfg.FileStop > cfg.FileCull || cfg.FileCull > cfg.FileRun {
		return nil, fmt.Errorf("quota: file thresholds must satisfy stop <= cull <= run, got %d/%d/%d",
			cfg.FileStop, cfg.FileCull, cfg.FileRun)
	}

	d := &Disk{path: cfg.Path, cfg: cfg, blockSize: blockSize}

	// Fail now if the path cannot be sampled at all.
	if _, err := d.sample(); err != nil {
		return nil, err
	}
	return d, nil
}

type diskSample struct {
	totalBlocks uint64
	availBlocks uint64
	totalFiles  uint64
	freeFiles   uint64
	fsBlockSize int64
}

func (d *Disk) sample() (diskSample, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(d.path, &st); err != nil {
		return diskSample{}, fmt.Errorf("quota: statfs %s: %w", d.path, err)
	}
	return diskSample{
		totalBlocks: uint64(st.Blocks),
		availBlocks: uint64(st.Bavail),
		totalFiles:  uint64(st.Files),
		freeFiles:   uint64(st.Ffree),
		fsBlockSize: int64(st.Bsize),
	}, nil
}

// Reserve admits the request while free space stays above the stop
// thresholds, assuming the requested blocks were written.
func (d *Disk) Reserve(files, blocks uint64) error {
	s, err := d.sample()
	if err != nil {
		return err
	}
	d.record(s)

	// Translate cache blocks into filesystem blocks.
	var fsBlocks uint64
	if s.fsBlockSize > 0 {
		perBlock := (d.blockSize + s.fsBlockSize - 1) / s.fsBlockSize
		fsBlocks = blocks * uint64(perBlock)
	}

	if s.totalBlocks > 0 {
		stop := s.totalBlocks * uint64(d.cfg.BlockStop) / 100
		if s.availBlocks < fsBlocks || s.availBlocks-fsBlocks < stop {
			return ErrNoSpace
		}
	}
	if s.totalFiles > 0 {
		stop := s.totalFiles * uint64(d.cfg.FileStop) / 100
		if s.freeFiles < files || s.freeFiles-files < stop {
			return ErrNoSpace
		}
	}
	return nil
}

// Release is a no-op: freed space shows up in the next statfs sample.
func (d *Disk) Release(files, blocks uint64) {}

// NeedsCull reports whether free space has fallen below the cull
// thresholds and eviction should run.
func (d *Disk) NeedsCull() bool {
	s, err := d.sample()
	if err != nil {
		return false
	}
	d.record(s)

	if s.totalBlocks > 0 {
		cull := s.totalBlocks * uint64(d.cfg.BlockCull) / 100
		if s.availBlocks < cull {
			return true
		}
	}
	if s.totalFiles > 0 {
		cull := s.totalFiles * uint64(d.cfg.FileCull) / 100
		if s.freeFiles < cull {
			return true
		}
	}
	return false
}

// BelowRun reports whether free space is still under the run level;
// the culler evicts until this turns false.
func (d *Disk) BelowRun() bool {
	s, err := d.sample()
	if err != nil {
		return false
	}
	d.record(s)

	if s.totalBlocks > 0 {
		run := s.totalBlocks * uint64(d.cfg.BlockRun) / 100
		if s.availBlocks < run {
			return true
		}
	}
	return false
}

func (d *Disk) record(s diskSample) {
	var freePct float64
	if s.totalBlocks > 0 {
		freePct = float64(s.availBlocks) / float64(s.totalBlocks) * 100
	}

	d.mu.Lock()
	d.last = Stats{FreePct: freePct}
	d.mu.Unlock()
}

// Stats returns the most recently sampled free-space percentage.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
