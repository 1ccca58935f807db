//go:build linux || darwin

package quota

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDiskReserveAgainstRealFilesystem(t *testing.T) {
	d, err := NewDisk(DiskConfig{
		Path:      t.TempDir(),
		BlockRun:  3,
		BlockCull: 2,
		BlockStop: 1,
		FileRun:   3,
		FileCull:  2,
		FileStop:  1,
	}, 4096)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}

	// With a 1% stop threshold a test filesystem should admit one block.
	if err := d.Reserve(1, 1); err != nil {
		t.Skipf("test filesystem nearly full: %v", err)
	}

	if s := d.Stats(); s.FreePct <= 0 {
		t.Errorf("free pct = %v, want > 0", s.FreePct)
	}
}

func TestDiskExhaustedThresholds(t *testing.T) {
	dir := t.TempDir()

	// Occupy at least one filesystem block so free < total.
	if err := os.WriteFile(filepath.Join(dir, "pad"), make([]byte, 64*1024), 0644); err != nil {
		t.Fatalf("write pad file: %v", err)
	}

	// stop=cull=run=100 treats any filesystem with usage as full.
	d, err := NewDisk(DiskConfig{
		Path:      dir,
		BlockRun:  100,
		BlockCull: 100,
		BlockStop: 100,
		FileRun:   100,
		FileCull:  100,
		FileStop:  100,
	}, 4096)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}

	if err := d.Reserve(0, 1); !errors.Is(err, ErrNoSpace) {
		t.Errorf("reserve error = %v, want ErrNoSpace", err)
	}
	if !d.NeedsCull() {
		t.Error("NeedsCull = false with 100%% cull threshold")
	}
}

func TestDiskInvalidThresholds(t *testing.T) {
	_, err := NewDisk(DiskConfig{
		Path:      t.TempDir(),
		BlockRun:  3,
		BlockCull: 5,
		BlockStop: 7,
	}, 4096)
	if err == nil {
		t.Error("NewDisk accepted stop > cull > run")
	}
}

func TestDiskBadPath(t *testing.T) {
	if _, err := NewDisk(DiskConfig{Path: "/does/not/exist"}, 4096); err == nil {
		t.Error("NewDisk accepted a nonexistent path")
	}
}
