package engine_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quarryfs/quarry/pkg/engine"
)

// Retrievals that arrive while another party holds the backing block
// lock ride along as monitors. These tests wake such monitors without
// settling the block, the way a truncation racing a read does, and
// check the recovery paths.

func TestRecoveryReissuesDisturbedRead(t *testing.T) {
	tc := newTestCache(t, 4*blockSize)
	want := tc.seed(t, 0)

	// Hold the backing block lock so the retrieval parks a monitor.
	bb, err := tc.f.Blocks().GetOrCreate(0)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	defer bb.Put()
	if !bb.TryLock() {
		t.Fatal("TryLock failed")
	}

	op, ch := collectOp(1)
	defer op.Done()
	blk := mkBlock(0)

	d, err := tc.eng.Retrieve(context.Background(), op, tc.obj, blk)
	if err != nil || d != engine.DispositionBacked {
		t.Fatalf("Retrieve = %v, %v; want Backed", d, err)
	}
	if got := tc.dev.ReadCount(0); got != 0 {
		t.Fatalf("read issued while the lock was held externally")
	}

	// Wake the monitor with the block still empty. Recovery must
	// issue the read itself and the retrieval completes with data.
	bb.Unlock()

	r := waitResult(t, ch)
	if r.err != nil {
		t.Fatalf("completion error: %v", r.err)
	}
	if !bytes.Equal(blk.Data, want) {
		t.Error("recovered read returned wrong bytes")
	}
	if got := tc.dev.ReadCount(0); got != 1 {
		t.Errorf("device saw %d reads, want 1", got)
	}
}

func TestRecoveryTruncatedBlockEndsNoData(t *testing.T) {
	tc := newTestCache(t, 4*blockSize)
	tc.seed(t, 0)

	bb, err := tc.f.Blocks().GetOrCreate(0)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !bb.TryLock() {
		t.Fatal("TryLock failed")
	}

	released := make(chan struct{})
	op, ch := collectOp(1)
	op.OnRelease(func() { close(released) })

	blk := mkBlock(0)
	d, err := tc.eng.Retrieve(context.Background(), op, tc.obj, blk)
	if err != nil || d != engine.DispositionBacked {
		t.Fatalf("Retrieve = %v, %v; want Backed", d, err)
	}
	op.Done()

	// Truncate the store while the monitor waits, then wake it. The
	// identity check must classify the block as gone.
	if dropped := tc.f.Blocks().Truncate(0); dropped != 1 {
		t.Fatalf("Truncate dropped %d, want 1", dropped)
	}
	bb.Unlock()

	r := waitResult(t, ch)
	if !errors.Is(r.err, engine.ErrNoData) {
		t.Fatalf("completion err = %v, want ErrNoData", r.err)
	}
	if tc.obj.Degraded() {
		t.Error("vanished block degraded the object; a miss is not a failure")
	}

	// The monitor's references unwound: the retrieval released and
	// only our handle keeps the orphaned block alive.
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("retrieval not released after ErrNoData completion")
	}
	if got := bb.Refs(); got != 1 {
		t.Errorf("orphan refs = %d, want 1 (test handle)", got)
	}
	bb.Put()
}

func TestRecoveryReplacedBlockEndsNoData(t *testing.T) {
	tc := newTestCache(t, 4*blockSize)
	tc.seed(t, 0)

	bb, err := tc.f.Blocks().GetOrCreate(0)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !bb.TryLock() {
		t.Fatal("TryLock failed")
	}

	op, ch := collectOp(1)
	defer op.Done()

	if _, err := tc.eng.Retrieve(context.Background(), op, tc.obj, mkBlock(0)); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	// Truncate and recreate the index: same index, new identity.
	tc.f.Blocks().Truncate(0)
	fresh, err := tc.f.Blocks().GetOrCreate(0)
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	defer fresh.Put()

	bb.Unlock()

	if r := waitResult(t, ch); !errors.Is(r.err, engine.ErrNoData) {
		t.Fatalf("completion err = %v, want ErrNoData", r.err)
	}
	bb.Put()
}
