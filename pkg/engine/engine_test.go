package engine_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quarryfs/quarry/pkg/backing"
	"github.com/quarryfs/quarry/pkg/backing/backingtest"
	"github.com/quarryfs/quarry/pkg/engine"
)

const blockSize = 4096

// testCache bundles an engine, a backing manager and one object over a
// memory device.
type testCache struct {
	eng *engine.Engine
	mgr *backing.Manager
	f   *backing.File
	dev *backingtest.MemDevice
	obj *engine.Object
}

// result is one completion callback invocation.
type result struct {
	blk *engine.Block
	err error
}

func newTestCache(t *testing.T, eof int64, opts ...engine.Option) *testCache {
	t.Helper()
	return buildTestCache(t, engine.Config{BlockSize: blockSize, Workers: 2}, eof, opts...)
}

func newTestCacheWithMonitors(t *testing.T, max int64) *testCache {
	t.Helper()
	cfg := engine.Config{BlockSize: blockSize, Workers: 2, MonitorMax: max}
	return buildTestCache(t, cfg, 4*blockSize)
}

func buildTestCache(t *testing.T, cfg engine.Config, eof int64, opts ...engine.Option) *testCache {
	t.Helper()

	mgr, err := backing.New(backing.Config{
		Root:      t.TempDir(),
		BlockSize: blockSize,
		Readers:   2,
	})
	if err != nil {
		t.Fatalf("backing.New: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	dev := backingtest.NewMemDevice(512)
	f, err := mgr.OpenDevice("object-under-test", dev)
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	t.Cleanup(func() { f.Close() })

	eng, err := engine.New(cfg, opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eng.Close(ctx); err != nil {
			t.Errorf("engine.Close: %v", err)
		}
	})

	return &testCache{
		eng: eng,
		mgr: mgr,
		f:   f,
		dev: dev,
		obj: engine.NewObject("object-under-test", f, eof),
	}
}

// seed writes one block of recognizable content to the device and
// returns it.
func (tc *testCache) seed(t *testing.T, idx uint64) []byte {
	t.Helper()
	p := bytes.Repeat([]byte{byte(idx + 1)}, blockSize)
	if _, err := tc.dev.WriteAt(p, int64(idx)*blockSize); err != nil {
		t.Fatalf("seed block %d: %v", idx, err)
	}
	return p
}

// failBlock drives a backing read of idx into the error state.
func (tc *testCache) failBlock(t *testing.T, idx uint64, cause error) {
	t.Helper()
	off := int64(idx) * blockSize
	tc.seed(t, idx)
	tc.dev.FailReads(off, cause)

	bb, err := tc.f.Blocks().GetOrCreate(idx)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	defer bb.Put()
	if !bb.TryLock() {
		t.Fatal("TryLock failed")
	}
	done := make(chan struct{})
	bb.AddWaiter(backing.NewWaiter(func(*backing.Block) { close(done) }))
	if err := tc.f.Blocks().IssueRead(bb); err != nil {
		t.Fatalf("IssueRead: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("failing read did not complete")
	}
	if !bb.HasError() {
		t.Fatal("block did not record the injected error")
	}
}

func mkBlock(idx uint64) *engine.Block {
	return &engine.Block{Index: idx, Data: make([]byte, blockSize)}
}

func collectOp(buf int) (*engine.Retrieval, chan result) {
	ch := make(chan result, buf)
	op := engine.NewRetrieval(func(blk *engine.Block, err error) {
		ch <- result{blk, err}
	})
	return op, ch
}

func waitResult(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
		return result{}
	}
}

func TestNewValidatesBlockSize(t *testing.T) {
	if _, err := engine.New(engine.Config{BlockSize: 3000}); err == nil {
		t.Error("non power-of-two block size accepted")
	}
	if _, err := engine.New(engine.Config{BlockSize: 1024}); err == nil {
		t.Error("undersized block accepted")
	}
}

func TestEngineDefaults(t *testing.T) {
	eng, err := engine.New(engine.Config{})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer eng.Close(context.Background())

	if got := eng.BlockSize(); got != 64*1024 {
		t.Errorf("default block size = %d, want 65536", got)
	}
	st := eng.Stats()
	if st.Workers != engine.DefaultWorkers {
		t.Errorf("workers = %d, want %d", st.Workers, engine.DefaultWorkers)
	}
	if st.MonitorsInFlight != 0 {
		t.Errorf("fresh engine has %d monitors in flight", st.MonitorsInFlight)
	}
}

func TestEngineCloseIdempotent(t *testing.T) {
	eng, err := engine.New(engine.Config{BlockSize: blockSize})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := eng.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := eng.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestEngineRejectsAfterClose(t *testing.T) {
	tc := newTestCache(t, blockSize)
	tc.seed(t, 0)

	ctx := context.Background()
	if err := tc.eng.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	op, _ := collectOp(1)
	defer op.Done()
	if _, err := tc.eng.Retrieve(ctx, op, tc.obj, mkBlock(0)); !errors.Is(err, engine.ErrEngineClosed) {
		t.Errorf("Retrieve after Close: err = %v, want ErrEngineClosed", err)
	}
	if err := tc.eng.Write(ctx, op, tc.obj, mkBlock(0)); !errors.Is(err, engine.ErrEngineClosed) {
		t.Errorf("Write after Close: err = %v, want ErrEngineClosed", err)
	}
}

func TestEngineCloseWaitsForInFlightMonitors(t *testing.T) {
	tc := newTestCache(t, blockSize)
	tc.seed(t, 0)
	release := tc.dev.HoldReads(0)

	ctx := context.Background()
	op, ch := collectOp(1)
	defer op.Done()

	d, err := tc.eng.Retrieve(ctx, op, tc.obj, mkBlock(0))
	if err != nil || d != engine.DispositionBacked {
		t.Fatalf("Retrieve = %v, %v; want Backed", d, err)
	}

	closed := make(chan error, 1)
	go func() { closed <- tc.eng.Close(ctx) }()

	select {
	case err := <-closed:
		t.Fatalf("Close returned %v with a monitor still in flight", err)
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the read completed")
	}

	if r := waitResult(t, ch); r.err != nil {
		t.Errorf("completion during shutdown: %v", r.err)
	}
}

func TestRetrievalReleaseAfterLastReference(t *testing.T) {
	tc := newTestCache(t, blockSize)
	tc.seed(t, 0)
	release := tc.dev.HoldReads(0)

	released := make(chan struct{})
	op, ch := collectOp(1)
	op.OnRelease(func() { close(released) })

	if _, err := tc.eng.Retrieve(context.Background(), op, tc.obj, mkBlock(0)); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	// The monitor still holds a reference after the creator is done.
	op.Done()
	select {
	case <-released:
		t.Fatal("retrieval released while a monitor was outstanding")
	case <-time.After(10 * time.Millisecond):
	}

	release()
	waitResult(t, ch)
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("release hook never fired")
	}
}
