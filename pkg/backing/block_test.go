package backing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/quarryfs/quarry/pkg/backing"
	"github.com/quarryfs/quarry/pkg/backing/backingtest"
)

func newTestManager(t *testing.T) *backing.Manager {
	t.Helper()
	mgr, err := backing.New(backing.Config{
		Root:      t.TempDir(),
		BlockSize: 4096,
		Readers:   2,
	})
	if err != nil {
		t.Fatalf("backing.New: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func openMemFile(t *testing.T, mgr *backing.Manager, id string) (*backing.File, *backingtest.MemDevice) {
	t.Helper()
	dev := backingtest.NewMemDevice(512)
	f, err := mgr.OpenDevice(id, dev)
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f, dev
}

// waitReady registers a waiter and returns a channel that closes on the
// block's next unlock.
func waitReady(b *backing.Block) <-chan struct{} {
	done := make(chan struct{})
	b.AddWaiter(backing.NewWaiter(func(*backing.Block) { close(done) }))
	return done
}

func TestBlockLockUnlock(t *testing.T) {
	mgr := newTestManager(t)
	f, _ := openMemFile(t, mgr, "lock")

	b, err := f.Blocks().GetOrCreate(0)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	defer b.Put()

	if !b.TryLock() {
		t.Fatal("TryLock on fresh block failed")
	}
	if b.TryLock() {
		t.Fatal("TryLock succeeded while locked")
	}
	b.Unlock()
	if !b.TryLock() {
		t.Fatal("TryLock after Unlock failed")
	}
	b.Unlock()
}

func TestBlockWaiterFiresOnUnlock(t *testing.T) {
	mgr := newTestManager(t)
	f, _ := openMemFile(t, mgr, "waiter")

	b, err := f.Blocks().GetOrCreate(0)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	defer b.Put()

	if !b.TryLock() {
		t.Fatal("TryLock failed")
	}
	done := waitReady(b)

	select {
	case <-done:
		t.Fatal("waiter fired before unlock")
	case <-time.After(10 * time.Millisecond):
	}

	b.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter did not fire on unlock")
	}
}

func TestBlockWaiterIsOneShot(t *testing.T) {
	mgr := newTestManager(t)
	f, _ := openMemFile(t, mgr, "oneshot")

	b, err := f.Blocks().GetOrCreate(0)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	defer b.Put()

	fired := 0
	b.AddWaiter(backing.NewWaiter(func(*backing.Block) { fired++ }))

	if !b.TryLock() {
		t.Fatal("TryLock failed")
	}
	b.Unlock()

	// A second lock cycle must not re-fire the consumed waiter.
	if !b.TryLock() {
		t.Fatal("TryLock failed")
	}
	b.Unlock()

	if fired != 1 {
		t.Errorf("waiter fired %d times, want 1", fired)
	}
}

func TestBlockRemoveWaiter(t *testing.T) {
	mgr := newTestManager(t)
	f, _ := openMemFile(t, mgr, "remove")

	b, err := f.Blocks().GetOrCreate(0)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	defer b.Put()

	fired := false
	w := backing.NewWaiter(func(*backing.Block) { fired = true })
	b.AddWaiter(w)

	if !b.RemoveWaiter(w) {
		t.Fatal("RemoveWaiter did not find registered waiter")
	}
	if b.RemoveWaiter(w) {
		t.Fatal("RemoveWaiter found waiter twice")
	}

	if !b.TryLock() {
		t.Fatal("TryLock failed")
	}
	b.Unlock()

	if fired {
		t.Error("removed waiter fired")
	}
}

func TestBlockRefCounting(t *testing.T) {
	mgr := newTestManager(t)
	f, _ := openMemFile(t, mgr, "refs")

	b, err := f.Blocks().GetOrCreate(3)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	// One reference for the store, one for us.
	if got := b.Refs(); got != 2 {
		t.Fatalf("refs after GetOrCreate = %d, want 2", got)
	}

	b.Get()
	if got := b.Refs(); got != 3 {
		t.Fatalf("refs after Get = %d, want 3", got)
	}

	b.Put()
	b.Put()
	if got := b.Refs(); got != 1 {
		t.Fatalf("refs after releases = %d, want 1 (store)", got)
	}
}

func TestBlockDoubleReleasePanics(t *testing.T) {
	mgr := newTestManager(t)
	f, _ := openMemFile(t, mgr, "double")

	b, err := f.Blocks().GetOrCreate(0)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	// Drop ours and the store's via truncate, then once more.
	b.Put()
	f.Blocks().Truncate(0)

	defer func() {
		if recover() == nil {
			t.Error("Put past zero did not panic")
		}
	}()
	b.Put()
}

func TestBlockBufferReleasedAtZero(t *testing.T) {
	mgr := newTestManager(t)
	f, _ := openMemFile(t, mgr, "buffer")

	b, err := f.Blocks().GetOrCreate(0)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if b.Data() == nil {
		t.Fatal("fresh block has no buffer")
	}

	f.Blocks().Truncate(0) // store reference gone
	b.Put()                // ours gone; count hits zero

	if b.Data() != nil {
		t.Error("buffer not released when refs hit zero")
	}
}

func TestBlockErrorState(t *testing.T) {
	mgr := newTestManager(t)
	f, dev := openMemFile(t, mgr, "errstate")

	injected := errors.New("bad sector")
	dev.FailReads(0, injected)

	b, err := f.Blocks().GetOrCreate(0)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	defer b.Put()

	if !b.TryLock() {
		t.Fatal("TryLock failed")
	}
	done := waitReady(b)
	if err := f.Blocks().IssueRead(b); err != nil {
		t.Fatalf("IssueRead: %v", err)
	}

	<-done
	if b.Uptodate() {
		t.Error("failed read left block uptodate")
	}
	if !b.HasError() {
		t.Fatal("failed read did not flag error")
	}
	if !errors.Is(b.Err(), injected) {
		t.Errorf("Err() = %v, want %v", b.Err(), injected)
	}
}
