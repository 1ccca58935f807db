package index_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quarryfs/quarry/pkg/index"
)

// runIndexSuite exercises the Index contract against one
// implementation.
func runIndexSuite(t *testing.T, factory func(t *testing.T) index.Index) {
	t.Helper()

	entry := func(key string) *index.Entry {
		return &index.Entry{
			Key:       key,
			FileID:    uuid.New(),
			Size:      1 << 20,
			ETag:      `"etag-1"`,
			Blocks:    16,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
			LastUsed:  time.Now().UTC().Truncate(time.Second),
		}
	}

	t.Run("GetMissing", func(t *testing.T) {
		idx := factory(t)
		ctx := context.Background()

		_, err := idx.Get(ctx, "absent")
		if !errors.Is(err, index.ErrNotFound) {
			t.Fatalf("Get(absent) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutGet", func(t *testing.T) {
		idx := factory(t)
		ctx := context.Background()

		want := entry("datasets/train.bin")
		if err := idx.Put(ctx, want); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}

		got, err := idx.Get(ctx, want.Key)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.Key != want.Key || got.FileID != want.FileID {
			t.Errorf("Get() = %+v, want %+v", got, want)
		}
		if got.Size != want.Size || got.ETag != want.ETag || got.Blocks != want.Blocks {
			t.Errorf("Get() = %+v, want %+v", got, want)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) || !got.LastUsed.Equal(want.LastUsed) {
			t.Errorf("Get() times = %v/%v, want %v/%v",
				got.CreatedAt, got.LastUsed, want.CreatedAt, want.LastUsed)
		}
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		idx := factory(t)
		ctx := context.Background()

		first := entry("obj")
		if err := idx.Put(ctx, first); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}

		second := entry("obj")
		second.Size = 42
		second.Degraded = true
		if err := idx.Put(ctx, second); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}

		got, err := idx.Get(ctx, "obj")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.Size != 42 || !got.Degraded {
			t.Errorf("Get() after overwrite = %+v, want size=42 degraded=true", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		idx := factory(t)
		ctx := context.Background()

		if err := idx.Put(ctx, entry("doomed")); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		if err := idx.Delete(ctx, "doomed"); err != nil {
			t.Fatalf("Delete() failed: %v", err)
		}
		if _, err := idx.Get(ctx, "doomed"); !errors.Is(err, index.ErrNotFound) {
			t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
		}

		// Absent keys delete without error.
		if err := idx.Delete(ctx, "doomed"); err != nil {
			t.Fatalf("Delete(absent) failed: %v", err)
		}
	})

	t.Run("Touch", func(t *testing.T) {
		idx := factory(t)
		ctx := context.Background()

		e := entry("touched")
		if err := idx.Put(ctx, e); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}

		at := e.LastUsed.Add(time.Hour)
		if err := idx.Touch(ctx, "touched", at); err != nil {
			t.Fatalf("Touch() failed: %v", err)
		}

		got, err := idx.Get(ctx, "touched")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if !got.LastUsed.Equal(at) {
			t.Errorf("LastUsed = %v, want %v", got.LastUsed, at)
		}
		if got.Size != e.Size || got.ETag != e.ETag {
			t.Errorf("Touch() changed unrelated fields: %+v", got)
		}

		if err := idx.Touch(ctx, "absent", at); !errors.Is(err, index.ErrNotFound) {
			t.Fatalf("Touch(absent) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListAndForEach", func(t *testing.T) {
		idx := factory(t)
		ctx := context.Background()

		keys := []string{"a", "b", "c"}
		for _, key := range keys {
			if err := idx.Put(ctx, entry(key)); err != nil {
				t.Fatalf("Put(%q) failed: %v", key, err)
			}
		}

		entries, err := idx.List(ctx)
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		if len(entries) != len(keys) {
			t.Fatalf("List() returned %d entries, want %d", len(entries), len(keys))
		}

		seen := make(map[string]bool)
		err = idx.ForEach(ctx, func(e *index.Entry) error {
			seen[e.Key] = true
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() failed: %v", err)
		}
		for _, key := range keys {
			if !seen[key] {
				t.Errorf("ForEach() did not visit %q", key)
			}
		}
	})

	t.Run("ForEachStopsOnError", func(t *testing.T) {
		idx := factory(t)
		ctx := context.Background()

		for _, key := range []string{"a", "b", "c"} {
			if err := idx.Put(ctx, entry(key)); err != nil {
				t.Fatalf("Put(%q) failed: %v", key, err)
			}
		}

		sentinel := errors.New("stop")
		var visited int
		err := idx.ForEach(ctx, func(*index.Entry) error {
			visited++
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("ForEach() error = %v, want sentinel", err)
		}
		if visited != 1 {
			t.Errorf("ForEach() visited %d entries after error, want 1", visited)
		}
	})

	t.Run("CanceledContext", func(t *testing.T) {
		idx := factory(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := idx.Put(ctx, entry("x")); !errors.Is(err, context.Canceled) {
			t.Errorf("Put() error = %v, want context.Canceled", err)
		}
		if _, err := idx.Get(ctx, "x"); !errors.Is(err, context.Canceled) {
			t.Errorf("Get() error = %v, want context.Canceled", err)
		}
	})

	t.Run("ClosedIndex", func(t *testing.T) {
		idx := factory(t)
		ctx := context.Background()

		if err := idx.Close(); err != nil {
			t.Fatalf("Close() failed: %v", err)
		}
		if _, err := idx.Get(ctx, "x"); !errors.Is(err, index.ErrClosed) {
			t.Errorf("Get() after close error = %v, want ErrClosed", err)
		}
		if err := idx.Put(ctx, entry("x")); !errors.Is(err, index.ErrClosed) {
			t.Errorf("Put() after close error = %v, want ErrClosed", err)
		}
	})
}

func TestMemory(t *testing.T) {
	runIndexSuite(t, func(t *testing.T) index.Index {
		idx := index.NewMemory()
		t.Cleanup(func() { idx.Close() })
		return idx
	})
}
