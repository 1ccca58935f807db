package quota

import (
	"errors"
	"testing"
)

func TestBudgetReserve(t *testing.T) {
	b := NewBudget(2, 3)

	if err := b.Reserve(1, 2); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := b.Reserve(1, 1); err != nil {
		t.Fatalf("second reserve: %v", err)
	}

	if err := b.Reserve(0, 1); !errors.Is(err, ErrNoSpace) {
		t.Errorf("block overcommit error = %v, want ErrNoSpace", err)
	}
	if err := b.Reserve(1, 0); !errors.Is(err, ErrNoSpace) {
		t.Errorf("file overcommit error = %v, want ErrNoSpace", err)
	}
}

func TestBudgetDenyDoesNotConsume(t *testing.T) {
	b := NewBudget(0, 2)

	if err := b.Reserve(0, 3); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("oversized reserve error = %v, want ErrNoSpace", err)
	}

	// The denied request must not have eaten any budget.
	if err := b.Reserve(0, 2); err != nil {
		t.Errorf("full reserve after denial: %v", err)
	}
}

func TestBudgetRelease(t *testing.T) {
	b := NewBudget(0, 1)

	if err := b.Reserve(0, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := b.Reserve(0, 1); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("second reserve error = %v, want ErrNoSpace", err)
	}

	b.Release(0, 1)
	if err := b.Reserve(0, 1); err != nil {
		t.Errorf("reserve after release: %v", err)
	}
}

func TestBudgetReleaseClampsToZero(t *testing.T) {
	b := NewBudget(5, 5)
	b.Release(10, 10)

	s := b.Stats()
	if s.FilesUsed != 0 || s.BlocksUsed != 0 {
		t.Errorf("usage after over-release = %d files, %d blocks, want 0, 0", s.FilesUsed, s.BlocksUsed)
	}
}

func TestBudgetUnlimitedDimension(t *testing.T) {
	b := NewBudget(0, 0)
	if err := b.Reserve(1000, 1000000); err != nil {
		t.Errorf("unlimited budget denied: %v", err)
	}
}

func TestBudgetStats(t *testing.T) {
	b := NewBudget(10, 100)
	if err := b.Reserve(2, 25); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	s := b.Stats()
	if s.FilesUsed != 2 || s.BlocksUsed != 25 {
		t.Errorf("stats usage = %d/%d, want 2/25", s.FilesUsed, s.BlocksUsed)
	}
	if s.FreePct != 75 {
		t.Errorf("stats free pct = %v, want 75", s.FreePct)
	}
}

func TestNopAlwaysAdmits(t *testing.T) {
	var o Oracle = Nop{}
	if err := o.Reserve(1<<20, 1<<30); err != nil {
		t.Errorf("nop reserve: %v", err)
	}
	o.Release(1, 1)
}
