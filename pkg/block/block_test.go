package block

import "testing"

func mustGeometry(t *testing.T, size int64) Geometry {
	t.Helper()
	g, err := NewGeometry(size)
	if err != nil {
		t.Fatalf("NewGeometry(%d): %v", size, err)
	}
	return g
}

func TestNewGeometry(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		wantErr bool
	}{
		{"default", DefaultSize, false},
		{"min", MinSize, false},
		{"max", MaxSize, false},
		{"not power of two", 5000, true},
		{"too small", 2048, true},
		{"too large", 32 * 1024 * 1024, true},
		{"zero", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGeometry(tt.size)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewGeometry(%d) error = %v, wantErr %v", tt.size, err, tt.wantErr)
			}
		})
	}
}

func TestIndexAndOffset(t *testing.T) {
	g := mustGeometry(t, 4096)

	tests := []struct {
		off       int64
		wantIdx   uint64
		wantInBlk int64
		wantStart int64
	}{
		{0, 0, 0, 0},
		{1, 0, 1, 0},
		{4095, 0, 4095, 0},
		{4096, 1, 0, 4096},
		{12288, 3, 0, 12288},
		{13999, 3, 1711, 12288},
	}

	for _, tt := range tests {
		if got := g.IndexForOffset(tt.off); got != tt.wantIdx {
			t.Errorf("IndexForOffset(%d) = %d, want %d", tt.off, got, tt.wantIdx)
		}
		if got := g.OffsetInBlock(tt.off); got != tt.wantInBlk {
			t.Errorf("OffsetInBlock(%d) = %d, want %d", tt.off, got, tt.wantInBlk)
		}
		if got := g.Start(tt.wantIdx); got != tt.wantStart {
			t.Errorf("Start(%d) = %d, want %d", tt.wantIdx, got, tt.wantStart)
		}
	}
}

func TestRange(t *testing.T) {
	g := mustGeometry(t, 4096)

	tests := []struct {
		name        string
		off, length int64
		first, last uint64
	}{
		{"single block", 0, 1000, 0, 0},
		{"exact block", 0, 4096, 0, 0},
		{"one past boundary", 0, 4097, 0, 1},
		{"middle span", 5000, 10000, 1, 3},
		{"zero length", 8192, 0, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last := g.Range(tt.off, tt.length)
			if first != tt.first || last != tt.last {
				t.Errorf("Range(%d, %d) = (%d, %d), want (%d, %d)",
					tt.off, tt.length, first, last, tt.first, tt.last)
			}
		})
	}
}

func TestCount(t *testing.T) {
	g := mustGeometry(t, 4096)

	tests := []struct {
		size int64
		want uint64
	}{
		{0, 0},
		{1, 1},
		{4096, 1},
		{4097, 2},
		{14000, 4},
	}

	for _, tt := range tests {
		if got := g.Count(tt.size); got != tt.want {
			t.Errorf("Count(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestLen(t *testing.T) {
	g := mustGeometry(t, 4096)

	tests := []struct {
		name string
		idx  uint64
		size int64
		want int64
	}{
		{"full interior block", 0, 14000, 4096},
		{"partial tail", 3, 14000, 1712},
		{"at eof", 4, 14000, 0},
		{"past eof", 10, 14000, 0},
		{"exact multiple tail", 1, 8192, 4096},
		{"empty object", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Len(tt.idx, tt.size); got != tt.want {
				t.Errorf("Len(%d, %d) = %d, want %d", tt.idx, tt.size, got, tt.want)
			}
		})
	}
}
