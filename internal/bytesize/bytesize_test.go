package bytesize

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"plain zero", "0", 0, false},
		{"plain bytes", "65536", 65536, false},
		{"bytes suffix", "4096B", 4096, false},
		{"lowercase b", "4096b", 4096, false},

		{"kibibytes Ki", "64Ki", 64 * 1024, false},
		{"kibibytes KiB", "64KiB", 64 * 1024, false},
		{"mebibytes Mi", "100Mi", 100 * 1024 * 1024, false},
		{"gibibytes GiB", "1GiB", 1024 * 1024 * 1024, false},
		{"tebibytes Ti", "1Ti", 1024 * 1024 * 1024 * 1024, false},

		{"kilobytes KB", "1KB", 1000, false},
		{"megabytes MB", "100MB", 100 * 1000 * 1000, false},
		{"gigabytes G", "1G", 1000 * 1000 * 1000, false},
		{"terabytes TB", "1TB", 1000 * 1000 * 1000 * 1000, false},

		{"lowercase unit", "1gi", 1024 * 1024 * 1024, false},
		{"uppercase unit", "1GI", 1024 * 1024 * 1024, false},

		{"leading space", "  1Gi", 1024 * 1024 * 1024, false},
		{"trailing space", "1Gi  ", 1024 * 1024 * 1024, false},
		{"space between", "1 Gi", 1024 * 1024 * 1024, false},

		{"float mebibytes", "1.5Mi", ByteSize(1.5 * 1024 * 1024), false},
		{"float gibibytes", "0.5Gi", ByteSize(0.5 * 1024 * 1024 * 1024), false},

		{"empty", "", 0, true},
		{"only spaces", "   ", 0, true},
		{"unit only", "Gi", 0, true},
		{"unknown unit", "10XB", 0, true},
		{"negative", "-1Ki", 0, true},
		{"garbage", "lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %d, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("64KiB")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if b != 64*KiB {
		t.Errorf("UnmarshalText = %d, want %d", b, 64*KiB)
	}

	if err := b.UnmarshalText([]byte("nope")); err == nil {
		t.Error("UnmarshalText accepted invalid input")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		size ByteSize
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{64 * KiB, "64.00KiB"},
		{1536 * KiB, "1.50MiB"},
		{2 * GiB, "2.00GiB"},
		{3 * TiB, "3.00TiB"},
	}

	for _, tt := range tests {
		if got := tt.size.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", uint64(tt.size), got, tt.want)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	orig := 64 * KiB
	text, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var back ByteSize
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText(%q): %v", text, err)
	}
	if back != orig {
		t.Errorf("round trip %q = %d, want %d", text, back, orig)
	}
}
