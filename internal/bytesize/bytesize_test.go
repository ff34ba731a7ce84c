package bytesize

import (
	"testing"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"1024", 1024, false},
		{"0", 0, false},
		{"1023B", 1023, false},
		{"64Ki", 64 * KiB, false},
		{"64KiB", 64 * KiB, false},
		{"10Mi", 10 * MiB, false},
		{"2gi", 2 * GiB, false},
		{"1Ti", TiB, false},
		{"100MB", 100 * MB, false},
		{"5k", 5 * KB, false},
		{"1.5Mi", MiB + 512*KiB, false},
		{" 8 Mi ", 8 * MiB, false},
		{"", 0, true},
		{"Mi", 0, true},
		{"12XB", 0, true},
		{"1.2.3Mi", 0, true},
		{"-5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseByteSize(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseByteSize(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseByteSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestStringRoundTrips(t *testing.T) {
	for _, size := range []ByteSize{0, 1, 1023, KiB, 10 * MiB, 3 * GiB, 1500} {
		s := size.String()
		back, err := ParseByteSize(s)
		if err != nil {
			t.Fatalf("ParseByteSize(%q): %v", s, err)
		}
		if back != size {
			t.Errorf("%d -> %q -> %d", size, s, back)
		}
	}

	if got := (10 * MiB).String(); got != "10Mi" {
		t.Errorf("String() = %q, want 10Mi", got)
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("4Mi")); err != nil {
		t.Fatal(err)
	}
	if b != 4*MiB {
		t.Errorf("got %d, want %d", b, 4*MiB)
	}
	if err := b.UnmarshalText([]byte("lots")); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestHuman(t *testing.T) {
	tests := []struct {
		in   ByteSize
		want string
	}{
		{512, "512B"},
		{KiB, "1.00KiB"},
		{MiB + MiB/2, "1.50MiB"},
		{2 * GiB, "2.00GiB"},
	}
	for _, tt := range tests {
		if got := tt.in.Human(); got != tt.want {
			t.Errorf("Human(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
