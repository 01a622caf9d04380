package frame

import (
	"strings"
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want uint8
	}{
		{"empty", "", 0},
		{"single byte", "A", 0x41},
		{"pair cancels", "AA", 0},
		{"two bytes", "AB", 0x03},
		{"digits", "123", 0x31 ^ 0x32 ^ 0x33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.in); got != tt.want {
				t.Errorf("Checksum(%q) = %#x, want %#x", tt.in, got, tt.want)
			}
			if Checksum(tt.in) != Checksum(tt.in) {
				t.Errorf("Checksum(%q) is not deterministic", tt.in)
			}
		})
	}
}

func TestFormatChecksum(t *testing.T) {
	if got := FormatChecksum(0x0a); got != "0A" {
		t.Errorf("FormatChecksum(0x0a) = %q, want 0A", got)
	}
	if got := FormatChecksum(0xff); got != "FF" {
		t.Errorf("FormatChecksum(0xff) = %q, want FF", got)
	}
}

func TestEncodedTrailerMatchesPayload(t *testing.T) {
	c, err := NewCodec(DefaultOptions())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	for _, rev := range Revisions {
		raw, err := c.EncodeAs(rev, sampleRecord(rev))
		if err != nil {
			t.Fatalf("EncodeAs(%s): %v", rev, err)
		}
		star := strings.LastIndexByte(raw, '*')
		crc, ok := parseChecksum(raw[star+1:])
		if !ok {
			t.Fatalf("revision %s: trailer %q does not parse", rev, raw[star+1:])
		}
		if got := Checksum(raw[1:star]); got != crc {
			t.Errorf("revision %s: Checksum(payload) = %#x, trailer says %#x", rev, got, crc)
		}
	}
}
