package frame

import (
	"fmt"
	"strconv"
	"strings"
)

// Checksum returns the 8-bit XOR of every byte in s.
// The empty string reduces to 0.
func Checksum(s string) uint8 {
	var crc uint8
	for i := 0; i < len(s); i++ {
		crc ^= s[i]
	}
	return crc
}

// FormatChecksum renders a checksum the way devices put it in a trailer:
// two uppercase hex digits.
func FormatChecksum(crc uint8) string {
	return fmt.Sprintf("%02X", crc)
}

// parseChecksum parses a trailer. ok is false when the trailer is not a
// hex number that fits in a byte.
func parseChecksum(s string) (uint8, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}
