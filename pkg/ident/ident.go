// Package ident converts between numeric sensor ids and the printed form
// shown on device labels ("T" followed by five base36 digits).
package ident

import (
	"strconv"
	"strings"
)

const prefix = "T"

// Encode renders id in label form, e.g. 1 -> "T00001"
func Encode(id uint32) string {
	digits := strings.ToUpper(strconv.FormatUint(uint64(id), 36))
	if len(digits) < 5 {
		digits = strings.Repeat("0", 5-len(digits)) + digits
	}
	return prefix + digits
}

// Decode parses a label. Anything without the leading 'T' decodes to 0.
// Parsing stops at the first non base36 character, the value parsed so far is kept.
func Decode(label string) uint32 {
	if !strings.HasPrefix(label, prefix) {
		return 0
	}
	var id uint64
	for _, r := range label[len(prefix):] {
		var d uint64
		switch {
		case r >= '0' && r <= '9':
			d = uint64(r - '0')
		case r >= 'a' && r <= 'z':
			d = uint64(r-'a') + 10
		case r >= 'A' && r <= 'Z':
			d = uint64(r-'A') + 10
		default:
			return uint32(id)
		}
		id = id*36 + d
		if id > 0xFFFFFFFF {
			return 0xFFFFFFFF
		}
	}
	return uint32(id)
}
