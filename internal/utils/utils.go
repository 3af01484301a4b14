package utils

import "unicode/utf8"

// TruncateFixedString - Returns s as it is stored in a field of width bytes, cut at the last rune boundary
// that fits
func TruncateFixedString(s string, width int) string {
	if len(s) <= width {
		return s
	}

	n := width
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}

// PutFixedString - Writes s into buf as a fixed width field of width bytes followed by one length byte.
// Strings longer than width are silently truncated, see TruncateFixedString. buf must hold at least width+1 bytes.
func PutFixedString(buf []byte, s string, width int) {
	n := copy(buf[:width], TruncateFixedString(s, width))
	for i := n; i < width; i++ {
		buf[i] = 0
	}
	buf[width] = uint8(n)
}

// GetFixedString - Reads a fixed width string field written by PutFixedString
func GetFixedString(buf []byte, width int) string {
	n := int(buf[width])
	if n > width {
		n = width
	}

	return string(buf[:n])
}
