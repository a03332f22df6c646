// Package hexcodec implements the nibble/byte/integer hex conversions the
// RSP wire format is built from. GDB does not tolerate a short or error
// reply, so malformed input degrades to zero bytes rather than an error —
// see HexToBytes.
package hexcodec

const hexDigits = "0123456789abcdef"

// NibbleOf returns the value of a single hex digit in [0,15], or -1 if ch
// is not '0'-'9', 'a'-'f', or 'A'-'F'.
func NibbleOf(ch byte) int {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0')
	case ch >= 'a' && ch <= 'f':
		return int(ch-'a') + 10
	case ch >= 'A' && ch <= 'F':
		return int(ch-'A') + 10
	default:
		return -1
	}
}

// BytesToHex encodes the first n bytes of src as 2n lowercase hex
// characters, high nibble first.
func BytesToHex(src []byte, n int) []byte {
	out := make([]byte, 0, n*2)
	for i := 0; i < n && i < len(src); i++ {
		b := src[i]
		out = append(out, hexDigits[b>>4], hexDigits[b&0xf])
	}
	return out
}

// HexToBytes decodes exactly 2n hex characters from src into n bytes. A
// malformed nibble (not a hex digit, or src shorter than 2n) decodes to a
// zero byte rather than failing: GDB expects a reply of the promised
// length, not a partial or error packet.
func HexToBytes(src []byte, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		hi, lo := -1, -1
		if 2*i < len(src) {
			hi = NibbleOf(src[2*i])
		}
		if 2*i+1 < len(src) {
			lo = NibbleOf(src[2*i+1])
		}
		if hi < 0 || lo < 0 {
			out[i] = 0
			continue
		}
		out[i] = byte(hi<<4 | lo)
	}
	return out
}

// ParseHexPrefix reads as many hex characters as possible starting at
// cursor, accumulating them MSB-first into a 32-bit integer. It returns the
// parsed value and the number of characters consumed; a consumed count of
// 0 means no integer was present at cursor.
func ParseHexPrefix(src []byte, cursor int) (value uint32, consumed int) {
	for cursor+consumed < len(src) {
		n := NibbleOf(src[cursor+consumed])
		if n < 0 {
			break
		}
		value = value<<4 | uint32(n)
		consumed++
	}
	return value, consumed
}
