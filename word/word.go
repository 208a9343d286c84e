// Package word encodes and decodes the scanner protocol's 4-byte wire word
// and its 16.16 fixed-point representation.
//
// The wire word is little-endian on every host.  encoding/binary performs the
// byte shuffling explicitly, so a big-endian host produces the same bytes as a
// little-endian one.
package word

import (
	"encoding/binary"
	"math"
)

const (
	// Size is the number of bytes in one wire word
	Size = 4

	// FixedShift is the number of fractional bits in a fixed-point word
	FixedShift = 16

	// FixedScale is 1<<FixedShift
	FixedScale = 1 << FixedShift

	// FixedMin is the smallest real value a fixed-point word can hold
	FixedMin = -32768.0

	// FixedMax is the largest real value a fixed-point word can hold
	FixedMax = float64(math.MaxInt32) / FixedScale

	// FixedStep is the smallest nonzero difference between two fixed-point words
	FixedStep = 1.0 / FixedScale
)

// Order is the byte order of the wire word
var Order = binary.LittleEndian

// Decode reads one word from the first Size bytes of b.
// b must be at least Size bytes long.
func Decode(b []byte) int32 {
	return int32(Order.Uint32(b))
}

// Encode returns the wire bytes of w
func Encode(w int32) []byte {
	b := make([]byte, Size)
	Order.PutUint32(b, uint32(w))
	return b
}

// Put writes w into the first Size bytes of b
func Put(b []byte, w int32) {
	Order.PutUint32(b, uint32(w))
}

// DecodeAll decodes every whole word in b
func DecodeAll(b []byte) []int32 {
	out := make([]int32, len(b)/Size)
	for i := range out {
		out[i] = Decode(b[i*Size:])
	}
	return out
}

// EncodeAll encodes ws back to back
func EncodeAll(ws []int32) []byte {
	b := make([]byte, len(ws)*Size)
	for i, w := range ws {
		Put(b[i*Size:], w)
	}
	return b
}

// FixedToReal converts a fixed-point word to a float
func FixedToReal(w int32) float64 {
	return float64(w) / FixedScale
}

// RealToFixed converts f to the nearest fixed-point word, saturating at the
// ends of the representable range.  NaN maps to zero.
func RealToFixed(f float64) int32 {
	if math.IsNaN(f) {
		return 0
	}
	v := math.Round(f * FixedScale)
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}
