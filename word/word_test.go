package word_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nasa-jpl/goscan/word"
)

func ExampleEncode() {
	fmt.Printf("% x\n", word.Encode(0x01020304))
	// Output: 04 03 02 01
}

func ExampleFixedToReal() {
	fmt.Println(word.FixedToReal(word.RealToFixed(1.5)))
	// Output: 1.5
}

func TestWordRoundTrip(t *testing.T) {
	inputs := []int32{0, 1, -1, 255, 256, 65535, -65536, math.MaxInt32, math.MinInt32, 0x7f00ff01}
	for _, in := range inputs {
		out := word.Decode(word.Encode(in))
		if out != in {
			t.Errorf("expected %d got %d", in, out)
		}
	}
}

func TestEncodeIsLittleEndian(t *testing.T) {
	got := word.Encode(-2)
	exp := []byte{0xfe, 0xff, 0xff, 0xff}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Errorf("wire bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeAllDecodeAll(t *testing.T) {
	ws := []int32{3, -7, 1 << 20}
	got := word.DecodeAll(word.EncodeAll(ws))
	if diff := cmp.Diff(ws, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFixedExactMultiples(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 0.5, 1.0 / 65536, -32768, 300.25, 12345.0078125} {
		got := word.FixedToReal(word.RealToFixed(f))
		if got != f {
			t.Errorf("expected %v got %v", f, got)
		}
	}
}

func TestFixedWithinOneStep(t *testing.T) {
	for f := -32767.9; f < 32767.9; f += 97.123456789 {
		got := word.FixedToReal(word.RealToFixed(f))
		if math.Abs(got-f) > word.FixedStep {
			t.Errorf("%v round tripped to %v, beyond one step", f, got)
		}
	}
}

func TestFixedSaturates(t *testing.T) {
	if w := word.RealToFixed(1e9); w != math.MaxInt32 {
		t.Errorf("expected %d got %d", int32(math.MaxInt32), w)
	}
	if w := word.RealToFixed(-1e9); w != math.MinInt32 {
		t.Errorf("expected %d got %d", int32(math.MinInt32), w)
	}
	if w := word.RealToFixed(math.Inf(1)); w != math.MaxInt32 {
		t.Errorf("expected saturation on +Inf, got %d", w)
	}
	if w := word.RealToFixed(math.NaN()); w != 0 {
		t.Errorf("expected 0 for NaN, got %d", w)
	}
}
