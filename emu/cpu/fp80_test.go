/*
 * x64os CPU test cases: 80 bit extended real conversions.
 *
 * Copyright 2025, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package cpu

import (
	"math"
	"math/rand"
	"testing"
)

func TestFP80FromFloat64(t *testing.T) {
	cases := []struct {
		value float64
		sig   uint64
		se    uint16
	}{
		{1.0, 0x8000000000000000, 0x3fff},
		{-1.0, 0x8000000000000000, 0xbfff},
		{0.5, 0x8000000000000000, 0x3ffe},
		{2.0, 0x8000000000000000, 0x4000},
		{1.5, 0xc000000000000000, 0x3fff},
		{0, 0, 0},
	}
	for _, c := range cases {
		r := float64ToFP80(c.value)
		if r.sig != c.sig || r.se != c.se {
			t.Errorf("convert %g got %016x:%04x want %016x:%04x",
				c.value, r.sig, r.se, c.sig, c.se)
		}
	}

	// The 52 bit fraction lands under the explicit integer bit.
	r := float64ToFP80(1 + math.Pow(2, -52))
	if r.sig != 0x8000000000000800 {
		t.Errorf("fraction placement wrong: %016x", r.sig)
	}
}

func TestFP80RoundTripFloat64(t *testing.T) {
	// Every binary64 is exactly representable in 80 bits.
	rnum := rand.New(rand.NewSource(125))
	for range testCycles {
		value := math.Ldexp(rnum.NormFloat64(), rnum.Intn(600)-300)
		back := float64ToFP80(value).toFloat64()
		if back != value {
			t.Fatalf("round trip %g -> %g", value, back)
		}
	}

	// Signed zero survives.
	negZero := math.Copysign(0, -1)
	if !math.Signbit(float64ToFP80(negZero).toFloat64()) {
		t.Error("negative zero lost its sign")
	}

	// Binary64 subnormals normalize into the wider exponent range and
	// convert back exactly.
	sub := math.Float64frombits(1)
	if float64ToFP80(sub).toFloat64() != sub {
		t.Error("minimum subnormal did not round trip")
	}
	if (float64ToFP80(sub).sig & fp80IntBit) == 0 {
		t.Error("subnormal was not normalized in 80 bit form")
	}
}

func TestFP80SpecialsToFloat64(t *testing.T) {
	// Infinities.
	inf := fpReg{sig: fp80IntBit, se: 0x7fff}
	if !math.IsInf(inf.toFloat64(), 1) {
		t.Error("+inf conversion failed")
	}
	inf.se |= fp80SignBit
	if !math.IsInf(inf.toFloat64(), -1) {
		t.Error("-inf conversion failed")
	}

	// NaN keeps quiet and comes through as NaN.
	nan := fpReg{sig: fp80IntBit | fp80QuietBit | 0x1234, se: 0x7fff}
	if !math.IsNaN(nan.toFloat64()) {
		t.Error("NaN conversion failed")
	}

	// A signalling NaN becomes a quiet one.
	snan := fpReg{sig: fp80IntBit | 1, se: 0x7fff}
	value := snan.toFloat64()
	if !math.IsNaN(value) {
		t.Error("signalling NaN did not convert to NaN")
	}
	if (math.Float64bits(value)>>51)&1 == 0 {
		t.Error("quiet bit not forced")
	}
}

func TestFP80DropsLowBitsRNE(t *testing.T) {
	// A significand with only the bit just below the binary64
	// precision set rounds to even.
	r := fpReg{sig: 0x8000000000000400, se: 0x3fff} // 1 + 2^-53
	if r.toFloat64() != 1.0 {
		t.Errorf("halfway rounding got %g want 1", r.toFloat64())
	}
	r.sig |= 0x800 // 1 + 2^-52 + 2^-53 rounds up
	want := 1 + math.Pow(2, -51)
	if r.toFloat64() != want {
		t.Errorf("round up got %g want %g", r.toFloat64(), want)
	}

	// Overflowing the binary64 range saturates to infinity.
	big := fpReg{sig: 0x8000000000000000, se: 0x7ffe}
	if !math.IsInf(big.toFloat64(), 1) {
		t.Error("huge 80 bit value should overflow to +inf")
	}

	// Tiny values underflow to zero.
	tiny := fpReg{sig: fp80IntBit, se: 1}
	if tiny.toFloat64() != 0 {
		t.Error("tiny 80 bit value should underflow to zero")
	}
}

func TestFPToIntModes(t *testing.T) {
	initTest()
	sysCPU.fpControl = fpInitControl // nearest
	if sysCPU.fpToInt(2.5, 4, false) != 2 {
		t.Error("nearest even of 2.5")
	}
	if sysCPU.fpToInt(3.5, 4, false) != 4 {
		t.Error("nearest even of 3.5")
	}
	negTwo := int32(-2)
	if sysCPU.fpToInt(-2.5, 4, true) != uint64(uint32(negTwo)) {
		t.Error("truncate of -2.5")
	}
	if sysCPU.fpToInt(math.Inf(1), 2, false) != 0x8000 {
		t.Error("inf to int16 indefinite")
	}
	if sysCPU.fpToInt(1e300, 8, false) != intIndefinite {
		t.Error("overflow to int64 indefinite")
	}
}
