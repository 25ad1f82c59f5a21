/*
   CPU: 80 bit extended real carry format.

   Copyright 2025, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

package cpu

import (
	"math"
	"math/bits"
)

/*
   The host carries no native 80 bit float, so x87 values are stored
   as raw 10 byte payloads and converted to binary64 for arithmetic.
   A value is sig * 2^(E - 16383 - 63) with the explicit integer bit
   at sig bit 63 for normal numbers. Loads and stores of the 80 bit
   format never convert, so they round trip bit exactly.
*/

// True when the slot holds a NaN of any flavor.
func (r fpReg) isNaN() bool {
	return (r.se&fp80ExpMask) == fp80ExpMask && (r.sig<<1) != 0
}

// True when the slot holds an infinity.
func (r fpReg) isInf() bool {
	return (r.se&fp80ExpMask) == fp80ExpMax && (r.sig<<1) == 0
}

const fp80ExpMax = fp80ExpMask

// Convert a stored 80 bit value to binary64. The 64 bit significand
// drops its 11 low bits with round to nearest ties to even; a carry
// into the integer bit bumps the exponent. Overflow produces an
// infinity, underflow a signed zero or subnormal.
func (r fpReg) toFloat64() float64 {
	exp := int(r.se & fp80ExpMask)
	neg := (r.se & fp80SignBit) != 0

	if exp == biasedExpMax {
		if (r.sig << 1) == 0 {
			return math.Inf(boolSign(neg))
		}
		// NaN: keep the payload and force the quiet bit.
		frac := (r.sig >> 11) & ((uint64(1) << f64FracBits) - 1)
		frac |= uint64(1) << (f64FracBits - 1)
		word := uint64(0x7ff)<<f64FracBits | frac
		if neg {
			word |= uint64(1) << 63
		}
		return math.Float64frombits(word)
	}

	if r.sig == 0 {
		if neg {
			return math.Copysign(0, -1)
		}
		return 0
	}

	// Subnormal 80 bit values carry exponent -16382 with the integer
	// bit clear; normalizing is folded into Ldexp's scaling.
	scale := exp - fp80ExpBias - 63
	if exp == 0 {
		scale = 1 - fp80ExpBias - 63
	}
	value := math.Ldexp(float64(r.sig), scale)
	if neg {
		value = -value
	}
	return value
}

func boolSign(neg bool) int {
	if neg {
		return -1
	}
	return 1
}

// Convert a binary64 to the 80 bit carry format. Every binary64 is
// exactly representable: the 52 bit fraction lands in the upper bits
// of the 63 bit payload under an explicit integer bit.
func float64ToFP80(value float64) fpReg {
	word := math.Float64bits(value)
	sign := uint16(word>>63) << 15
	exp := int(word>>f64FracBits) & 0x7ff
	frac := word & ((uint64(1) << f64FracBits) - 1)

	switch {
	case exp == 0x7ff:
		if frac == 0 {
			return fpReg{sig: fp80IntBit, se: sign | fp80ExpMask}
		}
		return fpReg{sig: fp80IntBit | (frac << 11), se: sign | fp80ExpMask}
	case exp == 0 && frac == 0:
		return fpReg{sig: 0, se: sign}
	case exp == 0:
		// Subnormal binary64 normalizes into an ordinary 80 bit value.
		sig := frac << 11
		lz := bits.LeadingZeros64(sig)
		sig <<= uint(lz)
		return fpReg{sig: sig, se: sign | uint16(15361-lz)}
	default:
		sig := fp80IntBit | (frac << 11)
		return fpReg{sig: sig, se: sign | uint16(exp+15360)}
	}
}

// The negative quiet NaN real silicon produces for invalid
// operations.
func negNaN() float64 {
	return math.Float64frombits(negQNaN64)
}

// Addition with the architectural invalid operation results.
func fpAdd(a, b float64) float64 {
	if math.IsInf(a, 0) && math.IsInf(b, 0) && math.Signbit(a) != math.Signbit(b) {
		return negNaN()
	}
	return a + b
}

// Subtraction; INF - INF of the same sign is invalid.
func fpSub(a, b float64) float64 {
	if math.IsInf(a, 0) && math.IsInf(b, 0) && math.Signbit(a) == math.Signbit(b) {
		return negNaN()
	}
	return a - b
}

// Multiplication; zero times infinity is invalid.
func fpMul(a, b float64) float64 {
	if (a == 0 && math.IsInf(b, 0)) || (b == 0 && math.IsInf(a, 0)) {
		return negNaN()
	}
	return a * b
}

// Division; 0/0 and INF/INF are invalid, finite/0 is a signed
// infinity.
func fpDiv(a, b float64) float64 {
	if (a == 0 && b == 0) || (math.IsInf(a, 0) && math.IsInf(b, 0)) {
		return negNaN()
	}
	return a / b
}

// Round per the x87 control word rounding mode.
func (cpu *cpuState) fpRoundMode(value float64) float64 {
	switch cpu.fpControl & fpRoundMask {
	case fpRoundDown:
		return math.Floor(value)
	case fpRoundUp:
		return math.Ceil(value)
	case fpRoundZero:
		return math.Trunc(value)
	default:
		return math.RoundToEven(value)
	}
}

// Convert to a signed integer of the given byte width honoring the
// control word. NaN, infinities and out of range values produce the
// integer indefinite value.
func (cpu *cpuState) fpToInt(value float64, size uint8, truncate bool) uint64 {
	if truncate {
		value = math.Trunc(value)
	} else {
		value = cpu.fpRoundMode(value)
	}
	switch size {
	case 2:
		if math.IsNaN(value) || value > 32767 || value < -32768 {
			return 0x8000
		}
		return uint64(int64(value)) & 0xffff
	case 4:
		if math.IsNaN(value) || value > 2147483647 || value < -2147483648 {
			return 0x80000000
		}
		return uint64(int64(value)) & mask32
	default:
		if math.IsNaN(value) || value >= 9.223372036854776e18 || value < -9.223372036854776e18 {
			return intIndefinite
		}
		return uint64(int64(value))
	}
}
