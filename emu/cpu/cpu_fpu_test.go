/*
 * x64os CPU test cases: x87 floating point stack.
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
	"testing"

	asm "github.com/davidly/x64os/emu/assemble"
	mem "github.com/davidly/x64os/emu/memory"
)

// Encode an x87 memory form with an absolute 32 bit address.
func fpuMem(escape byte, group int, addr uint32) []byte {
	return []byte{
		escape, byte(group<<3 | 4), 0x25,
		byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24),
	}
}

func putF64(addr uint64, value float64) {
	mem.PutQuad(addr, math.Float64bits(value))
}

func getF64(addr uint64) float64 {
	value, _ := mem.GetQuad(addr)
	return math.Float64frombits(value)
}

func TestFP80RoundTrip(t *testing.T) {
	// FLD m80 / FSTP m80 must be byte identical, including values a
	// binary64 cannot hold.
	cases := []struct {
		sig uint64
		se  uint16
	}{
		{0x8000000000000000, 0x3fff}, // 1.0
		{0xc000000000000000, 0xbfff}, // -1.5
		{0xffffffffffffffff, 0x4010}, // full significand
		{0x8000000000000000, 0x7fff}, // +inf
		{0xc000000000000001, 0x7fff}, // quiet NaN with payload
		{0x0000000000000001, 0x0000}, // smallest subnormal
		{0, 0x8000},                  // -0
	}
	for _, c := range cases {
		initTest()
		mem.PutTen(0x8000, c.sig, c.se)
		block := asm.New()
		block.Bytes(fpuMem(0xdb, 5, 0x8000)...) // fld tbyte
		block.Bytes(fpuMem(0xdb, 7, 0x8100)...) // fstp tbyte
		block.Hlt()
		runBlock(t, block)
		sig, se, _ := mem.GetTen(0x8100)
		if sig != c.sig || se != c.se {
			t.Errorf("80 bit round trip %016x:%04x got %016x:%04x", c.sig, c.se, sig, se)
		}
	}
}

func TestFPStackRing(t *testing.T) {
	initTest()
	putF64(0x8000, 1.5)
	putF64(0x8008, 2.5)
	block := asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...) // fld m64 1.5
	block.Bytes(fpuMem(0xdd, 0, 0x8008)...) // fld m64 2.5
	block.Bytes(0xd9, 0xc9)                 // fxch
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...) // fstp -> 1.5
	block.Bytes(fpuMem(0xdd, 3, 0x8108)...) // fstp -> 2.5
	block.Hlt()
	runBlock(t, block)
	if getF64(0x8100) != 1.5 || getF64(0x8108) != 2.5 {
		t.Errorf("fxch got %g %g", getF64(0x8100), getF64(0x8108))
	}
	if sysCPU.fpTop != 0 {
		t.Errorf("stack not balanced, top %d", sysCPU.fpTop)
	}
}

func TestFPTopField(t *testing.T) {
	initTest()
	block := asm.New()
	block.Bytes(0xd9, 0xe8) // fld1
	block.Bytes(0xdf, 0xe0) // fnstsw ax
	block.Hlt()
	runBlock(t, block)
	if top := (sysCPU.regs[RAX] >> 11) & 7; top != 7 {
		t.Errorf("TOP after one push got %d want 7", top)
	}
}

func TestFPArithmetic(t *testing.T) {
	initTest()
	putF64(0x8000, 6.25)
	putF64(0x8008, 2.0)
	block := asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...) // fld 6.25
	block.Bytes(fpuMem(0xdc, 6, 0x8008)...) // fdiv m64 2.0
	block.Bytes(fpuMem(0xdc, 0, 0x8008)...) // fadd m64 2.0
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...) // fstp
	block.Hlt()
	runBlock(t, block)
	if got := getF64(0x8100); got != 5.125 {
		t.Errorf("fdiv/fadd got %g want 5.125", got)
	}

	// Reversed subtract: 2.0 - 6.25.
	initTest()
	putF64(0x8000, 6.25)
	putF64(0x8008, 2.0)
	block = asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...) // fld 6.25
	block.Bytes(fpuMem(0xdc, 5, 0x8008)...) // fsubr m64
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...)
	block.Hlt()
	runBlock(t, block)
	if got := getF64(0x8100); got != -4.25 {
		t.Errorf("fsubr got %g want -4.25", got)
	}
}

func TestFPSpecialValues(t *testing.T) {
	// INF - INF produces a NaN, finite/0 a signed infinity.
	initTest()
	putF64(0x8000, math.Inf(1))
	block := asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...) // fld +inf
	block.Bytes(fpuMem(0xdc, 4, 0x8000)...) // fsub +inf
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...)
	block.Hlt()
	runBlock(t, block)
	if !math.IsNaN(getF64(0x8100)) {
		t.Error("inf-inf did not produce NaN")
	}

	initTest()
	putF64(0x8000, -3.0)
	putF64(0x8008, 0.0)
	block = asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...)
	block.Bytes(fpuMem(0xdc, 6, 0x8008)...) // fdiv 0
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...)
	block.Hlt()
	runBlock(t, block)
	if got := getF64(0x8100); !math.IsInf(got, -1) {
		t.Errorf("-3/0 got %g want -inf", got)
	}
}

func TestFPCompareTable(t *testing.T) {
	nan := math.NaN()
	cases := []struct {
		a, b  float64
		flags uint64
	}{
		{2, 1, 0},                          // greater
		{1, 2, FlagCF},                     // less
		{3, 3, FlagZF},                     // equal
		{nan, 1, FlagZF | FlagPF | FlagCF}, // unordered
	}
	for _, c := range cases {
		initTest()
		putF64(0x8000, c.b)
		putF64(0x8008, c.a)
		block := asm.New()
		block.Bytes(fpuMem(0xdd, 0, 0x8000)...) // fld b -> st1
		block.Bytes(fpuMem(0xdd, 0, 0x8008)...) // fld a -> st0
		block.Bytes(0xdb, 0xf1)                 // fcomi st(1)
		block.Hlt()
		runBlock(t, block)
		got := sysCPU.flags & (FlagZF | FlagPF | FlagCF | FlagOF | FlagAF | FlagSF)
		if got != c.flags {
			t.Errorf("fcomi %g,%g flags %03x want %03x", c.a, c.b, got, c.flags)
		}
	}
}

func TestFPRem(t *testing.T) {
	initTest()
	putF64(0x8000, 5.0)  // divisor -> st1
	putF64(0x8008, 17.0) // dividend -> st0
	block := asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...)
	block.Bytes(fpuMem(0xdd, 0, 0x8008)...)
	block.Bytes(0xd9, 0xf8) // fprem
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...)
	block.Hlt()
	runBlock(t, block)
	if got := getF64(0x8100); got != 2.0 {
		t.Errorf("fprem 17 mod 5 got %g", got)
	}
	if (sysCPU.fpStatus & fpC2) != 0 {
		t.Error("fprem left C2 set on complete reduction")
	}

	// FPREM1 rounds the quotient to nearest: 7 rem1 4 is -1.
	initTest()
	putF64(0x8000, 4.0)
	putF64(0x8008, 7.0)
	block = asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...)
	block.Bytes(fpuMem(0xdd, 0, 0x8008)...)
	block.Bytes(0xd9, 0xf5) // fprem1
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...)
	block.Hlt()
	runBlock(t, block)
	if got := getF64(0x8100); got != -1.0 {
		t.Errorf("fprem1 7 rem 4 got %g want -1", got)
	}
}

func TestFPRoundingControl(t *testing.T) {
	cases := []struct {
		control uint16
		want    int32
	}{
		{fpRoundNearest, 2}, // 2.5 rounds to even
		{fpRoundDown, 2},
		{fpRoundUp, 3},
		{fpRoundZero, 2},
	}
	for _, c := range cases {
		initTest()
		mem.PutHalf(0x8200, fpInitControl&^fpRoundMask|c.control)
		putF64(0x8000, 2.5)
		block := asm.New()
		block.Bytes(fpuMem(0xd9, 5, 0x8200)...) // fldcw
		block.Bytes(fpuMem(0xdd, 0, 0x8000)...) // fld 2.5
		block.Bytes(fpuMem(0xdb, 3, 0x8100)...) // fistp m32
		block.Hlt()
		runBlock(t, block)
		value, _ := mem.GetWord(0x8100)
		if int32(value) != c.want {
			t.Errorf("fistp rc=%x got %d want %d", c.control>>10, int32(value), c.want)
		}
	}

	// Negative values under floor and truncate differ.
	for _, c := range []struct {
		control uint16
		want    int32
	}{
		{fpRoundDown, -3},
		{fpRoundZero, -2},
		{fpRoundUp, -2},
	} {
		initTest()
		mem.PutHalf(0x8200, fpInitControl&^fpRoundMask|c.control)
		putF64(0x8000, -2.5)
		block := asm.New()
		block.Bytes(fpuMem(0xd9, 5, 0x8200)...)
		block.Bytes(fpuMem(0xdd, 0, 0x8000)...)
		block.Bytes(fpuMem(0xdb, 3, 0x8100)...)
		block.Hlt()
		runBlock(t, block)
		value, _ := mem.GetWord(0x8100)
		if int32(value) != c.want {
			t.Errorf("fistp -2.5 rc=%x got %d want %d", c.control>>10, int32(value), c.want)
		}
	}
}

func TestFPIntegerIndefinite(t *testing.T) {
	initTest()
	putF64(0x8000, math.NaN())
	block := asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...)
	block.Bytes(fpuMem(0xdb, 3, 0x8100)...) // fistp m32
	block.Hlt()
	runBlock(t, block)
	value, _ := mem.GetWord(0x8100)
	if value != 0x80000000 {
		t.Errorf("fistp NaN got %08x want 80000000", value)
	}

	initTest()
	putF64(0x8000, 1e30)
	block = asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...)
	block.Bytes(fpuMem(0xdf, 7, 0x8100)...) // fistp m64
	block.Hlt()
	runBlock(t, block)
	quad, _ := mem.GetQuad(0x8100)
	if quad != 0x8000000000000000 {
		t.Errorf("fistp 1e30 got %016x", quad)
	}
}

func TestFPTranscendental(t *testing.T) {
	initTest()
	putF64(0x8000, 2.0)
	block := asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...)
	block.Bytes(0xd9, 0xfa) // fsqrt
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...)
	block.Hlt()
	runBlock(t, block)
	if got := getF64(0x8100); got != math.Sqrt2 {
		t.Errorf("fsqrt got %g", got)
	}

	// fpatan: atan2(1, 1) is pi/4.
	initTest()
	block = asm.New()
	block.Bytes(0xd9, 0xe8) // fld1 -> st1 (y)
	block.Bytes(0xd9, 0xe8) // fld1 -> st0 (x)
	block.Bytes(0xd9, 0xf3) // fpatan
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...)
	block.Hlt()
	runBlock(t, block)
	if got := getF64(0x8100); math.Abs(got-math.Pi/4) > 1e-15 {
		t.Errorf("fpatan got %g want %g", got, math.Pi/4)
	}

	// fscale: 3 * 2^4.
	initTest()
	putF64(0x8000, 4.0)
	putF64(0x8008, 3.0)
	block = asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...)
	block.Bytes(fpuMem(0xdd, 0, 0x8008)...)
	block.Bytes(0xd9, 0xfd) // fscale
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...)
	block.Hlt()
	runBlock(t, block)
	if got := getF64(0x8100); got != 48 {
		t.Errorf("fscale got %g want 48", got)
	}
}

// Extended precision product of (1 + 1/i^2) for i in 1..20, the whole
// loop on the x87 stack. The result must match the same chain of
// binary64 operations to within one ulp.
func TestFPProductSeries(t *testing.T) {
	initTest()
	const ivals = 0x8000
	for i := 1; i <= 20; i++ {
		mem.PutWord(ivals+uint64((i-1)*4), uint32(i))
	}

	block := asm.New()
	block.Bytes(0xd9, 0xe8) // fld1: accumulator
	for i := 1; i <= 20; i++ {
		addr := uint32(ivals + (i-1)*4)
		block.Bytes(fpuMem(0xdb, 0, addr)...) // fild m32 -> i
		block.Bytes(0xd8, 0xc8)               // fmul st, st(0): i*i
		block.Bytes(0xd9, 0xe8)               // fld1
		block.Bytes(0xde, 0xf1)               // fdivrp: 1/(i*i)
		block.Bytes(0xd9, 0xe8)               // fld1
		block.Bytes(0xde, 0xc1)               // faddp: 1 + 1/(i*i)
		block.Bytes(0xde, 0xc9)               // fmulp: acc *= term
	}
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...) // fstp m64
	block.Hlt()
	runBlock(t, block)

	want := 1.0
	for i := 1; i <= 20; i++ {
		ii := float64(i) * float64(i)
		want *= 1 + 1/ii
	}
	got := getF64(0x8100)
	ulp := math.Nextafter(want, math.Inf(1)) - want
	if math.Abs(got-want) > ulp {
		t.Errorf("product got %.17g want %.17g", got, want)
	}
	if sysCPU.fpTop != 0 {
		t.Error("product left the stack unbalanced")
	}
}

func TestFCMov(t *testing.T) {
	initTest()
	putF64(0x8000, 1.0)
	putF64(0x8008, 2.0)
	block := asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...) // st1 = 1.0
	block.Bytes(fpuMem(0xdd, 0, 0x8008)...) // st0 = 2.0
	block.Bytes(0xf9)                       // stc
	block.Bytes(0xda, 0xc1)                 // fcmovb st(0), st(1)
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...)
	block.Hlt()
	runBlock(t, block)
	if got := getF64(0x8100); got != 1.0 {
		t.Errorf("fcmovb with CF set got %g want 1", got)
	}

	initTest()
	putF64(0x8000, 1.0)
	putF64(0x8008, 2.0)
	block = asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...)
	block.Bytes(fpuMem(0xdd, 0, 0x8008)...)
	block.Bytes(0xf8)       // clc
	block.Bytes(0xda, 0xc1) // fcmovb
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...)
	block.Hlt()
	runBlock(t, block)
	if got := getF64(0x8100); got != 2.0 {
		t.Errorf("fcmovb with CF clear got %g want 2", got)
	}
}

func TestFChsAbs(t *testing.T) {
	initTest()
	putF64(0x8000, 3.5)
	block := asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...)
	block.Bytes(0xd9, 0xe0) // fchs
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...)
	block.Hlt()
	runBlock(t, block)
	if got := getF64(0x8100); got != -3.5 {
		t.Errorf("fchs got %g", got)
	}

	initTest()
	putF64(0x8000, -7.25)
	block = asm.New()
	block.Bytes(fpuMem(0xdd, 0, 0x8000)...)
	block.Bytes(0xd9, 0xe1) // fabs
	block.Bytes(fpuMem(0xdd, 3, 0x8100)...)
	block.Hlt()
	runBlock(t, block)
	if got := getF64(0x8100); got != 7.25 {
		t.Errorf("fabs got %g", got)
	}
}
