/*
 * x64os CPU test cases: integer core, flags and register aliasing.
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
	"math/bits"
	"math/rand"
	"testing"

	asm "github.com/davidly/x64os/emu/assemble"
	mem "github.com/davidly/x64os/emu/memory"
)

const (
	testOrigin uint64 = 0x1000
	testStack  uint64 = 0xf000
	testCycles int    = 1000
)

// Reset memory and CPU for one test.
func initTest() {
	mem.SetSize(1024)
	InitializeCPU()
	sysCPU.PC = testOrigin
	sysCPU.regs[RSP] = testStack
}

// Assemble a block, place it at the origin and run it to HLT.
func runBlock(t *testing.T, block *asm.Block) {
	t.Helper()
	code, err := block.Finish()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if mem.PutBlock(testOrigin, code) {
		t.Fatal("program does not fit")
	}
	limit := 50_000_000
	for !sysCPU.halted && !sysCPU.stop {
		if !CycleCPU() {
			break
		}
		limit--
		if limit == 0 {
			t.Fatal("program did not halt")
		}
	}
	if !sysCPU.halted {
		t.Fatalf("program stopped abnormally at %x", sysCPU.iPC)
	}
}

// Execute a few raw bytes directly.
func runBytes(t *testing.T, code ...byte) {
	t.Helper()
	block := asm.New()
	block.Bytes(code...)
	block.Hlt()
	runBlock(t, block)
}

func TestMov32ZeroExtends(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 0xdeadbeefcafef00d
	// mov eax, 0x12345678
	runBytes(t, 0xb8, 0x78, 0x56, 0x34, 0x12)
	if sysCPU.regs[RAX] != 0x12345678 {
		t.Errorf("32 bit write did not zero extend: %016x", sysCPU.regs[RAX])
	}
}

func TestMov8And16PreserveUpper(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 0xdeadbeefcafef00d
	// mov al, 0x55
	runBytes(t, 0xb0, 0x55)
	if sysCPU.regs[RAX] != 0xdeadbeefcafef055 {
		t.Errorf("8 bit write clobbered upper bits: %016x", sysCPU.regs[RAX])
	}

	initTest()
	sysCPU.regs[RAX] = 0xdeadbeefcafef00d
	// mov ax, 0x1234
	runBytes(t, 0x66, 0xb8, 0x34, 0x12)
	if sysCPU.regs[RAX] != 0xdeadbeefcafe1234 {
		t.Errorf("16 bit write clobbered upper bits: %016x", sysCPU.regs[RAX])
	}
}

func TestHighByteRegisters(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 0
	// mov ah, 0x7f
	runBytes(t, 0xb4, 0x7f)
	if sysCPU.regs[RAX] != 0x7f00 {
		t.Errorf("AH write wrong: %016x", sysCPU.regs[RAX])
	}

	// With a REX prefix the same encoding names SPL.
	initTest()
	sysCPU.regs[RSP] = testStack
	// rex mov spl, 0x7f
	runBytes(t, 0x40, 0xb4, 0x7f)
	if (sysCPU.regs[RSP] & 0xff) != 0x7f {
		t.Errorf("SPL write wrong: %016x", sysCPU.regs[RSP])
	}
}

// Reference flag synthesis for 32 bit add.
func refAddFlags(a, b uint32) (uint32, uint64) {
	result := a + b
	var flags uint64
	if result < a {
		flags |= FlagCF
	}
	if (^(a ^ b) & (a ^ result) & 0x80000000) != 0 {
		flags |= FlagOF
	}
	if ((a ^ b ^ result) & 0x10) != 0 {
		flags |= FlagAF
	}
	if result == 0 {
		flags |= FlagZF
	}
	if (result & 0x80000000) != 0 {
		flags |= FlagSF
	}
	if bits.OnesCount8(uint8(result))%2 == 0 {
		flags |= FlagPF
	}
	return result, flags
}

func TestAddFlagsSweep(t *testing.T) {
	initTest()
	rnum := rand.New(rand.NewSource(125))
	interesting := []uint32{0, 1, 2, 0x7fffffff, 0x80000000, 0xffffffff, 0xfffffffe, 0x10, 0x0f}
	check := func(a, b uint32) {
		sysCPU.regs[RAX] = uint64(a)
		sysCPU.regs[RBX] = uint64(b)
		sysCPU.PC = testOrigin
		sysCPU.halted = false
		// add eax, ebx ; hlt
		block := asm.New()
		block.Bytes(0x01, 0xd8)
		block.Hlt()
		runBlock(t, block)
		want, wantFlags := refAddFlags(a, b)
		if uint32(sysCPU.regs[RAX]) != want {
			t.Fatalf("add %08x+%08x got %08x want %08x", a, b, uint32(sysCPU.regs[RAX]), want)
		}
		got := sysCPU.flags & (FlagCF | FlagOF | FlagAF | FlagZF | FlagSF | FlagPF)
		if got != wantFlags {
			t.Fatalf("add %08x+%08x flags got %03x want %03x", a, b, got, wantFlags)
		}
	}
	for _, a := range interesting {
		for _, b := range interesting {
			check(a, b)
		}
	}
	for range testCycles {
		check(rnum.Uint32(), rnum.Uint32())
	}
}

func TestSubCmpFlags(t *testing.T) {
	cases := []struct {
		a, b  uint32
		flags uint64
	}{
		{5, 3, 0},                                                   // 2: no flags
		{3, 5, FlagCF | FlagSF | FlagAF},                            // borrow, negative
		{5, 5, FlagZF | FlagPF},                                     // zero
		{0x80000000, 1, FlagOF | FlagAF | FlagPF},                   // signed overflow
		{0, 1, FlagCF | FlagSF | FlagAF | FlagPF},                   // wrap to -1 (0xffffffff)
		{0x7fffffff, 0xffffffff, FlagCF | FlagSF | FlagOF | FlagPF}, // overflow with borrow
	}
	for _, c := range cases {
		initTest()
		sysCPU.regs[RAX] = uint64(c.a)
		sysCPU.regs[RBX] = uint64(c.b)
		// cmp eax, ebx
		runBytes(t, 0x39, 0xd8)
		got := sysCPU.flags & (FlagCF | FlagOF | FlagAF | FlagZF | FlagSF | FlagPF)
		if got != c.flags {
			t.Errorf("cmp %08x,%08x flags got %03x want %03x", c.a, c.b, got, c.flags)
		}
		if uint32(sysCPU.regs[RAX]) != c.a {
			t.Errorf("cmp modified destination")
		}
	}
}

func TestLogicClearsCarryOverflow(t *testing.T) {
	initTest()
	sysCPU.flags |= FlagCF | FlagOF
	sysCPU.regs[RAX] = 0xff00ff00
	sysCPU.regs[RBX] = 0x0ff00ff0
	// and eax, ebx
	runBytes(t, 0x21, 0xd8)
	if (sysCPU.flags & (FlagCF | FlagOF)) != 0 {
		t.Error("AND left CF/OF set")
	}
	if uint32(sysCPU.regs[RAX]) != 0x0f000f00 {
		t.Errorf("AND wrong result %08x", uint32(sysCPU.regs[RAX]))
	}
}

func TestIncPreservesCarry(t *testing.T) {
	initTest()
	sysCPU.flags |= FlagCF
	sysCPU.regs[RAX] = 0x7fffffff
	// inc eax (FF /0)
	runBytes(t, 0xff, 0xc0)
	if (sysCPU.flags & FlagCF) == 0 {
		t.Error("INC cleared CF")
	}
	if (sysCPU.flags & FlagOF) == 0 {
		t.Error("INC at 0x7fffffff should set OF")
	}
	if uint32(sysCPU.regs[RAX]) != 0x80000000 {
		t.Errorf("INC wrong result %08x", uint32(sysCPU.regs[RAX]))
	}
}

func TestAdcChain(t *testing.T) {
	initTest()
	// 64 bit add via two 32 bit halves: 0xffffffff + 1 with carry into
	// the high word.
	sysCPU.regs[RAX] = 0xffffffff
	sysCPU.regs[RDX] = 0
	sysCPU.regs[RBX] = 1
	sysCPU.regs[RCX] = 0
	block := asm.New()
	block.Bytes(0x01, 0xd8) // add eax, ebx
	block.Bytes(0x11, 0xca) // adc edx, ecx
	block.Hlt()
	runBlock(t, block)
	if sysCPU.regs[RAX] != 0 || sysCPU.regs[RDX] != 1 {
		t.Errorf("adc chain got %x:%x", sysCPU.regs[RDX], sysCPU.regs[RAX])
	}
}

func TestPushPopIdentity(t *testing.T) {
	rnum := rand.New(rand.NewSource(125))
	for range testCycles {
		initTest()
		value := rnum.Uint64()
		sysCPU.regs[RAX] = value
		rsp := sysCPU.regs[RSP]
		// push rax ; pop rbx
		runBytes(t, 0x50, 0x5b)
		if sysCPU.regs[RBX] != value {
			t.Fatalf("push/pop lost value %016x got %016x", value, sysCPU.regs[RBX])
		}
		if sysCPU.regs[RSP] != rsp {
			t.Fatalf("push/pop moved RSP %x -> %x", rsp, sysCPU.regs[RSP])
		}
	}
}

func TestBswapRoundTrip(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 0x0123456789abcdef
	// bswap rax ; bswap rax
	runBytes(t, 0x48, 0x0f, 0xc8, 0x48, 0x0f, 0xc8)
	if sysCPU.regs[RAX] != 0x0123456789abcdef {
		t.Errorf("double bswap not identity: %016x", sysCPU.regs[RAX])
	}

	initTest()
	sysCPU.regs[RAX] = 0x12345678
	// bswap eax
	runBytes(t, 0x0f, 0xc8)
	if sysCPU.regs[RAX] != 0x78563412 {
		t.Errorf("bswap32 wrong: %016x", sysCPU.regs[RAX])
	}
}

func TestConditionCodes(t *testing.T) {
	// Set flags with a compare, then collect all sixteen SETcc
	// results.
	type ccCase struct {
		a, b uint32
		// Expected taken set, indexed by condition code.
		taken [16]bool
	}
	cases := []ccCase{
		// 5 < 7 unsigned and signed
		{5, 7, [16]bool{
			false, true, // o, no
			true, false, // b, ae
			false, true, // e, ne
			true, false, // be, a
			true, false, // s, ns
			false, true, // p, np  (5-7 = fffffffe, parity odd)
			true, false, // l, ge
			true, false, // le, g
		}},
		// equal
		{9, 9, [16]bool{
			false, true,
			false, true,
			true, false,
			true, false,
			false, true,
			true, false,
			false, true,
			true, false,
		}},
		// -1 vs 1: unsigned above, signed less
		{0xffffffff, 1, [16]bool{
			false, true,
			false, true,
			false, true,
			false, true,
			true, false,
			false, true,
			true, false,
			true, false,
		}},
	}
	for _, c := range cases {
		for cc := range 16 {
			initTest()
			sysCPU.regs[RAX] = uint64(c.a)
			sysCPU.regs[RBX] = uint64(c.b)
			sysCPU.regs[RCX] = 0
			block := asm.New()
			block.Bytes(0x39, 0xd8)                // cmp eax, ebx
			block.Bytes(0x0f, byte(0x90+cc), 0xc1) // setcc cl
			block.Hlt()
			runBlock(t, block)
			got := sysCPU.regs[RCX]&1 != 0
			if got != c.taken[cc] {
				t.Errorf("cmp %x,%x cc%d got %v want %v", c.a, c.b, cc, got, c.taken[cc])
			}
		}
	}
}

func TestMulWidths(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 0xffffffff
	sysCPU.regs[RBX] = 0xffffffff
	// mul ebx: edx:eax = ffffffff^2
	runBytes(t, 0xf7, 0xe3)
	if sysCPU.regs[RAX] != 0x00000001 || sysCPU.regs[RDX] != 0xfffffffe {
		t.Errorf("mul32 got %x:%x", sysCPU.regs[RDX], sysCPU.regs[RAX])
	}
	if (sysCPU.flags & (FlagCF | FlagOF)) != (FlagCF | FlagOF) {
		t.Error("mul32 with high half should set CF/OF")
	}

	initTest()
	sysCPU.regs[RAX] = 7
	sysCPU.regs[RBX] = 3
	// imul rax, rbx via 0F AF
	runBytes(t, 0x48, 0x0f, 0xaf, 0xc3)
	if sysCPU.regs[RAX] != 21 {
		t.Errorf("imul64 got %d", sysCPU.regs[RAX])
	}
	if (sysCPU.flags & (FlagCF | FlagOF)) != 0 {
		t.Error("small imul should clear CF/OF")
	}
}

func TestDivPlacement(t *testing.T) {
	initTest()
	sysCPU.regs[RDX] = 0
	sysCPU.regs[RAX] = 100
	sysCPU.regs[RBX] = 7
	// div ebx
	runBytes(t, 0xf7, 0xf3)
	if sysCPU.regs[RAX] != 14 || sysCPU.regs[RDX] != 2 {
		t.Errorf("div got q=%d r=%d", sysCPU.regs[RAX], sysCPU.regs[RDX])
	}

	// 8 bit form: AX/src -> AL quotient AH remainder.
	initTest()
	sysCPU.regs[RAX] = 100
	sysCPU.regs[RBX] = 7
	// div bl
	runBytes(t, 0xf6, 0xf3)
	if (sysCPU.regs[RAX] & 0xff) != 14 {
		t.Errorf("div8 quotient %d", sysCPU.regs[RAX]&0xff)
	}
	if ((sysCPU.regs[RAX] >> 8) & 0xff) != 2 {
		t.Errorf("div8 remainder %d", (sysCPU.regs[RAX]>>8)&0xff)
	}

	// idiv with negative dividend.
	initTest()
	neg100 := int32(-100)
	sysCPU.regs[RAX] = uint64(uint32(neg100))
	sysCPU.regs[RBX] = 7
	block := asm.New()
	block.Cdq()
	block.Bytes(0xf7, 0xfb) // idiv ebx
	block.Hlt()
	runBlock(t, block)
	if int32(sysCPU.regs[RAX]) != -14 || int32(sysCPU.regs[RDX]) != -2 {
		t.Errorf("idiv got q=%d r=%d", int32(sysCPU.regs[RAX]), int32(sysCPU.regs[RDX]))
	}
}

func TestDivideByZeroTraps(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 1
	sysCPU.regs[RBX] = 0
	block := asm.New()
	block.Bytes(0xf7, 0xf3) // div ebx
	block.Hlt()
	code, _ := block.Finish()
	mem.PutBlock(testOrigin, code)
	for range 4 {
		if !CycleCPU() {
			break
		}
	}
	if sysCPU.halted {
		t.Error("divide by zero reached HLT")
	}
	if !sysCPU.stop {
		t.Error("divide by zero did not stop emulation")
	}
}

func TestShiftFlags(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 0x80000000
	// shl eax, 1
	runBytes(t, 0xd1, 0xe0)
	if (sysCPU.flags & FlagCF) == 0 {
		t.Error("shl out of top should set CF")
	}
	if (sysCPU.flags & FlagOF) == 0 {
		t.Error("shl sign change should set OF")
	}
	if sysCPU.regs[RAX] != 0 {
		t.Errorf("shl result %x", sysCPU.regs[RAX])
	}

	// Count of zero leaves flags alone.
	initTest()
	sysCPU.flags |= FlagCF | FlagZF
	sysCPU.regs[RAX] = 5
	sysCPU.regs[RCX] = 0
	// shl eax, cl
	runBytes(t, 0xd3, 0xe0)
	if (sysCPU.flags&FlagCF) == 0 || (sysCPU.flags&FlagZF) == 0 {
		t.Error("zero count shift changed flags")
	}

	// sar keeps the sign.
	initTest()
	neg16 := int32(-16)
	sysCPU.regs[RAX] = uint64(uint32(neg16))
	// sar eax, 2
	runBytes(t, 0xc1, 0xf8, 0x02)
	if int32(sysCPU.regs[RAX]) != -4 {
		t.Errorf("sar got %d", int32(sysCPU.regs[RAX]))
	}

	// Count masking: shift of 32 on a 32 bit operand is a no-op.
	initTest()
	sysCPU.regs[RAX] = 0x1234
	runBytes(t, 0xc1, 0xe0, 0x20)
	if sysCPU.regs[RAX] != 0x1234 {
		t.Errorf("masked count changed value: %x", sysCPU.regs[RAX])
	}
}

func TestRotateCarry(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 0x80000001
	// rol eax, 1
	runBytes(t, 0xd1, 0xc0)
	if uint32(sysCPU.regs[RAX]) != 0x00000003 {
		t.Errorf("rol got %08x", uint32(sysCPU.regs[RAX]))
	}
	if (sysCPU.flags & FlagCF) == 0 {
		t.Error("rol should carry the rotated bit")
	}

	// rcr pulls the carry in from the top.
	initTest()
	sysCPU.flags |= FlagCF
	sysCPU.regs[RAX] = 0
	// rcr eax, 1
	runBytes(t, 0xd1, 0xd8)
	if uint32(sysCPU.regs[RAX]) != 0x80000000 {
		t.Errorf("rcr got %08x", uint32(sysCPU.regs[RAX]))
	}
}

func TestShldShrd(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 0x12345678
	sysCPU.regs[RBX] = 0x9abcdef0
	// shld eax, ebx, 8
	runBytes(t, 0x0f, 0xa4, 0xd8, 0x08)
	if uint32(sysCPU.regs[RAX]) != 0x3456789a {
		t.Errorf("shld got %08x", uint32(sysCPU.regs[RAX]))
	}

	initTest()
	sysCPU.regs[RAX] = 0x12345678
	sysCPU.regs[RBX] = 0x9abcdef0
	// shrd eax, ebx, 8
	runBytes(t, 0x0f, 0xac, 0xd8, 0x08)
	if uint32(sysCPU.regs[RAX]) != 0xf0123456 {
		t.Errorf("shrd got %08x", uint32(sysCPU.regs[RAX]))
	}
}

func TestMovsStosRep(t *testing.T) {
	initTest()
	source := uint64(0x2000)
	dest := uint64(0x3000)
	for i := range 64 {
		mem.PutByte(source+uint64(i), uint8(i+1))
	}
	sysCPU.regs[RSI] = source
	sysCPU.regs[RDI] = dest
	sysCPU.regs[RCX] = 64
	// rep movsb
	runBytes(t, 0xf3, 0xa4)
	for i := range 64 {
		value, _ := mem.GetByte(dest + uint64(i))
		if value != uint8(i+1) {
			t.Fatalf("movsb byte %d got %d", i, value)
		}
	}
	if sysCPU.regs[RCX] != 0 {
		t.Error("rep did not consume RCX")
	}
	if sysCPU.regs[RSI] != source+64 || sysCPU.regs[RDI] != dest+64 {
		t.Error("movsb pointers wrong")
	}

	// Descending stores with DF set.
	initTest()
	sysCPU.regs[RAX] = 0xaa
	sysCPU.regs[RDI] = dest + 7
	sysCPU.regs[RCX] = 8
	// std ; rep stosb ; cld
	runBytes(t, 0xfd, 0xf3, 0xaa, 0xfc)
	for i := range 8 {
		value, _ := mem.GetByte(dest + uint64(i))
		if value != 0xaa {
			t.Fatalf("stosb down byte %d got %02x", i, value)
		}
	}
}

func TestXchgAndNop(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 1
	sysCPU.regs[RBX] = 2
	// xchg rax, rbx (91-style via 48 93)
	runBytes(t, 0x48, 0x93)
	if sysCPU.regs[RAX] != 2 || sysCPU.regs[RBX] != 1 {
		t.Error("xchg failed")
	}

	// Plain 90 must not disturb anything.
	initTest()
	sysCPU.regs[RAX] = 0x1234
	runBytes(t, 0x90)
	if sysCPU.regs[RAX] != 0x1234 {
		t.Error("nop changed RAX")
	}
}

func TestBitOps(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 0x00010000
	// bsf ecx, eax
	runBytes(t, 0x0f, 0xbc, 0xc8)
	if sysCPU.regs[RCX] != 16 {
		t.Errorf("bsf got %d", sysCPU.regs[RCX])
	}
	if (sysCPU.flags & FlagZF) != 0 {
		t.Error("bsf nonzero source set ZF")
	}

	initTest()
	sysCPU.regs[RAX] = 0
	sysCPU.regs[RCX] = 99
	// bsf ecx, eax: zero source sets ZF, dest unchanged
	runBytes(t, 0x0f, 0xbc, 0xc8)
	if (sysCPU.flags & FlagZF) == 0 {
		t.Error("bsf zero source should set ZF")
	}
	if sysCPU.regs[RCX] != 99 {
		t.Error("bsf zero source changed destination")
	}

	initTest()
	sysCPU.regs[RAX] = 0
	sysCPU.regs[RBX] = 5
	// bts eax, ebx
	runBytes(t, 0x0f, 0xab, 0xd8)
	if sysCPU.regs[RAX] != 0x20 {
		t.Errorf("bts got %x", sysCPU.regs[RAX])
	}
	if (sysCPU.flags & FlagCF) != 0 {
		t.Error("bts on clear bit set CF")
	}
}

func TestCmpxchgXadd(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 10
	sysCPU.regs[RBX] = 10
	sysCPU.regs[RCX] = 42
	// cmpxchg ebx, ecx: equal, so ebx = ecx
	runBytes(t, 0x0f, 0xb1, 0xcb)
	if sysCPU.regs[RBX] != 42 {
		t.Error("cmpxchg equal case failed")
	}
	if (sysCPU.flags & FlagZF) == 0 {
		t.Error("cmpxchg equal should set ZF")
	}

	initTest()
	sysCPU.regs[RAX] = 1
	sysCPU.regs[RBX] = 7
	// xadd ebx, eax
	runBytes(t, 0x0f, 0xc1, 0xc3)
	if sysCPU.regs[RBX] != 8 || sysCPU.regs[RAX] != 7 {
		t.Errorf("xadd got rbx=%d rax=%d", sysCPU.regs[RBX], sysCPU.regs[RAX])
	}
}

func TestCMov(t *testing.T) {
	// A false condition must not touch the destination at all, not
	// even the zero extension a real 32 bit write performs.
	initTest()
	sysCPU.regs[RAX] = 0xdeadbeef00001111
	sysCPU.regs[RBX] = 0x2222
	sysCPU.regs[RCX] = 1
	block := asm.New()
	block.AluImm8x32(7, RCX, 2)   // cmp ecx, 2 clears ZF
	block.Bytes(0x0f, 0x44, 0xc3) // cmove eax, ebx (not taken)
	block.Hlt()
	runBlock(t, block)
	if sysCPU.regs[RAX] != 0xdeadbeef00001111 {
		t.Errorf("untaken cmov wrote destination: %016x", sysCPU.regs[RAX])
	}

	// Taken, the 32 bit write zero extends as any other.
	initTest()
	sysCPU.regs[RAX] = 0xdeadbeef00001111
	sysCPU.regs[RBX] = 0x2222
	sysCPU.regs[RCX] = 1
	block = asm.New()
	block.AluImm8x32(7, RCX, 2)   // cmp ecx, 2
	block.Bytes(0x0f, 0x45, 0xc3) // cmovne eax, ebx (taken)
	block.Hlt()
	runBlock(t, block)
	if sysCPU.regs[RAX] != 0x2222 {
		t.Errorf("taken cmov got %016x want 2222", sysCPU.regs[RAX])
	}
}

func TestMovzxMovsx(t *testing.T) {
	initTest()
	sysCPU.regs[RBX] = 0xff80
	// movzx eax, bl
	runBytes(t, 0x0f, 0xb6, 0xc3)
	if sysCPU.regs[RAX] != 0x80 {
		t.Errorf("movzx got %x", sysCPU.regs[RAX])
	}

	initTest()
	sysCPU.regs[RBX] = 0x80
	// movsx rax, bl
	runBytes(t, 0x48, 0x0f, 0xbe, 0xc3)
	if int64(sysCPU.regs[RAX]) != -128 {
		t.Errorf("movsx got %d", int64(sysCPU.regs[RAX]))
	}

	initTest()
	sysCPU.regs[RBX] = 0xfffffffe
	// movsxd rax, ebx
	runBytes(t, 0x48, 0x63, 0xc3)
	if int64(sysCPU.regs[RAX]) != -2 {
		t.Errorf("movsxd got %d", int64(sysCPU.regs[RAX]))
	}
}

func TestCbwFamily(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 0x80
	// cbw (66 98): AX = sext(AL)
	runBytes(t, 0x66, 0x98)
	if (sysCPU.regs[RAX] & 0xffff) != 0xff80 {
		t.Errorf("cbw got %x", sysCPU.regs[RAX])
	}

	initTest()
	sysCPU.regs[RAX] = 0x8000
	// cwde
	runBytes(t, 0x98)
	if sysCPU.regs[RAX] != 0xffff8000 {
		t.Errorf("cwde got %x", sysCPU.regs[RAX])
	}

	initTest()
	sysCPU.regs[RAX] = 0x80000000
	// cdqe
	runBytes(t, 0x48, 0x98)
	if sysCPU.regs[RAX] != 0xffffffff80000000 {
		t.Errorf("cdqe got %x", sysCPU.regs[RAX])
	}
}

func TestLeaAndAddressing(t *testing.T) {
	initTest()
	sysCPU.regs[RBX] = 0x1000
	sysCPU.regs[RCX] = 0x20
	// lea rax, [rbx+rcx*4+8]
	runBytes(t, 0x48, 0x8d, 0x44, 0x8b, 0x08)
	if sysCPU.regs[RAX] != 0x1088 {
		t.Errorf("lea got %x", sysCPU.regs[RAX])
	}

	// RIP relative load: the displacement counts from the end of the
	// instruction.
	initTest()
	mem.PutQuad(testOrigin+0x100, 0x1122334455667788)
	// mov rax, [rip+disp] ; disp = 0x100 - 7 (length of instruction)
	runBytes(t, 0x48, 0x8b, 0x05, 0xf9, 0x00, 0x00, 0x00)
	if sysCPU.regs[RAX] != 0x1122334455667788 {
		t.Errorf("rip relative load got %x", sysCPU.regs[RAX])
	}
}

func TestSegmentPrefix(t *testing.T) {
	initTest()
	sysCPU.fsBase = 0x4000
	mem.PutQuad(0x4010, 0xfeedface)
	// mov rax, fs:[0x10]
	runBytes(t, 0x64, 0x48, 0x8b, 0x04, 0x25, 0x10, 0x00, 0x00, 0x00)
	if sysCPU.regs[RAX] != 0xfeedface {
		t.Errorf("fs load got %x", sysCPU.regs[RAX])
	}
}

func TestCallRet(t *testing.T) {
	initTest()
	block := asm.New()
	block.MovImm32(RAX, 0)
	block.Call("fn")
	block.AluImm8x32(1, RAX, 4) // or eax, 4 after return
	block.Hlt()
	block.Label("fn")
	block.MovImm32(RAX, 3)
	block.Ret()
	runBlock(t, block)
	if sysCPU.regs[RAX] != 7 {
		t.Errorf("call/ret got %d", sysCPU.regs[RAX])
	}
	if sysCPU.regs[RSP] != testStack {
		t.Error("call/ret unbalanced stack")
	}
}

func TestLoopAndJcxz(t *testing.T) {
	initTest()
	sysCPU.regs[RCX] = 5
	sysCPU.regs[RAX] = 0
	block := asm.New()
	block.Label("top")
	block.Inc32(RAX)
	block.Bytes(0xe2, 0xfc) // loop top (rel8 -4)
	block.Hlt()
	runBlock(t, block)
	if sysCPU.regs[RAX] != 5 {
		t.Errorf("loop ran %d times", sysCPU.regs[RAX])
	}

	// jrcxz takes the branch only when rCX is zero.
	initTest()
	sysCPU.regs[RCX] = 0
	sysCPU.regs[RAX] = 0
	// jrcxz over an inc eax
	runBytes(t, 0xe3, 0x02, 0xff, 0xc0)
	if sysCPU.regs[RAX] != 0 {
		t.Error("jrcxz with zero count did not branch")
	}
	initTest()
	sysCPU.regs[RCX] = 1
	sysCPU.regs[RAX] = 0
	runBytes(t, 0xe3, 0x02, 0xff, 0xc0)
	if sysCPU.regs[RAX] != 1 {
		t.Error("jrcxz with nonzero count branched")
	}
}

func TestCpuidVendor(t *testing.T) {
	initTest()
	sysCPU.regs[RAX] = 0
	runBytes(t, 0x0f, 0xa2)
	if sysCPU.regs[RBX] != 0x756e6547 || sysCPU.regs[RDX] != 0x49656e69 ||
		sysCPU.regs[RCX] != 0x6c65746e {
		t.Error("cpuid vendor string wrong")
	}
}

func TestUndefinedOpcodeFatal(t *testing.T) {
	initTest()
	// 0F 0B is defined to be undefined.
	block := asm.New()
	block.Bytes(0x0f, 0x0b)
	code, _ := block.Finish()
	mem.PutBlock(testOrigin, code)
	if CycleCPU() {
		t.Error("ud2 did not stop the CPU")
	}
}

func TestMode32IncDec(t *testing.T) {
	initTest()
	Mode32(true)
	defer Mode32(false)
	sysCPU.regs[RAX] = 41
	// inc eax (0x40 decodes as INC in 32 bit mode)
	runBytes(t, 0x40)
	if sysCPU.regs[RAX] != 42 {
		t.Errorf("mode32 inc got %d", sysCPU.regs[RAX])
	}
}
