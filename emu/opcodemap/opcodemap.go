/*
   x64os: AMD64 opcode values shared by the assembler and tests.

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

package opcodemap

// One byte opcodes.
const (
	OpAddRM8  = 0x00 // add r/m8, r8
	OpAddRM   = 0x01 // add r/m, r
	OpOrRM    = 0x09
	OpAdcRM   = 0x11
	OpSbbRM   = 0x19
	OpAndRM   = 0x21
	OpSubRM   = 0x29
	OpXorRM   = 0x31
	OpCmpRM   = 0x39
	OpMovsxd  = 0x63
	OpPushI32 = 0x68
	OpIMul3   = 0x69
	OpPushI8  = 0x6a
	OpGrp1    = 0x81
	OpGrp1S   = 0x83
	OpTestRM  = 0x85
	OpXchgRM  = 0x87
	OpMovRM   = 0x89 // mov r/m, r
	OpMovMR   = 0x8b // mov r, r/m
	OpLea     = 0x8d
	OpPopRM   = 0x8f
	OpNop     = 0x90
	OpCbw     = 0x98
	OpCwd     = 0x99
	OpMovs    = 0xa5
	OpStos    = 0xab
	OpMovI    = 0xb8 // mov r, imm
	OpShiftI  = 0xc1
	OpRetImm  = 0xc2
	OpRet     = 0xc3
	OpMovIRM  = 0xc7
	OpLeave   = 0xc9
	OpInt     = 0xcd
	OpShift1  = 0xd1
	OpShiftCL = 0xd3
	OpLoop    = 0xe2
	OpCall    = 0xe8
	OpJmp     = 0xe9
	OpJmpS    = 0xeb
	OpHlt     = 0xf4
	OpGrp3B   = 0xf6
	OpGrp3    = 0xf7
	OpClc     = 0xf8
	OpStd     = 0xfd
	OpCld     = 0xfc
	OpGrp5    = 0xff
)

// Second bytes of 0F prefixed opcodes.
const (
	Op2Syscall = 0x05
	Op2Movups  = 0x10
	Op2Movaps  = 0x28
	Op2Cvtsi   = 0x2a
	Op2Cvttsi  = 0x2c
	Op2Ucomis  = 0x2e
	Op2Rdtsc   = 0x31
	Op2CMov    = 0x40 // plus condition code
	Op2Jcc     = 0x80 // plus condition code
	Op2Setcc   = 0x90 // plus condition code
	Op2Cpuid   = 0xa2
	Op2Bt      = 0xa3
	Op2Shld    = 0xa4
	Op2Bts     = 0xab
	Op2Shrd    = 0xac
	Op2IMul    = 0xaf
	Op2Movzx8  = 0xb6
	Op2Movzx16 = 0xb7
	Op2Bsf     = 0xbc
	Op2Bsr     = 0xbd
	Op2Movsx8  = 0xbe
	Op2Movsx16 = 0xbf
	Op2Bswap   = 0xc8 // plus register
	Op2Psubusb = 0xd8
	Op2Movq    = 0xd6
	Op2Movdqu  = 0x6f
	Op2Movd    = 0x6e
)

// Condition code indexes for Jcc, SETcc and CMOVcc.
const (
	CcO = iota
	CcNo
	CcB
	CcAe
	CcE
	CcNe
	CcBe
	CcA
	CcS
	CcNs
	CcP
	CcNp
	CcL
	CcGe
	CcLe
	CcG
)

// ModR/M reg field selectors for the immediate groups.
const (
	Grp1Add = iota
	Grp1Or
	Grp1Adc
	Grp1Sbb
	Grp1And
	Grp1Sub
	Grp1Xor
	Grp1Cmp
)

const (
	Grp3Test = iota
	_
	Grp3Not
	Grp3Neg
	Grp3Mul
	Grp3IMul
	Grp3Div
	Grp3IDiv
)

const (
	Grp5Inc = iota
	Grp5Dec
	Grp5Call
	_
	Grp5Jmp
	_
	Grp5Push
)

const (
	ShiftRol = iota
	ShiftRor
	ShiftRcl
	ShiftRcr
	ShiftShl
	ShiftShr
	_
	ShiftSar
)
