/*
   CPU definitions for AMD64 emulator definitions

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

// Decode state for one instruction. Prefix slots are cleared at the
// start of every instruction; later bytes of the same class replace
// earlier ones.
type stepInfo struct {
	opcode  uint8 // Primary opcode byte
	second  uint8 // Second opcode byte after 0x0F
	twoByte bool  // Opcode was 0x0F prefixed
	rex     uint8 // REX byte, 0 if none seen
	rexSeen bool  // Any REX byte seen, even 0x40
	size66  bool  // 0x66 operand size prefix
	addr67  bool  // 0x67 address size prefix
	rep     uint8 // 0xF2/0xF3 prefix or 0
	seg     uint8 // Segment prefix slot
	lock    bool  // 0xF0 seen

	mod uint8 // ModR/M mod field
	reg uint8 // ModR/M reg field extended by REX.R
	rm  uint8 // ModR/M rm field extended by REX.B

	isReg  bool   // mod == 3, rm selects a register
	ea     uint64 // Effective address (or disp for RIP relative)
	ripRel bool   // ea is relative to post-instruction RIP
}

// 80 bit extended real as stored in the x87 register file. sig holds
// the 64 bit significand with the explicit integer bit at bit 63, se
// holds the sign at bit 15 over a 15 bit biased exponent.
type fpReg struct {
	sig uint64
	se  uint16
}

type cpuState struct {
	regs [16]uint64 // General purpose register file
	PC   uint64     // Instruction pointer
	iPC  uint64     // PC at start of current instruction

	flags  uint64 // RFLAGS image
	fsBase uint64 // FS segment linear base
	gsBase uint64 // GS segment linear base

	xregs [16][16]byte // SSE register file
	mxcsr uint32       // SSE control/status

	fpregs    [8]fpReg // x87 stack slots
	fpTop     int      // x87 top of stack index
	fpControl uint16   // x87 control word
	fpStatus  uint16   // x87 status word, TOP synthesized on read

	mode32    bool // 32 bit compatibility mode
	trace     bool // Per instruction trace enabled
	stop      bool // Cooperative termination request
	halted    bool // HLT reached
	instCount uint64

	stackTop  uint64 // Stack window for debug checks
	stackSize uint64
	checks    bool // Enable debug bounds checks

	table   [256]func(*stepInfo) uint16
	table0F [256]func(*stepInfo) uint16

	syscall   func() bool         // SYSCALL/INT 0x80 upcall
	symLookup func(uint64) string // Symbol lookup for traces
}

// Holds state of CPU.
var sysCPU cpuState

// Register numbers in encoding order.
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// RFLAGS bits.
const (
	FlagCF uint64 = 1 << 0
	FlagPF uint64 = 1 << 2
	FlagAF uint64 = 1 << 4
	FlagZF uint64 = 1 << 6
	FlagSF uint64 = 1 << 7
	FlagTF uint64 = 1 << 8
	FlagIF uint64 = 1 << 9
	FlagDF uint64 = 1 << 10
	FlagOF uint64 = 1 << 11

	flagsFixed uint64 = 1 << 1 // Bit 1 always reads as one
	statusMask uint64 = FlagCF | FlagPF | FlagAF | FlagZF | FlagSF | FlagOF
)

// REX bit fields.
const (
	rexB uint8 = 1 << 0
	rexX uint8 = 1 << 1
	rexR uint8 = 1 << 2
	rexW uint8 = 1 << 3
)

// Segment prefix slot values.
const (
	segNone uint8 = iota
	segZero       // 0x26/0x2E/0x36/0x3E, base is zero
	segFS
	segGS
)

// Trap codes. Any non zero value from a handler tears the emulation
// down; the run loop reports the code and the decoder state.
const (
	ircOper  uint16 = 1 + iota // Undefined opcode or encoding
	ircDiv                     // Divide by zero or quotient overflow
	ircAddr                    // Access outside allocated memory
	ircStack                   // RSP left the stack window
	ircFetch                   // Instruction fetch out of range
	ircHalt                    // HLT reached (clean stop)
)

// x87 control word fields.
const (
	fpRoundNearest uint16 = 0 << 10
	fpRoundDown    uint16 = 1 << 10
	fpRoundUp      uint16 = 2 << 10
	fpRoundZero    uint16 = 3 << 10
	fpRoundMask    uint16 = 3 << 10

	fpInitControl uint16 = 0x037f
)

// x87 status word condition bits.
const (
	fpC0 uint16 = 1 << 8
	fpC1 uint16 = 1 << 9
	fpC2 uint16 = 1 << 10
	fpC3 uint16 = 1 << 14
)

// Comparison outcomes shared by x87 and SSE compares.
const (
	cmpGreater = iota
	cmpLess
	cmpEqual
	cmpUnordered
)

// Width masks indexed by operand size in bytes.
var widthMask = map[uint8]uint64{
	1: 0xff,
	2: 0xffff,
	4: 0xffffffff,
	8: 0xffffffffffffffff,
}

// Sign bit for each operand size.
var widthSign = map[uint8]uint64{
	1: 0x80,
	2: 0x8000,
	4: 0x80000000,
	8: 0x8000000000000000,
}

const (
	mask32 uint64 = 0xffffffff

	// 80 bit extended real fields.
	fp80SignBit   uint16 = 0x8000
	fp80ExpMask   uint16 = 0x7fff
	fp80ExpBias   int    = 16383
	fp80IntBit    uint64 = 0x8000000000000000
	fp80FracMask  uint64 = 0x7fffffffffffffff
	fp80QuietBit  uint64 = 0x4000000000000000
	biasedExpMax  int    = 0x7fff
	f64ExpBias    int    = 1023
	f64FracBits   uint   = 52
	negQNaN64     uint64 = 0xfff8000000000000
	intIndefinite uint64 = 0x8000000000000000
)
