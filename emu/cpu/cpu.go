/*
   CPU: main CPU instruction fetch and execute.

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
	"fmt"
	"io"
	"os"
	"strings"

	dis "github.com/davidly/x64os/emu/disassemble"
	mem "github.com/davidly/x64os/emu/memory"
)

/*
   The emulated processor is a single logical AMD64 CPU able to run in
   64 bit long mode or 32 bit compatibility mode. Instructions are a
   variable number of bytes:

     +--------------+--------+--------+-----+--------------+-----------+
     | prefixes 0-4 | opcode | ModR/M | SIB | displacement | immediate |
     +--------------+--------+--------+-----+--------------+-----------+

   Prefixes fall into classes: REX (0x40-0x4F, 64 bit mode only),
   operand/address size (0x66/0x67), repeat or SSE selector (0xF2/0xF3),
   segment (0x64/0x65 carry a base, the legacy four are flat), and LOCK
   (0xF0). Each class holds one slot per instruction, last writer wins.
   The opcode is one byte, or two when the first byte is 0x0F. ModR/M
   selects either a register or a memory form built from an optional
   SIB byte and an 8 or 32 bit signed displacement.
*/

var traceWriter io.Writer = os.Stdout

// Initialize CPU to basic state.
func InitializeCPU() {
	sysCPU.createTable()
	sysCPU.createTable0F()
	sysCPU.PC = 0
	sysCPU.iPC = 0
	sysCPU.flags = flagsFixed
	sysCPU.fsBase = 0
	sysCPU.gsBase = 0
	sysCPU.stop = false
	sysCPU.halted = false
	sysCPU.instCount = 0
	sysCPU.fpTop = 0
	sysCPU.fpControl = fpInitControl
	sysCPU.fpStatus = 0
	sysCPU.mxcsr = 0x1f80

	// Clear registers
	for i := range 16 {
		sysCPU.regs[i] = 0
		sysCPU.xregs[i] = [16]byte{}
	}
	for i := range 8 {
		sysCPU.fpregs[i] = fpReg{}
	}
}

// Enable or disable per instruction tracing. Returns previous state.
func TraceInstructions(enable bool) bool {
	prev := sysCPU.trace
	sysCPU.trace = enable
	return prev
}

// Set where trace output goes.
func SetTraceWriter(w io.Writer) {
	traceWriter = w
}

// Request a cooperative exit at the next instruction boundary.
func EndEmulation() {
	sysCPU.stop = true
}

// Switch between 64 bit long mode and 32 bit compatibility mode.
func Mode32(enable bool) {
	sysCPU.mode32 = enable
}

// Install the system call upcall. The handler reads and writes the
// register file through the accessors; a false return ends emulation.
func SetSyscall(handler func() bool) {
	sysCPU.syscall = handler
}

// Install the symbol lookup used by the trace output.
func SetSymLookup(lookup func(uint64) string) {
	sysCPU.symLookup = lookup
}

// Set the debug stack window. RSP leaving
// [top - size, top + slack] is fatal while checks are enabled.
func SetStack(top, size uint64) {
	sysCPU.stackTop = top
	sysCPU.stackSize = size
	sysCPU.checks = true
}

// Return CPU PC.
func PC() uint64 {
	return sysCPU.PC
}

// Set CPU PC.
func SetPC(pc uint64) {
	sysCPU.PC = pc
}

// Read a general purpose register. Used by the kernel and monitor.
func Reg(num int) uint64 {
	return sysCPU.regs[num&0xf]
}

// Set a general purpose register.
func SetReg(num int, value uint64) {
	sysCPU.regs[num&0xf] = value
}

// Return the RFLAGS image.
func Flags() uint64 {
	return sysCPU.flags
}

// Set the FS segment base. ARCH_SET_FS lands here.
func SetFSBase(base uint64) {
	sysCPU.fsBase = base
}

// Set the GS segment base.
func SetGSBase(base uint64) {
	sysCPU.gsBase = base
}

// Number of instructions retired so far.
func InstCount() uint64 {
	return sysCPU.instCount
}

// True once HLT was reached.
func Halted() bool {
	return sysCPU.halted
}

// Run until termination. Returns the number of instructions executed.
func Run() uint64 {
	start := sysCPU.instCount
	for !sysCPU.stop && !sysCPU.halted {
		if !CycleCPU() {
			break
		}
	}
	sysCPU.stop = false
	return sysCPU.instCount - start
}

// Execute one instruction. Returns false when emulation should end.
func CycleCPU() bool {
	trap := sysCPU.fetch()
	switch trap {
	case 0:
		return !sysCPU.stop
	case ircHalt:
		sysCPU.halted = true
		return false
	default:
		sysCPU.fatal(trap)
		return false
	}
}

// Report a fatal trap with the decoder state and stop.
func (cpu *cpuState) fatal(trap uint16) {
	names := map[uint16]string{
		ircOper:  "undefined opcode",
		ircDiv:   "divide trap",
		ircAddr:  "memory access out of range",
		ircStack: "stack pointer out of range",
		ircFetch: "instruction fetch out of range",
	}
	name, ok := names[trap]
	if !ok {
		name = "unknown trap"
	}
	raw := make([]byte, 0, 15)
	for i := uint64(0); i < 15 && cpu.iPC+i < cpu.PC; i++ {
		by, err := mem.GetByte(cpu.iPC + i)
		if err {
			break
		}
		raw = append(raw, by)
	}
	fmt.Fprintf(traceWriter, "fatal: %s at %016x [% x]\n", name, cpu.iPC, raw)
	fmt.Fprint(traceWriter, dumpRegs())
	cpu.stop = true
}

// Fetch one byte at PC and advance. RIP is advanced as bytes are
// consumed so RIP relative addressing sees the post-instruction value.
func (cpu *cpuState) fetchByte() (uint8, uint16) {
	by, err := mem.GetByte(cpu.PC)
	if err {
		return 0, ircFetch
	}
	cpu.PC++
	return by, 0
}

// Fetch an immediate of 1, 2, 4 or 8 bytes, zero extended.
func (cpu *cpuState) fetchImm(size uint8) (uint64, uint16) {
	var value uint64
	for i := uint8(0); i < size; i++ {
		by, trap := cpu.fetchByte()
		if trap != 0 {
			return 0, trap
		}
		value |= uint64(by) << (8 * i)
	}
	return value, 0
}

// Fetch a sign extended immediate.
func (cpu *cpuState) fetchImmSigned(size uint8) (uint64, uint16) {
	value, trap := cpu.fetchImm(size)
	if trap != 0 {
		return 0, trap
	}
	return sext(value, size), 0
}

// Decode and execute one instruction.
func (cpu *cpuState) fetch() uint16 {
	var step stepInfo

	cpu.iPC = cpu.PC

	// Prefix accumulator. Terminates on the first non prefix byte.
	for {
		by, trap := cpu.fetchByte()
		if trap != 0 {
			return trap
		}
		if !cpu.mode32 && by >= 0x40 && by <= 0x4f {
			step.rex = by
			step.rexSeen = true
			continue
		}
		switch by {
		case 0x66:
			step.size66 = true
		case 0x67:
			step.addr67 = true
		case 0xf2, 0xf3:
			step.rep = by
		case 0x64:
			step.seg = segFS
		case 0x65:
			step.seg = segGS
		case 0x26, 0x2e, 0x36, 0x3e:
			step.seg = segZero
		case 0xf0:
			step.lock = true
		default:
			step.opcode = by
			goto opcode
		}
	}

opcode:
	if step.opcode == 0x0f {
		second, trap := cpu.fetchByte()
		if trap != 0 {
			return trap
		}
		step.second = second
		step.twoByte = true
	}

	if cpu.trace {
		cpu.traceStep()
	}
	cpu.instCount++

	var trap uint16
	if step.twoByte {
		trap = cpu.table0F[step.second](&step)
	} else {
		trap = cpu.table[step.opcode](&step)
	}
	if cpu.mode32 {
		cpu.PC &= mask32
	}
	return trap
}

// Emit one trace line: address, symbol, raw bytes, non zero registers,
// flag digest and disassembly. Does not change architectural state.
func (cpu *cpuState) traceStep() {
	raw, err := mem.GetBlock(cpu.iPC, 15)
	if err {
		raw, _ = mem.GetBlock(cpu.iPC, mem.GetSize()-cpu.iPC)
	}
	text, length := dis.Disassemble(raw, cpu.iPC, cpu.mode32, cpu.symLookup)
	if length == 0 || length > len(raw) {
		length = 1
	}

	var out strings.Builder
	fmt.Fprintf(&out, "%012x ", cpu.iPC)
	if cpu.symLookup != nil {
		if name := cpu.symLookup(cpu.iPC); name != "" {
			fmt.Fprintf(&out, "<%s> ", name)
		}
	}
	fmt.Fprintf(&out, "%-24s", fmt.Sprintf("% x", raw[:length]))
	out.WriteString(flagDigest())
	out.WriteByte(' ')
	out.WriteString(regDigest())
	out.WriteByte(' ')
	out.WriteString(text)
	out.WriteByte('\n')
	fmt.Fprint(traceWriter, out.String())
}

var regNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// Compact dump of the non zero registers.
func regDigest() string {
	var out strings.Builder
	for i, value := range sysCPU.regs {
		if value != 0 {
			fmt.Fprintf(&out, "%s=%x ", regNames[i], value)
		}
	}
	return strings.TrimRight(out.String(), " ")
}

// One letter per set status flag.
func flagDigest() string {
	digest := []byte("......")
	bits := []struct {
		bit  uint64
		name byte
	}{
		{FlagOF, 'O'}, {FlagSF, 'S'}, {FlagZF, 'Z'},
		{FlagAF, 'A'}, {FlagPF, 'P'}, {FlagCF, 'C'},
	}
	for i, fl := range bits {
		if (sysCPU.flags & fl.bit) != 0 {
			digest[i] = fl.name
		}
	}
	return string(digest)
}

// Full register dump for the monitor and fatal traps.
func dumpRegs() string {
	var out strings.Builder
	for i := range 16 {
		fmt.Fprintf(&out, "%-4s %016x", regNames[i], sysCPU.regs[i])
		if (i % 2) == 1 {
			out.WriteByte('\n')
		} else {
			out.WriteString("  ")
		}
	}
	fmt.Fprintf(&out, "rip  %016x  flags %s\n", sysCPU.PC, flagDigest())
	return out.String()
}

// DumpRegs returns a printable register dump.
func DumpRegs() string {
	return dumpRegs()
}
