/*
   CPU: string operations and repeat prefixes.

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

// Per step pointer adjustment: the operand width, negated when the
// direction flag is set.
func (cpu *cpuState) strStride(size uint8) uint64 {
	if (cpu.flags & FlagDF) != 0 {
		return -uint64(size)
	}
	return uint64(size)
}

// Element width for a string opcode: byte forms are even opcodes.
func (cpu *cpuState) strSize(step *stepInfo) uint8 {
	if (step.opcode & 1) == 0 {
		return 1
	}
	return cpu.opSize(step)
}

// Apply a segment override to a source address. Only rSI based reads
// honor the prefix; stores through rDI always use the flat ES.
func (cpu *cpuState) strSrcAddr(step *stepInfo) uint64 {
	addr := cpu.regs[RSI]
	if cpu.mode32 || step.addr67 {
		addr &= mask32
	}
	switch step.seg {
	case segFS:
		addr += cpu.fsBase
	case segGS:
		addr += cpu.gsBase
	}
	return addr
}

func (cpu *cpuState) strDstAddr(step *stepInfo) uint64 {
	addr := cpu.regs[RDI]
	if cpu.mode32 || step.addr67 {
		addr &= mask32
	}
	return addr
}

// Run one string primitive under the active repeat prefix. The body
// returns (done, trap); done stops REPE/REPNE iteration early.
func (cpu *cpuState) repeat(step *stepInfo, conditional bool, body func() (bool, uint16)) uint16 {
	if step.rep == 0 {
		_, trap := body()
		return trap
	}
	for cpu.regs[RCX] != 0 {
		done, trap := body()
		if trap != 0 {
			return trap
		}
		cpu.regs[RCX]--
		if conditional && done {
			break
		}
	}
	return 0
}

// MOVS (0xA4, 0xA5).
func (cpu *cpuState) opMovs(step *stepInfo) uint16 {
	size := cpu.strSize(step)
	return cpu.repeat(step, false, func() (bool, uint16) {
		value, trap := cpu.readMem(cpu.strSrcAddr(step), size)
		if trap != 0 {
			return true, trap
		}
		if trap := cpu.writeMem(cpu.strDstAddr(step), size, value); trap != 0 {
			return true, trap
		}
		stride := cpu.strStride(size)
		cpu.regs[RSI] += stride
		cpu.regs[RDI] += stride
		return false, 0
	})
}

// STOS (0xAA, 0xAB).
func (cpu *cpuState) opStos(step *stepInfo) uint16 {
	size := cpu.strSize(step)
	return cpu.repeat(step, false, func() (bool, uint16) {
		value := cpu.getReg(size, RAX, step.rexSeen)
		if trap := cpu.writeMem(cpu.strDstAddr(step), size, value); trap != 0 {
			return true, trap
		}
		cpu.regs[RDI] += cpu.strStride(size)
		return false, 0
	})
}

// LODS (0xAC, 0xAD).
func (cpu *cpuState) opLods(step *stepInfo) uint16 {
	size := cpu.strSize(step)
	return cpu.repeat(step, false, func() (bool, uint16) {
		value, trap := cpu.readMem(cpu.strSrcAddr(step), size)
		if trap != 0 {
			return true, trap
		}
		cpu.setReg(size, RAX, step.rexSeen, value)
		cpu.regs[RSI] += cpu.strStride(size)
		return false, 0
	})
}

// SCAS (0xAE, 0xAF). REPE scans while equal, REPNE while not equal.
func (cpu *cpuState) opScas(step *stepInfo) uint16 {
	size := cpu.strSize(step)
	wantZF := step.rep == 0xf3
	return cpu.repeat(step, true, func() (bool, uint16) {
		value, trap := cpu.readMem(cpu.strDstAddr(step), size)
		if trap != 0 {
			return true, trap
		}
		cpu.sub(size, cpu.getReg(size, RAX, step.rexSeen), value, 0)
		cpu.regs[RDI] += cpu.strStride(size)
		return ((cpu.flags & FlagZF) != 0) != wantZF, 0
	})
}

// CMPS (0xA6, 0xA7).
func (cpu *cpuState) opCmps(step *stepInfo) uint16 {
	size := cpu.strSize(step)
	wantZF := step.rep == 0xf3
	return cpu.repeat(step, true, func() (bool, uint16) {
		src, trap := cpu.readMem(cpu.strSrcAddr(step), size)
		if trap != 0 {
			return true, trap
		}
		dst, trap := cpu.readMem(cpu.strDstAddr(step), size)
		if trap != 0 {
			return true, trap
		}
		cpu.sub(size, src, dst, 0)
		stride := cpu.strStride(size)
		cpu.regs[RSI] += stride
		cpu.regs[RDI] += stride
		return ((cpu.flags & FlagZF) != 0) != wantZF, 0
	})
}
