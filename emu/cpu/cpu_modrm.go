/*
   CPU: ModR/M decode, effective addresses and operand access.

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
	mem "github.com/davidly/x64os/emu/memory"
)

// Sign extend a value of the given width to 64 bits.
func sext(value uint64, size uint8) uint64 {
	switch size {
	case 1:
		return uint64(int64(int8(value)))
	case 2:
		return uint64(int64(int16(value)))
	case 4:
		return uint64(int64(int32(value)))
	}
	return value
}

// Operand width for the general instruction families: REX.W wins,
// then the 0x66 prefix, else the mode default.
func (cpu *cpuState) opSize(step *stepInfo) uint8 {
	if !cpu.mode32 && (step.rex&rexW) != 0 {
		return 8
	}
	if step.size66 {
		return 2
	}
	return 4
}

// Immediate width for the operand size: 64 bit operands still take a
// 32 bit sign extended immediate except for the MOV reg,imm64 family.
func immWidth(size uint8) uint8 {
	if size == 8 {
		return 4
	}
	return size
}

// Stack slot width: 8 in long mode, 4 in compatibility mode, 2 under
// the operand size prefix.
func (cpu *cpuState) stackSizeOf(step *stepInfo) uint8 {
	if step.size66 {
		return 2
	}
	if cpu.mode32 {
		return 4
	}
	return 8
}

// Consume the ModR/M byte and, for memory forms, the SIB byte and
// displacement. Leaves either a register selector (isReg) or an
// effective address in step.
func (cpu *cpuState) fetchModRM(step *stepInfo) uint16 {
	modrm, trap := cpu.fetchByte()
	if trap != 0 {
		return trap
	}
	step.mod = (modrm >> 6) & 3
	step.reg = (modrm >> 3) & 7
	step.rm = modrm & 7
	if (step.rex & rexR) != 0 {
		step.reg += 8
	}

	if step.mod == 3 {
		step.isReg = true
		if (step.rex & rexB) != 0 {
			step.rm += 8
		}
		return 0
	}

	var base, index uint64
	var haveBase bool
	disp := uint64(0)
	dispSize := uint8(0)

	switch step.mod {
	case 1:
		dispSize = 1
	case 2:
		dispSize = 4
	}

	if step.rm == 4 {
		// SIB byte follows.
		sib, trap := cpu.fetchByte()
		if trap != 0 {
			return trap
		}
		scale := (sib >> 6) & 3
		indexReg := (sib >> 3) & 7
		baseReg := sib & 7
		if (step.rex & rexX) != 0 {
			indexReg += 8
		}
		// Index 4 means no index register.
		if indexReg != 4 {
			index = cpu.regs[indexReg] << scale
		}
		if step.mod == 0 && baseReg == 5 {
			// Base suppressed, disp32 instead.
			dispSize = 4
		} else {
			if (step.rex & rexB) != 0 {
				baseReg += 8
			}
			base = cpu.regs[baseReg]
			haveBase = true
		}
	} else if step.mod == 0 && step.rm == 5 {
		// RIP relative with disp32, or plain disp32 in 32 bit mode.
		dispSize = 4
		if !cpu.mode32 {
			step.ripRel = true
		}
	} else {
		rm := step.rm
		if (step.rex & rexB) != 0 {
			rm += 8
		}
		base = cpu.regs[rm]
		haveBase = true
	}

	if dispSize != 0 {
		disp, trap = cpu.fetchImmSigned(dispSize)
		if trap != 0 {
			return trap
		}
	}

	ea := disp
	if haveBase {
		ea += base
	}
	ea += index
	if cpu.mode32 || step.addr67 {
		ea &= mask32
	}
	step.ea = ea
	return 0
}

// Linear address of the decoded memory operand. RIP relative forms
// resolve against the PC after the whole instruction, so this must be
// called only after every instruction byte is consumed. The segment
// base is applied here, once per operand.
func (cpu *cpuState) memAddr(step *stepInfo) uint64 {
	addr := step.ea
	if step.ripRel {
		addr += cpu.PC
	}
	switch step.seg {
	case segFS:
		addr += cpu.fsBase
	case segGS:
		addr += cpu.gsBase
	}
	return addr
}

// Read a value of the given width from memory.
func (cpu *cpuState) readMem(addr uint64, size uint8) (uint64, uint16) {
	switch size {
	case 1:
		value, err := mem.GetByte(addr)
		if err {
			return 0, ircAddr
		}
		return uint64(value), 0
	case 2:
		value, err := mem.GetHalf(addr)
		if err {
			return 0, ircAddr
		}
		return uint64(value), 0
	case 4:
		value, err := mem.GetWord(addr)
		if err {
			return 0, ircAddr
		}
		return uint64(value), 0
	default:
		value, err := mem.GetQuad(addr)
		if err {
			return 0, ircAddr
		}
		return value, 0
	}
}

// Write a value of the given width to memory.
func (cpu *cpuState) writeMem(addr uint64, size uint8, value uint64) uint16 {
	var err bool
	switch size {
	case 1:
		err = mem.PutByte(addr, uint8(value))
	case 2:
		err = mem.PutHalf(addr, uint16(value))
	case 4:
		err = mem.PutWord(addr, uint32(value))
	default:
		err = mem.PutQuad(addr, value)
	}
	if err {
		return ircAddr
	}
	return 0
}

// Read the r/m operand of the given width.
func (cpu *cpuState) readRM(step *stepInfo, size uint8) (uint64, uint16) {
	if step.isReg {
		return cpu.getReg(size, step.rm, step.rexSeen), 0
	}
	return cpu.readMem(cpu.memAddr(step), size)
}

// Write the r/m operand of the given width.
func (cpu *cpuState) writeRM(step *stepInfo, size uint8, value uint64) uint16 {
	if step.isReg {
		cpu.setReg(size, step.rm, step.rexSeen, value)
		return 0
	}
	return cpu.writeMem(cpu.memAddr(step), size, value)
}

// Read a register of the given width. For byte operands without a REX
// prefix, registers 4..7 name the legacy high bytes AH, CH, DH, BH.
func (cpu *cpuState) getReg(size uint8, num uint8, rexSeen bool) uint64 {
	switch size {
	case 1:
		if !rexSeen && num >= 4 && num < 8 {
			return (cpu.regs[num-4] >> 8) & 0xff
		}
		return cpu.regs[num] & 0xff
	case 2:
		return cpu.regs[num] & 0xffff
	case 4:
		return cpu.regs[num] & mask32
	}
	return cpu.regs[num]
}

// Write a register of the given width. A 32 bit write zero extends
// into the upper half; 8 and 16 bit writes leave the rest unchanged.
func (cpu *cpuState) setReg(size uint8, num uint8, rexSeen bool, value uint64) {
	switch size {
	case 1:
		if !rexSeen && num >= 4 && num < 8 {
			reg := num - 4
			cpu.regs[reg] = (cpu.regs[reg] &^ uint64(0xff00)) | ((value & 0xff) << 8)
			return
		}
		cpu.regs[num] = (cpu.regs[num] &^ uint64(0xff)) | (value & 0xff)
	case 2:
		cpu.regs[num] = (cpu.regs[num] &^ uint64(0xffff)) | (value & 0xffff)
	case 4:
		cpu.regs[num] = value & mask32
	default:
		cpu.regs[num] = value
	}
}

// Check the stack window after RSP moves. Only active in debug runs.
func (cpu *cpuState) checkStack() uint16 {
	if !cpu.checks {
		return 0
	}
	rsp := cpu.regs[RSP]
	low := cpu.stackTop - cpu.stackSize
	if rsp < low || rsp > cpu.stackTop+256 {
		return ircStack
	}
	return 0
}

// Push a value on the stack.
func (cpu *cpuState) push(size uint8, value uint64) uint16 {
	cpu.regs[RSP] -= uint64(size)
	if trap := cpu.checkStack(); trap != 0 {
		return trap
	}
	return cpu.writeMem(cpu.regs[RSP], size, value)
}

// Pop a value off the stack.
func (cpu *cpuState) pop(size uint8) (uint64, uint16) {
	value, trap := cpu.readMem(cpu.regs[RSP], size)
	if trap != 0 {
		return 0, trap
	}
	cpu.regs[RSP] += uint64(size)
	if trap := cpu.checkStack(); trap != 0 {
		return 0, trap
	}
	return value, 0
}
