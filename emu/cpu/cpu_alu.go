/*
   CPU: integer ALU, moves and flag synthesis.

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
	"math/bits"
)

// ALU operation selectors, in encoding order of the arithmetic group.
const (
	aluAdd = iota
	aluOr
	aluAdc
	aluSbb
	aluAnd
	aluSub
	aluXor
	aluCmp
)

// Set or clear one flag bit.
func (cpu *cpuState) setFlag(flag uint64, cond bool) {
	if cond {
		cpu.flags |= flag
	} else {
		cpu.flags &^= flag
	}
}

// Zero, sign and parity from a result of the given width. Parity is
// even population count of the low byte only.
func (cpu *cpuState) setSZP(size uint8, result uint64) {
	result &= widthMask[size]
	cpu.setFlag(FlagZF, result == 0)
	cpu.setFlag(FlagSF, (result&widthSign[size]) != 0)
	cpu.setFlag(FlagPF, bits.OnesCount8(uint8(result))%2 == 0)
}

// Flags for the logical group: carry and overflow cleared, auxiliary
// conventionally cleared.
func (cpu *cpuState) setLogic(size uint8, result uint64) {
	cpu.flags &^= FlagCF | FlagOF | FlagAF
	cpu.setSZP(size, result)
}

// Add with carry in, full flag synthesis.
func (cpu *cpuState) add(size uint8, a, b, cin uint64) uint64 {
	mask := widthMask[size]
	a &= mask
	b &= mask
	var result uint64
	var carry bool
	if size == 8 {
		var c uint64
		result, c = bits.Add64(a, b, cin)
		carry = c != 0
	} else {
		sum := a + b + cin
		result = sum & mask
		carry = sum > mask
	}
	cpu.setFlag(FlagCF, carry)
	cpu.setFlag(FlagOF, ((a^result)&(b^result)&widthSign[size]) != 0)
	cpu.setFlag(FlagAF, ((a^b^result)&0x10) != 0)
	cpu.setSZP(size, result)
	return result
}

// Subtract with borrow in, full flag synthesis.
func (cpu *cpuState) sub(size uint8, a, b, bin uint64) uint64 {
	mask := widthMask[size]
	a &= mask
	b &= mask
	var result uint64
	var borrow bool
	if size == 8 {
		var c uint64
		result, c = bits.Sub64(a, b, bin)
		borrow = c != 0
	} else {
		diff := a - b - bin
		result = diff & mask
		borrow = b+bin > a
	}
	cpu.setFlag(FlagCF, borrow)
	cpu.setFlag(FlagOF, ((a^b)&(a^result)&widthSign[size]) != 0)
	cpu.setFlag(FlagAF, ((a^b^result)&0x10) != 0)
	cpu.setSZP(size, result)
	return result
}

// Dispatch one arithmetic group operation.
func (cpu *cpuState) alu(op uint8, size uint8, dst, src uint64) uint64 {
	cin := uint64(0)
	if (cpu.flags & FlagCF) != 0 {
		cin = 1
	}
	switch op {
	case aluAdd:
		return cpu.add(size, dst, src, 0)
	case aluAdc:
		return cpu.add(size, dst, src, cin)
	case aluSub, aluCmp:
		return cpu.sub(size, dst, src, 0)
	case aluSbb:
		return cpu.sub(size, dst, src, cin)
	case aluOr:
		result := (dst | src) & widthMask[size]
		cpu.setLogic(size, result)
		return result
	case aluAnd:
		result := (dst & src) & widthMask[size]
		cpu.setLogic(size, result)
		return result
	default: // aluXor
		result := (dst ^ src) & widthMask[size]
		cpu.setLogic(size, result)
		return result
	}
}

// Evaluate one of the sixteen condition codes.
func (cpu *cpuState) testCC(cc uint8) bool {
	var taken bool
	sf := (cpu.flags & FlagSF) != 0
	of := (cpu.flags & FlagOF) != 0
	switch cc >> 1 {
	case 0:
		taken = of
	case 1:
		taken = (cpu.flags & FlagCF) != 0
	case 2:
		taken = (cpu.flags & FlagZF) != 0
	case 3:
		taken = (cpu.flags & (FlagCF | FlagZF)) != 0
	case 4:
		taken = sf
	case 5:
		taken = (cpu.flags & FlagPF) != 0
	case 6:
		taken = sf != of
	case 7:
		taken = (cpu.flags&FlagZF) != 0 || sf != of
	}
	if (cc & 1) != 0 {
		taken = !taken
	}
	return taken
}

// Handle an unknown instruction.
func (cpu *cpuState) opUnk(_ *stepInfo) uint16 {
	return ircOper
}

// Arithmetic group in its six encoding slots: r/m8,r8; r/m,r; r8,r/m8;
// r,r/m; AL,imm8; rAX,imm.
func (cpu *cpuState) opALU(step *stepInfo) uint16 {
	op := (step.opcode >> 3) & 7
	form := step.opcode & 7

	if form >= 4 {
		size := uint8(1)
		if form == 5 {
			size = cpu.opSize(step)
		}
		imm, trap := cpu.fetchImmSigned(immWidth(size))
		if trap != 0 {
			return trap
		}
		dst := cpu.getReg(size, RAX, step.rexSeen)
		result := cpu.alu(op, size, dst, imm)
		if op != aluCmp {
			cpu.setReg(size, RAX, step.rexSeen, result)
		}
		return 0
	}

	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := uint8(1)
	if (form & 1) != 0 {
		size = cpu.opSize(step)
	}

	if form < 2 {
		// Destination is r/m.
		dst, trap := cpu.readRM(step, size)
		if trap != 0 {
			return trap
		}
		src := cpu.getReg(size, step.reg, step.rexSeen)
		result := cpu.alu(op, size, dst, src)
		if op == aluCmp {
			return 0
		}
		return cpu.writeRM(step, size, result)
	}

	// Destination is the reg field.
	src, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	dst := cpu.getReg(size, step.reg, step.rexSeen)
	result := cpu.alu(op, size, dst, src)
	if op != aluCmp {
		cpu.setReg(size, step.reg, step.rexSeen, result)
	}
	return 0
}

// Arithmetic group with immediate operand (0x80, 0x81, 0x83).
func (cpu *cpuState) opGrp1(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	op := step.reg & 7
	size := uint8(1)
	immSize := uint8(1)
	if step.opcode == 0x81 || step.opcode == 0x83 {
		size = cpu.opSize(step)
		if step.opcode == 0x81 {
			immSize = immWidth(size)
		}
	}
	imm, trap := cpu.fetchImmSigned(immSize)
	if trap != 0 {
		return trap
	}
	dst, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	result := cpu.alu(op, size, dst, imm)
	if op == aluCmp {
		return 0
	}
	return cpu.writeRM(step, size, result)
}

// Add or subtract one preserving the carry flag.
func (cpu *cpuState) incDec(size uint8, value uint64, dec bool) uint64 {
	saved := cpu.flags & FlagCF
	var result uint64
	if dec {
		result = cpu.sub(size, value, 1, 0)
	} else {
		result = cpu.add(size, value, 1, 0)
	}
	cpu.flags = (cpu.flags &^ FlagCF) | saved
	return result
}

// Single byte INC/DEC r32, reachable only in 32 bit mode where
// 0x40-0x4F are not REX prefixes.
func (cpu *cpuState) opIncDec40(step *stepInfo) uint16 {
	reg := step.opcode & 7
	size := cpu.opSize(step)
	value := cpu.getReg(size, reg, false)
	value = cpu.incDec(size, value, (step.opcode&0x08) != 0)
	cpu.setReg(size, reg, false, value)
	return 0
}

// MOV in its four ModR/M encodings (0x88-0x8B).
func (cpu *cpuState) opMov(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := uint8(1)
	if (step.opcode & 1) != 0 {
		size = cpu.opSize(step)
	}
	if (step.opcode & 2) == 0 {
		value := cpu.getReg(size, step.reg, step.rexSeen)
		return cpu.writeRM(step, size, value)
	}
	value, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	cpu.setReg(size, step.reg, step.rexSeen, value)
	return 0
}

// MOV r8, imm8 (0xB0-0xB7).
func (cpu *cpuState) opMovImm8(step *stepInfo) uint16 {
	reg := step.opcode & 7
	if (step.rex & rexB) != 0 {
		reg += 8
	}
	imm, trap := cpu.fetchImm(1)
	if trap != 0 {
		return trap
	}
	cpu.setReg(1, reg, step.rexSeen, imm)
	return 0
}

// MOV r, imm (0xB8-0xBF). The only family with a true 64 bit
// immediate.
func (cpu *cpuState) opMovImm(step *stepInfo) uint16 {
	reg := step.opcode & 7
	if (step.rex & rexB) != 0 {
		reg += 8
	}
	size := cpu.opSize(step)
	imm, trap := cpu.fetchImm(size)
	if trap != 0 {
		return trap
	}
	cpu.setReg(size, reg, step.rexSeen, imm)
	return 0
}

// MOV r/m, imm (0xC6, 0xC7).
func (cpu *cpuState) opMovImmRM(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if (step.reg & 7) != 0 {
		return ircOper
	}
	size := uint8(1)
	if step.opcode == 0xc7 {
		size = cpu.opSize(step)
	}
	imm, trap := cpu.fetchImmSigned(immWidth(size))
	if trap != 0 {
		return trap
	}
	return cpu.writeRM(step, size, imm)
}

// MOV between the accumulator and an absolute offset (0xA0-0xA3).
func (cpu *cpuState) opMovOffs(step *stepInfo) uint16 {
	addrSize := uint8(8)
	if cpu.mode32 || step.addr67 {
		addrSize = 4
	}
	offs, trap := cpu.fetchImm(addrSize)
	if trap != 0 {
		return trap
	}
	switch step.seg {
	case segFS:
		offs += cpu.fsBase
	case segGS:
		offs += cpu.gsBase
	}
	size := uint8(1)
	if (step.opcode & 1) != 0 {
		size = cpu.opSize(step)
	}
	if (step.opcode & 2) == 0 {
		value, trap := cpu.readMem(offs, size)
		if trap != 0 {
			return trap
		}
		cpu.setReg(size, RAX, step.rexSeen, value)
		return 0
	}
	return cpu.writeMem(offs, size, cpu.getReg(size, RAX, step.rexSeen))
}

// MOVZX (0F B6, 0F B7).
func (cpu *cpuState) opMovzx(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	srcSize := uint8(1)
	if step.second == 0xb7 {
		srcSize = 2
	}
	value, trap := cpu.readRM(step, srcSize)
	if trap != 0 {
		return trap
	}
	cpu.setReg(cpu.opSize(step), step.reg, step.rexSeen, value)
	return 0
}

// MOVSX (0F BE, 0F BF).
func (cpu *cpuState) opMovsx(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	srcSize := uint8(1)
	if step.second == 0xbf {
		srcSize = 2
	}
	value, trap := cpu.readRM(step, srcSize)
	if trap != 0 {
		return trap
	}
	cpu.setReg(cpu.opSize(step), step.reg, step.rexSeen, sext(value, srcSize))
	return 0
}

// MOVSXD (0x63): sign extend a 32 bit source into a 64 bit register.
func (cpu *cpuState) opMovsxd(step *stepInfo) uint16 {
	if cpu.mode32 {
		return ircOper
	}
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	value, trap := cpu.readRM(step, 4)
	if trap != 0 {
		return trap
	}
	size := cpu.opSize(step)
	if size == 8 {
		value = sext(value, 4)
	}
	cpu.setReg(size, step.reg, step.rexSeen, value)
	return 0
}

// LEA: the resolved effective address truncated to operand width. No
// segment base and no memory access.
func (cpu *cpuState) opLea(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if step.isReg {
		return ircOper
	}
	addr := step.ea
	if step.ripRel {
		addr += cpu.PC
	}
	cpu.setReg(cpu.opSize(step), step.reg, step.rexSeen, addr)
	return 0
}

// TEST r/m,r (0x84, 0x85).
func (cpu *cpuState) opTest(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := uint8(1)
	if step.opcode == 0x85 {
		size = cpu.opSize(step)
	}
	dst, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	src := cpu.getReg(size, step.reg, step.rexSeen)
	cpu.setLogic(size, dst&src)
	return 0
}

// TEST AL/rAX, imm (0xA8, 0xA9).
func (cpu *cpuState) opTestAX(step *stepInfo) uint16 {
	size := uint8(1)
	if step.opcode == 0xa9 {
		size = cpu.opSize(step)
	}
	imm, trap := cpu.fetchImmSigned(immWidth(size))
	if trap != 0 {
		return trap
	}
	cpu.setLogic(size, cpu.getReg(size, RAX, step.rexSeen)&imm)
	return 0
}

// XCHG r/m,r (0x86, 0x87).
func (cpu *cpuState) opXchgRM(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := uint8(1)
	if step.opcode == 0x87 {
		size = cpu.opSize(step)
	}
	rm, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	reg := cpu.getReg(size, step.reg, step.rexSeen)
	if trap := cpu.writeRM(step, size, reg); trap != 0 {
		return trap
	}
	cpu.setReg(size, step.reg, step.rexSeen, rm)
	return 0
}

// XCHG rAX,r (0x90-0x97). 0x90 without REX.B is the canonical NOP.
func (cpu *cpuState) opXchgAX(step *stepInfo) uint16 {
	reg := step.opcode & 7
	if (step.rex & rexB) != 0 {
		reg += 8
	}
	if reg == RAX {
		return 0
	}
	size := cpu.opSize(step)
	a := cpu.getReg(size, RAX, step.rexSeen)
	b := cpu.getReg(size, reg, step.rexSeen)
	cpu.setReg(size, RAX, step.rexSeen, b)
	cpu.setReg(size, reg, step.rexSeen, a)
	return 0
}

// PUSH r (0x50-0x57).
func (cpu *cpuState) opPushReg(step *stepInfo) uint16 {
	reg := step.opcode & 7
	if (step.rex & rexB) != 0 {
		reg += 8
	}
	size := cpu.stackSizeOf(step)
	return cpu.push(size, cpu.getReg(size, reg, step.rexSeen))
}

// POP r (0x58-0x5F).
func (cpu *cpuState) opPopReg(step *stepInfo) uint16 {
	reg := step.opcode & 7
	if (step.rex & rexB) != 0 {
		reg += 8
	}
	size := cpu.stackSizeOf(step)
	value, trap := cpu.pop(size)
	if trap != 0 {
		return trap
	}
	cpu.setReg(size, reg, step.rexSeen, value)
	return 0
}

// PUSH imm (0x68, 0x6A).
func (cpu *cpuState) opPushImm(step *stepInfo) uint16 {
	immSize := uint8(4)
	if step.opcode == 0x6a {
		immSize = 1
	}
	imm, trap := cpu.fetchImmSigned(immSize)
	if trap != 0 {
		return trap
	}
	return cpu.push(cpu.stackSizeOf(step), imm)
}

// POP r/m (0x8F).
func (cpu *cpuState) opPopRM(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := cpu.stackSizeOf(step)
	value, trap := cpu.pop(size)
	if trap != 0 {
		return trap
	}
	return cpu.writeRM(step, size, value)
}

// CBW/CWDE/CDQE (0x98).
func (cpu *cpuState) opCBW(step *stepInfo) uint16 {
	switch cpu.opSize(step) {
	case 2:
		cpu.setReg(2, RAX, step.rexSeen, sext(cpu.regs[RAX]&0xff, 1))
	case 8:
		cpu.setReg(8, RAX, step.rexSeen, sext(cpu.regs[RAX]&mask32, 4))
	default:
		cpu.setReg(4, RAX, step.rexSeen, sext(cpu.regs[RAX]&0xffff, 2))
	}
	return 0
}

// CWD/CDQ/CQO (0x99): spread the accumulator sign through rDX.
func (cpu *cpuState) opCWD(step *stepInfo) uint16 {
	size := cpu.opSize(step)
	high := uint64(0)
	if (cpu.regs[RAX] & widthSign[size]) != 0 {
		high = widthMask[size]
	}
	cpu.setReg(size, RDX, step.rexSeen, high)
	return 0
}

// SAHF: load SF,ZF,AF,PF,CF from AH.
func (cpu *cpuState) opSAHF(_ *stepInfo) uint16 {
	ah := (cpu.regs[RAX] >> 8) & 0xff
	keep := FlagSF | FlagZF | FlagAF | FlagPF | FlagCF
	cpu.flags = (cpu.flags &^ keep) | (ah & keep) | flagsFixed
	return 0
}

// LAHF: store SF,ZF,AF,PF,CF into AH.
func (cpu *cpuState) opLAHF(_ *stepInfo) uint16 {
	keep := FlagSF | FlagZF | FlagAF | FlagPF | FlagCF
	cpu.setReg(1, 4, false, (cpu.flags&keep)|flagsFixed)
	return 0
}

// PUSHF (0x9C).
func (cpu *cpuState) opPushF(step *stepInfo) uint16 {
	return cpu.push(cpu.stackSizeOf(step), cpu.flags|flagsFixed)
}

// POPF (0x9D). Only the synthesized status bits plus DF and IF are
// taken from the stack image.
func (cpu *cpuState) opPopF(step *stepInfo) uint16 {
	value, trap := cpu.pop(cpu.stackSizeOf(step))
	if trap != 0 {
		return trap
	}
	keep := statusMask | FlagDF | FlagIF
	cpu.flags = (cpu.flags &^ keep) | (value & keep) | flagsFixed
	return 0
}

// CLC/STC/CMC/CLD/STD/CLI/STI and friends.
func (cpu *cpuState) opClc(_ *stepInfo) uint16 {
	cpu.flags &^= FlagCF
	return 0
}

func (cpu *cpuState) opStc(_ *stepInfo) uint16 {
	cpu.flags |= FlagCF
	return 0
}

func (cpu *cpuState) opCmc(_ *stepInfo) uint16 {
	cpu.flags ^= FlagCF
	return 0
}

func (cpu *cpuState) opCld(_ *stepInfo) uint16 {
	cpu.flags &^= FlagDF
	return 0
}

func (cpu *cpuState) opStd(_ *stepInfo) uint16 {
	cpu.flags |= FlagDF
	return 0
}

func (cpu *cpuState) opCli(_ *stepInfo) uint16 {
	cpu.flags &^= FlagIF
	return 0
}

func (cpu *cpuState) opSti(_ *stepInfo) uint16 {
	cpu.flags |= FlagIF
	return 0
}

// Plain NOP (also PAUSE under F3).
func (cpu *cpuState) opNop(_ *stepInfo) uint16 {
	return 0
}

// Hinting instructions with a ModR/M byte that must still be
// consumed: long NOP (0F 1F) and the prefetch group.
func (cpu *cpuState) opNopMem(step *stepInfo) uint16 {
	return cpu.fetchModRM(step)
}

// XLAT: AL = [rBX + AL].
func (cpu *cpuState) opXlat(step *stepInfo) uint16 {
	addr := cpu.regs[RBX] + (cpu.regs[RAX] & 0xff)
	if cpu.mode32 || step.addr67 {
		addr &= mask32
	}
	switch step.seg {
	case segFS:
		addr += cpu.fsBase
	case segGS:
		addr += cpu.gsBase
	}
	value, trap := cpu.readMem(addr, 1)
	if trap != 0 {
		return trap
	}
	cpu.setReg(1, RAX, step.rexSeen, value)
	return 0
}
