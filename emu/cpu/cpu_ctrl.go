/*
   CPU: control flow, multiply/divide and bit instructions.

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

// Jcc with 8 bit displacement (0x70-0x7F).
func (cpu *cpuState) opJccShort(step *stepInfo) uint16 {
	disp, trap := cpu.fetchImmSigned(1)
	if trap != 0 {
		return trap
	}
	if cpu.testCC(step.opcode & 0xf) {
		cpu.PC += disp
	}
	return 0
}

// Jcc with 32 bit displacement (0F 80-8F).
func (cpu *cpuState) opJccNear(step *stepInfo) uint16 {
	disp, trap := cpu.fetchImmSigned(4)
	if trap != 0 {
		return trap
	}
	if cpu.testCC(step.second & 0xf) {
		cpu.PC += disp
	}
	return 0
}

// SETcc (0F 90-9F).
func (cpu *cpuState) opSetcc(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	value := uint64(0)
	if cpu.testCC(step.second & 0xf) {
		value = 1
	}
	return cpu.writeRM(step, 1, value)
}

// CMOVcc (0F 40-4F). The source is read either way; the destination
// is written only when the condition holds.
func (cpu *cpuState) opCMov(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := cpu.opSize(step)
	value, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	if cpu.testCC(step.second & 0xf) {
		cpu.setReg(size, step.reg, step.rexSeen, value)
	}
	return 0
}

// CALL rel32 (0xE8).
func (cpu *cpuState) opCall(step *stepInfo) uint16 {
	disp, trap := cpu.fetchImmSigned(4)
	if trap != 0 {
		return trap
	}
	if trap := cpu.push(cpu.stackSizeOf(step), cpu.PC); trap != 0 {
		return trap
	}
	cpu.PC += disp
	return 0
}

// RET near (0xC3) and RET imm16 (0xC2).
func (cpu *cpuState) opRet(step *stepInfo) uint16 {
	var adjust uint64
	if step.opcode == 0xc2 {
		imm, trap := cpu.fetchImm(2)
		if trap != 0 {
			return trap
		}
		adjust = imm
	}
	target, trap := cpu.pop(cpu.stackSizeOf(step))
	if trap != 0 {
		return trap
	}
	cpu.regs[RSP] += adjust
	cpu.PC = target
	return 0
}

// JMP rel32 (0xE9) and rel8 (0xEB).
func (cpu *cpuState) opJmp(step *stepInfo) uint16 {
	size := uint8(4)
	if step.opcode == 0xeb {
		size = 1
	}
	disp, trap := cpu.fetchImmSigned(size)
	if trap != 0 {
		return trap
	}
	cpu.PC += disp
	return 0
}

// LOOP/LOOPE/LOOPNE/JrCXZ (0xE0-0xE3) count in rCX.
func (cpu *cpuState) opLoop(step *stepInfo) uint16 {
	disp, trap := cpu.fetchImmSigned(1)
	if trap != 0 {
		return trap
	}
	countSize := uint8(8)
	if cpu.mode32 || step.addr67 {
		countSize = 4
	}
	count := cpu.getReg(countSize, RCX, step.rexSeen)
	taken := false
	switch step.opcode {
	case 0xe3:
		taken = count == 0
	default:
		count--
		cpu.setReg(countSize, RCX, step.rexSeen, count)
		taken = count != 0
		if step.opcode == 0xe1 {
			taken = taken && (cpu.flags&FlagZF) != 0
		}
		if step.opcode == 0xe0 {
			taken = taken && (cpu.flags&FlagZF) == 0
		}
	}
	if taken {
		cpu.PC += disp
	}
	return 0
}

// ENTER (0xC8), no nesting support past level zero.
func (cpu *cpuState) opEnter(step *stepInfo) uint16 {
	frame, trap := cpu.fetchImm(2)
	if trap != 0 {
		return trap
	}
	level, trap := cpu.fetchImm(1)
	if trap != 0 {
		return trap
	}
	if (level & 0x1f) != 0 {
		return ircOper
	}
	size := cpu.stackSizeOf(step)
	if trap := cpu.push(size, cpu.regs[RBP]); trap != 0 {
		return trap
	}
	cpu.regs[RBP] = cpu.regs[RSP]
	cpu.regs[RSP] -= frame
	return cpu.checkStack()
}

// LEAVE (0xC9).
func (cpu *cpuState) opLeave(step *stepInfo) uint16 {
	cpu.regs[RSP] = cpu.regs[RBP]
	value, trap := cpu.pop(cpu.stackSizeOf(step))
	if trap != 0 {
		return trap
	}
	cpu.regs[RBP] = value
	return 0
}

// Group 3 (0xF6, 0xF7): TEST, NOT, NEG, MUL, IMUL, DIV, IDIV.
func (cpu *cpuState) opGrp3(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := uint8(1)
	if step.opcode == 0xf7 {
		size = cpu.opSize(step)
	}
	switch step.reg & 7 {
	case 0, 1: // TEST r/m, imm
		imm, trap := cpu.fetchImmSigned(immWidth(size))
		if trap != 0 {
			return trap
		}
		value, trap := cpu.readRM(step, size)
		if trap != 0 {
			return trap
		}
		cpu.setLogic(size, value&imm)
		return 0
	case 2: // NOT
		value, trap := cpu.readRM(step, size)
		if trap != 0 {
			return trap
		}
		return cpu.writeRM(step, size, ^value)
	case 3: // NEG
		value, trap := cpu.readRM(step, size)
		if trap != 0 {
			return trap
		}
		result := cpu.sub(size, 0, value, 0)
		cpu.setFlag(FlagCF, (value&widthMask[size]) != 0)
		return cpu.writeRM(step, size, result)
	case 4:
		return cpu.mulUnsigned(step, size)
	case 5:
		return cpu.mulSigned(step, size)
	case 6:
		return cpu.divUnsigned(step, size)
	default:
		return cpu.divSigned(step, size)
	}
}

// Unsigned multiply: double width product into rDX:rAX (AX for 8 bit).
// Carry and overflow track a non zero high half.
func (cpu *cpuState) mulUnsigned(step *stepInfo, size uint8) uint16 {
	src, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	a := cpu.getReg(size, RAX, step.rexSeen)
	var low, high uint64
	if size == 8 {
		high, low = bits.Mul64(a, src)
	} else {
		product := a * src
		low = product & widthMask[size]
		high = (product >> (8 * uint(size))) & widthMask[size]
	}
	if size == 1 {
		cpu.setReg(2, RAX, step.rexSeen, (high<<8)|low)
	} else {
		cpu.setReg(size, RAX, step.rexSeen, low)
		cpu.setReg(size, RDX, step.rexSeen, high)
	}
	cpu.setFlag(FlagCF, high != 0)
	cpu.setFlag(FlagOF, high != 0)
	return 0
}

// Signed multiply helper shared by the one, two and three operand
// forms. Returns the low and high halves of the signed product; the
// callers set CF and OF when the high half is not the sign extension
// of the low half.
func (cpu *cpuState) imulWide(size uint8, a, b uint64) (uint64, uint64) {
	if size == 8 {
		high, low := bits.Mul64(a, b)
		// Convert unsigned 128 bit product to signed.
		if int64(a) < 0 {
			high -= b
		}
		if int64(b) < 0 {
			high -= a
		}
		return low, high
	}
	product := uint64(int64(sext(a, size)) * int64(sext(b, size)))
	low := product & widthMask[size]
	high := (product >> (8 * uint(size))) & widthMask[size]
	return low, high
}

// One operand IMUL.
func (cpu *cpuState) mulSigned(step *stepInfo, size uint8) uint16 {
	src, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	a := cpu.getReg(size, RAX, step.rexSeen)
	low, high := cpu.imulWide(size, a, src)
	if size == 1 {
		cpu.setReg(2, RAX, step.rexSeen, (high<<8)|low)
	} else {
		cpu.setReg(size, RAX, step.rexSeen, low)
		cpu.setReg(size, RDX, step.rexSeen, high)
	}
	signSpread := uint64(0)
	if (low & widthSign[size]) != 0 {
		signSpread = widthMask[size]
	}
	truncated := high != signSpread
	cpu.setFlag(FlagCF, truncated)
	cpu.setFlag(FlagOF, truncated)
	return 0
}

// Two operand IMUL r, r/m (0F AF).
func (cpu *cpuState) opIMulR(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := cpu.opSize(step)
	src, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	dst := cpu.getReg(size, step.reg, step.rexSeen)
	cpu.imulTrunc(step, size, dst, src)
	return 0
}

// Three operand IMUL r, r/m, imm (0x69, 0x6B).
func (cpu *cpuState) opIMul3(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := cpu.opSize(step)
	immSize := uint8(1)
	if step.opcode == 0x69 {
		immSize = immWidth(size)
	}
	imm, trap := cpu.fetchImmSigned(immSize)
	if trap != 0 {
		return trap
	}
	src, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	cpu.imulTrunc(step, size, src, imm)
	return 0
}

// Truncating signed multiply writing only the low half, flags as the
// wide form.
func (cpu *cpuState) imulTrunc(step *stepInfo, size uint8, a, b uint64) {
	low, high := cpu.imulWide(size, a, b)
	signSpread := uint64(0)
	if (low & widthSign[size]) != 0 {
		signSpread = widthMask[size]
	}
	truncated := high != signSpread
	cpu.setReg(size, step.reg, step.rexSeen, low)
	cpu.setFlag(FlagCF, truncated)
	cpu.setFlag(FlagOF, truncated)
}

// Unsigned divide. The double width dividend sits in rDX:rAX (AX for
// 8 bit); quotient to rAX, remainder to rDX (AH for 8 bit).
func (cpu *cpuState) divUnsigned(step *stepInfo, size uint8) uint16 {
	divisor, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	if divisor == 0 {
		return ircDiv
	}
	if size == 1 {
		dividend := cpu.regs[RAX] & 0xffff
		quotient := dividend / divisor
		if quotient > 0xff {
			return ircDiv
		}
		remainder := dividend % divisor
		cpu.setReg(2, RAX, step.rexSeen, (remainder<<8)|quotient)
		return 0
	}
	low := cpu.getReg(size, RAX, step.rexSeen)
	high := cpu.getReg(size, RDX, step.rexSeen)
	var quotient, remainder uint64
	if size == 8 {
		if high >= divisor {
			return ircDiv
		}
		quotient, remainder = bits.Div64(high, low, divisor)
	} else {
		dividend := (high << (8 * uint(size))) | low
		quotient = dividend / divisor
		if quotient > widthMask[size] {
			return ircDiv
		}
		remainder = dividend % divisor
	}
	cpu.setReg(size, RAX, step.rexSeen, quotient)
	cpu.setReg(size, RDX, step.rexSeen, remainder)
	return 0
}

// Signed divide with the quotient overflow trap.
func (cpu *cpuState) divSigned(step *stepInfo, size uint8) uint16 {
	raw, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	divisor := int64(sext(raw, size))
	if divisor == 0 {
		return ircDiv
	}
	if size == 1 {
		dividend := int64(int16(cpu.regs[RAX] & 0xffff))
		quotient := dividend / divisor
		remainder := dividend % divisor
		if quotient > 0x7f || quotient < -0x80 {
			return ircDiv
		}
		value := ((uint64(remainder) & 0xff) << 8) | (uint64(quotient) & 0xff)
		cpu.setReg(2, RAX, step.rexSeen, value)
		return 0
	}
	if size == 8 {
		return cpu.divSigned128(step, uint64(divisor))
	}
	low := cpu.getReg(size, RAX, step.rexSeen)
	high := cpu.getReg(size, RDX, step.rexSeen)
	dividend := int64(sext((high<<(8*uint(size)))|low, size*2))
	quotient := dividend / divisor
	remainder := dividend % divisor
	limit := int64(widthSign[size])
	if quotient >= limit || quotient < -limit {
		return ircDiv
	}
	cpu.setReg(size, RAX, step.rexSeen, uint64(quotient))
	cpu.setReg(size, RDX, step.rexSeen, uint64(remainder))
	return 0
}

// 128 by 64 signed divide built from the unsigned primitive.
func (cpu *cpuState) divSigned128(step *stepInfo, rawDivisor uint64) uint16 {
	low := cpu.regs[RAX]
	high := cpu.regs[RDX]

	negDividend := int64(high) < 0
	if negDividend {
		low = -low
		high = ^high
		if low == 0 {
			high++
		}
	}
	divisor := rawDivisor
	negDivisor := int64(divisor) < 0
	if negDivisor {
		divisor = -divisor
	}
	if high >= divisor {
		return ircDiv
	}
	quotient, remainder := bits.Div64(high, low, divisor)
	negQuotient := negDividend != negDivisor
	if negQuotient {
		if quotient > (1 << 63) {
			return ircDiv
		}
		quotient = -quotient
	} else if quotient >= (1 << 63) {
		return ircDiv
	}
	if negDividend {
		remainder = -remainder
	}
	cpu.regs[RAX] = quotient
	cpu.regs[RDX] = remainder
	return 0
}

// Group 4 (0xFE): INC/DEC r/m8.
func (cpu *cpuState) opGrp4(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if (step.reg & 7) > 1 {
		return ircOper
	}
	value, trap := cpu.readRM(step, 1)
	if trap != 0 {
		return trap
	}
	value = cpu.incDec(1, value, (step.reg&7) == 1)
	return cpu.writeRM(step, 1, value)
}

// Group 5 (0xFF): INC, DEC, CALL, JMP, PUSH on r/m.
func (cpu *cpuState) opGrp5(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	switch step.reg & 7 {
	case 0, 1:
		size := cpu.opSize(step)
		value, trap := cpu.readRM(step, size)
		if trap != 0 {
			return trap
		}
		value = cpu.incDec(size, value, (step.reg&7) == 1)
		return cpu.writeRM(step, size, value)
	case 2: // CALL indirect
		size := cpu.stackSizeOf(step)
		target, trap := cpu.readRM(step, size)
		if trap != 0 {
			return trap
		}
		if trap := cpu.push(size, cpu.PC); trap != 0 {
			return trap
		}
		cpu.PC = target
		return 0
	case 4: // JMP indirect
		target, trap := cpu.readRM(step, cpu.stackSizeOf(step))
		if trap != 0 {
			return trap
		}
		cpu.PC = target
		return 0
	case 6: // PUSH r/m
		size := cpu.stackSizeOf(step)
		value, trap := cpu.readRM(step, size)
		if trap != 0 {
			return trap
		}
		return cpu.push(size, value)
	default:
		return ircOper
	}
}

// Resolve the operand and bit number for the BT family. Memory forms
// with a register offset address the full bit string: the signed bit
// displacement selects which word of the string is touched.
func (cpu *cpuState) btOperand(step *stepInfo, size uint8, offset uint64, fromReg bool) (uint64, uint64, uint64, uint16) {
	width := uint64(size) * 8
	if step.isReg {
		value := cpu.getReg(size, step.rm, step.rexSeen)
		return value, offset % width, 0, 0
	}
	addr := cpu.memAddr(step)
	if fromReg {
		shift := uint(3 + bits.TrailingZeros8(size))
		addr += uint64((int64(sext(offset, size)) >> shift) * int64(size))
	}
	value, trap := cpu.readMem(addr, size)
	return value, offset % width, addr, trap
}

// BT/BTS/BTR/BTC with register bit offset (0F A3, AB, B3, BB) or
// immediate offset (group 8, 0F BA /4../7).
func (cpu *cpuState) opBitTest(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := cpu.opSize(step)
	var op uint8
	var offset uint64
	fromReg := step.second != 0xba
	if fromReg {
		op = (step.second >> 3) & 3 // A3=0 AB=1 B3=2 BB=3
		offset = cpu.getReg(size, step.reg, step.rexSeen)
	} else {
		if (step.reg & 7) < 4 {
			return ircOper
		}
		op = (step.reg & 7) - 4
		imm, trap := cpu.fetchImm(1)
		if trap != 0 {
			return trap
		}
		offset = imm
	}
	value, bit, addr, trap := cpu.btOperand(step, size, offset, fromReg)
	if trap != 0 {
		return trap
	}
	cpu.setFlag(FlagCF, (value>>bit)&1 != 0)
	switch op {
	case 1:
		value |= uint64(1) << bit
	case 2:
		value &^= uint64(1) << bit
	case 3:
		value ^= uint64(1) << bit
	default:
		return 0
	}
	if step.isReg {
		cpu.setReg(size, step.rm, step.rexSeen, value)
		return 0
	}
	return cpu.writeMem(addr, size, value)
}

// BSF/BSR (0F BC, 0F BD). A zero source sets ZF and leaves the
// destination unchanged.
func (cpu *cpuState) opBitScan(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := cpu.opSize(step)
	value, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	value &= widthMask[size]
	if value == 0 {
		cpu.flags |= FlagZF
		return 0
	}
	cpu.flags &^= FlagZF
	var index int
	if step.second == 0xbc {
		index = bits.TrailingZeros64(value)
	} else {
		index = 63 - bits.LeadingZeros64(value)
	}
	cpu.setReg(size, step.reg, step.rexSeen, uint64(index))
	return 0
}

// BSWAP (0F C8-CF).
func (cpu *cpuState) opBswap(step *stepInfo) uint16 {
	reg := step.second & 7
	if (step.rex & rexB) != 0 {
		reg += 8
	}
	if cpu.opSize(step) == 8 {
		cpu.regs[reg] = bits.ReverseBytes64(cpu.regs[reg])
		return 0
	}
	cpu.setReg(4, reg, step.rexSeen, uint64(bits.ReverseBytes32(uint32(cpu.regs[reg]))))
	return 0
}

// CMPXCHG (0F B0, 0F B1).
func (cpu *cpuState) opCmpxchg(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := uint8(1)
	if step.second == 0xb1 {
		size = cpu.opSize(step)
	}
	dst, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	acc := cpu.getReg(size, RAX, step.rexSeen)
	cpu.sub(size, acc, dst, 0)
	if (cpu.flags & FlagZF) != 0 {
		return cpu.writeRM(step, size, cpu.getReg(size, step.reg, step.rexSeen))
	}
	cpu.setReg(size, RAX, step.rexSeen, dst)
	return 0
}

// XADD (0F C0, 0F C1).
func (cpu *cpuState) opXadd(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := uint8(1)
	if step.second == 0xc1 {
		size = cpu.opSize(step)
	}
	dst, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	src := cpu.getReg(size, step.reg, step.rexSeen)
	sum := cpu.add(size, dst, src, 0)
	if trap := cpu.writeRM(step, size, sum); trap != 0 {
		return trap
	}
	cpu.setReg(size, step.reg, step.rexSeen, dst)
	return 0
}

// CPUID. Vendor string only; no feature bits advertised.
func (cpu *cpuState) opCpuid(_ *stepInfo) uint16 {
	switch uint32(cpu.regs[RAX]) {
	case 0:
		cpu.regs[RAX] = 1
		cpu.regs[RBX] = 0x756e6547 // "Genu"
		cpu.regs[RDX] = 0x49656e69 // "ineI"
		cpu.regs[RCX] = 0x6c65746e // "ntel"
	case 1:
		cpu.regs[RAX] = 0
		cpu.regs[RCX] = 0
		cpu.regs[RDX] = 0
		cpu.regs[RBX] = 0
	case 0x80000000:
		cpu.regs[RAX] = 0
		cpu.regs[RBX] = 0
		cpu.regs[RCX] = 0
		cpu.regs[RDX] = 0
	default:
		return ircOper
	}
	return 0
}

// RDTSC: the retired instruction count stands in for the time stamp.
func (cpu *cpuState) opRdtsc(_ *stepInfo) uint16 {
	cpu.setReg(4, RAX, false, cpu.instCount&mask32)
	cpu.setReg(4, RDX, false, cpu.instCount>>32)
	return 0
}

// SYSCALL (0F 05): single upcall to the host collaborator.
func (cpu *cpuState) opSyscall(_ *stepInfo) uint16 {
	if cpu.syscall == nil {
		return ircOper
	}
	if !cpu.syscall() {
		cpu.stop = true
	}
	return 0
}

// INT imm8 (0xCD). Only the 32 bit Linux gate is wired.
func (cpu *cpuState) opIntImm(_ *stepInfo) uint16 {
	vector, trap := cpu.fetchImm(1)
	if trap != 0 {
		return trap
	}
	if vector == 0x80 && cpu.mode32 && cpu.syscall != nil {
		if !cpu.syscall() {
			cpu.stop = true
		}
		return 0
	}
	return ircOper
}

// INT3 (0xCC).
func (cpu *cpuState) opInt3(_ *stepInfo) uint16 {
	return ircOper
}

// UD2 (0F 0B).
func (cpu *cpuState) opUD2(_ *stepInfo) uint16 {
	return ircOper
}

// HLT (0xF4).
func (cpu *cpuState) opHlt(_ *stepInfo) uint16 {
	return ircHalt
}
