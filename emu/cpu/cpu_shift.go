/*
   CPU: shift and rotate family.

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

// Shift group selectors in ModR/M reg field order.
const (
	shiftRol = iota
	shiftRor
	shiftRcl
	shiftRcr
	shiftShl
	shiftShr
	shiftSal // alias of SHL
	shiftSar
)

// Shift and rotate group (0xC0, 0xC1, 0xD0, 0xD1, 0xD2, 0xD3). The
// count comes from an immediate, the constant one, or CL. A masked
// count of zero leaves the flags untouched.
func (cpu *cpuState) opShift(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := uint8(1)
	if (step.opcode & 1) != 0 {
		size = cpu.opSize(step)
	}
	var count uint64
	switch step.opcode {
	case 0xc0, 0xc1:
		imm, trap := cpu.fetchImm(1)
		if trap != 0 {
			return trap
		}
		count = imm
	case 0xd0, 0xd1:
		count = 1
	default:
		count = cpu.regs[RCX] & 0xff
	}
	if size == 8 {
		count &= 0x3f
	} else {
		count &= 0x1f
	}
	value, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	if count == 0 {
		return 0
	}
	value = cpu.shift(step.reg&7, size, value, uint(count))
	return cpu.writeRM(step, size, value)
}

// Perform one shift or rotate with flag synthesis. The count is
// already masked and non zero.
func (cpu *cpuState) shift(op uint8, size uint8, value uint64, count uint) uint64 {
	width := uint(size) * 8
	mask := widthMask[size]
	sign := widthSign[size]
	value &= mask

	var result uint64
	var carry bool

	switch op {
	case shiftShl, shiftSal:
		// The masked count can still exceed the width for 8 and 16
		// bit operands.
		switch {
		case count > width:
			result = 0
			carry = false
		case count == width:
			result = 0
			carry = (value & 1) != 0
		default:
			result = (value << count) & mask
			carry = (value>>(width-count))&1 != 0
		}
		cpu.setFlag(FlagCF, carry)
		if count == 1 {
			cpu.setFlag(FlagOF, ((result&sign) != 0) != carry)
		}
		cpu.setSZP(size, result)

	case shiftShr:
		if count >= width {
			result = 0
			carry = count == width && (value&sign) != 0
		} else {
			result = value >> count
			carry = (value>>(count-1))&1 != 0
		}
		cpu.setFlag(FlagCF, carry)
		if count == 1 {
			cpu.setFlag(FlagOF, (value&sign) != 0)
		}
		cpu.setSZP(size, result)

	case shiftSar:
		signed := int64(sext(value, size))
		if count >= width {
			// Every shifted out bit is a copy of the sign.
			result = uint64(signed>>(width-1)) & mask
			carry = (value & sign) != 0
		} else {
			result = uint64(signed>>count) & mask
			carry = (uint64(signed)>>(count-1))&1 != 0
		}
		cpu.setFlag(FlagCF, carry)
		if count == 1 {
			cpu.flags &^= FlagOF
		}
		cpu.setSZP(size, result)

	case shiftRol:
		count %= width
		if count != 0 {
			result = ((value << count) | (value >> (width - count))) & mask
		} else {
			result = value
		}
		carry = (result & 1) != 0
		cpu.setFlag(FlagCF, carry)
		if count == 1 {
			cpu.setFlag(FlagOF, ((result&sign) != 0) != carry)
		}

	case shiftRor:
		count %= width
		if count != 0 {
			result = ((value >> count) | (value << (width - count))) & mask
		} else {
			result = value
		}
		cpu.setFlag(FlagCF, (result&sign) != 0)
		if count == 1 {
			top := (result & sign) != 0
			below := (result & (sign >> 1)) != 0
			cpu.setFlag(FlagOF, top != below)
		}

	case shiftRcl:
		count %= width + 1
		cin := uint64(0)
		if (cpu.flags & FlagCF) != 0 {
			cin = 1
		}
		result = value
		for range count {
			top := (result & sign) != 0
			result = ((result << 1) | cin) & mask
			cin = 0
			if top {
				cin = 1
			}
		}
		cpu.setFlag(FlagCF, cin != 0)
		if count == 1 {
			cpu.setFlag(FlagOF, ((result&sign) != 0) != (cin != 0))
		}

	case shiftRcr:
		count %= width + 1
		cin := uint64(0)
		if (cpu.flags & FlagCF) != 0 {
			cin = 1
		}
		result = value
		for range count {
			low := result & 1
			result = (result >> 1) | (cin << (width - 1))
			cin = low
		}
		cpu.setFlag(FlagCF, cin != 0)
		if count == 1 {
			top := (result & sign) != 0
			below := (result & (sign >> 1)) != 0
			cpu.setFlag(FlagOF, top != below)
		}
	}
	return result
}

// SHLD/SHRD (0F A4, A5, AC, AD): double precision shift with the reg
// operand supplying fill bits.
func (cpu *cpuState) opShiftD(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := cpu.opSize(step)
	var count uint64
	if (step.second & 1) == 0 {
		imm, trap := cpu.fetchImm(1)
		if trap != 0 {
			return trap
		}
		count = imm
	} else {
		count = cpu.regs[RCX] & 0xff
	}
	if size == 8 {
		count &= 0x3f
	} else {
		count &= 0x1f
	}
	if count == 0 {
		return 0
	}
	value, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	fill := cpu.getReg(size, step.reg, step.rexSeen)
	width := uint64(size) * 8
	mask := widthMask[size]
	value &= mask
	fill &= mask

	var result uint64
	var carry bool
	if step.second < 0xac {
		// SHLD: fill from the source's top bits.
		result = (value << count) & mask
		result |= fill >> (width - count)
		carry = (value>>(width-count))&1 != 0
	} else {
		// SHRD: fill from the source's low bits.
		result = value >> count
		result |= (fill << (width - count)) & mask
		carry = (value>>(count-1))&1 != 0
	}
	cpu.setFlag(FlagCF, carry)
	if count == 1 {
		cpu.setFlag(FlagOF, ((result^value)&widthSign[size]) != 0)
	}
	cpu.setSZP(size, result)
	return cpu.writeRM(step, size, result)
}
