/*
   CPU: SSE/SSE2 moves, packed float arithmetic and conversions.

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
	"encoding/binary"
	"math"

	mem "github.com/davidly/x64os/emu/memory"
)

// Lane accessors. The in register layout is little endian regardless
// of host byte order.
func getLane16(x *[16]byte, lane int) uint16 {
	return binary.LittleEndian.Uint16(x[lane*2:])
}

func putLane16(x *[16]byte, lane int, value uint16) {
	binary.LittleEndian.PutUint16(x[lane*2:], value)
}

func getLane32(x *[16]byte, lane int) uint32 {
	return binary.LittleEndian.Uint32(x[lane*4:])
}

func putLane32(x *[16]byte, lane int, value uint32) {
	binary.LittleEndian.PutUint32(x[lane*4:], value)
}

func getLane64(x *[16]byte, lane int) uint64 {
	return binary.LittleEndian.Uint64(x[lane*8:])
}

func putLane64(x *[16]byte, lane int, value uint64) {
	binary.LittleEndian.PutUint64(x[lane*8:], value)
}

func getLaneF32(x *[16]byte, lane int) float32 {
	return math.Float32frombits(getLane32(x, lane))
}

func putLaneF32(x *[16]byte, lane int, value float32) {
	putLane32(x, lane, math.Float32bits(value))
}

func getLaneF64(x *[16]byte, lane int) float64 {
	return math.Float64frombits(getLane64(x, lane))
}

func putLaneF64(x *[16]byte, lane int, value float64) {
	putLane64(x, lane, math.Float64bits(value))
}

// Read the full 128 bit r/m operand.
func (cpu *cpuState) readXmmRM(step *stepInfo) ([16]byte, uint16) {
	if step.isReg {
		return cpu.xregs[step.rm], 0
	}
	value, err := mem.GetOcta(cpu.memAddr(step))
	if err {
		return value, ircAddr
	}
	return value, 0
}

// Write the full 128 bit r/m operand.
func (cpu *cpuState) writeXmmRM(step *stepInfo, value [16]byte) uint16 {
	if step.isReg {
		cpu.xregs[step.rm] = value
		return 0
	}
	if mem.PutOcta(cpu.memAddr(step), value) {
		return ircAddr
	}
	return 0
}

// Read the low 64 bits of the r/m operand; memory forms read only
// eight bytes.
func (cpu *cpuState) readXmmRM64(step *stepInfo) (uint64, uint16) {
	if step.isReg {
		return getLane64(&cpu.xregs[step.rm], 0), 0
	}
	return cpu.readMem(cpu.memAddr(step), 8)
}

// Read the low 32 bits of the r/m operand.
func (cpu *cpuState) readXmmRM32(step *stepInfo) (uint32, uint16) {
	if step.isReg {
		return getLane32(&cpu.xregs[step.rm], 0), 0
	}
	value, trap := cpu.readMem(cpu.memAddr(step), 4)
	return uint32(value), trap
}

// MOVUPS/MOVUPD/MOVSS/MOVSD load (0F 10) and store (0F 11) forms.
func (cpu *cpuState) opMovUps(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	load := step.second == 0x10
	switch step.rep {
	case 0xf3: // MOVSS: scalar, memory load zeroes the high lanes
		if load {
			value, trap := cpu.readXmmRM32(step)
			if trap != 0 {
				return trap
			}
			if step.isReg {
				putLane32(&cpu.xregs[step.reg], 0, value)
			} else {
				cpu.xregs[step.reg] = [16]byte{}
				putLane32(&cpu.xregs[step.reg], 0, value)
			}
			return 0
		}
		value := getLane32(&cpu.xregs[step.reg], 0)
		if step.isReg {
			putLane32(&cpu.xregs[step.rm], 0, value)
			return 0
		}
		return cpu.writeMem(cpu.memAddr(step), 4, uint64(value))
	case 0xf2: // MOVSD
		if load {
			value, trap := cpu.readXmmRM64(step)
			if trap != 0 {
				return trap
			}
			if step.isReg {
				putLane64(&cpu.xregs[step.reg], 0, value)
			} else {
				cpu.xregs[step.reg] = [16]byte{}
				putLane64(&cpu.xregs[step.reg], 0, value)
			}
			return 0
		}
		value := getLane64(&cpu.xregs[step.reg], 0)
		if step.isReg {
			putLane64(&cpu.xregs[step.rm], 0, value)
			return 0
		}
		return cpu.writeMem(cpu.memAddr(step), 8, value)
	default: // MOVUPS/MOVUPD move all 128 bits
		if load {
			value, trap := cpu.readXmmRM(step)
			if trap != 0 {
				return trap
			}
			cpu.xregs[step.reg] = value
			return 0
		}
		return cpu.writeXmmRM(step, cpu.xregs[step.reg])
	}
}

// MOVAPS/MOVAPD (0F 28, 0F 29) and the aligned integer moves share
// semantics with the unaligned forms; alignment is not faulted.
func (cpu *cpuState) opMovAps(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if step.second == 0x28 {
		value, trap := cpu.readXmmRM(step)
		if trap != 0 {
			return trap
		}
		cpu.xregs[step.reg] = value
		return 0
	}
	return cpu.writeXmmRM(step, cpu.xregs[step.reg])
}

// MOVLPS/MOVLPD/MOVHLPS (0F 12, 0F 13).
func (cpu *cpuState) opMovLps(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if step.second == 0x13 {
		value := getLane64(&cpu.xregs[step.reg], 0)
		if step.isReg {
			return ircOper
		}
		return cpu.writeMem(cpu.memAddr(step), 8, value)
	}
	if step.isReg {
		// MOVHLPS: low half from the source's high half.
		putLane64(&cpu.xregs[step.reg], 0, getLane64(&cpu.xregs[step.rm], 1))
		return 0
	}
	value, trap := cpu.readMem(cpu.memAddr(step), 8)
	if trap != 0 {
		return trap
	}
	putLane64(&cpu.xregs[step.reg], 0, value)
	return 0
}

// MOVHPS/MOVHPD/MOVLHPS (0F 16, 0F 17).
func (cpu *cpuState) opMovHps(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if step.second == 0x17 {
		if step.isReg {
			return ircOper
		}
		return cpu.writeMem(cpu.memAddr(step), 8, getLane64(&cpu.xregs[step.reg], 1))
	}
	if step.isReg {
		// MOVLHPS: high half from the source's low half.
		putLane64(&cpu.xregs[step.reg], 1, getLane64(&cpu.xregs[step.rm], 0))
		return 0
	}
	value, trap := cpu.readMem(cpu.memAddr(step), 8)
	if trap != 0 {
		return trap
	}
	putLane64(&cpu.xregs[step.reg], 1, value)
	return 0
}

// UNPCKLPS/UNPCKHPS and the PD forms (0F 14, 0F 15).
func (cpu *cpuState) opUnpckPs(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	src, trap := cpu.readXmmRM(step)
	if trap != 0 {
		return trap
	}
	dst := &cpu.xregs[step.reg]
	high := step.second == 0x15
	var result [16]byte
	if step.size66 {
		lane := 0
		if high {
			lane = 1
		}
		putLane64(&result, 0, getLane64(dst, lane))
		putLane64(&result, 1, getLane64(&src, lane))
	} else {
		base := 0
		if high {
			base = 2
		}
		putLane32(&result, 0, getLane32(dst, base))
		putLane32(&result, 1, getLane32(&src, base))
		putLane32(&result, 2, getLane32(dst, base+1))
		putLane32(&result, 3, getLane32(&src, base+1))
	}
	*dst = result
	return 0
}

// MOVMSKPS/MOVMSKPD (0F 50): sign bit of each float lane to a GPR.
func (cpu *cpuState) opMovMsk(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if !step.isReg {
		return ircOper
	}
	src := &cpu.xregs[step.rm]
	var maskBits uint64
	if step.size66 {
		for lane := range 2 {
			if getLane64(src, lane)>>63 != 0 {
				maskBits |= 1 << lane
			}
		}
	} else {
		for lane := range 4 {
			if getLane32(src, lane)>>31 != 0 {
				maskBits |= 1 << lane
			}
		}
	}
	cpu.setReg(8, step.reg, step.rexSeen, maskBits)
	return 0
}

// MOVD/MOVQ between a GPR or memory and the low XMM lane (66 0F 6E,
// 66 0F 7E, F3 0F 7E).
func (cpu *cpuState) opMovD(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := uint8(4)
	if (step.rex & rexW) != 0 {
		size = 8
	}
	if step.second == 0x6e {
		value, trap := cpu.readRM(step, size)
		if trap != 0 {
			return trap
		}
		cpu.xregs[step.reg] = [16]byte{}
		putLane64(&cpu.xregs[step.reg], 0, value)
		return 0
	}
	if step.rep == 0xf3 {
		// MOVQ xmm, xmm/m64 zero extending.
		value, trap := cpu.readXmmRM64(step)
		if trap != 0 {
			return trap
		}
		cpu.xregs[step.reg] = [16]byte{}
		putLane64(&cpu.xregs[step.reg], 0, value)
		return 0
	}
	value := getLane64(&cpu.xregs[step.reg], 0) & widthMask[size]
	return cpu.writeRM(step, size, value)
}

// MOVQ xmm/m64, xmm (66 0F D6).
func (cpu *cpuState) opMovQStore(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	value := getLane64(&cpu.xregs[step.reg], 0)
	if step.isReg {
		cpu.xregs[step.rm] = [16]byte{}
		putLane64(&cpu.xregs[step.rm], 0, value)
		return 0
	}
	return cpu.writeMem(cpu.memAddr(step), 8, value)
}

// MOVDQA/MOVDQU load and store (66/F3 0F 6F, 0F 7F).
func (cpu *cpuState) opMovDQ(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if step.second == 0x6f {
		value, trap := cpu.readXmmRM(step)
		if trap != 0 {
			return trap
		}
		cpu.xregs[step.reg] = value
		return 0
	}
	return cpu.writeXmmRM(step, cpu.xregs[step.reg])
}

// MOVNTI (0F C3): ordinary store, the non temporal hint is dropped.
func (cpu *cpuState) opMovNti(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if step.isReg {
		return ircOper
	}
	size := cpu.opSize(step)
	return cpu.writeMem(cpu.memAddr(step), size, cpu.getReg(size, step.reg, step.rexSeen))
}

// MOVNTDQ (66 0F E7).
func (cpu *cpuState) opMovNtdq(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if step.isReg {
		return ircOper
	}
	return cpu.writeXmmRM(step, cpu.xregs[step.reg])
}

// Scalar float32 arithmetic with the architectural invalid results.
func sseArith32(op uint8, a, b float32) float32 {
	switch op {
	case 0x58:
		if math.IsInf(float64(a), 0) && math.IsInf(float64(b), 0) &&
			math.Signbit(float64(a)) != math.Signbit(float64(b)) {
			return float32(negNaN())
		}
		return a + b
	case 0x59:
		if (a == 0 && math.IsInf(float64(b), 0)) || (b == 0 && math.IsInf(float64(a), 0)) {
			return float32(negNaN())
		}
		return a * b
	case 0x5c:
		if math.IsInf(float64(a), 0) && math.IsInf(float64(b), 0) &&
			math.Signbit(float64(a)) == math.Signbit(float64(b)) {
			return float32(negNaN())
		}
		return a - b
	case 0x5d: // MIN returns the second operand on NaN or equal zeros
		if a < b {
			return a
		}
		return b
	case 0x5e:
		if (a == 0 && b == 0) || (math.IsInf(float64(a), 0) && math.IsInf(float64(b), 0)) {
			return float32(negNaN())
		}
		return a / b
	default: // 0x5f MAX
		if a > b {
			return a
		}
		return b
	}
}

// Scalar float64 arithmetic for the PD/SD forms.
func sseArith64(op uint8, a, b float64) float64 {
	switch op {
	case 0x58:
		return fpAdd(a, b)
	case 0x59:
		return fpMul(a, b)
	case 0x5c:
		return fpSub(a, b)
	case 0x5d:
		if a < b {
			return a
		}
		return b
	case 0x5e:
		return fpDiv(a, b)
	default:
		if a > b {
			return a
		}
		return b
	}
}

// ADD/MUL/SUB/MIN/DIV/MAX over the four prefix selected shapes
// (0F 58, 59, 5C, 5D, 5E, 5F).
func (cpu *cpuState) opSseArith(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	dst := &cpu.xregs[step.reg]
	switch step.rep {
	case 0xf3: // scalar single
		src, trap := cpu.readXmmRM32(step)
		if trap != 0 {
			return trap
		}
		putLaneF32(dst, 0, sseArith32(step.second, getLaneF32(dst, 0), math.Float32frombits(src)))
		return 0
	case 0xf2: // scalar double
		src, trap := cpu.readXmmRM64(step)
		if trap != 0 {
			return trap
		}
		putLaneF64(dst, 0, sseArith64(step.second, getLaneF64(dst, 0), math.Float64frombits(src)))
		return 0
	}
	src, trap := cpu.readXmmRM(step)
	if trap != 0 {
		return trap
	}
	if step.size66 { // packed double
		for lane := range 2 {
			putLaneF64(dst, lane, sseArith64(step.second, getLaneF64(dst, lane), getLaneF64(&src, lane)))
		}
		return 0
	}
	for lane := range 4 {
		putLaneF32(dst, lane, sseArith32(step.second, getLaneF32(dst, lane), getLaneF32(&src, lane)))
	}
	return 0
}

// SQRT (0F 51) in all four shapes.
func (cpu *cpuState) opSseSqrt(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	dst := &cpu.xregs[step.reg]
	switch step.rep {
	case 0xf3:
		src, trap := cpu.readXmmRM32(step)
		if trap != 0 {
			return trap
		}
		putLaneF32(dst, 0, float32(math.Sqrt(float64(math.Float32frombits(src)))))
		return 0
	case 0xf2:
		src, trap := cpu.readXmmRM64(step)
		if trap != 0 {
			return trap
		}
		putLaneF64(dst, 0, math.Sqrt(math.Float64frombits(src)))
		return 0
	}
	src, trap := cpu.readXmmRM(step)
	if trap != 0 {
		return trap
	}
	if step.size66 {
		for lane := range 2 {
			putLaneF64(dst, lane, math.Sqrt(getLaneF64(&src, lane)))
		}
		return 0
	}
	for lane := range 4 {
		putLaneF32(dst, lane, float32(math.Sqrt(float64(getLaneF32(&src, lane)))))
	}
	return 0
}

// RSQRTPS/RSQRTSS (0F 52) and RCPPS/RCPSS (0F 53).
func (cpu *cpuState) opSseRecip(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	recip := func(v float32) float32 {
		if step.second == 0x52 {
			return float32(1 / math.Sqrt(float64(v)))
		}
		return 1 / v
	}
	dst := &cpu.xregs[step.reg]
	if step.rep == 0xf3 {
		src, trap := cpu.readXmmRM32(step)
		if trap != 0 {
			return trap
		}
		putLaneF32(dst, 0, recip(math.Float32frombits(src)))
		return 0
	}
	src, trap := cpu.readXmmRM(step)
	if trap != 0 {
		return trap
	}
	for lane := range 4 {
		putLaneF32(dst, lane, recip(getLaneF32(&src, lane)))
	}
	return 0
}

// ANDPS/ANDNPS/ORPS/XORPS and the PD aliases (0F 54-57): bitwise over
// the full 128 bits.
func (cpu *cpuState) opSseLogic(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	src, trap := cpu.readXmmRM(step)
	if trap != 0 {
		return trap
	}
	dst := &cpu.xregs[step.reg]
	for i := range 16 {
		switch step.second {
		case 0x54:
			dst[i] &= src[i]
		case 0x55:
			dst[i] = ^dst[i] & src[i]
		case 0x56:
			dst[i] |= src[i]
		default:
			dst[i] ^= src[i]
		}
	}
	return 0
}

// UCOMISS/UCOMISD/COMISS/COMISD (0F 2E, 0F 2F).
func (cpu *cpuState) opComis(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	var a, b float64
	if step.size66 {
		src, trap := cpu.readXmmRM64(step)
		if trap != 0 {
			return trap
		}
		a = getLaneF64(&cpu.xregs[step.reg], 0)
		b = math.Float64frombits(src)
	} else {
		src, trap := cpu.readXmmRM32(step)
		if trap != 0 {
			return trap
		}
		a = float64(getLaneF32(&cpu.xregs[step.reg], 0))
		b = float64(math.Float32frombits(src))
	}
	cpu.fpSetIntCC(fpCompare(a, b))
	return 0
}

// Predicate for the CMP compare family, low three selector bits.
func cmpPredicate(sel uint8, a, b float64) bool {
	unordered := math.IsNaN(a) || math.IsNaN(b)
	switch sel & 7 {
	case 0:
		return a == b
	case 1:
		return a < b
	case 2:
		return a <= b
	case 3:
		return unordered
	case 4:
		return unordered || a != b
	case 5:
		return unordered || !(a < b)
	case 6:
		return unordered || !(a <= b)
	default:
		return !unordered
	}
}

// CMPPS/CMPPD/CMPSS/CMPSD (0F C2): all ones or all zeros mask per
// lane.
func (cpu *cpuState) opSseCmp(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	sel, trap := cpu.fetchImm(1)
	if trap != 0 {
		return trap
	}
	dst := &cpu.xregs[step.reg]
	switch step.rep {
	case 0xf3:
		src, trap := cpu.readXmmRM32(step)
		if trap != 0 {
			return trap
		}
		result := uint32(0)
		if cmpPredicate(uint8(sel), float64(getLaneF32(dst, 0)), float64(math.Float32frombits(src))) {
			result = ^uint32(0)
		}
		putLane32(dst, 0, result)
		return 0
	case 0xf2:
		src, trap := cpu.readXmmRM64(step)
		if trap != 0 {
			return trap
		}
		result := uint64(0)
		if cmpPredicate(uint8(sel), getLaneF64(dst, 0), math.Float64frombits(src)) {
			result = ^uint64(0)
		}
		putLane64(dst, 0, result)
		return 0
	}
	src, trap := cpu.readXmmRM(step)
	if trap != 0 {
		return trap
	}
	if step.size66 {
		for lane := range 2 {
			result := uint64(0)
			if cmpPredicate(uint8(sel), getLaneF64(dst, lane), getLaneF64(&src, lane)) {
				result = ^uint64(0)
			}
			putLane64(dst, lane, result)
		}
		return 0
	}
	for lane := range 4 {
		result := uint32(0)
		if cmpPredicate(uint8(sel), float64(getLaneF32(dst, lane)), float64(getLaneF32(&src, lane))) {
			result = ^uint32(0)
		}
		putLane32(dst, lane, result)
	}
	return 0
}

// SHUFPS/SHUFPD (0F C6): low selectors pick from the destination,
// high selectors from the source.
func (cpu *cpuState) opShufPs(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	sel, trap := cpu.fetchImm(1)
	if trap != 0 {
		return trap
	}
	src, trap := cpu.readXmmRM(step)
	if trap != 0 {
		return trap
	}
	dst := &cpu.xregs[step.reg]
	var result [16]byte
	if step.size66 {
		putLane64(&result, 0, getLane64(dst, int(sel&1)))
		putLane64(&result, 1, getLane64(&src, int(sel>>1)&1))
	} else {
		putLane32(&result, 0, getLane32(dst, int(sel)&3))
		putLane32(&result, 1, getLane32(dst, int(sel>>2)&3))
		putLane32(&result, 2, getLane32(&src, int(sel>>4)&3))
		putLane32(&result, 3, getLane32(&src, int(sel>>6)&3))
	}
	*dst = result
	return 0
}

// Conversion of a float to a signed 32 bit lane. NaN and out of range
// values give the integer indefinite 0x80000000.
func cvtToInt32(value float64, truncate bool) uint32 {
	if truncate {
		value = math.Trunc(value)
	} else {
		value = math.RoundToEven(value)
	}
	if math.IsNaN(value) || value > 2147483647 || value < -2147483648 {
		return 0x80000000
	}
	return uint32(int32(value))
}

func cvtToInt64(value float64, truncate bool) uint64 {
	if truncate {
		value = math.Trunc(value)
	} else {
		value = math.RoundToEven(value)
	}
	if math.IsNaN(value) || value >= 9.223372036854776e18 || value < -9.223372036854776e18 {
		return intIndefinite
	}
	return uint64(int64(value))
}

// CVTSI2SS/CVTSI2SD (F3/F2 0F 2A). REX.W selects a 64 bit source.
func (cpu *cpuState) opCvtSI2(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	size := uint8(4)
	if (step.rex & rexW) != 0 {
		size = 8
	}
	raw, trap := cpu.readRM(step, size)
	if trap != 0 {
		return trap
	}
	value := float64(int64(sext(raw, size)))
	dst := &cpu.xregs[step.reg]
	if step.rep == 0xf2 {
		putLaneF64(dst, 0, value)
	} else {
		putLaneF32(dst, 0, float32(value))
	}
	return 0
}

// CVTTSS2SI/CVTTSD2SI (F3/F2 0F 2C) and the rounding forms (0F 2D).
func (cpu *cpuState) opCvtS2SI(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	truncate := step.second == 0x2c
	var value float64
	if step.rep == 0xf2 {
		src, trap := cpu.readXmmRM64(step)
		if trap != 0 {
			return trap
		}
		value = math.Float64frombits(src)
	} else {
		src, trap := cpu.readXmmRM32(step)
		if trap != 0 {
			return trap
		}
		value = float64(math.Float32frombits(src))
	}
	if (step.rex & rexW) != 0 {
		cpu.setReg(8, step.reg, step.rexSeen, cvtToInt64(value, truncate))
		return 0
	}
	cpu.setReg(4, step.reg, step.rexSeen, uint64(cvtToInt32(value, truncate)))
	return 0
}

// Cross precision conversions (0F 5A): CVTPS2PD, CVTPD2PS, CVTSS2SD,
// CVTSD2SS.
func (cpu *cpuState) opCvt5A(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	dst := &cpu.xregs[step.reg]
	switch {
	case step.rep == 0xf3: // CVTSS2SD
		src, trap := cpu.readXmmRM32(step)
		if trap != 0 {
			return trap
		}
		putLaneF64(dst, 0, float64(math.Float32frombits(src)))
	case step.rep == 0xf2: // CVTSD2SS
		src, trap := cpu.readXmmRM64(step)
		if trap != 0 {
			return trap
		}
		putLaneF32(dst, 0, float32(math.Float64frombits(src)))
	case step.size66: // CVTPD2PS
		src, trap := cpu.readXmmRM(step)
		if trap != 0 {
			return trap
		}
		putLaneF32(dst, 0, float32(getLaneF64(&src, 0)))
		putLaneF32(dst, 1, float32(getLaneF64(&src, 1)))
		putLane64(dst, 1, 0)
	default: // CVTPS2PD
		src, trap := cpu.readXmmRM64(step)
		if trap != 0 {
			return trap
		}
		var low [16]byte
		putLane64(&low, 0, src)
		high := float64(getLaneF32(&low, 1))
		putLaneF64(dst, 0, float64(getLaneF32(&low, 0)))
		putLaneF64(dst, 1, high)
	}
	return 0
}

// Packed int/float conversions (0F 5B): CVTDQ2PS, CVTPS2DQ,
// CVTTPS2DQ.
func (cpu *cpuState) opCvt5B(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	src, trap := cpu.readXmmRM(step)
	if trap != 0 {
		return trap
	}
	dst := &cpu.xregs[step.reg]
	switch {
	case step.rep == 0xf3: // CVTTPS2DQ
		for lane := range 4 {
			putLane32(dst, lane, cvtToInt32(float64(getLaneF32(&src, lane)), true))
		}
	case step.size66: // CVTPS2DQ
		for lane := range 4 {
			putLane32(dst, lane, cvtToInt32(float64(getLaneF32(&src, lane)), false))
		}
	default: // CVTDQ2PS
		for lane := range 4 {
			putLaneF32(dst, lane, float32(int32(getLane32(&src, lane))))
		}
	}
	return 0
}

// Packed double conversions (0F E6): CVTTPD2DQ, CVTPD2DQ, CVTDQ2PD.
func (cpu *cpuState) opCvtE6(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	dst := &cpu.xregs[step.reg]
	if step.rep == 0xf3 { // CVTDQ2PD
		src, trap := cpu.readXmmRM64(step)
		if trap != 0 {
			return trap
		}
		var low [16]byte
		putLane64(&low, 0, src)
		high := float64(int32(getLane32(&low, 1)))
		putLaneF64(dst, 0, float64(int32(getLane32(&low, 0))))
		putLaneF64(dst, 1, high)
		return 0
	}
	src, trap := cpu.readXmmRM(step)
	if trap != 0 {
		return trap
	}
	truncate := step.size66 // 66 selects CVTTPD2DQ, F2 the rounding form
	putLane32(dst, 0, cvtToInt32(getLaneF64(&src, 0), truncate))
	putLane32(dst, 1, cvtToInt32(getLaneF64(&src, 1), truncate))
	putLane64(dst, 1, 0)
	return 0
}

// LDMXCSR/STMXCSR, the fences and the FX save area (0F AE).
func (cpu *cpuState) opGrp15(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if step.isReg {
		// LFENCE/MFENCE/SFENCE: no other agent, nothing to order.
		return 0
	}
	addr := cpu.memAddr(step)
	switch step.reg & 7 {
	case 0: // FXSAVE: control words only, vector state is live in regs
		if err := mem.PutHalf(addr, cpu.fpControl); err {
			return ircAddr
		}
		if err := mem.PutHalf(addr+2, cpu.fpStatusWord()); err {
			return ircAddr
		}
		if err := mem.PutWord(addr+24, cpu.mxcsr); err {
			return ircAddr
		}
		return 0
	case 1: // FXRSTOR
		control, err := mem.GetHalf(addr)
		if err {
			return ircAddr
		}
		status, err := mem.GetHalf(addr + 2)
		if err {
			return ircAddr
		}
		csr, err := mem.GetWord(addr + 24)
		if err {
			return ircAddr
		}
		cpu.fpControl = control
		cpu.fpStatus = status
		cpu.fpTop = int(status>>11) & 7
		cpu.mxcsr = csr
		return 0
	case 2: // LDMXCSR
		value, err := mem.GetWord(addr)
		if err {
			return ircAddr
		}
		cpu.mxcsr = value
		return 0
	case 3: // STMXCSR
		if err := mem.PutWord(addr, cpu.mxcsr); err {
			return ircAddr
		}
		return 0
	}
	return ircOper
}
