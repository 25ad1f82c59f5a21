/*
   CPU: x87 floating point executor.

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
	"math"

	mem "github.com/davidly/x64os/emu/memory"
)

/*
   The x87 register file is eight 80 bit slots in a ring. fp_sp
   decrements on push and increments on pop, modulo 8; st(i) is
   slot[(fp_sp + i) & 7]. The status word TOP field is synthesized
   from fp_sp when the status word is observed. Arithmetic converts
   the 80 bit slots to binary64, computes at host precision and
   converts back; 80 bit loads and stores move raw payloads.
*/

// st(i) resolved against the ring.
func (cpu *cpuState) st(i int) *fpReg {
	return &cpu.fpregs[(cpu.fpTop+i)&7]
}

// Push a value onto the stack.
func (cpu *cpuState) fpPush(r fpReg) {
	cpu.fpTop = (cpu.fpTop - 1) & 7
	cpu.fpregs[cpu.fpTop] = r
}

// Pop the top of stack.
func (cpu *cpuState) fpPop() fpReg {
	r := cpu.fpregs[cpu.fpTop]
	cpu.fpTop = (cpu.fpTop + 1) & 7
	return r
}

// Discard the top of stack.
func (cpu *cpuState) fpDrop() {
	cpu.fpTop = (cpu.fpTop + 1) & 7
}

// Status word with the TOP field synthesized from the ring index.
func (cpu *cpuState) fpStatusWord() uint16 {
	return (cpu.fpStatus &^ 0x3800) | uint16(cpu.fpTop&7)<<11
}

// Arithmetic dispatch in ModR/M reg field order: add, mul, com,
// comp, sub, subr, div, divr.
func (cpu *cpuState) fpArith(op uint8, a, b float64) float64 {
	switch op {
	case 0:
		return fpAdd(a, b)
	case 1:
		return fpMul(a, b)
	case 4:
		return fpSub(a, b)
	case 5:
		return fpSub(b, a)
	case 6:
		return fpDiv(a, b)
	default:
		return fpDiv(b, a)
	}
}

// Relation of two values for the compare family.
func fpCompare(a, b float64) int {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return cmpUnordered
	case a > b:
		return cmpGreater
	case a < b:
		return cmpLess
	default:
		return cmpEqual
	}
}

// Set C3/C2/C0 in the status word from a relation.
func (cpu *cpuState) fpSetCC(rel int) {
	cpu.fpStatus &^= fpC0 | fpC2 | fpC3
	switch rel {
	case cmpLess:
		cpu.fpStatus |= fpC0
	case cmpEqual:
		cpu.fpStatus |= fpC3
	case cmpUnordered:
		cpu.fpStatus |= fpC0 | fpC2 | fpC3
	}
}

// Set the integer flags from a relation: ZF/PF/CF per the table,
// OF/AF/SF cleared.
func (cpu *cpuState) fpSetIntCC(rel int) {
	cpu.flags &^= FlagZF | FlagPF | FlagCF | FlagOF | FlagAF | FlagSF
	switch rel {
	case cmpLess:
		cpu.flags |= FlagCF
	case cmpEqual:
		cpu.flags |= FlagZF
	case cmpUnordered:
		cpu.flags |= FlagZF | FlagPF | FlagCF
	}
}

// Read an x87 memory operand of 4 or 8 bytes as binary float.
func (cpu *cpuState) fpReadMem(step *stepInfo, size uint8) (float64, uint16) {
	value, trap := cpu.readMem(cpu.memAddr(step), size)
	if trap != 0 {
		return 0, trap
	}
	if size == 4 {
		return float64(math.Float32frombits(uint32(value))), 0
	}
	return math.Float64frombits(value), 0
}

// Read a signed integer x87 operand.
func (cpu *cpuState) fpReadInt(step *stepInfo, size uint8) (float64, uint16) {
	value, trap := cpu.readMem(cpu.memAddr(step), size)
	if trap != 0 {
		return 0, trap
	}
	return float64(int64(sext(value, size))), 0
}

// ESC 0xD8: 32 bit real arithmetic, or st(0) with st(i).
func (cpu *cpuState) opFPD8(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	var src float64
	if step.isReg {
		src = cpu.st(int(step.rm & 7)).toFloat64()
	} else {
		var trap uint16
		src, trap = cpu.fpReadMem(step, 4)
		if trap != 0 {
			return trap
		}
	}
	return cpu.fpArithTop(step.reg&7, src)
}

// Apply one arithmetic group member against st(0), handling the
// compare slots.
func (cpu *cpuState) fpArithTop(op uint8, src float64) uint16 {
	top := cpu.st(0).toFloat64()
	switch op {
	case 2: // FCOM
		cpu.fpSetCC(fpCompare(top, src))
	case 3: // FCOMP
		cpu.fpSetCC(fpCompare(top, src))
		cpu.fpDrop()
	default:
		*cpu.st(0) = float64ToFP80(cpu.fpArith(op, top, src))
	}
	return 0
}

// ESC 0xD9: loads, stores, control word, constants and
// transcendentals.
func (cpu *cpuState) opFPD9(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if !step.isReg {
		addr := cpu.memAddr(step)
		switch step.reg & 7 {
		case 0: // FLD m32
			value, trap := cpu.fpReadMem(step, 4)
			if trap != 0 {
				return trap
			}
			cpu.fpPush(float64ToFP80(value))
		case 2, 3: // FST/FSTP m32
			value := float32(cpu.st(0).toFloat64())
			if err := mem.PutWord(addr, math.Float32bits(value)); err {
				return ircAddr
			}
			if (step.reg & 7) == 3 {
				cpu.fpDrop()
			}
		case 4: // FLDENV
			return cpu.fpLoadEnv(addr)
		case 5: // FLDCW
			value, err := mem.GetHalf(addr)
			if err {
				return ircAddr
			}
			cpu.fpControl = value
		case 6: // FNSTENV
			return cpu.fpStoreEnv(addr)
		case 7: // FNSTCW
			if err := mem.PutHalf(addr, cpu.fpControl); err {
				return ircAddr
			}
		default:
			return ircOper
		}
		return 0
	}
	return cpu.fpD9Reg((step.reg&7)<<3 | (step.rm & 7))
}

// Register forms of the D9 escape, selected by the low six ModR/M
// bits.
func (cpu *cpuState) fpD9Reg(sel uint8) uint16 {
	index := int(sel & 7)
	top := cpu.st(0).toFloat64()
	switch sel >> 3 {
	case 0: // FLD st(i)
		cpu.fpPush(*cpu.st(index))
		return 0
	case 1: // FXCH
		other := cpu.st(index)
		*other, *cpu.st(0) = *cpu.st(0), *other
		return 0
	}
	switch 0xc0 | sel {
	case 0xd0: // FNOP
		return 0
	case 0xe0: // FCHS
		cpu.st(0).se ^= fp80SignBit
	case 0xe1: // FABS
		cpu.st(0).se &^= fp80SignBit
	case 0xe4: // FTST
		cpu.fpSetCC(fpCompare(top, 0))
	case 0xe5: // FXAM
		cpu.fpExamine()
	case 0xe8: // FLD1
		cpu.fpPush(float64ToFP80(1))
	case 0xe9: // FLDL2T
		cpu.fpPush(float64ToFP80(math.Log2(10)))
	case 0xea: // FLDL2E
		cpu.fpPush(float64ToFP80(math.Log2E))
	case 0xeb: // FLDPI
		cpu.fpPush(float64ToFP80(math.Pi))
	case 0xec: // FLDLG2
		cpu.fpPush(float64ToFP80(math.Log10(2)))
	case 0xed: // FLDLN2
		cpu.fpPush(float64ToFP80(math.Ln2))
	case 0xee: // FLDZ
		cpu.fpPush(fpReg{})
	case 0xf0: // F2XM1
		*cpu.st(0) = float64ToFP80(math.Exp2(top) - 1)
	case 0xf1: // FYL2X
		value := cpu.st(1).toFloat64() * math.Log2(top)
		cpu.fpDrop()
		*cpu.st(0) = float64ToFP80(value)
	case 0xf2: // FPTAN
		*cpu.st(0) = float64ToFP80(math.Tan(top))
		cpu.fpPush(float64ToFP80(1))
		cpu.fpStatus &^= fpC2
	case 0xf3: // FPATAN
		value := math.Atan2(cpu.st(1).toFloat64(), top)
		cpu.fpDrop()
		*cpu.st(0) = float64ToFP80(value)
	case 0xf4: // FXTRACT
		frac, exp := math.Frexp(top)
		*cpu.st(0) = float64ToFP80(float64(exp - 1))
		cpu.fpPush(float64ToFP80(frac * 2))
	case 0xf5: // FPREM1
		cpu.fpPartialRem(true)
	case 0xf6: // FDECSTP
		cpu.fpTop = (cpu.fpTop - 1) & 7
	case 0xf7: // FINCSTP
		cpu.fpTop = (cpu.fpTop + 1) & 7
	case 0xf8: // FPREM
		cpu.fpPartialRem(false)
	case 0xf9: // FYL2XP1
		value := cpu.st(1).toFloat64() * (math.Log1p(top) / math.Ln2)
		cpu.fpDrop()
		*cpu.st(0) = float64ToFP80(value)
	case 0xfa: // FSQRT
		*cpu.st(0) = float64ToFP80(math.Sqrt(top))
	case 0xfb: // FSINCOS
		*cpu.st(0) = float64ToFP80(math.Sin(top))
		cpu.fpPush(float64ToFP80(math.Cos(top)))
		cpu.fpStatus &^= fpC2
	case 0xfc: // FRNDINT
		*cpu.st(0) = float64ToFP80(cpu.fpRoundMode(top))
	case 0xfd: // FSCALE
		scale := math.Trunc(cpu.st(1).toFloat64())
		*cpu.st(0) = float64ToFP80(math.Ldexp(top, int(scale)))
	case 0xfe: // FSIN
		*cpu.st(0) = float64ToFP80(math.Sin(top))
		cpu.fpStatus &^= fpC2
	case 0xff: // FCOS
		*cpu.st(0) = float64ToFP80(math.Cos(top))
		cpu.fpStatus &^= fpC2
	default:
		return ircOper
	}
	return 0
}

// FXAM condition bits from the class of st(0).
func (cpu *cpuState) fpExamine() {
	r := *cpu.st(0)
	cpu.fpStatus &^= fpC0 | fpC1 | fpC2 | fpC3
	if (r.se & fp80SignBit) != 0 {
		cpu.fpStatus |= fpC1
	}
	switch {
	case r.isNaN():
		cpu.fpStatus |= fpC0
	case r.isInf():
		cpu.fpStatus |= fpC0 | fpC2
	case r.sig == 0 && (r.se&fp80ExpMask) == 0:
		cpu.fpStatus |= fpC3
	case (r.se & fp80ExpMask) == 0:
		cpu.fpStatus |= fpC2 | fpC3 // denormal
	default:
		cpu.fpStatus |= fpC2
	}
}

// Partial remainder. FPREM chops the quotient, FPREM1 rounds it to
// nearest even. The low quotient bits land in C0, C3, C1; C2 clear
// reports a complete reduction.
func (cpu *cpuState) fpPartialRem(nearest bool) {
	a := cpu.st(0).toFloat64()
	b := cpu.st(1).toFloat64()
	var quotient float64
	if nearest {
		quotient = math.RoundToEven(a / b)
	} else {
		quotient = math.Trunc(a / b)
	}
	*cpu.st(0) = float64ToFP80(a - quotient*b)
	bits := uint64(0)
	if !math.IsNaN(quotient) && !math.IsInf(quotient, 0) {
		q := quotient
		if q < 0 {
			q = -q
		}
		bits = uint64(math.Mod(q, 8))
	}
	cpu.fpStatus &^= fpC0 | fpC1 | fpC2 | fpC3
	if (bits & 1) != 0 {
		cpu.fpStatus |= fpC1
	}
	if (bits & 2) != 0 {
		cpu.fpStatus |= fpC3
	}
	if (bits & 4) != 0 {
		cpu.fpStatus |= fpC0
	}
}

// Minimal protected mode environment image: control, status and tag
// words in the first three slots, instruction and data pointers
// zero.
func (cpu *cpuState) fpStoreEnv(addr uint64) uint16 {
	words := []uint32{
		uint32(cpu.fpControl), uint32(cpu.fpStatusWord()), 0xffff, 0, 0, 0, 0,
	}
	for i, w := range words {
		if err := mem.PutWord(addr+uint64(i*4), w); err {
			return ircAddr
		}
	}
	return 0
}

func (cpu *cpuState) fpLoadEnv(addr uint64) uint16 {
	control, err := mem.GetWord(addr)
	if err {
		return ircAddr
	}
	status, err := mem.GetWord(addr + 4)
	if err {
		return ircAddr
	}
	cpu.fpControl = uint16(control)
	cpu.fpStatus = uint16(status)
	cpu.fpTop = int(status>>11) & 7
	return 0
}

// FCMOVcc predicates shared by the DA and DB escapes.
func (cpu *cpuState) fpCMovTest(sel uint8) bool {
	var taken bool
	switch sel & 3 {
	case 0:
		taken = (cpu.flags & FlagCF) != 0
	case 1:
		taken = (cpu.flags & FlagZF) != 0
	case 2:
		taken = (cpu.flags & (FlagCF | FlagZF)) != 0
	case 3:
		taken = (cpu.flags & FlagPF) != 0
	}
	return taken
}

// ESC 0xDA: 32 bit integer arithmetic, FCMOVcc, FUCOMPP.
func (cpu *cpuState) opFPDA(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if !step.isReg {
		src, trap := cpu.fpReadInt(step, 4)
		if trap != 0 {
			return trap
		}
		return cpu.fpArithTop(step.reg&7, src)
	}
	sel := step.reg & 7
	if sel < 4 {
		if cpu.fpCMovTest(sel) {
			*cpu.st(0) = *cpu.st(int(step.rm & 7))
		}
		return 0
	}
	if sel == 5 && (step.rm&7) == 1 { // FUCOMPP
		cpu.fpSetCC(fpCompare(cpu.st(0).toFloat64(), cpu.st(1).toFloat64()))
		cpu.fpDrop()
		cpu.fpDrop()
		return 0
	}
	return ircOper
}

// ESC 0xDB: 32 bit integer load/store, 80 bit load/store, FCMOVNcc,
// FCOMI/FUCOMI.
func (cpu *cpuState) opFPDB(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if !step.isReg {
		addr := cpu.memAddr(step)
		switch step.reg & 7 {
		case 0: // FILD m32
			src, trap := cpu.fpReadInt(step, 4)
			if trap != 0 {
				return trap
			}
			cpu.fpPush(float64ToFP80(src))
		case 2, 3: // FIST/FISTP m32
			value := cpu.fpToInt(cpu.st(0).toFloat64(), 4, false)
			if trap := cpu.writeMem(addr, 4, value); trap != 0 {
				return trap
			}
			if (step.reg & 7) == 3 {
				cpu.fpDrop()
			}
		case 5: // FLD m80
			sig, se, err := mem.GetTen(addr)
			if err {
				return ircAddr
			}
			cpu.fpPush(fpReg{sig: sig, se: se})
		case 7: // FSTP m80
			r := cpu.fpPop()
			if mem.PutTen(addr, r.sig, r.se) {
				return ircAddr
			}
		default:
			return ircOper
		}
		return 0
	}
	sel := step.reg & 7
	index := int(step.rm & 7)
	switch sel {
	case 0, 1, 2, 3: // FCMOVNcc
		if !cpu.fpCMovTest(sel) {
			*cpu.st(0) = *cpu.st(index)
		}
		return 0
	case 4:
		switch step.rm & 7 {
		case 2: // FNCLEX
			cpu.fpStatus &= 0x7f00
			return 0
		case 3: // FNINIT
			cpu.fpControl = fpInitControl
			cpu.fpStatus = 0
			cpu.fpTop = 0
			return 0
		}
		return ircOper
	case 5, 6: // FUCOMI / FCOMI
		cpu.fpSetIntCC(fpCompare(cpu.st(0).toFloat64(), cpu.st(index).toFloat64()))
		return 0
	}
	return ircOper
}

// ESC 0xDC: 64 bit real arithmetic, or st(i) as destination. The
// reversed arithmetic slots swap sense in the register form.
func (cpu *cpuState) opFPDC(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if !step.isReg {
		src, trap := cpu.fpReadMem(step, 8)
		if trap != 0 {
			return trap
		}
		return cpu.fpArithTop(step.reg&7, src)
	}
	op := step.reg & 7
	if op >= 4 {
		op ^= 1
	}
	index := int(step.rm & 7)
	value := cpu.fpArith(op, cpu.st(index).toFloat64(), cpu.st(0).toFloat64())
	*cpu.st(index) = float64ToFP80(value)
	return 0
}

// ESC 0xDD: 64 bit real load/store, FFREE, FST/FSTP st(i), FUCOM.
func (cpu *cpuState) opFPDD(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if !step.isReg {
		addr := cpu.memAddr(step)
		switch step.reg & 7 {
		case 0: // FLD m64
			src, trap := cpu.fpReadMem(step, 8)
			if trap != 0 {
				return trap
			}
			cpu.fpPush(float64ToFP80(src))
		case 2, 3: // FST/FSTP m64
			value := math.Float64bits(cpu.st(0).toFloat64())
			if err := mem.PutQuad(addr, value); err {
				return ircAddr
			}
			if (step.reg & 7) == 3 {
				cpu.fpDrop()
			}
		case 7: // FNSTSW m16
			if err := mem.PutHalf(addr, cpu.fpStatusWord()); err {
				return ircAddr
			}
		default:
			return ircOper
		}
		return 0
	}
	index := int(step.rm & 7)
	switch step.reg & 7 {
	case 0: // FFREE
		return 0
	case 2: // FST st(i)
		*cpu.st(index) = *cpu.st(0)
		return 0
	case 3: // FSTP st(i)
		*cpu.st(index) = *cpu.st(0)
		cpu.fpDrop()
		return 0
	case 4: // FUCOM
		cpu.fpSetCC(fpCompare(cpu.st(0).toFloat64(), cpu.st(index).toFloat64()))
		return 0
	case 5: // FUCOMP
		cpu.fpSetCC(fpCompare(cpu.st(0).toFloat64(), cpu.st(index).toFloat64()))
		cpu.fpDrop()
		return 0
	}
	return ircOper
}

// ESC 0xDE: 16 bit integer arithmetic, arithmetic with pop, FCOMPP.
func (cpu *cpuState) opFPDE(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if !step.isReg {
		src, trap := cpu.fpReadInt(step, 2)
		if trap != 0 {
			return trap
		}
		return cpu.fpArithTop(step.reg&7, src)
	}
	op := step.reg & 7
	index := int(step.rm & 7)
	if op == 3 {
		if index != 1 {
			return ircOper
		}
		// FCOMPP
		cpu.fpSetCC(fpCompare(cpu.st(0).toFloat64(), cpu.st(1).toFloat64()))
		cpu.fpDrop()
		cpu.fpDrop()
		return 0
	}
	if op >= 4 {
		op ^= 1
	}
	value := cpu.fpArith(op, cpu.st(index).toFloat64(), cpu.st(0).toFloat64())
	*cpu.st(index) = float64ToFP80(value)
	cpu.fpDrop()
	return 0
}

// ESC 0xDF: 16/64 bit integer load/store, FNSTSW AX, FCOMIP/FUCOMIP.
func (cpu *cpuState) opFPDF(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if !step.isReg {
		addr := cpu.memAddr(step)
		switch step.reg & 7 {
		case 0: // FILD m16
			src, trap := cpu.fpReadInt(step, 2)
			if trap != 0 {
				return trap
			}
			cpu.fpPush(float64ToFP80(src))
		case 2, 3: // FIST/FISTP m16
			value := cpu.fpToInt(cpu.st(0).toFloat64(), 2, false)
			if trap := cpu.writeMem(addr, 2, value); trap != 0 {
				return trap
			}
			if (step.reg & 7) == 3 {
				cpu.fpDrop()
			}
		case 5: // FILD m64
			value, trap := cpu.readMem(addr, 8)
			if trap != 0 {
				return trap
			}
			cpu.fpPush(float64ToFP80(float64(int64(value))))
		case 7: // FISTP m64
			value := cpu.fpToInt(cpu.st(0).toFloat64(), 8, false)
			if trap := cpu.writeMem(addr, 8, value); trap != 0 {
				return trap
			}
			cpu.fpDrop()
		default:
			return ircOper
		}
		return 0
	}
	index := int(step.rm & 7)
	switch step.reg & 7 {
	case 4:
		if (step.rm & 7) == 0 { // FNSTSW AX
			cpu.setReg(2, RAX, false, uint64(cpu.fpStatusWord()))
			return 0
		}
	case 5, 6: // FUCOMIP / FCOMIP
		cpu.fpSetIntCC(fpCompare(cpu.st(0).toFloat64(), cpu.st(index).toFloat64()))
		cpu.fpDrop()
		return 0
	}
	return ircOper
}
