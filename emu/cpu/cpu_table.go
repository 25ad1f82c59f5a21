/*
   CPU: opcode dispatch tables.

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

// Create the one byte opcode table. Prefix bytes never dispatch here;
// the accumulator consumed them before the opcode fetch. Handlers
// disambiguate sub-forms from the opcode and prefix slots.
func (cpu *cpuState) createTable() {
	cpu.table = [256]func(*stepInfo) uint16{
		//  0         1         2         3          4         5         6          7
		cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opUnk, cpu.opUnk, // 0x
		//  8         9         A         B          C         D         E          F
		cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opUnk, cpu.opUnk,

		cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opUnk, cpu.opUnk, // 1x
		cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opUnk, cpu.opUnk,

		cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opUnk, cpu.opUnk, // 2x
		cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opUnk, cpu.opUnk,

		cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opUnk, cpu.opUnk, // 3x
		cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opALU, cpu.opUnk, cpu.opUnk,

		// 0x40-0x4F are REX prefixes in long mode and only dispatch as
		// INC/DEC in 32 bit mode.
		cpu.opIncDec40, cpu.opIncDec40, cpu.opIncDec40, cpu.opIncDec40, // 4x
		cpu.opIncDec40, cpu.opIncDec40, cpu.opIncDec40, cpu.opIncDec40,
		cpu.opIncDec40, cpu.opIncDec40, cpu.opIncDec40, cpu.opIncDec40,
		cpu.opIncDec40, cpu.opIncDec40, cpu.opIncDec40, cpu.opIncDec40,

		cpu.opPushReg, cpu.opPushReg, cpu.opPushReg, cpu.opPushReg, // 5x
		cpu.opPushReg, cpu.opPushReg, cpu.opPushReg, cpu.opPushReg,
		cpu.opPopReg, cpu.opPopReg, cpu.opPopReg, cpu.opPopReg,
		cpu.opPopReg, cpu.opPopReg, cpu.opPopReg, cpu.opPopReg,

		cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opMovsxd, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, // 6x
		cpu.opPushImm, cpu.opIMul3, cpu.opPushImm, cpu.opIMul3, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk,

		cpu.opJccShort, cpu.opJccShort, cpu.opJccShort, cpu.opJccShort, // 7x
		cpu.opJccShort, cpu.opJccShort, cpu.opJccShort, cpu.opJccShort,
		cpu.opJccShort, cpu.opJccShort, cpu.opJccShort, cpu.opJccShort,
		cpu.opJccShort, cpu.opJccShort, cpu.opJccShort, cpu.opJccShort,

		cpu.opGrp1, cpu.opGrp1, cpu.opGrp1, cpu.opGrp1, cpu.opTest, cpu.opTest, cpu.opXchgRM, cpu.opXchgRM, // 8x
		cpu.opMov, cpu.opMov, cpu.opMov, cpu.opMov, cpu.opUnk, cpu.opLea, cpu.opUnk, cpu.opPopRM,

		cpu.opXchgAX, cpu.opXchgAX, cpu.opXchgAX, cpu.opXchgAX, // 9x
		cpu.opXchgAX, cpu.opXchgAX, cpu.opXchgAX, cpu.opXchgAX,
		cpu.opCBW, cpu.opCWD, cpu.opUnk, cpu.opNop, cpu.opPushF, cpu.opPopF, cpu.opSAHF, cpu.opLAHF,

		cpu.opMovOffs, cpu.opMovOffs, cpu.opMovOffs, cpu.opMovOffs, // Ax
		cpu.opMovs, cpu.opMovs, cpu.opCmps, cpu.opCmps,
		cpu.opTestAX, cpu.opTestAX, cpu.opStos, cpu.opStos,
		cpu.opLods, cpu.opLods, cpu.opScas, cpu.opScas,

		cpu.opMovImm8, cpu.opMovImm8, cpu.opMovImm8, cpu.opMovImm8, // Bx
		cpu.opMovImm8, cpu.opMovImm8, cpu.opMovImm8, cpu.opMovImm8,
		cpu.opMovImm, cpu.opMovImm, cpu.opMovImm, cpu.opMovImm,
		cpu.opMovImm, cpu.opMovImm, cpu.opMovImm, cpu.opMovImm,

		cpu.opShift, cpu.opShift, cpu.opRet, cpu.opRet, cpu.opUnk, cpu.opUnk, cpu.opMovImmRM, cpu.opMovImmRM, // Cx
		cpu.opEnter, cpu.opLeave, cpu.opUnk, cpu.opUnk, cpu.opInt3, cpu.opIntImm, cpu.opUnk, cpu.opUnk,

		cpu.opShift, cpu.opShift, cpu.opShift, cpu.opShift, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opXlat, // Dx
		cpu.opFPD8, cpu.opFPD9, cpu.opFPDA, cpu.opFPDB, cpu.opFPDC, cpu.opFPDD, cpu.opFPDE, cpu.opFPDF,

		cpu.opLoop, cpu.opLoop, cpu.opLoop, cpu.opLoop, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, // Ex
		cpu.opCall, cpu.opJmp, cpu.opUnk, cpu.opJmp, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk,

		cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opHlt, cpu.opCmc, cpu.opGrp3, cpu.opGrp3, // Fx
		cpu.opClc, cpu.opStc, cpu.opCli, cpu.opSti, cpu.opCld, cpu.opStd, cpu.opGrp4, cpu.opGrp5,
	}
}

// Create the two byte (0F prefixed) opcode table.
func (cpu *cpuState) createTable0F() {
	cpu.table0F = [256]func(*stepInfo) uint16{
		//  0         1         2         3          4         5         6          7
		cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opSyscall, cpu.opUnk, cpu.opUnk, // 0x
		cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUD2, cpu.opUnk, cpu.opNopMem, cpu.opUnk, cpu.opUnk,

		cpu.opMovUps, cpu.opMovUps, cpu.opMovLps, cpu.opMovLps, // 1x
		cpu.opUnpckPs, cpu.opUnpckPs, cpu.opMovHps, cpu.opMovHps,
		cpu.opNopMem, cpu.opNopMem, cpu.opNopMem, cpu.opNopMem,
		cpu.opNopMem, cpu.opNopMem, cpu.opNopMem, cpu.opNopMem,

		cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, // 2x
		cpu.opMovAps, cpu.opMovAps, cpu.opCvtSI2, cpu.opMovAps, cpu.opCvtS2SI, cpu.opCvtS2SI, cpu.opComis, cpu.opComis,

		cpu.opUnk, cpu.opRdtsc, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, // 3x
		cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk,

		cpu.opCMov, cpu.opCMov, cpu.opCMov, cpu.opCMov, cpu.opCMov, cpu.opCMov, cpu.opCMov, cpu.opCMov, // 4x
		cpu.opCMov, cpu.opCMov, cpu.opCMov, cpu.opCMov, cpu.opCMov, cpu.opCMov, cpu.opCMov, cpu.opCMov,

		cpu.opMovMsk, cpu.opSseSqrt, cpu.opSseRecip, cpu.opSseRecip, // 5x
		cpu.opSseLogic, cpu.opSseLogic, cpu.opSseLogic, cpu.opSseLogic,
		cpu.opSseArith, cpu.opSseArith, cpu.opCvt5A, cpu.opCvt5B,
		cpu.opSseArith, cpu.opSseArith, cpu.opSseArith, cpu.opSseArith,

		cpu.opPunpck, cpu.opPunpck, cpu.opPunpck, cpu.opPack, // 6x
		cpu.opPcmp, cpu.opPcmp, cpu.opPcmp, cpu.opPack,
		cpu.opPunpck, cpu.opPunpck, cpu.opPunpck, cpu.opPack,
		cpu.opPunpck, cpu.opPunpck, cpu.opMovD, cpu.opMovDQ,

		cpu.opPshuf, cpu.opPshiftImm, cpu.opPshiftImm, cpu.opPshiftImm, // 7x
		cpu.opPcmp, cpu.opPcmp, cpu.opPcmp, cpu.opNop,
		cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opUnk,
		cpu.opUnk, cpu.opUnk, cpu.opMovD, cpu.opMovDQ,

		cpu.opJccNear, cpu.opJccNear, cpu.opJccNear, cpu.opJccNear, // 8x
		cpu.opJccNear, cpu.opJccNear, cpu.opJccNear, cpu.opJccNear,
		cpu.opJccNear, cpu.opJccNear, cpu.opJccNear, cpu.opJccNear,
		cpu.opJccNear, cpu.opJccNear, cpu.opJccNear, cpu.opJccNear,

		cpu.opSetcc, cpu.opSetcc, cpu.opSetcc, cpu.opSetcc, cpu.opSetcc, cpu.opSetcc, cpu.opSetcc, cpu.opSetcc, // 9x
		cpu.opSetcc, cpu.opSetcc, cpu.opSetcc, cpu.opSetcc, cpu.opSetcc, cpu.opSetcc, cpu.opSetcc, cpu.opSetcc,

		cpu.opUnk, cpu.opUnk, cpu.opCpuid, cpu.opBitTest, cpu.opShiftD, cpu.opShiftD, cpu.opUnk, cpu.opUnk, // Ax
		cpu.opUnk, cpu.opUnk, cpu.opUnk, cpu.opBitTest, cpu.opShiftD, cpu.opShiftD, cpu.opGrp15, cpu.opIMulR,

		cpu.opCmpxchg, cpu.opCmpxchg, cpu.opUnk, cpu.opBitTest, cpu.opUnk, cpu.opUnk, cpu.opMovzx, cpu.opMovzx, // Bx
		cpu.opUnk, cpu.opUnk, cpu.opBitTest, cpu.opBitTest, cpu.opBitScan, cpu.opBitScan, cpu.opMovsx, cpu.opMovsx,

		cpu.opXadd, cpu.opXadd, cpu.opSseCmp, cpu.opMovNti, cpu.opUnk, cpu.opUnk, cpu.opShufPs, cpu.opUnk, // Cx
		cpu.opBswap, cpu.opBswap, cpu.opBswap, cpu.opBswap,
		cpu.opBswap, cpu.opBswap, cpu.opBswap, cpu.opBswap,

		cpu.opUnk, cpu.opPshift, cpu.opPshift, cpu.opPshift, cpu.opPadd, cpu.opPmulw, cpu.opMovQStore, cpu.opPmovmskb, // Dx
		cpu.opPsub, cpu.opPsub, cpu.opPminmax, cpu.opPlogic, cpu.opPadd, cpu.opPadd, cpu.opPminmax, cpu.opPlogic,

		cpu.opPavg, cpu.opPshift, cpu.opPshift, cpu.opPavg, cpu.opPmulw, cpu.opPmulw, cpu.opCvtE6, cpu.opMovNtdq, // Ex
		cpu.opPsub, cpu.opPsub, cpu.opPminmax, cpu.opPlogic, cpu.opPadd, cpu.opPadd, cpu.opPminmax, cpu.opPlogic,

		cpu.opUnk, cpu.opPshift, cpu.opPshift, cpu.opPshift, cpu.opPmuludq, cpu.opPmaddwd, cpu.opPsadbw, cpu.opUnk, // Fx
		cpu.opPsub, cpu.opPsub, cpu.opPsub, cpu.opPsub, cpu.opPadd, cpu.opPadd, cpu.opPadd, cpu.opUnk,
	}
}
