/*
   x64os: small AMD64 encoder.

   Builds the machine code for the test programs. Only the encodings
   the emulator core implements are produced; labels resolve to rel32
   displacements on Finish.

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

package assemble

import (
	"encoding/binary"
	"fmt"

	op "github.com/davidly/x64os/emu/opcodemap"
)

type fixup struct {
	pos   int    // Offset of the displacement field
	label string // Target label
}

// Block accumulates code. Emitters append encodings; Finish resolves
// label references.
type Block struct {
	code   []byte
	labels map[string]int
	fixups []fixup
}

func New() *Block {
	return &Block{labels: map[string]int{}}
}

// Raw bytes, for encodings without a dedicated emitter.
func (b *Block) Bytes(data ...byte) {
	b.code = append(b.code, data...)
}

// Define a label at the current position.
func (b *Block) Label(name string) {
	b.labels[name] = len(b.code)
}

// Current offset in the block.
func (b *Block) Here() int {
	return len(b.code)
}

// Resolve fixups and return the code.
func (b *Block) Finish() ([]byte, error) {
	for _, fix := range b.fixups {
		target, ok := b.labels[fix.label]
		if !ok {
			return nil, fmt.Errorf("undefined label: %s", fix.label)
		}
		disp := int32(target - (fix.pos + 4))
		binary.LittleEndian.PutUint32(b.code[fix.pos:], uint32(disp))
	}
	return b.code, nil
}

func (b *Block) imm32(value uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	b.code = append(b.code, buf[:]...)
}

func (b *Block) imm64(value uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	b.code = append(b.code, buf[:]...)
}

// REX byte for a reg/rm pair; emitted only when needed or forced
// wide.
func (b *Block) rex(wide bool, reg, index, base int) {
	rex := byte(0x40)
	if wide {
		rex |= 0x08
	}
	if reg >= 8 {
		rex |= 0x04
	}
	if index >= 8 {
		rex |= 0x02
	}
	if base >= 8 {
		rex |= 0x01
	}
	if rex != 0x40 || wide {
		b.code = append(b.code, rex)
	}
}

func modRM(mod, reg, rm int) byte {
	return byte(mod<<6 | (reg&7)<<3 | rm&7)
}

// Register direct ModR/M form with a leading opcode.
func (b *Block) regOp(wide bool, opcode byte, reg, rm int) {
	b.rex(wide, reg, 0, rm)
	b.code = append(b.code, opcode, modRM(3, reg, rm))
}

// [base+disp32] memory form.
func (b *Block) memOp(wide bool, opcode byte, reg, base int, disp int32) {
	b.rex(wide, reg, 0, base)
	b.code = append(b.code, opcode)
	// RSP and R12 as base need a SIB byte.
	if (base & 7) == 4 {
		b.code = append(b.code, modRM(2, reg, 4), 0x24)
	} else {
		b.code = append(b.code, modRM(2, reg, base))
	}
	b.imm32(uint32(disp))
}

// [base+index*scale+disp32] memory form.
func (b *Block) sibOp(wide bool, opcode byte, reg, base, index, scale int, disp int32) {
	b.rex(wide, reg, index, base)
	shift := map[int]int{1: 0, 2: 1, 4: 2, 8: 3}[scale]
	b.code = append(b.code, opcode, modRM(2, reg, 4),
		byte(shift<<6|(index&7)<<3|base&7))
	b.imm32(uint32(disp))
}

// mov r64, imm64.
func (b *Block) MovImm64(reg int, value uint64) {
	b.rex(true, 0, 0, reg)
	b.code = append(b.code, byte(op.OpMovI+reg&7))
	b.imm64(value)
}

// mov r32, imm32 (zero extends).
func (b *Block) MovImm32(reg int, value uint32) {
	b.rex(false, 0, 0, reg)
	b.code = append(b.code, byte(op.OpMovI+reg&7))
	b.imm32(value)
}

// mov r64, r64.
func (b *Block) MovReg64(dst, src int) {
	b.regOp(true, op.OpMovRM, src, dst)
}

// mov r32, r32.
func (b *Block) MovReg32(dst, src int) {
	b.regOp(false, op.OpMovRM, src, dst)
}

// mov [base+disp], r of 1, 2, 4 or 8 bytes.
func (b *Block) MovStore(size int, base int, disp int32, src int) {
	switch size {
	case 1:
		b.memOp(false, 0x88, src, base, disp)
	case 2:
		b.code = append(b.code, 0x66)
		b.memOp(false, op.OpMovRM, src, base, disp)
	case 4:
		b.memOp(false, op.OpMovRM, src, base, disp)
	default:
		b.memOp(true, op.OpMovRM, src, base, disp)
	}
}

// mov r, [base+disp].
func (b *Block) MovLoad(size int, dst int, base int, disp int32) {
	switch size {
	case 1:
		b.memOp(false, 0x8a, dst, base, disp)
	case 2:
		b.code = append(b.code, 0x66)
		b.memOp(false, op.OpMovMR, dst, base, disp)
	case 4:
		b.memOp(false, op.OpMovMR, dst, base, disp)
	default:
		b.memOp(true, op.OpMovMR, dst, base, disp)
	}
}

// mov r32, [base+index*scale+disp].
func (b *Block) MovLoadIndex32(dst, base, index, scale int, disp int32) {
	b.sibOp(false, op.OpMovMR, dst, base, index, scale, disp)
}

// mov [base+index*scale+disp], r32.
func (b *Block) MovStoreIndex32(base, index, scale int, disp int32, src int) {
	b.sibOp(false, op.OpMovRM, src, base, index, scale, disp)
}

// movzx r32, byte [base+index+disp].
func (b *Block) MovzxLoadIndex8(dst, base, index int, disp int32) {
	b.rex(false, dst, index, base)
	b.code = append(b.code, 0x0f, op.Op2Movzx8, modRM(2, dst, 4),
		byte((index&7)<<3|base&7))
	b.imm32(uint32(disp))
}

// mov byte [base+index+disp], r8.
func (b *Block) MovStoreIndex8(base, index int, disp int32, src int) {
	b.rex(false, src, index, base)
	b.code = append(b.code, 0x88, modRM(2, src, 4), byte((index&7)<<3|base&7))
	b.imm32(uint32(disp))
}

// Arithmetic group, r/m64, r64 form.
func (b *Block) Alu64(group int, dst, src int) {
	b.regOp(true, byte(group<<3|1), src, dst)
}

// Arithmetic group, r/m32, r32 form.
func (b *Block) Alu32(group int, dst, src int) {
	b.regOp(false, byte(group<<3|1), src, dst)
}

// Arithmetic group with a 32 bit immediate.
func (b *Block) AluImm32(group int, reg int, value uint32) {
	b.rex(false, 0, 0, reg)
	b.code = append(b.code, op.OpGrp1, modRM(3, group, reg))
	b.imm32(value)
}

// Arithmetic group, 64 bit operand with sign extended imm8.
func (b *Block) AluImm8(group int, reg int, value int8) {
	b.rex(true, 0, 0, reg)
	b.code = append(b.code, op.OpGrp1S, modRM(3, group, reg), byte(value))
}

// Arithmetic group, 32 bit operand with sign extended imm8.
func (b *Block) AluImm8x32(group int, reg int, value int8) {
	b.rex(false, 0, 0, reg)
	b.code = append(b.code, op.OpGrp1S, modRM(3, group, reg), byte(value))
}

// inc/dec r32.
func (b *Block) Inc32(reg int) {
	b.regOp(false, op.OpGrp5, op.Grp5Inc, reg)
}

func (b *Block) Dec32(reg int) {
	b.regOp(false, op.OpGrp5, op.Grp5Dec, reg)
}

// test r64, r64.
func (b *Block) Test64(a, reg int) {
	b.regOp(true, op.OpTestRM, reg, a)
}

// push/pop r64.
func (b *Block) Push(reg int) {
	b.rex(false, 0, 0, reg)
	b.code = append(b.code, byte(0x50+reg&7))
}

func (b *Block) Pop(reg int) {
	b.rex(false, 0, 0, reg)
	b.code = append(b.code, byte(0x58+reg&7))
}

// Shifts by immediate on 32 bit operands.
func (b *Block) ShiftImm32(kind int, reg int, count uint8) {
	b.rex(false, 0, 0, reg)
	b.code = append(b.code, op.OpShiftI, modRM(3, kind, reg), count)
}

// One operand multiply/divide group, 32 bit operand.
func (b *Block) Grp3v32(kind int, reg int) {
	b.regOp(false, op.OpGrp3, kind, reg)
}

// One operand multiply/divide group, 64 bit operand.
func (b *Block) Grp3v64(kind int, reg int) {
	b.regOp(true, op.OpGrp3, kind, reg)
}

// imul r32, r32.
func (b *Block) IMul32(dst, src int) {
	b.rex(false, dst, 0, src)
	b.code = append(b.code, 0x0f, op.Op2IMul, modRM(3, dst, src))
}

// cdq / cqo.
func (b *Block) Cdq() {
	b.code = append(b.code, op.OpCwd)
}

func (b *Block) Cqo() {
	b.code = append(b.code, 0x48, op.OpCwd)
}

// Control flow with label fixups. All branches use rel32 forms.
func (b *Block) Jmp(label string) {
	b.code = append(b.code, op.OpJmp)
	b.fixups = append(b.fixups, fixup{pos: len(b.code), label: label})
	b.imm32(0)
}

func (b *Block) Jcc(cc int, label string) {
	b.code = append(b.code, 0x0f, byte(op.Op2Jcc+cc))
	b.fixups = append(b.fixups, fixup{pos: len(b.code), label: label})
	b.imm32(0)
}

func (b *Block) Call(label string) {
	b.code = append(b.code, op.OpCall)
	b.fixups = append(b.fixups, fixup{pos: len(b.code), label: label})
	b.imm32(0)
}

func (b *Block) Ret() {
	b.code = append(b.code, op.OpRet)
}

func (b *Block) Syscall() {
	b.code = append(b.code, 0x0f, op.Op2Syscall)
}

func (b *Block) Hlt() {
	b.code = append(b.code, op.OpHlt)
}

func (b *Block) Nop() {
	b.code = append(b.code, op.OpNop)
}
