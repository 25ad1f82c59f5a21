/*
   CPU: SSE2 packed integer executor.

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

// Saturation clamps.
func satU8(value int32) uint8 {
	if value < 0 {
		return 0
	}
	if value > 255 {
		return 255
	}
	return uint8(value)
}

func satI8(value int32) uint8 {
	if value < -128 {
		return 0x80
	}
	if value > 127 {
		return 0x7f
	}
	return uint8(int8(value))
}

func satU16(value int32) uint16 {
	if value < 0 {
		return 0
	}
	if value > 65535 {
		return 65535
	}
	return uint16(value)
}

func satI16(value int32) uint16 {
	if value < -32768 {
		return 0x8000
	}
	if value > 32767 {
		return 0x7fff
	}
	return uint16(int16(value))
}

// Fetch the source operand shared by every two operand packed op.
func (cpu *cpuState) packedSrc(step *stepInfo) (*[16]byte, [16]byte, uint16) {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return nil, [16]byte{}, trap
	}
	src, trap := cpu.readXmmRM(step)
	if trap != 0 {
		return nil, src, trap
	}
	return &cpu.xregs[step.reg], src, 0
}

// PADDB/W/D/Q (0F FC, FD, FE, D4) and the saturating byte/word adds
// (0F EC, ED, DC, DD).
func (cpu *cpuState) opPadd(step *stepInfo) uint16 {
	dst, src, trap := cpu.packedSrc(step)
	if trap != 0 {
		return trap
	}
	switch step.second {
	case 0xfc:
		for i := range 16 {
			dst[i] += src[i]
		}
	case 0xfd:
		for lane := range 8 {
			putLane16(dst, lane, getLane16(dst, lane)+getLane16(&src, lane))
		}
	case 0xfe:
		for lane := range 4 {
			putLane32(dst, lane, getLane32(dst, lane)+getLane32(&src, lane))
		}
	case 0xd4:
		for lane := range 2 {
			putLane64(dst, lane, getLane64(dst, lane)+getLane64(&src, lane))
		}
	case 0xec: // PADDSB
		for i := range 16 {
			dst[i] = satI8(int32(int8(dst[i])) + int32(int8(src[i])))
		}
	case 0xed: // PADDSW
		for lane := range 8 {
			sum := int32(int16(getLane16(dst, lane))) + int32(int16(getLane16(&src, lane)))
			putLane16(dst, lane, satI16(sum))
		}
	case 0xdc: // PADDUSB
		for i := range 16 {
			dst[i] = satU8(int32(dst[i]) + int32(src[i]))
		}
	case 0xdd: // PADDUSW
		for lane := range 8 {
			sum := int32(getLane16(dst, lane)) + int32(getLane16(&src, lane))
			putLane16(dst, lane, satU16(sum))
		}
	}
	return 0
}

// PSUBB/W/D/Q (0F F8-FB) and the saturating subtracts (0F E8, E9,
// D8, D9).
func (cpu *cpuState) opPsub(step *stepInfo) uint16 {
	dst, src, trap := cpu.packedSrc(step)
	if trap != 0 {
		return trap
	}
	switch step.second {
	case 0xf8:
		for i := range 16 {
			dst[i] -= src[i]
		}
	case 0xf9:
		for lane := range 8 {
			putLane16(dst, lane, getLane16(dst, lane)-getLane16(&src, lane))
		}
	case 0xfa:
		for lane := range 4 {
			putLane32(dst, lane, getLane32(dst, lane)-getLane32(&src, lane))
		}
	case 0xfb:
		for lane := range 2 {
			putLane64(dst, lane, getLane64(dst, lane)-getLane64(&src, lane))
		}
	case 0xe8: // PSUBSB
		for i := range 16 {
			dst[i] = satI8(int32(int8(dst[i])) - int32(int8(src[i])))
		}
	case 0xe9: // PSUBSW
		for lane := range 8 {
			diff := int32(int16(getLane16(dst, lane))) - int32(int16(getLane16(&src, lane)))
			putLane16(dst, lane, satI16(diff))
		}
	case 0xd8: // PSUBUSB: clamps below at zero
		for i := range 16 {
			dst[i] = satU8(int32(dst[i]) - int32(src[i]))
		}
	case 0xd9: // PSUBUSW
		for lane := range 8 {
			diff := int32(getLane16(dst, lane)) - int32(getLane16(&src, lane))
			putLane16(dst, lane, satU16(diff))
		}
	}
	return 0
}

// PAND/PANDN/POR/PXOR (0F DB, DF, EB, EF).
func (cpu *cpuState) opPlogic(step *stepInfo) uint16 {
	dst, src, trap := cpu.packedSrc(step)
	if trap != 0 {
		return trap
	}
	for i := range 16 {
		switch step.second {
		case 0xdb:
			dst[i] &= src[i]
		case 0xdf:
			dst[i] = ^dst[i] & src[i]
		case 0xeb:
			dst[i] |= src[i]
		default:
			dst[i] ^= src[i]
		}
	}
	return 0
}

// PCMPEQB/W/D (0F 74-76) and PCMPGTB/W/D (0F 64-66, signed).
func (cpu *cpuState) opPcmp(step *stepInfo) uint16 {
	dst, src, trap := cpu.packedSrc(step)
	if trap != 0 {
		return trap
	}
	equal := step.second >= 0x74
	switch step.second & 3 {
	case 0: // bytes
		for i := range 16 {
			hit := dst[i] == src[i]
			if !equal {
				hit = int8(dst[i]) > int8(src[i])
			}
			dst[i] = 0
			if hit {
				dst[i] = 0xff
			}
		}
	case 1: // words
		for lane := range 8 {
			hit := getLane16(dst, lane) == getLane16(&src, lane)
			if !equal {
				hit = int16(getLane16(dst, lane)) > int16(getLane16(&src, lane))
			}
			value := uint16(0)
			if hit {
				value = 0xffff
			}
			putLane16(dst, lane, value)
		}
	case 2: // dwords
		for lane := range 4 {
			hit := getLane32(dst, lane) == getLane32(&src, lane)
			if !equal {
				hit = int32(getLane32(dst, lane)) > int32(getLane32(&src, lane))
			}
			value := uint32(0)
			if hit {
				value = 0xffffffff
			}
			putLane32(dst, lane, value)
		}
	}
	return 0
}

// Word multiplies: PMULLW (0F D5), PMULHW (0F E5), PMULHUW (0F E4).
func (cpu *cpuState) opPmulw(step *stepInfo) uint16 {
	dst, src, trap := cpu.packedSrc(step)
	if trap != 0 {
		return trap
	}
	for lane := range 8 {
		a := getLane16(dst, lane)
		b := getLane16(&src, lane)
		var value uint16
		switch step.second {
		case 0xd5:
			value = uint16(int32(int16(a)) * int32(int16(b)))
		case 0xe5:
			value = uint16(uint32(int32(int16(a))*int32(int16(b))) >> 16)
		default:
			value = uint16((uint32(a) * uint32(b)) >> 16)
		}
		putLane16(dst, lane, value)
	}
	return 0
}

// PMULUDQ (0F F4): unsigned 32x32 to 64 from lanes 0 and 2.
func (cpu *cpuState) opPmuludq(step *stepInfo) uint16 {
	dst, src, trap := cpu.packedSrc(step)
	if trap != 0 {
		return trap
	}
	low := uint64(getLane32(dst, 0)) * uint64(getLane32(&src, 0))
	high := uint64(getLane32(dst, 2)) * uint64(getLane32(&src, 2))
	putLane64(dst, 0, low)
	putLane64(dst, 1, high)
	return 0
}

// PMADDWD (0F F5): dword sums of adjacent signed word products.
func (cpu *cpuState) opPmaddwd(step *stepInfo) uint16 {
	dst, src, trap := cpu.packedSrc(step)
	if trap != 0 {
		return trap
	}
	for lane := range 4 {
		a0 := int32(int16(getLane16(dst, lane*2)))
		a1 := int32(int16(getLane16(dst, lane*2+1)))
		b0 := int32(int16(getLane16(&src, lane*2)))
		b1 := int32(int16(getLane16(&src, lane*2+1)))
		putLane32(dst, lane, uint32(a0*b0+a1*b1))
	}
	return 0
}

// Byte and word min/max: PMINUB (0F DA), PMAXUB (0F DE), PMINSW
// (0F EA), PMAXSW (0F EE).
func (cpu *cpuState) opPminmax(step *stepInfo) uint16 {
	dst, src, trap := cpu.packedSrc(step)
	if trap != 0 {
		return trap
	}
	switch step.second {
	case 0xda:
		for i := range 16 {
			if src[i] < dst[i] {
				dst[i] = src[i]
			}
		}
	case 0xde:
		for i := range 16 {
			if src[i] > dst[i] {
				dst[i] = src[i]
			}
		}
	case 0xea:
		for lane := range 8 {
			if int16(getLane16(&src, lane)) < int16(getLane16(dst, lane)) {
				putLane16(dst, lane, getLane16(&src, lane))
			}
		}
	case 0xee:
		for lane := range 8 {
			if int16(getLane16(&src, lane)) > int16(getLane16(dst, lane)) {
				putLane16(dst, lane, getLane16(&src, lane))
			}
		}
	}
	return 0
}

// PAVGB/PAVGW (0F E0, 0F E3): unsigned average with rounding up.
func (cpu *cpuState) opPavg(step *stepInfo) uint16 {
	dst, src, trap := cpu.packedSrc(step)
	if trap != 0 {
		return trap
	}
	if step.second == 0xe0 {
		for i := range 16 {
			dst[i] = uint8((uint16(dst[i]) + uint16(src[i]) + 1) >> 1)
		}
		return 0
	}
	for lane := range 8 {
		value := (uint32(getLane16(dst, lane)) + uint32(getLane16(&src, lane)) + 1) >> 1
		putLane16(dst, lane, uint16(value))
	}
	return 0
}

// PSADBW (0F F6): byte absolute differences summed into 16 bit lanes
// 0 and 4.
func (cpu *cpuState) opPsadbw(step *stepInfo) uint16 {
	dst, src, trap := cpu.packedSrc(step)
	if trap != 0 {
		return trap
	}
	var low, high uint16
	for i := range 8 {
		d := int32(dst[i]) - int32(src[i])
		if d < 0 {
			d = -d
		}
		low += uint16(d)
	}
	for i := 8; i < 16; i++ {
		d := int32(dst[i]) - int32(src[i])
		if d < 0 {
			d = -d
		}
		high += uint16(d)
	}
	*dst = [16]byte{}
	putLane16(dst, 0, low)
	putLane16(dst, 4, high)
	return 0
}

// PMOVMSKB (0F D7): byte sign mask to a GPR.
func (cpu *cpuState) opPmovmskb(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if !step.isReg {
		return ircOper
	}
	src := &cpu.xregs[step.rm]
	var maskBits uint64
	for i := range 16 {
		if (src[i] & 0x80) != 0 {
			maskBits |= 1 << i
		}
	}
	cpu.setReg(8, step.reg, step.rexSeen, maskBits)
	return 0
}

// Packed shifts by XMM or memory count (0F D1-D3, E1, E2, F1-F3).
// The count is the low 64 bits of the source; overflow saturates to
// the lane width.
func (cpu *cpuState) opPshift(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	count, trap := cpu.readXmmRM64(step)
	if trap != 0 {
		return trap
	}
	cpu.pshift(&cpu.xregs[step.reg], step.second, count)
	return 0
}

// Packed shifts by immediate (0F 71, 72, 73). The reg field selects
// the operation; /3 and /7 on 0F 73 shift the whole 128 bit value by
// bytes.
func (cpu *cpuState) opPshiftImm(step *stepInfo) uint16 {
	if trap := cpu.fetchModRM(step); trap != 0 {
		return trap
	}
	if !step.isReg {
		return ircOper
	}
	imm, trap := cpu.fetchImm(1)
	if trap != 0 {
		return trap
	}
	dst := &cpu.xregs[step.rm]
	op := step.reg & 7
	if step.second == 0x73 && (op == 3 || op == 7) {
		// PSRLDQ / PSLLDQ: byte granular shift of the full register.
		var result [16]byte
		shift := int(imm)
		if shift > 16 {
			shift = 16
		}
		for i := 0; i < 16-shift; i++ {
			if op == 3 {
				result[i] = dst[i+shift]
			} else {
				result[i+shift] = dst[i]
			}
		}
		*dst = result
		return 0
	}
	// Map the immediate group onto the shift-by-count opcodes.
	var synth uint8
	switch op {
	case 2: // PSRLx
		synth = 0xd0
	case 4: // PSRAx
		synth = 0xe0
	case 6: // PSLLx
		synth = 0xf0
	default:
		return ircOper
	}
	synth |= (step.second & 3) // 71=words, 72=dwords, 73=qwords
	cpu.pshift(dst, synth, imm)
	return 0
}

// Shared packed shift body. The opcode low bits select the lane
// width, the high nibble the direction and fill.
func (cpu *cpuState) pshift(dst *[16]byte, opcode uint8, count uint64) {
	arith := (opcode & 0xf0) == 0xe0
	left := (opcode & 0xf0) == 0xf0
	switch opcode & 3 {
	case 1: // words
		for lane := range 8 {
			value := getLane16(dst, lane)
			switch {
			case left:
				if count > 15 {
					value = 0
				} else {
					value <<= count
				}
			case arith:
				shift := count
				if shift > 15 {
					shift = 15
				}
				value = uint16(int16(value) >> shift)
			default:
				if count > 15 {
					value = 0
				} else {
					value >>= count
				}
			}
			putLane16(dst, lane, value)
		}
	case 2: // dwords
		for lane := range 4 {
			value := getLane32(dst, lane)
			switch {
			case left:
				if count > 31 {
					value = 0
				} else {
					value <<= count
				}
			case arith:
				shift := count
				if shift > 31 {
					shift = 31
				}
				value = uint32(int32(value) >> shift)
			default:
				if count > 31 {
					value = 0
				} else {
					value >>= count
				}
			}
			putLane32(dst, lane, value)
		}
	case 3: // qwords, no arithmetic form
		for lane := range 2 {
			value := getLane64(dst, lane)
			if count > 63 {
				value = 0
			} else if left {
				value <<= count
			} else {
				value >>= count
			}
			putLane64(dst, lane, value)
		}
	}
}

// Pack with saturation: PACKSSWB (0F 63), PACKUSWB (0F 67),
// PACKSSDW (0F 6B).
func (cpu *cpuState) opPack(step *stepInfo) uint16 {
	dst, src, trap := cpu.packedSrc(step)
	if trap != 0 {
		return trap
	}
	var result [16]byte
	switch step.second {
	case 0x63:
		for i := range 8 {
			result[i] = satI8(int32(int16(getLane16(dst, i))))
			result[i+8] = satI8(int32(int16(getLane16(&src, i))))
		}
	case 0x67:
		for i := range 8 {
			result[i] = satU8(int32(int16(getLane16(dst, i))))
			result[i+8] = satU8(int32(int16(getLane16(&src, i))))
		}
	default: // 0x6b
		for i := range 4 {
			putLane16(&result, i, satI16(int32(getLane32(dst, i))))
			putLane16(&result, i+4, satI16(int32(getLane32(&src, i))))
		}
	}
	*dst = result
	return 0
}

// Unpack low/high interleaves (0F 60-62, 68-6A, 6C, 6D).
func (cpu *cpuState) opPunpck(step *stepInfo) uint16 {
	dst, src, trap := cpu.packedSrc(step)
	if trap != 0 {
		return trap
	}
	high := step.second >= 0x68 && step.second != 0x6c
	var result [16]byte
	switch step.second {
	case 0x60, 0x68: // bytes
		base := 0
		if high {
			base = 8
		}
		for i := range 8 {
			result[i*2] = dst[base+i]
			result[i*2+1] = src[base+i]
		}
	case 0x61, 0x69: // words
		base := 0
		if high {
			base = 4
		}
		for i := range 4 {
			putLane16(&result, i*2, getLane16(dst, base+i))
			putLane16(&result, i*2+1, getLane16(&src, base+i))
		}
	case 0x62, 0x6a: // dwords
		base := 0
		if high {
			base = 2
		}
		for i := range 2 {
			putLane32(&result, i*2, getLane32(dst, base+i))
			putLane32(&result, i*2+1, getLane32(&src, base+i))
		}
	case 0x6c: // PUNPCKLQDQ
		putLane64(&result, 0, getLane64(dst, 0))
		putLane64(&result, 1, getLane64(&src, 0))
	default: // 0x6d PUNPCKHQDQ
		putLane64(&result, 0, getLane64(dst, 1))
		putLane64(&result, 1, getLane64(&src, 1))
	}
	*dst = result
	return 0
}

// PSHUFD/PSHUFLW/PSHUFHW (0F 70 under 66, F2, F3).
func (cpu *cpuState) opPshuf(step *stepInfo) uint16 {
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
	switch step.rep {
	case 0xf2: // PSHUFLW: low four words permuted, high half copied
		result = src
		for i := range 4 {
			putLane16(&result, i, getLane16(&src, int(sel>>(2*i))&3))
		}
	case 0xf3: // PSHUFHW
		result = src
		for i := range 4 {
			putLane16(&result, 4+i, getLane16(&src, 4+(int(sel>>(2*i))&3)))
		}
	default: // PSHUFD
		for i := range 4 {
			putLane32(&result, i, getLane32(&src, int(sel>>(2*i))&3))
		}
	}
	*dst = result
	return 0
}
