package memory

/*
 * x64os - Low level guest memory
 *
 * Copyright 2025, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

import (
	"encoding/binary"
)

// Guest memory is one flat little-endian byte array. The loader owns
// the layout; the CPU and kernel access it through the checked
// accessors below. A true return from a Put or the second result of a
// Get means the access ran outside the allocated region.
type mem struct {
	mem  []byte
	size uint64
}

var memory mem

// Set size in K. Allocates a fresh zeroed array.
func SetSize(k int) {
	if k > (4 * 1024 * 1024) {
		k = 4 * 1024 * 1024
	}
	if k < 64 {
		k = 64
	}
	memory.size = uint64(k) * 1024
	memory.mem = make([]byte, memory.size)
}

// Return size of memory in bytes.
func GetSize() uint64 {
	return memory.size
}

// Check if a range of addresses is inside memory.
func CheckAddr(addr, length uint64) bool {
	return addr < memory.size && length <= memory.size-addr
}

// Get a byte from memory.
func GetByte(addr uint64) (uint8, bool) {
	if addr >= memory.size {
		return 0, true
	}
	return memory.mem[addr], false
}

// Put a byte to memory.
func PutByte(addr uint64, data uint8) bool {
	if addr >= memory.size {
		return true
	}
	memory.mem[addr] = data
	return false
}

// Get a 16 bit half word from memory.
func GetHalf(addr uint64) (uint16, bool) {
	if !CheckAddr(addr, 2) {
		return 0, true
	}
	return binary.LittleEndian.Uint16(memory.mem[addr:]), false
}

// Put a 16 bit half word to memory.
func PutHalf(addr uint64, data uint16) bool {
	if !CheckAddr(addr, 2) {
		return true
	}
	binary.LittleEndian.PutUint16(memory.mem[addr:], data)
	return false
}

// Get a 32 bit word from memory.
func GetWord(addr uint64) (uint32, bool) {
	if !CheckAddr(addr, 4) {
		return 0, true
	}
	return binary.LittleEndian.Uint32(memory.mem[addr:]), false
}

// Put a 32 bit word to memory.
func PutWord(addr uint64, data uint32) bool {
	if !CheckAddr(addr, 4) {
		return true
	}
	binary.LittleEndian.PutUint32(memory.mem[addr:], data)
	return false
}

// Get a 64 bit quad word from memory.
func GetQuad(addr uint64) (uint64, bool) {
	if !CheckAddr(addr, 8) {
		return 0, true
	}
	return binary.LittleEndian.Uint64(memory.mem[addr:]), false
}

// Put a 64 bit quad word to memory.
func PutQuad(addr uint64, data uint64) bool {
	if !CheckAddr(addr, 8) {
		return true
	}
	binary.LittleEndian.PutUint64(memory.mem[addr:], data)
	return false
}

// Get an 80 bit extended real from memory as significand plus
// sign/exponent half word.
func GetTen(addr uint64) (uint64, uint16, bool) {
	if !CheckAddr(addr, 10) {
		return 0, 0, true
	}
	sig := binary.LittleEndian.Uint64(memory.mem[addr:])
	se := binary.LittleEndian.Uint16(memory.mem[addr+8:])
	return sig, se, false
}

// Put an 80 bit extended real to memory.
func PutTen(addr uint64, sig uint64, se uint16) bool {
	if !CheckAddr(addr, 10) {
		return true
	}
	binary.LittleEndian.PutUint64(memory.mem[addr:], sig)
	binary.LittleEndian.PutUint16(memory.mem[addr+8:], se)
	return false
}

// Get a 128 bit double quad word from memory.
func GetOcta(addr uint64) ([16]byte, bool) {
	var value [16]byte
	if !CheckAddr(addr, 16) {
		return value, true
	}
	copy(value[:], memory.mem[addr:addr+16])
	return value, false
}

// Put a 128 bit double quad word to memory.
func PutOcta(addr uint64, data [16]byte) bool {
	if !CheckAddr(addr, 16) {
		return true
	}
	copy(memory.mem[addr:], data[:])
	return false
}

// Copy a block out of memory. Used by the kernel and the monitor.
func GetBlock(addr, length uint64) ([]byte, bool) {
	if !CheckAddr(addr, length) {
		return nil, true
	}
	block := make([]byte, length)
	copy(block, memory.mem[addr:])
	return block, false
}

// Copy a block into memory. Used by the loader and the kernel.
func PutBlock(addr uint64, data []byte) bool {
	if !CheckAddr(addr, uint64(len(data))) {
		return true
	}
	copy(memory.mem[addr:], data)
	return false
}

// Read a NUL terminated string out of memory.
func GetString(addr uint64) (string, bool) {
	value := []byte{}
	for {
		by, err := GetByte(addr)
		if err {
			return "", true
		}
		if by == 0 {
			return string(value), false
		}
		value = append(value, by)
		addr++
	}
}

// Clear a range of memory.
func Clear(addr, length uint64) bool {
	if !CheckAddr(addr, length) {
		return true
	}
	for i := range length {
		memory.mem[addr+i] = 0
	}
	return false
}
