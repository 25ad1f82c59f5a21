/*
 * x64os - Low level memory tests.
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

package memory

import (
	"testing"
)

func TestSizeClamp(t *testing.T) {
	SetSize(1)
	if GetSize() != 64*1024 {
		t.Errorf("minimum size not applied: %d", GetSize())
	}
	SetSize(1024)
	if GetSize() != 1024*1024 {
		t.Errorf("size wrong: %d", GetSize())
	}
}

func TestLittleEndianLayout(t *testing.T) {
	SetSize(64)
	PutQuad(0x100, 0x0807060504030201)
	for i := uint64(0); i < 8; i++ {
		value, err := GetByte(0x100 + i)
		if err || value != uint8(i+1) {
			t.Errorf("byte %d got %02x", i, value)
		}
	}
	half, _ := GetHalf(0x100)
	if half != 0x0201 {
		t.Errorf("half got %04x", half)
	}
	word, _ := GetWord(0x102)
	if word != 0x06050403 {
		t.Errorf("word got %08x", word)
	}
}

func TestBounds(t *testing.T) {
	SetSize(64)
	size := GetSize()
	if _, err := GetByte(size); !err {
		t.Error("read past end did not fail")
	}
	if PutQuad(size-4, 1) != true {
		t.Error("straddling write did not fail")
	}
	if _, err := GetQuad(size - 8); err {
		t.Error("last quad should be readable")
	}
	if !CheckAddr(size-4, 4) {
		t.Error("CheckAddr at the boundary")
	}
	if CheckAddr(size-4, 5) {
		t.Error("CheckAddr past the boundary")
	}
}

func TestTenByte(t *testing.T) {
	SetSize(64)
	PutTen(0x200, 0x8000000000000001, 0xc123)
	sig, se, err := GetTen(0x200)
	if err || sig != 0x8000000000000001 || se != 0xc123 {
		t.Errorf("ten byte round trip got %016x %04x", sig, se)
	}
	low, _ := GetByte(0x200)
	high, _ := GetByte(0x209)
	if low != 0x01 || high != 0xc1 {
		t.Error("ten byte layout not little endian")
	}
}

func TestOcta(t *testing.T) {
	SetSize(64)
	var data [16]byte
	for i := range 16 {
		data[i] = byte(i * 3)
	}
	PutOcta(0x300, data)
	back, err := GetOcta(0x300)
	if err || back != data {
		t.Error("octa round trip failed")
	}
}

func TestStringAndBlocks(t *testing.T) {
	SetSize(64)
	PutBlock(0x400, []byte("hello\x00world"))
	value, err := GetString(0x400)
	if err || value != "hello" {
		t.Errorf("string got %q", value)
	}
	block, _ := GetBlock(0x400, 5)
	if string(block) != "hello" {
		t.Error("block read failed")
	}
	Clear(0x400, 5)
	value, _ = GetString(0x400)
	if value != "" {
		t.Error("clear failed")
	}
}
