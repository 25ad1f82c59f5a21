/*
 * x64os - Monitor parser tests.
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

package parser

import (
	"testing"

	cpu "github.com/davidly/x64os/emu/cpu"
	mem "github.com/davidly/x64os/emu/memory"
)

func initMonitorTest() {
	mem.SetSize(64)
	cpu.InitializeCPU()
}

func TestDepositRegister(t *testing.T) {
	initMonitorTest()
	quit, err := ProcessCommand("deposit rbx 0x1234abcd", nil)
	if quit || err != nil {
		t.Fatalf("deposit rbx failed: %v", err)
	}
	if cpu.Reg(cpu.RBX) != 0x1234abcd {
		t.Errorf("rbx got %x", cpu.Reg(cpu.RBX))
	}

	if _, err := ProcessCommand("deposit r12 ff", nil); err != nil {
		t.Fatalf("deposit r12 failed: %v", err)
	}
	if cpu.Reg(cpu.R12) != 0xff {
		t.Errorf("r12 got %x", cpu.Reg(cpu.R12))
	}

	if _, err := ProcessCommand("deposit rip 2000", nil); err != nil {
		t.Fatalf("deposit rip failed: %v", err)
	}
	if cpu.PC() != 0x2000 {
		t.Errorf("rip got %x", cpu.PC())
	}
}

func TestDepositMemoryWidths(t *testing.T) {
	initMonitorTest()
	// Two bytes, then a half word, then a word.
	_, err := ProcessCommand("deposit 1000 90 f4 beef cafe0123", nil)
	if err != nil {
		t.Fatalf("deposit memory failed: %v", err)
	}
	if by, _ := mem.GetByte(0x1000); by != 0x90 {
		t.Errorf("byte 0 got %02x", by)
	}
	if by, _ := mem.GetByte(0x1001); by != 0xf4 {
		t.Errorf("byte 1 got %02x", by)
	}
	if half, _ := mem.GetHalf(0x1002); half != 0xbeef {
		t.Errorf("half got %04x", half)
	}
	if word, _ := mem.GetWord(0x1004); word != 0xcafe0123 {
		t.Errorf("word got %08x", word)
	}
}

func TestDepositErrors(t *testing.T) {
	initMonitorTest()
	if _, err := ProcessCommand("deposit", nil); err == nil {
		t.Error("missing target accepted")
	}
	if _, err := ProcessCommand("deposit 1000", nil); err == nil {
		t.Error("missing value accepted")
	}
	if _, err := ProcessCommand("deposit rax zz", nil); err == nil {
		t.Error("bad hex accepted")
	}
	if _, err := ProcessCommand("deposit ffffffffffff 01", nil); err == nil {
		t.Error("out of range address accepted")
	}
}

func TestCommandAbbreviation(t *testing.T) {
	initMonitorTest()
	// "dep" selects deposit, "di" disassemble; a bare "d" is below
	// both minimum lengths.
	if _, err := ProcessCommand("dep rax 1", nil); err != nil {
		t.Errorf("dep abbreviation failed: %v", err)
	}
	if cpu.Reg(cpu.RAX) != 1 {
		t.Error("abbreviated deposit did not run")
	}
	if _, err := ProcessCommand("d rax 1", nil); err == nil {
		t.Error("ambiguous single letter accepted")
	}
}
