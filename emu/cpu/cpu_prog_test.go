/*
 * x64os CPU test cases: whole guest programs.
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

package cpu

import (
	"bytes"
	"testing"

	asm "github.com/davidly/x64os/emu/assemble"
	mem "github.com/davidly/x64os/emu/memory"
	op "github.com/davidly/x64os/emu/opcodemap"
)

// Install a syscall handler that captures write to stdout.
func captureWrites(buf *bytes.Buffer) {
	SetSyscall(func() bool {
		switch Reg(RAX) {
		case 1: // write
			data, _ := mem.GetBlock(Reg(RSI), Reg(RDX))
			buf.Write(data)
			SetReg(RAX, Reg(RDX))
			return true
		case 60, 231: // exit
			return false
		}
		SetReg(RAX, 0)
		return true
	})
}

// Sieve of Eratosthenes over 2..100. Exercises loads, stores,
// branches, loops and 32 bit arithmetic; the count is written to
// stdout through the syscall bridge.
func TestProgramSieve(t *testing.T) {
	initTest()
	var out bytes.Buffer
	captureWrites(&out)

	const flags = 0x8000
	const buf = 0x9000

	b := asm.New()
	b.MovImm32(RBX, flags)
	b.MovImm32(RCX, 2) // i

	b.Label("outer")
	b.MovReg32(RAX, RCX)
	b.IMul32(RAX, RCX)
	b.AluImm32(op.Grp1Cmp, RAX, 100) // i*i > 100 -> counting phase
	b.Jcc(op.CcG, "count")
	b.MovzxLoadIndex8(RAX, RBX, RCX, 0)
	b.AluImm8x32(op.Grp1Cmp, RAX, 0)
	b.Jcc(op.CcNe, "next")
	// j = i*i, mark every multiple
	b.MovReg32(RAX, RCX)
	b.IMul32(RAX, RCX)
	b.MovImm32(RDX, 1)
	b.Label("mark")
	b.AluImm32(op.Grp1Cmp, RAX, 100)
	b.Jcc(op.CcG, "next")
	b.MovStoreIndex8(RBX, RAX, 0, RDX)
	b.Alu32(op.Grp1Add, RAX, RCX)
	b.Jmp("mark")
	b.Label("next")
	b.Inc32(RCX)
	b.Jmp("outer")

	// Count the primes left unmarked.
	b.Label("count")
	b.MovImm32(RAX, 0)
	b.MovImm32(RCX, 2)
	b.Label("cloop")
	b.AluImm32(op.Grp1Cmp, RCX, 100)
	b.Jcc(op.CcG, "report")
	b.MovzxLoadIndex8(RDX, RBX, RCX, 0)
	b.AluImm8x32(op.Grp1Cmp, RDX, 0)
	b.Jcc(op.CcNe, "cskip")
	b.Inc32(RAX)
	b.Label("cskip")
	b.Inc32(RCX)
	b.Jmp("cloop")

	// Convert the count to two decimal digits and write "NN\n".
	b.Label("report")
	b.MovImm32(RDI, 10)
	b.MovImm32(RDX, 0)
	b.Bytes(0xf7, 0xf7) // div edi
	b.AluImm32(op.Grp1Add, RAX, '0')
	b.AluImm32(op.Grp1Add, RDX, '0')
	b.MovImm32(RBX, buf)
	b.MovStore(1, RBX, 0, RAX)
	b.MovStore(1, RBX, 1, RDX)
	b.MovImm32(RAX, '\n')
	b.MovStore(1, RBX, 2, RAX)
	b.MovImm32(RAX, 1)
	b.MovImm32(RDI, 1)
	b.MovImm32(RSI, buf)
	b.MovImm32(RDX, 3)
	b.Syscall()
	b.Hlt()

	runBlock(t, b)

	if out.String() != "25\n" {
		t.Errorf("sieve reported %q, want \"25\\n\"", out.String())
	}
	// Spot check the flag array itself.
	for _, prime := range []uint64{2, 3, 5, 7, 97} {
		if value, _ := mem.GetByte(flags + prime); value != 0 {
			t.Errorf("prime %d marked composite", prime)
		}
	}
	for _, composite := range []uint64{4, 9, 49, 100} {
		if value, _ := mem.GetByte(flags + composite); value == 0 {
			t.Errorf("composite %d left unmarked", composite)
		}
	}
}

// 20x20 integer matrix product with A[i][j] = i+j and
// B[i][j] = (i+j)/j over 1 based indexes; the grand total of C is a
// fixed 465880. Exercises nested loops and 32 bit multiply.
func TestProgramMatrixMultiply(t *testing.T) {
	initTest()

	const matA = 0x8000 // 20x20 dwords
	const matB = 0x9000

	// Fill A and B from Go; the guest performs the multiply.
	for i := 1; i <= 20; i++ {
		for j := 1; j <= 20; j++ {
			offset := uint64(((i-1)*20 + (j - 1)) * 4)
			mem.PutWord(matA+offset, uint32(i+j))
			mem.PutWord(matB+offset, uint32((i+j)/j))
		}
	}

	// Registers: rbx=A, rbp=B, ecx=i, edx=j, rdi=k, r8d=sum,
	// r9d=row*col accumulator.
	b := asm.New()
	b.MovImm32(RBX, matA)
	b.MovImm32(RBP, matB)
	b.MovImm32(R8, 0)  // grand total
	b.MovImm32(RCX, 0) // i

	b.Label("iloop")
	b.MovImm32(RDX, 0) // j
	b.Label("jloop")
	b.MovImm32(RDI, 0) // k
	b.MovImm32(R9, 0)  // C[i][j]
	b.Label("kloop")
	// eax = A[i][k]: index (i*20+k)*4
	b.MovReg32(RAX, RCX)
	b.MovImm32(RSI, 20)
	b.IMul32(RAX, RSI)
	b.Alu32(op.Grp1Add, RAX, RDI)
	b.MovLoadIndex32(RAX, RBX, RAX, 4, 0)
	// esi = B[k][j]
	b.MovReg32(RSI, RDI)
	b.MovImm32(R10, 20)
	b.IMul32(RSI, R10)
	b.Alu32(op.Grp1Add, RSI, RDX)
	b.MovLoadIndex32(RSI, RBP, RSI, 4, 0)
	b.IMul32(RAX, RSI)
	b.Alu32(op.Grp1Add, R9, RAX)
	b.Inc32(RDI)
	b.AluImm32(op.Grp1Cmp, RDI, 20)
	b.Jcc(op.CcL, "kloop")
	b.Alu32(op.Grp1Add, R8, R9)
	b.Inc32(RDX)
	b.AluImm32(op.Grp1Cmp, RDX, 20)
	b.Jcc(op.CcL, "jloop")
	b.Inc32(RCX)
	b.AluImm32(op.Grp1Cmp, RCX, 20)
	b.Jcc(op.CcL, "iloop")
	b.Hlt()

	runBlock(t, b)

	if sysCPU.regs[R8] != 465880 {
		t.Errorf("matrix sum got %d, want 465880", sysCPU.regs[R8])
	}
}

// Spigot expansion of e. Divides the carry chain by successive
// integers down to 2 each round; the emitted digits must open with
// the known expansion. Exercises DIV, MUL and register aliasing.
func TestProgramDigitsOfE(t *testing.T) {
	initTest()
	var out bytes.Buffer
	captureWrites(&out)

	const array = 0x8000 // dword a[2..40]
	const buf = 0x9000
	const cells = 40
	const digits = 18

	b := asm.New()
	// a[i] = 1 for 2..cells
	b.MovImm32(RBX, array)
	b.MovImm32(RCX, 2)
	b.MovImm32(RAX, 1)
	b.Label("init")
	b.MovStoreIndex32(RBX, RCX, 4, 0, RAX)
	b.Inc32(RCX)
	b.AluImm32(op.Grp1Cmp, RCX, cells+1)
	b.Jcc(op.CcL, "init")

	b.MovImm32(R9, buf)
	b.MovImm32(RAX, '2')
	b.MovStore(1, R9, 0, RAX)
	b.MovImm32(R8, 1)       // output position
	b.MovImm32(R11, digits) // digits to produce
	b.MovImm32(R10, 10)

	b.Label("digit")
	b.MovImm32(RDI, 0)     // carry
	b.MovImm32(RCX, cells) // i runs high to low
	b.Label("sweep")
	b.MovLoadIndex32(RAX, RBX, RCX, 4, 0)
	b.IMul32(RAX, R10)
	b.Alu32(op.Grp1Add, RAX, RDI)
	b.MovImm32(RDX, 0)
	b.Bytes(0xf7, 0xf1) // div ecx
	b.MovStoreIndex32(RBX, RCX, 4, 0, RDX)
	b.MovReg32(RDI, RAX)
	b.Dec32(RCX)
	b.AluImm32(op.Grp1Cmp, RCX, 1)
	b.Jcc(op.CcG, "sweep")
	// carry is the next digit
	b.AluImm32(op.Grp1Add, RDI, '0')
	b.MovStoreIndex8(R9, R8, 0, RDI)
	b.Inc32(R8)
	b.Dec32(R11)
	b.Jcc(op.CcNe, "digit")

	// write(1, buf, pos)
	b.MovImm32(RAX, 1)
	b.MovImm32(RDI, 1)
	b.MovImm32(RSI, buf)
	b.MovReg32(RDX, R8)
	b.Syscall()
	b.Hlt()

	runBlock(t, b)

	want := "2718281828459045235"[:digits+1]
	if out.String() != want {
		t.Errorf("e digits got %q want %q", out.String(), want)
	}
}

// Deep recursion: naive Fibonacci with a call counter. Exercises
// CALL/RET, stack discipline and dense conditional branching the way
// a game tree search does.
func TestProgramRecursion(t *testing.T) {
	initTest()

	const n = 22

	b := asm.New()
	b.MovImm32(R10, 0) // call counter
	b.MovImm32(RDI, n)
	b.Call("fib")
	b.Hlt()

	// fib(edi) -> eax
	b.Label("fib")
	b.Inc32(R10)
	b.AluImm32(op.Grp1Cmp, RDI, 2)
	b.Jcc(op.CcGe, "rec")
	b.MovReg32(RAX, RDI)
	b.Ret()
	b.Label("rec")
	b.Push(RDI)
	b.AluImm8x32(op.Grp1Sub, RDI, 1)
	b.Call("fib")
	b.Pop(RDI)
	b.Push(RAX)
	b.AluImm8x32(op.Grp1Sub, RDI, 2)
	b.Call("fib")
	b.Pop(RDX)
	b.Alu32(op.Grp1Add, RAX, RDX)
	b.Ret()

	runBlock(t, b)

	if sysCPU.regs[RAX] != 17711 {
		t.Errorf("fib(%d) got %d want 17711", n, sysCPU.regs[RAX])
	}
	if sysCPU.regs[RSP] != testStack {
		t.Error("recursion unbalanced the stack")
	}
	// fib calls: 2*fib(n+1)-1
	if sysCPU.regs[R10] != 2*28657-1 {
		t.Errorf("call count got %d want %d", sysCPU.regs[R10], 2*28657-1)
	}
}
